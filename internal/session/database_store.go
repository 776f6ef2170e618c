package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DatabaseStore is a database/sql session store. The queries use $n
// placeholders, which both the postgres (pgx) and sqlite3 drivers accept.
type DatabaseStore struct {
	db        *sql.DB
	tableName string
	logger    *zap.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// DefaultTableName is the sessions table used when none is configured
const DefaultTableName = "weft_sessions"

// DatabaseConfig holds database session store configuration
type DatabaseConfig struct {
	// DB is the database connection
	DB *sql.DB

	// TableName is the name of the sessions table
	TableName string

	// CleanupInterval is how often to run cleanup (0 = no auto cleanup)
	CleanupInterval time.Duration

	Logger *zap.Logger
}

// DefaultDatabaseConfig returns default database configuration
func DefaultDatabaseConfig(db *sql.DB) *DatabaseConfig {
	return &DatabaseConfig{
		DB:              db,
		TableName:       DefaultTableName,
		CleanupInterval: 5 * time.Minute,
	}
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// OpenDatabase opens a database for the session store. driver is
// "postgres" (served by pgx) or "sqlite3".
func OpenDatabase(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "postgres", "pgx":
		driver = "pgx"
	case "sqlite", "sqlite3":
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported session database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	return db, nil
}

// NewDatabaseStore creates a new database session store
func NewDatabaseStore(config *DatabaseConfig) (*DatabaseStore, error) {
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid sessions table name %q", config.TableName)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := &DatabaseStore{
		db:        config.DB,
		tableName: config.TableName,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}

	if err := store.createTable(); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	if config.CleanupInterval > 0 {
		store.wg.Add(1)
		go store.cleanup(config.CleanupInterval)
	}

	return store, nil
}

func (s *DatabaseStore) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(64) PRIMARY KEY,
			data TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)
	`, s.tableName)

	if _, err := s.db.Exec(query); err != nil {
		return err
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_expires_at ON %s (expires_at)
	`, s.tableName, s.tableName)

	_, err := s.db.Exec(indexQuery)
	return err
}

// Get retrieves a session from the database. An expired row is deleted
// and reported as ErrSessionExpired.
func (s *DatabaseStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	if !ValidID(sessionID) {
		return nil, ErrSessionNotFound
	}
	query := fmt.Sprintf(`
		SELECT data, created_at, expires_at
		FROM %s
		WHERE id = $1
	`, s.tableName)

	var (
		data string
		rec  record
	)
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&data, &rec.createdAt, &rec.expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	rec.payload = []byte(data)

	sess, err := rec.session(sessionID, time.Now())
	if errors.Is(err, ErrSessionExpired) {
		s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tableName), sessionID)
	}
	return sess, err
}

// Set stores a session in the database
func (s *DatabaseStore) Set(ctx context.Context, sessionID string, session *Session, ttl time.Duration) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	rec, err := newRecord(session, time.Now(), ttl)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query, sessionID, string(rec.payload), rec.createdAt, rec.expiresAt)
	if err != nil {
		return fmt.Errorf("database insert error: %w", err)
	}
	return nil
}

// Delete removes a session from the database
func (s *DatabaseStore) Delete(ctx context.Context, sessionID string) error {
	if !ValidID(sessionID) {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("database delete error: %w", err)
	}
	return nil
}

// Refresh updates the expiration time of a session
func (s *DatabaseStore) Refresh(ctx context.Context, sessionID string, ttl time.Duration) error {
	if !ValidID(sessionID) {
		return ErrSessionNotFound
	}
	now := time.Now().UTC()
	query := fmt.Sprintf(`
		UPDATE %s SET expires_at = $1 WHERE id = $2 AND expires_at > $3
	`, s.tableName)

	result, err := s.db.ExecContext(ctx, query, expiry(now, ttl), sessionID, now)
	if err != nil {
		return fmt.Errorf("database update error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Close stops the cleanup goroutine. The database itself is owned by the
// caller.
func (s *DatabaseStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Sweep deletes every session that expired before now
func (s *DatabaseStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= $1`, s.tableName)
	result, err := s.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("database cleanup error: %w", err)
	}
	return result.RowsAffected()
}

func (s *DatabaseStore) cleanup(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			if _, err := s.Sweep(context.Background(), now); err != nil {
				s.logger.Warn("session cleanup failed", zap.Error(err))
			}
		}
	}
}
