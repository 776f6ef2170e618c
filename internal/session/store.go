package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store kinds accepted by NewStore
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDatabase = "database"
)

// StoreConfig selects and configures a session backend
type StoreConfig struct {
	Kind          string
	SweepInterval time.Duration
	Redis         RedisConfig
	Database      struct {
		Driver string
		DSN    string
		Table  string
	}
}

// NewStore builds the configured backend. Remote backends are checked for
// connectivity before they are returned.
func NewStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Kind {
	case "", StoreMemory:
		return NewMemoryStore(cfg.SweepInterval), nil

	case StoreRedis:
		rc := cfg.Redis
		if rc.PoolSize == 0 {
			rc.PoolSize = DefaultRedisConfig(rc.Addr).PoolSize
		}
		store := NewRedisStore(&rc)
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis session store at %s: %w", rc.Addr, err)
		}
		return store, nil

	case StoreDatabase:
		db, err := OpenDatabase(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("session database: %w", err)
		}
		dc := DefaultDatabaseConfig(db)
		if cfg.Database.Table != "" {
			dc.TableName = cfg.Database.Table
		}
		if cfg.SweepInterval > 0 {
			dc.CleanupInterval = cfg.SweepInterval
		}
		dc.Logger = logger
		store, err := NewDatabaseStore(dc)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &ownedDatabaseStore{DatabaseStore: store, db: db}, nil
	}

	return nil, fmt.Errorf("unknown session store %q", cfg.Kind)
}

// ownedDatabaseStore closes the database it was opened with
type ownedDatabaseStore struct {
	*DatabaseStore
	db *sql.DB
}

func (s *ownedDatabaseStore) Close() error {
	return errors.Join(s.DatabaseStore.Close(), s.db.Close())
}
