package session

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection of an in-memory database is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newDatabaseStore(t *testing.T) *DatabaseStore {
	t.Helper()
	config := DefaultDatabaseConfig(setupTestDB(t))
	config.CleanupInterval = 0
	store, err := NewDatabaseStore(config)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDatabaseStoreConfig(t *testing.T) {
	config := DefaultDatabaseConfig(nil)
	assert.Equal(t, "weft_sessions", config.TableName)
	assert.Equal(t, 5*time.Minute, config.CleanupInterval)
}

func TestDatabaseStoreCreatesTable(t *testing.T) {
	db := setupTestDB(t)
	config := DefaultDatabaseConfig(db)
	config.CleanupInterval = 0

	store, err := NewDatabaseStore(config)
	require.NoError(t, err)
	defer store.Close()

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='weft_sessions'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "weft_sessions", name)
}

func TestDatabaseStoreRejectsTableName(t *testing.T) {
	config := DefaultDatabaseConfig(setupTestDB(t))
	config.TableName = "sessions; DROP TABLE users"
	_, err := NewDatabaseStore(config)
	assert.Error(t, err)
}

func TestDatabaseStoreGetSet(t *testing.T) {
	store := newDatabaseStore(t)
	ctx := context.Background()

	sess := NewSession("db-session", time.Hour)
	sess.Set("user", "ada")
	sess.Errors["name"] = []string{"too short"}
	sess.Messages = []string{"hello"}

	require.NoError(t, store.Set(ctx, sess.ID, sess, time.Hour))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	v, ok := got.Get("user")
	require.True(t, ok)
	assert.Equal(t, "ada", v)
	assert.Equal(t, []string{"too short"}, got.Errors["name"])
	assert.Equal(t, []string{"hello"}, got.Messages)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, time.Minute)

	// upsert
	sess.Set("user", "grace")
	require.NoError(t, store.Set(ctx, sess.ID, sess, time.Hour))
	got, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	v, _ = got.Get("user")
	assert.Equal(t, "grace", v)
}

func TestDatabaseStoreNotFoundAndExpired(t *testing.T) {
	store := newDatabaseStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Set(ctx, "old", NewSession("old", time.Hour), -time.Minute))
	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDatabaseStoreRefreshAndDelete(t *testing.T) {
	store := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", NewSession("s1", time.Hour), time.Minute))
	require.NoError(t, store.Refresh(ctx, "s1", 2*time.Hour))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), got.ExpiresAt, time.Minute)

	require.NoError(t, store.Delete(ctx, "s1"))
	assert.ErrorIs(t, store.Refresh(ctx, "s1", time.Hour), ErrSessionNotFound)
}

func TestDatabaseStoreSweep(t *testing.T) {
	store := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", NewSession("a", time.Hour), time.Minute))
	require.NoError(t, store.Set(ctx, "b", NewSession("b", time.Hour), time.Hour))

	n, err := store.Sweep(ctx, time.Now().Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestDatabaseStoreQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS weft_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_weft_sessions_expires_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	config := DefaultDatabaseConfig(db)
	config.CleanupInterval = 0
	store, err := NewDatabaseStore(config)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	boom := errors.New("connection reset")

	mock.ExpectQuery("SELECT data, created_at, expires_at").
		WithArgs("s1").
		WillReturnError(boom)
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, boom)

	mock.ExpectExec("INSERT INTO weft_sessions").
		WithArgs("s1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(boom)
	assert.ErrorIs(t, store.Set(ctx, "s1", NewSession("s1", time.Hour), time.Hour), boom)

	mock.ExpectExec("DELETE FROM weft_sessions").
		WithArgs("s1").
		WillReturnError(boom)
	assert.ErrorIs(t, store.Delete(ctx, "s1"), boom)

	mock.ExpectExec("UPDATE weft_sessions SET expires_at").
		WithArgs(sqlmock.AnyArg(), "s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.Refresh(ctx, "s1", time.Hour), ErrSessionNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseStoreCreateTableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	config := DefaultDatabaseConfig(db)
	config.CleanupInterval = 0
	_, err = NewDatabaseStore(config)
	assert.ErrorContains(t, err, "permission denied")
}

func TestOpenDatabase(t *testing.T) {
	_, err := OpenDatabase("oracle", "")
	assert.Error(t, err)

	db, err := OpenDatabase("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping())

	// pgx registers lazily connecting pools; opening does not dial
	pg, err := OpenDatabase("postgres", "postgres://weft@127.0.0.1:1/weft")
	require.NoError(t, err)
	pg.Close()
}
