package session

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "test:")
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStoreConfig(t *testing.T) {
	config := DefaultRedisConfig("localhost:6379")
	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, 100, config.PoolSize)
	assert.Equal(t, DefaultKeyPrefix, config.KeyPrefix)

	store := NewRedisStore(config)
	defer store.Close()
	assert.Equal(t, "weft:session:abc", store.key("abc"))
}

func TestRedisStoreGetSet(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	sess := NewSession("s1", time.Hour)
	sess.Set("user", "ada")
	sess.Set("visits", 3)
	sess.Errors["email"] = []string{"is required"}
	sess.Messages = []string{"saved"}

	require.NoError(t, store.Set(ctx, "s1", sess, 5*time.Minute))
	assert.NotEmpty(t, mr.HGet("test:s1", fieldPayload))
	assert.NotEmpty(t, mr.HGet("test:s1", fieldExpires))
	assert.InDelta(t, float64(5*time.Minute), float64(mr.TTL("test:s1")), float64(time.Second))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	v, _ := got.Get("user")
	assert.Equal(t, "ada", v)
	v, _ = got.Get("visits")
	// JSON numbers come back as float64
	assert.Equal(t, float64(3), v)
	assert.Equal(t, []string{"is required"}, got.Errors["email"])
	assert.Equal(t, []string{"saved"}, got.Messages)
	assert.WithinDuration(t, sess.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), got.ExpiresAt, time.Second)
}

func TestRedisStoreNotFound(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Refresh(ctx, "missing", time.Hour), ErrSessionNotFound)
	assert.False(t, mr.Exists("test:missing"))
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", NewSession("s1", time.Hour), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreLapsedHash(t *testing.T) {
	store, mr := newRedisStore(t)
	past := strconv.FormatInt(time.Now().Add(-time.Minute).UnixMilli(), 10)
	mr.HSet("test:s1", fieldPayload, "{}", fieldCreated, past, fieldExpires, past)

	_, err := store.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, mr.Exists("test:s1"))
}

func TestRedisStoreRefreshMovesPayloadExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	// the stored expiry comes from the ttl, not from the session value
	require.NoError(t, store.Set(ctx, "s1", NewSession("s1", -time.Minute), time.Minute))
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), got.ExpiresAt, time.Second)

	require.NoError(t, store.Refresh(ctx, "s1", 2*time.Hour))
	assert.InDelta(t, float64(2*time.Hour), float64(mr.TTL("test:s1")), float64(time.Second))

	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), got.ExpiresAt, time.Second)

	require.NoError(t, store.Delete(ctx, "s1"))
	assert.False(t, mr.Exists("test:s1"))
	assert.ErrorIs(t, store.Refresh(ctx, "s1", time.Hour), ErrSessionNotFound)
	assert.False(t, mr.Exists("test:s1"))
}

func TestRedisStoreCorruptHash(t *testing.T) {
	store, mr := newRedisStore(t)
	future := strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10)

	mr.HSet("test:bad", fieldPayload, "{not json", fieldCreated, future, fieldExpires, future)
	_, err := store.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	mr.HSet("test:partial", fieldPayload, "{}")
	_, err = store.Get(context.Background(), "partial")
	assert.ErrorContains(t, err, "missing created_at field")

	mr.HSet("test:clock", fieldPayload, "{}", fieldCreated, "yesterday", fieldExpires, future)
	_, err = store.Get(context.Background(), "clock")
	assert.ErrorContains(t, err, "malformed created_at field")
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	assert.Error(t, store.Ping(context.Background()))
	_, err := store.Get(context.Background(), "s1")
	assert.Error(t, err)
}
