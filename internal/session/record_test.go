package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidID(t *testing.T) {
	for _, id := range []string{"s1", "9f1c2a4e-51b1-4c2e-9d3e-0a6f1e2b7c11", "a_b"} {
		assert.True(t, ValidID(id), id)
	}
	for _, id := range []string{"", "a b", "../etc", "x:y", "s1*", string(make([]byte, 65))} {
		assert.False(t, ValidID(id), "%q", id)
	}
}

func TestRecord(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sess := NewSession("s1", -time.Hour)
	sess.Set("user", "ada")

	rec, err := newRecord(sess, now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), rec.expiresAt)

	got, err := rec.session("s2", now)
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)
	assert.Equal(t, now.Add(time.Minute), got.ExpiresAt)
	v, _ := got.Get("user")
	assert.Equal(t, "ada", v)

	_, err = rec.session("s2", now.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = record{payload: []byte("{"), expiresAt: now.Add(time.Hour)}.session("s1", now)
	assert.ErrorContains(t, err, "failed to decode session")

	fresh, err := newRecord(&Session{}, now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now, fresh.createdAt)
}

// Every backend applies the same id check and takes the expiry from the
// ttl it is given.
func TestStoresShareIDsAndExpiry(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			s := NewMemoryStore(time.Hour)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"redis": func(t *testing.T) Store {
			s, _ := newRedisStore(t)
			return s
		},
		"database": func(t *testing.T) Store {
			return newDatabaseStore(t)
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			err := store.Set(ctx, "no spaces", NewSession("no spaces", time.Hour), time.Hour)
			assert.ErrorIs(t, err, ErrInvalidSessionID)
			_, err = store.Get(ctx, "no spaces")
			assert.ErrorIs(t, err, ErrSessionNotFound)
			assert.ErrorIs(t, store.Refresh(ctx, "no spaces", time.Hour), ErrSessionNotFound)
			assert.NoError(t, store.Delete(ctx, "no spaces"))

			require.NoError(t, store.Set(ctx, "s1", NewSession("s1", -time.Hour), time.Hour))
			got, err := store.Get(ctx, "s1")
			require.NoError(t, err)
			assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, time.Second)

			require.NoError(t, store.Refresh(ctx, "s1", 3*time.Hour))
			got, err = store.Get(ctx, "s1")
			require.NoError(t, err)
			assert.WithinDuration(t, time.Now().Add(3*time.Hour), got.ExpiresAt, time.Second)
		})
	}
}
