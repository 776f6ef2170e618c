package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces session keys in shared backends
const DefaultKeyPrefix = "weft:session:"

// Hash fields of a stored session. Timestamps are unix milliseconds.
const (
	fieldPayload = "payload"
	fieldCreated = "created_at"
	fieldExpires = "expires_at"
)

// refreshScript moves the expiry of an existing session only; a refresh
// must never recreate a session that lapsed between requests.
var refreshScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "expires_at", ARGV[1])
redis.call("PEXPIREAT", KEYS[1], ARGV[1])
return 1
`)

// RedisStore keeps each session in a hash under prefix+id. The key
// expires together with the session.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int

	// KeyPrefix is prepended to every session id
	KeyPrefix string
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig(addr string) *RedisConfig {
	return &RedisConfig{
		Addr:      addr,
		PoolSize:  100,
		KeyPrefix: DefaultKeyPrefix,
	}
}

// NewRedisStore connects lazily to the configured server
func NewRedisStore(config *RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return NewRedisStoreFromClient(client, config.KeyPrefix)
}

// NewRedisStoreFromClient wraps an existing client. The store owns it
// from then on.
func NewRedisStoreFromClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Get loads the session id. A hash whose expires_at has passed is removed
// and reported as ErrSessionExpired.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	if !ValidID(sessionID) {
		return nil, ErrSessionNotFound
	}
	key := s.key(sessionID)

	vals, err := s.client.HMGet(ctx, key, fieldPayload, fieldCreated, fieldExpires).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session lookup: %w", err)
	}
	if vals[0] == nil {
		return nil, ErrSessionNotFound
	}
	rec, err := hashRecord(vals)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	sess, err := rec.session(sessionID, time.Now())
	if errors.Is(err, ErrSessionExpired) {
		s.client.Del(ctx, key)
	}
	return sess, err
}

// Set writes the session hash and its key expiry in one transaction
func (s *RedisStore) Set(ctx context.Context, sessionID string, session *Session, ttl time.Duration) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	rec, err := newRecord(session, time.Now(), ttl)
	if err != nil {
		return err
	}

	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			fieldPayload, rec.payload,
			fieldCreated, millis(rec.createdAt),
			fieldExpires, millis(rec.expiresAt))
		p.PExpireAt(ctx, key, rec.expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis session save: %w", err)
	}
	return nil
}

// Delete removes the session id
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if !ValidID(sessionID) {
		return nil
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis session delete: %w", err)
	}
	return nil
}

// Refresh moves the expiry of the session id to now+ttl
func (s *RedisStore) Refresh(ctx context.Context, sessionID string, ttl time.Duration) error {
	if !ValidID(sessionID) {
		return ErrSessionNotFound
	}
	at := millis(expiry(time.Now(), ttl))
	n, err := refreshScript.Run(ctx, s.client, []string{s.key(sessionID)}, at).Int()
	if err != nil {
		return fmt.Errorf("redis session refresh: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

// hashRecord rebuilds a record from the HMGET reply for payload,
// created_at and expires_at
func hashRecord(vals []any) (record, error) {
	payload, ok := vals[0].(string)
	if !ok {
		return record{}, fmt.Errorf("malformed %s field", fieldPayload)
	}
	created, err := hashTime(vals[1], fieldCreated)
	if err != nil {
		return record{}, err
	}
	expires, err := hashTime(vals[2], fieldExpires)
	if err != nil {
		return record{}, err
	}
	return record{payload: []byte(payload), createdAt: created, expiresAt: expires}, nil
}

func hashTime(v any, field string) (time.Time, error) {
	raw, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("missing %s field", field)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed %s field: %w", field, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
