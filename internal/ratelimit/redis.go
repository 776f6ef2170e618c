package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow keeps one sorted-set member per accepted request, scored
// by its time in microseconds. It returns {allowed, count, oldest}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, math.ceil(window / 1000))

local first = now
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	first = tonumber(oldest[2])
end
return {allowed, count, first}
`)

// RedisLimiter allows limit requests in any window-long span, shared by
// every process using the same Redis
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
	// owned clients are closed with the limiter
	owned bool
}

// NewRedisLimiter creates a limiter on an existing client
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
		now:    time.Now,
	}
}

// Allow records the request if key is under the limit
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	res, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixMicro(),
		r.window.Microseconds(),
		r.limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis check failed: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, errors.New("ratelimit: unexpected redis script result")
	}

	return Decision{
		Limit:     r.limit,
		Remaining: max(0, r.limit-int(res[1])),
		ResetAt:   time.UnixMicro(res[2]).Add(r.window),
		Allowed:   res[0] == 1,
	}, nil
}

// Reset forgets every request recorded for key
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Close closes the client if the limiter created it
func (r *RedisLimiter) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
