package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket refills limit tokens per window, continuously, for every key
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	now     func() time.Time

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter allowing limit requests per window.
// Buckets idle for a whole window are full again and are dropped every
// sweep interval.
func NewTokenBucket(limit int, window, sweep time.Duration) *TokenBucket {
	tb := &TokenBucket{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if sweep > 0 {
		tb.ticker = time.NewTicker(sweep)
		go tb.sweepLoop()
	}
	return tb
}

// Allow takes one token from key's bucket
func (tb *TokenBucket) Allow(_ context.Context, key string) (Decision, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	capacity := float64(tb.limit)

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, last: now}
		tb.buckets[key] = b
	} else if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = min(capacity, b.tokens+capacity*float64(elapsed)/float64(tb.window))
		b.last = now
	}

	d := Decision{Limit: tb.limit}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	}
	d.Remaining = int(b.tokens)
	missing := capacity - b.tokens
	d.ResetAt = now.Add(time.Duration(missing / capacity * float64(tb.window)))
	return d, nil
}

func (tb *TokenBucket) sweepLoop() {
	for {
		select {
		case <-tb.ticker.C:
			tb.sweep()
		case <-tb.done:
			return
		}
	}
}

func (tb *TokenBucket) sweep() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.last) >= tb.window {
			delete(tb.buckets, key)
		}
	}
}

// Len returns the number of tracked keys
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// Close stops the sweeper
func (tb *TokenBucket) Close() error {
	tb.once.Do(func() {
		close(tb.done)
		if tb.ticker != nil {
			tb.ticker.Stop()
		}
	})
	return nil
}
