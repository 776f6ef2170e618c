package session

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the memory store drops expired sessions
const DefaultSweepInterval = time.Minute

// MemoryStore is an in-memory session store. Sessions are copied on the
// way in and out, so concurrent requests never share session maps.
type MemoryStore struct {
	sessions sync.Map
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type sessionEntry struct {
	mu        sync.Mutex
	session   *Session
	expiresAt time.Time
}

func (e *sessionEntry) expired(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expiresAt.Before(now)
}

// NewMemoryStore creates a memory store that sweeps expired sessions every
// interval. A non-positive interval uses DefaultSweepInterval.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	store := &MemoryStore{
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.sweep(interval)

	return store
}

// Get retrieves a session from memory
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	value, ok := s.sessions.Load(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	entry := value.(*sessionEntry)
	if entry.expired(time.Now()) {
		s.sessions.CompareAndDelete(sessionID, entry)
		return nil, ErrSessionExpired
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.Clone(), nil
}

// Set stores a session in memory
func (s *MemoryStore) Set(ctx context.Context, sessionID string, session *Session, ttl time.Duration) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	c := session.Clone()
	c.ExpiresAt = expiry(time.Now(), ttl)
	s.sessions.Store(sessionID, &sessionEntry{session: c, expiresAt: c.ExpiresAt})
	return nil
}

// Delete removes a session from memory
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.sessions.Delete(sessionID)
	return nil
}

// Refresh updates the expiration time of a session
func (s *MemoryStore) Refresh(ctx context.Context, sessionID string, ttl time.Duration) error {
	value, ok := s.sessions.Load(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	entry := value.(*sessionEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.expiresAt = expiry(time.Now(), ttl)
	entry.session.ExpiresAt = entry.expiresAt
	return nil
}

// Close stops the sweep goroutine and clears all sessions
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.sessions.Range(func(key, value any) bool {
		s.sessions.Delete(key)
		return true
	})
	return nil
}

// sweep periodically removes expired sessions
func (s *MemoryStore) sweep(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Sweep removes the sessions that expired before now and returns how many
// were removed
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	s.sessions.Range(func(key, value any) bool {
		entry := value.(*sessionEntry)
		if entry.expired(now) && s.sessions.CompareAndDelete(key, entry) {
			removed++
		}
		return true
	})
	return removed
}

// Count returns the number of stored sessions
func (s *MemoryStore) Count() int {
	count := 0
	s.sessions.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}
