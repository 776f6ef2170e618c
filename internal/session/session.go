// Package session keeps per-client state between requests. A session
// carries an attribute map, validation errors keyed by field and pending
// flash messages; the dispatcher hands all three to handlers as views.
package session

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/conduit-lang/weft/pkg/web"
)

// ErrSessionNotFound is returned when a session is not found
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a session has expired
var ErrSessionExpired = errors.New("session expired")

// Store defines the interface for session storage backends. Stores are
// shared by every request and must be safe for concurrent use.
type Store interface {
	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Set stores a session with the given TTL
	Set(ctx context.Context, sessionID string, session *Session, ttl time.Duration) error

	// Delete removes a session
	Delete(ctx context.Context, sessionID string) error

	// Refresh updates the expiration time of a session
	Refresh(ctx context.Context, sessionID string, ttl time.Duration) error

	// Close cleans up any resources used by the store
	Close() error
}

// Session represents a client session
type Session struct {
	ID string `json:"id"`

	// Data holds the handler-visible attributes
	Data map[string]any `json:"data"`

	// Errors holds validation messages by field
	Errors map[string][]string `json:"errors,omitempty"`

	// Messages holds one-time messages
	Messages []string `json:"messages,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// loaded is the encoded state as Manager.Find returned it
	loaded []byte
}

// state is the part of a session handlers can change
type state struct {
	Data     map[string]any      `json:"data,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
	Messages []string            `json:"messages,omitempty"`
}

func (s *Session) encodeState() []byte {
	b, err := json.Marshal(state{Data: s.Data, Errors: s.Errors, Messages: s.Messages})
	if err != nil {
		return nil
	}
	return b
}

func (s *Session) markLoaded() {
	s.loaded = s.encodeState()
}

// Changed reports whether the data, errors or messages differ from when
// the session was found. A session the manager never handed out counts as
// changed.
func (s *Session) Changed() bool {
	if s.loaded == nil {
		return true
	}
	cur := s.encodeState()
	return cur == nil || !bytes.Equal(cur, s.loaded)
}

// NewSession creates a new session with the given ID and TTL
func NewSession(id string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Data:      make(map[string]any),
		Errors:    make(map[string][]string),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Get retrieves a value from session data
func (s *Session) Get(key string) (any, bool) {
	val, ok := s.Data[key]
	return val, ok
}

// Set stores a value in session data
func (s *Session) Set(key string, value any) {
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	s.Data[key] = value
}

// Delete removes a value from session data
func (s *Session) Delete(key string) {
	delete(s.Data, key)
}

// Clone returns a copy that shares no maps or slices with s
func (s *Session) Clone() *Session {
	c := *s
	c.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		c.Data[k] = v
	}
	c.Errors = make(map[string][]string, len(s.Errors))
	for k, v := range s.Errors {
		c.Errors[k] = append([]string(nil), v...)
	}
	c.Messages = append([]string(nil), s.Messages...)
	return &c
}

// Views returns the session, errors and messages contexts backed by s.
// Changes made through the views are saved with the session.
func (s *Session) Views() (*web.Session, *web.Errors, *web.Messages) {
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	if s.Errors == nil {
		s.Errors = make(map[string][]string)
	}
	return web.NewSession(s.ID, s.Data), web.NewErrors(s.Errors), web.NewMessages(&s.Messages)
}

// Config holds session configuration
type Config struct {
	// CookieName is the name of the session cookie
	CookieName string

	// CookiePath is the path for the session cookie
	CookiePath string

	// TTL is how long an idle session lives
	TTL time.Duration

	// HttpOnly prevents JavaScript access to the cookie
	HttpOnly bool

	// Secure requires HTTPS for the cookie
	Secure bool

	// SameSite controls cross-site cookie behavior
	SameSite string // "Strict", "Lax", or "None"
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		CookieName: "weft_session",
		CookiePath: "/",
		TTL:        30 * time.Minute,
		HttpOnly:   true,
		SameSite:   "Lax",
	}
}
