package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager looks sessions up by client identity and persists them after the
// request
type Manager struct {
	store  Store
	config Config
	logger *zap.Logger
}

// NewManager creates a manager over store
func NewManager(store Store, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.CookieName == "" {
		config.CookieName = DefaultConfig().CookieName
	}
	if config.CookiePath == "" {
		config.CookiePath = "/"
	}
	return &Manager{store: store, config: config, logger: logger}
}

// Config returns the manager configuration
func (m *Manager) Config() Config {
	return m.config
}

// Find returns the live session for id, or a fresh session with a new id
// when there is none. Ids no store accepts never reach the store. Store
// failures are logged and also yield a fresh session.
func (m *Manager) Find(ctx context.Context, id string) *Session {
	if ValidID(id) {
		sess, err := m.store.Get(ctx, id)
		switch {
		case err == nil:
			sess.markLoaded()
			return sess
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
		default:
			m.logger.Warn("session lookup failed", zap.String("session", id), zap.Error(err))
		}
	}
	sess := NewSession(uuid.NewString(), m.config.TTL)
	sess.markLoaded()
	return sess
}

// Load finds the session named by the request cookie
func (m *Manager) Load(r *http.Request) *Session {
	var id string
	if c, err := r.Cookie(m.config.CookieName); err == nil {
		id = c.Value
	}
	return m.Find(r.Context(), id)
}

// NeedsSave reports whether sess has to be saved after r. A session is
// saved when r carried a session cookie, so its expiry moves with every
// visit, or when a handler changed it.
func (m *Manager) NeedsSave(r *http.Request, sess *Session) bool {
	if _, err := r.Cookie(m.config.CookieName); err == nil {
		return true
	}
	return sess.Changed()
}

// Save stores sess and writes the session cookie. It must run before the
// response header is written.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	sess.ExpiresAt = time.Now().UTC().Add(m.config.TTL)
	if err := m.store.Set(ctx, sess.ID, sess, m.config.TTL); err != nil {
		return err
	}
	sess.markLoaded()

	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    sess.ID,
		Path:     m.config.CookiePath,
		MaxAge:   int(m.config.TTL / time.Second),
		HttpOnly: m.config.HttpOnly,
		Secure:   m.config.Secure,
		SameSite: sameSiteFromString(m.config.SameSite),
	})
	return nil
}

// Destroy removes sess from the store and expires the cookie
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if err := m.store.Delete(ctx, sess.ID); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:   m.config.CookieName,
		Value:  "",
		Path:   m.config.CookiePath,
		MaxAge: -1,
	})
	return nil
}

// Close closes the store
func (m *Manager) Close() error {
	return m.store.Close()
}

// sameSiteFromString converts a string to http.SameSite
func sameSiteFromString(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
