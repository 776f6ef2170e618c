package session

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidSessionID is returned when a session is saved under an id no
// store accepts
var ErrInvalidSessionID = errors.New("invalid session id")

// Session ids come from a cookie, so they are checked before they reach a
// backend key or query.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID reports whether id can name a stored session
func ValidID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func checkID(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// record is a session as the remote stores keep it. The payload carries
// the handler-visible state; the timestamps sit next to it so a refresh
// rewrites the expiry without touching the payload.
type record struct {
	payload   []byte
	createdAt time.Time
	expiresAt time.Time
}

// newRecord encodes sess for a save at now. The stored expiry is always
// now+ttl, whatever sess.ExpiresAt says.
func newRecord(sess *Session, now time.Time, ttl time.Duration) (record, error) {
	payload, err := json.Marshal(sess)
	if err != nil {
		return record{}, fmt.Errorf("failed to encode session: %w", err)
	}
	created := sess.CreatedAt
	if created.IsZero() {
		created = now
	}
	return record{
		payload:   payload,
		createdAt: created.UTC(),
		expiresAt: expiry(now, ttl),
	}, nil
}

// expiry is when a session saved or refreshed at now with ttl lapses
func expiry(now time.Time, ttl time.Duration) time.Time {
	return now.UTC().Add(ttl)
}

// session decodes r as the session id. A lapsed record is
// ErrSessionExpired and is not decoded.
func (r record) session(id string, now time.Time) (*Session, error) {
	if now.After(r.expiresAt) {
		return nil, ErrSessionExpired
	}
	var s Session
	if err := json.Unmarshal(r.payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	s.ID = id
	s.CreatedAt = r.createdAt.UTC()
	s.ExpiresAt = r.expiresAt.UTC()
	return &s, nil
}
