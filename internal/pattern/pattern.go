// Package pattern compiles controller URL patterns and extracts action
// names from request paths.
//
// A pattern is a literal path, optionally ending in a single "*" segment:
//
//	/users/*   matches /users/, /users/add, /users/add.do
//	/about     matches /about/<action> only
//
// Specificity is the length of the literal prefix; the router tries longer
// prefixes first.
package pattern

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DefaultAction is the action a wildcard pattern resolves to when the path
// names none
const DefaultAction = "main"

var (
	// ErrEmpty is returned for an empty pattern
	ErrEmpty = errors.New("empty url pattern")
	// ErrNotRooted is returned for a pattern that does not start with "/"
	ErrNotRooted = errors.New("url pattern must start with '/'")
	// ErrInteriorWildcard is returned when "*" is not the final path segment
	ErrInteriorWildcard = errors.New("wildcard must be the final path segment")
	// ErrMultipleWildcards is returned for more than one "*"
	ErrMultipleWildcards = errors.New("url pattern may contain at most one wildcard")
)

// Pattern is a compiled URL pattern
type Pattern struct {
	Raw      string `json:"raw"`
	Prefix   string `json:"prefix"`
	Wildcard bool   `json:"wildcard"`
}

// Compile validates raw and returns its compiled form
func Compile(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, ErrEmpty
	}
	if !strings.HasPrefix(raw, "/") {
		return Pattern{}, fmt.Errorf("%q: %w", raw, ErrNotRooted)
	}

	switch n := strings.Count(raw, "*"); {
	case n > 1:
		return Pattern{}, fmt.Errorf("%q: %w", raw, ErrMultipleWildcards)
	case n == 1:
		if !strings.HasSuffix(raw, "/*") {
			return Pattern{}, fmt.Errorf("%q: %w", raw, ErrInteriorWildcard)
		}
		return Pattern{Raw: raw, Prefix: strings.TrimSuffix(raw, "*"), Wildcard: true}, nil
	}

	// "/about/" and "/about" are the same controller; the action segment
	// always follows the last separator
	return Pattern{Raw: raw, Prefix: strings.TrimSuffix(raw, "/")}, nil
}

// MustCompile is Compile for patterns known to be valid
func MustCompile(raw string) Pattern {
	p, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Specificity orders patterns: a longer literal prefix is more specific
func (p Pattern) Specificity() int {
	return len(p.Prefix)
}

// String returns the raw pattern
func (p Pattern) String() string {
	return p.Raw
}

// Match extracts the action name from an already stripped path. A wildcard
// pattern may return an empty action when the first segment has no
// alphanumeric head; the caller decides the fallback.
func (p Pattern) Match(path string) (string, bool) {
	if len(p.Prefix) > len(path) {
		return "", false
	}

	if p.Wildcard {
		if !strings.HasPrefix(path, p.Prefix) {
			return "", false
		}
		rest := path[len(p.Prefix):]
		if rest == "" || rest == "/" {
			return DefaultAction, true
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		return ActionName(rest), true
	}

	i := strings.LastIndexByte(path, '/')
	if i < 0 || path[:i] != p.Prefix {
		return "", false
	}
	action := ActionName(path[i+1:])
	if action == "" {
		return "", false
	}
	return action, true
}

// ActionName truncates a path segment at its first non-alphanumeric rune
func ActionName(segment string) string {
	for i, r := range segment {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return segment[:i]
		}
	}
	return segment
}

// StripPath removes the query string and any ";" path parameters
func StripPath(path string) string {
	if i := strings.IndexAny(path, "?;"); i >= 0 {
		return path[:i]
	}
	return path
}
