package pattern

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		raw      string
		prefix   string
		wildcard bool
		err      error
	}{
		{raw: "/users/*", prefix: "/users/", wildcard: true},
		{raw: "/*", prefix: "/", wildcard: true},
		{raw: "/about", prefix: "/about"},
		{raw: "/about/", prefix: "/about"},
		{raw: "/", prefix: ""},
		{raw: "", err: ErrEmpty},
		{raw: "users/*", err: ErrNotRooted},
		{raw: "/users/*/edit", err: ErrInteriorWildcard},
		{raw: "/users*", err: ErrInteriorWildcard},
		{raw: "/a/*/b/*", err: ErrMultipleWildcards},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := Compile(tt.raw)
			if tt.err != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.raw, p.Raw)
			assert.Equal(t, tt.prefix, p.Prefix)
			assert.Equal(t, tt.wildcard, p.Wildcard)
			assert.Equal(t, len(tt.prefix), p.Specificity())
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		action  string
		ok      bool
	}{
		{"prefix longer than path", "/users/*", "/", "", false},
		{"wildcard root", "/users/*", "/users/", "main", true},
		{"wildcard action", "/users/*", "/users/add", "add", true},
		{"wildcard action with suffix", "/users/*", "/users/add.do", "add", true},
		{"wildcard first segment only", "/users/*", "/users/edit/42", "edit", true},
		{"wildcard other prefix", "/users/*", "/groups/add", "", false},
		{"root wildcard", "/*", "/", "main", true},
		{"root wildcard action", "/*", "/login", "login", true},
		{"wildcard no alnum head", "/users/*", "/users/.x", "", true},
		{"exact without action", "/about", "/about", "", false},
		{"exact with action", "/about", "/about/team", "team", true},
		{"exact with suffix", "/about", "/about/team.html", "team", true},
		{"exact empty action", "/about", "/about/", "", false},
		{"exact deeper path", "/about", "/about/team/x", "", false},
		{"root exact", "/", "/status", "status", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustCompile(tt.pattern)
			action, ok := p.Match(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestActionName(t *testing.T) {
	assert.Equal(t, "add", ActionName("add.do"))
	assert.Equal(t, "add2", ActionName("add2-x"))
	assert.Equal(t, "", ActionName("_x"))
	assert.Equal(t, "ünï", ActionName("ünï"))
}

func TestStripPath(t *testing.T) {
	assert.Equal(t, "/users/add", StripPath("/users/add?x=1"))
	assert.Equal(t, "/users/add", StripPath("/users/add;jsessionid=abc?x=1"))
	assert.Equal(t, "/users/", StripPath("/users/"))
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("/a/*/b") })
}
