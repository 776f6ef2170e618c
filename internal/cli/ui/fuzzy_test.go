package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"users", "users", 0},
		{"über", "uber", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b))
		})
	}
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"app.Users", "app.User", "app.Posts", "admin.Users", "app.Auth"}

	assert.Equal(t, []string{"app.Users", "app.User", "app.Posts"}, FindSimilar("app.Usrs", candidates, 3))
	assert.Equal(t, []string{"app.Users", "admin.Users", "app.User"}, FindSimilar("users", candidates, 1))
	assert.Empty(t, FindSimilar("billing.Invoices", candidates, 2))
}
