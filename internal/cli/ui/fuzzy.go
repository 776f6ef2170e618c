package ui

import (
	"sort"
	"strings"
)

// MaxSuggestions bounds the number of names FindSimilar returns
const MaxSuggestions = 3

// FindSimilar returns up to MaxSuggestions candidates within maxDistance
// edits of target, closest first. Comparison ignores case and also
// measures against the segment after the last dot, so "Usres" finds
// "app.Users".
func FindSimilar(target string, candidates []string, maxDistance int) []string {
	type match struct {
		value    string
		distance int
	}

	want := strings.ToLower(target)
	var matches []match
	for _, c := range candidates {
		lc := strings.ToLower(c)
		d := Levenshtein(want, lc)
		if short := lc[strings.LastIndex(lc, ".")+1:]; short != lc {
			d = min(d, Levenshtein(want, short))
		}
		if d <= maxDistance {
			matches = append(matches, match{c, d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })

	out := make([]string, 0, MaxSuggestions)
	for i := 0; i < len(matches) && i < MaxSuggestions; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// Levenshtein returns the edit distance between a and b
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
