// Package redact produces bounded, non-reversible excerpts of matched text.
// Every report or artifact derived from a finding must use these excerpts
// and never the raw match.
package redact

import "strings"

const (
	// Keep is the number of characters kept at each end of a long match.
	Keep = 4
	// minLen is the shortest match that shows any real characters.
	minLen = 3*Keep + 1
	mask   = "********"
)

// Excerpt masks s, keeping at most Keep leading and Keep trailing runes.
// Short values are fully masked so that the kept characters never make up
// a meaningful share of the secret.
func Excerpt(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) < minLen {
		return mask
	}
	return string(r[:Keep]) + "…" + string(r[len(r)-Keep:])
}
