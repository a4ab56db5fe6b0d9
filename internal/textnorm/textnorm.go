// Package textnorm holds the single normalisation routine applied to both
// free-text queries and catalog keys before they are compared.
package textnorm

import (
	"strings"
	"unicode"
)

// Normalize case-folds s, turns every punctuation or symbol rune into a
// space and collapses runs of whitespace into a single space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Tokens returns the whitespace separated tokens of the normalised form of s.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}
