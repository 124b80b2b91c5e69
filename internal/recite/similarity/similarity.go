// Package similarity scores how closely two normalised tokens agree.
package similarity

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Max is the score of two identical tokens.
const Max = 100

// Score returns an integer in [0, Max] computed as
//
//	Max * (maxLen - editDistance) / maxLen
//
// where editDistance is the rune-level Levenshtein distance with unit costs and
// maxLen is the rune length of the longer token. Two empty tokens are
// identical; an empty token never matches a non-empty one. Score is symmetric
// and reaches Max only for equal inputs.
func Score(a, b string) int {
	if a == b {
		return Max
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	maxLen := max(la, lb)
	if la == 0 || lb == 0 {
		return 0
	}
	d := matchr.Levenshtein(a, b)
	if d >= maxLen {
		return 0
	}
	return Max * (maxLen - d) / maxLen
}

// AtLeast reports whether Score(a, b) reaches threshold.
func AtLeast(a, b string, threshold int) bool {
	return Score(a, b) >= threshold
}
