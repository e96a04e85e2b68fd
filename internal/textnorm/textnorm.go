package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSimilarityThreshold is the baseline acceptance cutoff for fuzzy token matching.
const DefaultSimilarityThreshold = 0.5

// Normalize decomposes text, drops combining marks, trims and lowercases it.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Levenshtein returns the rune-level edit distance between a and b using
// unit costs.
func Levenshtein(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// Similarity scores two strings in [0,1] after normalization.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(na, nb))/float64(longest)
}

// AdaptiveThreshold tightens base for short inputs, where n is the rune
// length of the longer of the two compared strings. Tokens of three runes
// or fewer must match exactly.
func AdaptiveThreshold(base float64, n int) float64 {
	switch {
	case n <= 3:
		return 1
	case n <= 5:
		return max(base, 0.8)
	case n <= 8:
		return max(base, 0.7)
	default:
		return base
	}
}

// Matches reports whether token is close enough to word under the adaptive threshold.
func Matches(token, word string, base float64) bool {
	nt, nw := Normalize(token), Normalize(word)
	if nt == nw {
		return true
	}
	n := max(utf8.RuneCountInString(nt), utf8.RuneCountInString(nw))
	return Similarity(nt, nw) >= AdaptiveThreshold(base, n)
}
