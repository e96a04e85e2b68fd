package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Baño ":          "bano",
		"CANCELACIÓN":      "cancelacion",
		"Pingüino":         "pinguino",
		"ya quedó LISTO\t": "ya quedo listo",
		"":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, s := range []string{"Fuga de AGUA en el baño", "  ÁÉÍÓÚ ñ ", "already plain", ""} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("", ""))
	assert.Equal(t, 3, Levenshtein("", "abc"))
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
	assert.Equal(t, 1, Levenshtein("baño", "bano"))
}

func TestSimilarityBounds(t *testing.T) {
	pairs := [][2]string{
		{"", ""},
		{"a", ""},
		{"fuga", "fugas"},
		{"computadora", "impresora"},
		{"xyz", "abc"},
	}
	for _, p := range pairs {
		s := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("internet", "internet"))
	assert.Equal(t, 1.0, Similarity("Baño", "bano"))
	assert.Equal(t, 0.0, Similarity("xyz", "abc"))
}

func TestAdaptiveThreshold(t *testing.T) {
	assert.Equal(t, 1.0, AdaptiveThreshold(0.5, 1))
	assert.Equal(t, 1.0, AdaptiveThreshold(0.5, 3))
	assert.Equal(t, 0.8, AdaptiveThreshold(0.5, 5))
	assert.Equal(t, 0.7, AdaptiveThreshold(0.5, 8))
	assert.Equal(t, 0.5, AdaptiveThreshold(0.5, 12))
	assert.Equal(t, 0.9, AdaptiveThreshold(0.9, 12))
}

func TestMatchesShortTokensRequireExact(t *testing.T) {
	assert.False(t, Matches("a", "y", DefaultSimilarityThreshold))
	assert.False(t, Matches("el", "en", DefaultSimilarityThreshold))
	assert.True(t, Matches("luz", "LUZ", DefaultSimilarityThreshold))
	assert.True(t, Matches("computadra", "computadora", DefaultSimilarityThreshold))
	assert.False(t, Matches("fuego", "fuga", DefaultSimilarityThreshold))
}
