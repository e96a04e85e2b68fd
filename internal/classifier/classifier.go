// Package classifier maps free-text messages to responsible categories and
// reply intents using keyword and phrase dictionaries.
package classifier

import (
	"strings"

	"github.com/spec-kit/incidence-service/internal/textnorm"
)

// Intent is the kind of signal a reply carries.
type Intent string

const (
	IntentNone         Intent = "none"
	IntentConfirmation Intent = "confirmation"
	IntentFeedback     Intent = "feedback"
	IntentCancellation Intent = "cancellation"
)

// Dictionary holds the words and phrases that identify a label.
type Dictionary struct {
	Words   []string `yaml:"words"`
	Phrases []string `yaml:"phrases"`
}

// CategoryDictionary binds a dictionary to a category name.
type CategoryDictionary struct {
	Name string
	Dictionary
}

// IntentDictionaries groups the reply-intent dictionaries.
type IntentDictionaries struct {
	Confirmation Dictionary `yaml:"confirmacion"`
	Feedback     Dictionary `yaml:"retroalimentacion"`
	Cancellation Dictionary `yaml:"cancelacion"`
}

// Classifier is a pure function of its settings, the text and the dictionaries.
type Classifier struct {
	// Fuzzy enables similarity matching of single tokens against words.
	Fuzzy bool
	// Threshold is the base similarity cutoff before length adaptation.
	Threshold float64
}

// New builds a classifier; a non-positive threshold falls back to the default.
func New(fuzzy bool, threshold float64) Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = textnorm.DefaultSimilarityThreshold
	}
	return Classifier{Fuzzy: fuzzy, Threshold: threshold}
}

var punctuation = strings.NewReplacer(
	".", " ", ",", " ", ";", " ", ":", " ",
	"!", " ", "?", " ", "¿", " ", "¡", " ",
	"(", " ", ")", " ", "\"", " ", "'", " ",
)

// Tokenize normalizes text, strips punctuation and splits on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(punctuation.Replace(textnorm.Normalize(text)))
}

func canonical(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// Categories returns the matching categories in dictionary declaration order.
func (c Classifier) Categories(text string, dicts []CategoryDictionary) []string {
	tokens := Tokenize(text)
	message := strings.Join(tokens, " ")
	matched := make([]string, 0, 2)
	for _, d := range dicts {
		if c.matches(tokens, message, d.Dictionary) {
			matched = append(matched, d.Name)
		}
	}
	return matched
}

// Intent detects the reply intent. Cancellation wins and only on an exact
// full-message match; confirmation is checked before feedback.
func (c Classifier) Intent(text string, dicts IntentDictionaries) Intent {
	message := canonical(text)
	if message == "" {
		return IntentNone
	}
	if equalsAny(message, dicts.Cancellation) {
		return IntentCancellation
	}
	tokens := strings.Fields(message)
	if c.matches(tokens, message, dicts.Confirmation) {
		return IntentConfirmation
	}
	if c.matches(tokens, message, dicts.Feedback) {
		return IntentFeedback
	}
	return IntentNone
}

func (c Classifier) matches(tokens []string, message string, d Dictionary) bool {
	for _, word := range d.Words {
		w := canonical(word)
		if w == "" {
			continue
		}
		for _, tok := range tokens {
			if tok == w {
				return true
			}
			if c.Fuzzy && textnorm.Matches(tok, w, c.Threshold) {
				return true
			}
		}
	}
	for _, phrase := range d.Phrases {
		p := canonical(phrase)
		if p != "" && strings.Contains(message, p) {
			return true
		}
	}
	return false
}

func equalsAny(message string, d Dictionary) bool {
	for _, candidate := range append(append([]string{}, d.Words...), d.Phrases...) {
		if c := canonical(candidate); c != "" && c == message {
			return true
		}
	}
	return false
}
