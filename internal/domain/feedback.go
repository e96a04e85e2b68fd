package domain

import "time"

// FeedbackKind differentiates confirmations from free feedback in the history.
type FeedbackKind string

const (
	FeedbackKindConfirmation FeedbackKind = "confirmation"
	FeedbackKindFeedback     FeedbackKind = "feedback"
)

// FeedbackEntry is an immutable entry in an incidence's feedback history.
type FeedbackEntry struct {
	Author   string       `json:"author"`
	Text     string       `json:"text"`
	At       time.Time    `json:"at"`
	Category string       `json:"category,omitempty"`
	Kind     FeedbackKind `json:"kind"`
}
