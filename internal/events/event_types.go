package events

import (
	"time"

	"github.com/spec-kit/incidence-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIncidenceCreated    EventType = "incidence_created"
	EventIncidenceProgressed EventType = "incidence_progressed"
	EventIncidenceCompleted  EventType = "incidence_completed"
	EventIncidenceCancelled  EventType = "incidence_cancelled"
	EventFeedbackRelayed     EventType = "feedback_relayed"
	EventReminderDue         EventType = "reminder_due"
	EventActionDenied        EventType = "action_denied"
	EventIncidenceWithdrawn  EventType = "incidence_withdrawn"
)

// Event represents a domain event emitted after a committed change.
// Incidence is a private copy of the committed state.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	IncidenceID int64             `json:"incidence_id"`
	Incidence   *domain.Incidence `json:"-"`
	Actor       string            `json:"actor,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Payload     any               `json:"payload"`
}

// Route is a category and the conversation its team reads.
type Route struct {
	Category     string `json:"category"`
	Conversation string `json:"conversation"`
}

// IncidenceCreatedPayload payload.
type IncidenceCreatedPayload struct {
	Routes     []Route  `json:"routes"`
	Unrouted   []string `json:"unrouted,omitempty"`
	OriginConv string   `json:"origin_conversation"`
	// Edited marks routes added by an edit; the origin is not re-acknowledged.
	Edited     bool     `json:"edited,omitempty"`
}

// IncidenceProgressedPayload payload.
type IncidenceProgressedPayload struct {
	Category    string   `json:"category"`
	Confirmed   []string `json:"confirmed"`
	Outstanding []string `json:"outstanding"`
}

// IncidenceCompletedPayload payload.
type IncidenceCompletedPayload struct {
	Category        string                    `json:"category"`
	Elapsed         domain.Elapsed            `json:"elapsed"`
	CategoryElapsed map[string]domain.Elapsed `json:"category_elapsed,omitempty"`
}

// IncidenceCancelledPayload payload.
type IncidenceCancelledPayload struct {
	Routes []Route `json:"routes"`
}

// IncidenceWithdrawnPayload lists categories an edit removed and the
// conversations of those that are routed.
type IncidenceWithdrawnPayload struct {
	Removed []string `json:"removed"`
	Routes  []Route  `json:"routes"`
}

// FeedbackRelayedPayload payload. Targets are the conversations receiving the relay.
type FeedbackRelayedPayload struct {
	Entry   domain.FeedbackEntry `json:"entry"`
	Targets []Route              `json:"targets"`
}

// ReminderDuePayload payload.
type ReminderDuePayload struct {
	Route   Route          `json:"route"`
	Elapsed domain.Elapsed `json:"elapsed"`
}

// ActionDeniedPayload payload.
type ActionDeniedPayload struct {
	Conversation string `json:"conversation"`
	Reason       string `json:"reason"`
}
