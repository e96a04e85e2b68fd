package domain

import "time"

// HistoryEntry is an immutable audit record of one committed change or
// notice concerning an incidence.
type HistoryEntry struct {
	ID          int64
	IncidenceID int64
	EventType   string
	Actor       string
	Details     map[string]any
	CreatedAt   time.Time
}
