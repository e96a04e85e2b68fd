package domain

import (
	"errors"
	"slices"
	"time"
)

// IncidenceStatus enumerates lifecycle states for incidences.
type IncidenceStatus string

const (
	IncidenceStatusPending   IncidenceStatus = "pending"
	IncidenceStatusCompleted IncidenceStatus = "completed"
	IncidenceStatusCancelled IncidenceStatus = "cancelled"
)

var (
	// ErrTerminal is returned when a mutation targets a completed or cancelled incidence.
	ErrTerminal = errors.New("incidence is in a terminal state")
	// ErrCategoryNotResponsible is returned when a category does not own the incidence.
	ErrCategoryNotResponsible = errors.New("category is not responsible for incidence")
	// ErrNoCategories is returned when an incidence would be left without categories.
	ErrNoCategories = errors.New("incidence requires at least one category")
)

// ConfirmOutcome describes the effect of a confirmation.
type ConfirmOutcome int

const (
	ConfirmPartial ConfirmOutcome = iota + 1
	ConfirmCompleted
	ConfirmDuplicate
)

// Attachment is an opaque media payload forwarded with notifications.
type Attachment struct {
	Data     []byte
	MimeType string
	FileName string
}

// Incidence is the aggregate for a tracked report.
type Incidence struct {
	ID              int64
	CorrelationID   string
	Description     string
	ReportedBy      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Categories      []string
	Confirmations   map[string]*time.Time
	Status          IncidenceStatus
	OriginGroup     string
	OriginMessageID string
	Attachment      *Attachment
	FeedbackHistory []FeedbackEntry
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelledBy     string
}

// NewConfirmations seeds the per-category confirmation map. Single-category
// incidences carry no map.
func NewConfirmations(categories []string) map[string]*time.Time {
	if len(categories) < 2 {
		return nil
	}
	out := make(map[string]*time.Time, len(categories))
	for _, c := range categories {
		out[c] = nil
	}
	return out
}

// IsTerminal reports whether the incidence accepts no further transitions.
func (i *Incidence) IsTerminal() bool {
	return i.Status == IncidenceStatusCompleted || i.Status == IncidenceStatusCancelled
}

// IsMultiCategory reports whether more than one category is responsible.
func (i *Incidence) IsMultiCategory() bool {
	return len(i.Categories) > 1
}

// HasCategory reports whether category is responsible for the incidence.
func (i *Incidence) HasCategory(category string) bool {
	return slices.Contains(i.Categories, category)
}

// Outstanding lists categories that have not confirmed, in category order.
func (i *Incidence) Outstanding() []string {
	if i.IsTerminal() {
		return nil
	}
	if !i.IsMultiCategory() {
		return slices.Clone(i.Categories)
	}
	out := make([]string, 0, len(i.Categories))
	for _, c := range i.Categories {
		if i.Confirmations[c] == nil {
			out = append(out, c)
		}
	}
	return out
}

// Confirmed lists categories that have confirmed, in category order.
func (i *Incidence) Confirmed() []string {
	if !i.IsMultiCategory() {
		if i.Status == IncidenceStatusCompleted {
			return slices.Clone(i.Categories)
		}
		return nil
	}
	out := make([]string, 0, len(i.Categories))
	for _, c := range i.Categories {
		if i.Confirmations[c] != nil {
			out = append(out, c)
		}
	}
	return out
}

// Confirm records a confirmation from category at the given time.
func (i *Incidence) Confirm(category string, at time.Time) (ConfirmOutcome, error) {
	if i.IsTerminal() {
		return 0, ErrTerminal
	}
	if !i.HasCategory(category) {
		return 0, ErrCategoryNotResponsible
	}

	if !i.IsMultiCategory() {
		i.complete(at)
		return ConfirmCompleted, nil
	}

	if i.Confirmations == nil {
		i.Confirmations = NewConfirmations(i.Categories)
	}
	if i.Confirmations[category] != nil {
		return ConfirmDuplicate, nil
	}
	ts := at
	i.Confirmations[category] = &ts
	i.UpdatedAt = at

	if len(i.Outstanding()) == 0 {
		i.complete(at)
		return ConfirmCompleted, nil
	}
	return ConfirmPartial, nil
}

func (i *Incidence) complete(at time.Time) {
	ts := at
	i.Status = IncidenceStatusCompleted
	i.CompletedAt = &ts
	i.UpdatedAt = at
}

// Cancel moves a pending incidence to cancelled.
func (i *Incidence) Cancel(actor string, at time.Time) error {
	if i.IsTerminal() {
		return ErrTerminal
	}
	ts := at
	i.Status = IncidenceStatusCancelled
	i.CancelledAt = &ts
	i.CancelledBy = actor
	i.UpdatedAt = at
	return nil
}

// AppendFeedback adds an entry to the append-only history.
func (i *Incidence) AppendFeedback(entry FeedbackEntry) error {
	if i.IsTerminal() {
		return ErrTerminal
	}
	i.FeedbackHistory = append(i.FeedbackHistory, entry)
	i.UpdatedAt = entry.At
	return nil
}

// Recategorize replaces the responsible categories after an edit, keeping
// confirmation timestamps of categories that remain responsible. When every
// remaining category has already confirmed, the incidence completes at the
// latest of those confirmations and completed is true.
func (i *Incidence) Recategorize(categories []string, at time.Time) (completed bool, err error) {
	if i.IsTerminal() {
		return false, ErrTerminal
	}
	if len(categories) == 0 {
		return false, ErrNoCategories
	}
	var last *time.Time
	for _, c := range categories {
		ts := i.Confirmations[c]
		if ts == nil {
			last = nil
			break
		}
		if last == nil || ts.After(*last) {
			last = ts
		}
	}

	next := NewConfirmations(categories)
	for c := range next {
		if ts, ok := i.Confirmations[c]; ok {
			next[c] = ts
		}
	}
	i.Categories = slices.Clone(categories)
	i.Confirmations = next
	i.UpdatedAt = at
	if last == nil {
		return false, nil
	}
	ts := *last
	i.Status = IncidenceStatusCompleted
	i.CompletedAt = &ts
	return true, nil
}

// ElapsedUntil returns the time from creation to t.
func (i *Incidence) ElapsedUntil(t time.Time) Elapsed {
	return NewElapsed(t.Sub(i.CreatedAt))
}

// CategoryElapsed returns per-category elapsed time for confirmed categories.
func (i *Incidence) CategoryElapsed() map[string]Elapsed {
	out := make(map[string]Elapsed, len(i.Confirmations))
	for c, ts := range i.Confirmations {
		if ts != nil {
			out[c] = i.ElapsedUntil(*ts)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand across goroutines.
func (i *Incidence) Clone() *Incidence {
	if i == nil {
		return nil
	}
	out := *i
	out.Categories = slices.Clone(i.Categories)
	if i.Confirmations != nil {
		out.Confirmations = make(map[string]*time.Time, len(i.Confirmations))
		for c, ts := range i.Confirmations {
			if ts != nil {
				v := *ts
				out.Confirmations[c] = &v
			} else {
				out.Confirmations[c] = nil
			}
		}
	}
	if i.Attachment != nil {
		att := *i.Attachment
		att.Data = slices.Clone(i.Attachment.Data)
		out.Attachment = &att
	}
	out.FeedbackHistory = slices.Clone(i.FeedbackHistory)
	out.CompletedAt = cloneTime(i.CompletedAt)
	out.CancelledAt = cloneTime(i.CancelledAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
