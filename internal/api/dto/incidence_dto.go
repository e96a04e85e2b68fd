package dto

import (
	"time"

	"github.com/spec-kit/incidence-service/internal/domain"
)

// IncidenceSummary response.
type IncidenceSummary struct {
	ID            int64                  `json:"id"`
	CorrelationID string                 `json:"correlation_id"`
	Description   string                 `json:"description"`
	ReportedBy    string                 `json:"reported_by"`
	Categories    []string               `json:"categories"`
	Outstanding   []string               `json:"outstanding"`
	Status        domain.IncidenceStatus `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// IncidenceDetail provides full incidence info.
type IncidenceDetail struct {
	IncidenceSummary
	OriginConversation string                `json:"origin_conversation"`
	Confirmations      map[string]*time.Time `json:"confirmations,omitempty"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
	CancelledAt        *time.Time            `json:"cancelled_at,omitempty"`
	CancelledBy        string                `json:"cancelled_by,omitempty"`
	Elapsed            string                `json:"elapsed"`
	Attachment         *AttachmentResponse   `json:"attachment,omitempty"`
	Feedback           []FeedbackResponse    `json:"feedback"`
}

// AttachmentResponse describes media without its payload.
type AttachmentResponse struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int    `json:"size_bytes"`
}

// FeedbackResponse is one history entry.
type FeedbackResponse struct {
	Author   string              `json:"author"`
	Text     string              `json:"text"`
	At       time.Time           `json:"at"`
	Category string              `json:"category,omitempty"`
	Kind     domain.FeedbackKind `json:"kind"`
}

// NewIncidenceSummary maps the aggregate to its list view.
func NewIncidenceSummary(inc *domain.Incidence) IncidenceSummary {
	return IncidenceSummary{
		ID:            inc.ID,
		CorrelationID: inc.CorrelationID,
		Description:   inc.Description,
		ReportedBy:    inc.ReportedBy,
		Categories:    inc.Categories,
		Outstanding:   inc.Outstanding(),
		Status:        inc.Status,
		CreatedAt:     inc.CreatedAt,
		UpdatedAt:     inc.UpdatedAt,
	}
}

// NewIncidenceDetail maps the aggregate; now bounds the elapsed time of
// incidences that are still open.
func NewIncidenceDetail(inc *domain.Incidence, now time.Time) IncidenceDetail {
	end := now
	switch {
	case inc.CompletedAt != nil:
		end = *inc.CompletedAt
	case inc.CancelledAt != nil:
		end = *inc.CancelledAt
	}
	detail := IncidenceDetail{
		IncidenceSummary:   NewIncidenceSummary(inc),
		OriginConversation: inc.OriginGroup,
		Confirmations:      inc.Confirmations,
		CompletedAt:        inc.CompletedAt,
		CancelledAt:        inc.CancelledAt,
		CancelledBy:        inc.CancelledBy,
		Elapsed:            inc.ElapsedUntil(end).String(),
		Feedback:           make([]FeedbackResponse, 0, len(inc.FeedbackHistory)),
	}
	if a := inc.Attachment; a != nil {
		detail.Attachment = &AttachmentResponse{FileName: a.FileName, MimeType: a.MimeType, SizeBytes: len(a.Data)}
	}
	for _, e := range inc.FeedbackHistory {
		detail.Feedback = append(detail.Feedback, FeedbackResponse{
			Author: e.Author, Text: e.Text, At: e.At, Category: e.Category, Kind: e.Kind,
		})
	}
	return detail
}

// HistoryEntryResponse is one audit entry.
type HistoryEntryResponse struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	Actor     string         `json:"actor,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewHistoryEntries maps audit entries for the API.
func NewHistoryEntries(entries []domain.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:        e.ID,
			EventType: e.EventType,
			Actor:     e.Actor,
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
