package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/events"
	"github.com/spec-kit/incidence-service/internal/repository"
)

// HistoryRecorder persists every incidence event as an audit entry. A
// failed write is logged and never affects the change being recorded.
type HistoryRecorder struct {
	dispatcher events.Dispatcher
	history    repository.HistoryRepository
	logger     *zap.Logger
}

// NewHistoryRecorder creates the recorder.
func NewHistoryRecorder(dispatcher events.Dispatcher, history repository.HistoryRepository, logger *zap.Logger) *HistoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRecorder{dispatcher: dispatcher, history: history, logger: logger}
}

// RegisterHandlers subscribes to events.
func (h *HistoryRecorder) RegisterHandlers() {
	if h.dispatcher == nil || h.history == nil {
		return
	}
	for _, t := range []events.EventType{
		events.EventIncidenceCreated,
		events.EventIncidenceProgressed,
		events.EventIncidenceCompleted,
		events.EventIncidenceCancelled,
		events.EventFeedbackRelayed,
		events.EventReminderDue,
		events.EventActionDenied,
		events.EventIncidenceWithdrawn,
	} {
		h.dispatcher.Subscribe(t, h.record)
	}
}

func (h *HistoryRecorder) record(ctx context.Context, event events.Event) error {
	if event.IncidenceID == 0 {
		return nil
	}
	details := payloadDetails(event.Payload)
	if event.Incidence != nil {
		details["status"] = event.Incidence.Status
		details["categories"] = event.Incidence.Categories
	}
	entry := &domain.HistoryEntry{
		IncidenceID: event.IncidenceID,
		EventType:   string(event.Type),
		Actor:       event.Actor,
		Details:     details,
		CreatedAt:   event.Timestamp,
	}
	if err := h.history.Create(ctx, entry); err != nil {
		h.logger.Warn("history write failed",
			zap.Int64("incidence_id", event.IncidenceID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
	return nil
}

// payloadDetails flattens a payload to its JSON object form.
func payloadDetails(payload any) map[string]any {
	details := map[string]any{}
	if payload == nil {
		return details
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return details
	}
	_ = json.Unmarshal(raw, &details)
	return details
}
