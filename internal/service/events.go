package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/events"
	"github.com/spec-kit/incidence-service/internal/routing"
)

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Incidence != nil {
		event.IncidenceID = event.Incidence.ID
		event.Incidence = event.Incidence.Clone()
	}
	// Handlers log their own delivery failures.
	_ = dispatcher.Publish(ctx, event)
}

// routesFor maps categories to destinations on snap. Categories without a
// destination are returned separately.
func routesFor(snap *routing.Snapshot, categories []string) (routes []events.Route, unrouted []string) {
	for _, c := range categories {
		if conv, ok := snap.Destination(c); ok {
			routes = append(routes, events.Route{Category: c, Conversation: conv})
		} else {
			unrouted = append(unrouted, c)
		}
	}
	return routes, unrouted
}

func incidenceEvent(t events.EventType, inc *domain.Incidence, actor string, at time.Time, payload any) events.Event {
	return events.Event{
		Type:      t,
		Incidence: inc,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}
