package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/events"
	"github.com/spec-kit/incidence-service/internal/repository"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

func eventTypes(entries []domain.HistoryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.EventType)
	}
	return out
}

func TestHistoryRecordsIncidenceLifecycle(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "fuga en la cocina y la computadora no prende")
	require.Len(t, inc.Categories, 2)

	f.clock.Advance(time.Hour)
	f.reply("C-MAN", "U-MAN", "listo", "C-MAN")
	f.clock.Advance(time.Hour)
	f.reply("C-SIS", "U-SIS", "hecho", "C-SIS")

	entries, err := NewQueryService(f.repo, f.history).History(context.Background(), inc.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"incidence_created", "incidence_progressed", "incidence_completed"}, eventTypes(entries))

	progressed := entries[1]
	assert.Equal(t, "U-MAN", progressed.Actor)
	assert.Equal(t, "mantenimiento", progressed.Details["category"])
	assert.Equal(t, testStart.Add(time.Hour), progressed.CreatedAt)
	assert.Equal(t, domain.IncidenceStatusCompleted, entries[2].Details["status"])
}

func TestHistoryOfUnknownIncidenceIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := NewQueryService(f.repo, f.history).History(context.Background(), 42, 0, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

type failingHistory struct{ repository.HistoryRepository }

func (failingHistory) Create(context.Context, *domain.HistoryEntry) error {
	return errors.New("disk full")
}

func TestHistoryFailureDoesNotFailPublish(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	NewHistoryRecorder(dispatcher, failingHistory{}, zap.NewNop()).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:        events.EventIncidenceCreated,
		IncidenceID: 1,
		Timestamp:   testStart,
	})
	assert.NoError(t, err)
}
