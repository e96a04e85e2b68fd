package service

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/clock"
	"github.com/spec-kit/incidence-service/internal/correlation"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/events"
	"github.com/spec-kit/incidence-service/internal/observability"
	"github.com/spec-kit/incidence-service/internal/repository"
	"github.com/spec-kit/incidence-service/internal/routing"
	"github.com/spec-kit/incidence-service/internal/transport/transporttest"
)

// 10:00 in Mexico City.
var testStart = time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	repo     repository.IncidenceRepository
	history  repository.HistoryRepository
	rec      *transporttest.Recorder
	clock    *clock.Fake
	metrics  *observability.Metrics
	routing  *routing.Store
	router   *Router
	reconcil *ReconciliationService
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := routing.Open(context.Background(), filepath.Join("testdata", "routing.yaml"), nil)
	require.NoError(t, err)
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		repo:    repository.NewMemoryIncidenceRepository(),
		history: repository.NewMemoryHistoryRepository(),
		rec:     transporttest.New(),
		clock:   clock.NewFake(testStart),
		metrics: observability.NewMetrics(),
		routing: store,
	}
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher(logger)
	NewNotificationService(dispatcher, f.rec, f.metrics, logger).RegisterHandlers()
	NewHistoryRecorder(dispatcher, f.history, logger).RegisterHandlers()

	f.reconcil = NewReconciliationService(ReconciliationDependencies{
		IncidenceRepo: f.repo, Dispatcher: dispatcher, Clock: f.clock, Logger: logger,
	})
	f.router = NewRouter(RouterDependencies{
		Routing:   store,
		Transport: f.rec,
		Resolver:  correlation.NewResolver(f.repo),
		Commands: NewCommandService(CommandDependencies{
			IncidenceRepo: f.repo, Routing: store, Transport: f.rec, Clock: f.clock, Location: loc, Logger: logger,
		}),
		Intake: NewIntakeService(IntakeDependencies{
			IncidenceRepo: f.repo, Dispatcher: dispatcher, Clock: f.clock, Logger: logger,
		}),
		Reconciliation: f.reconcil,
		Metrics:        f.metrics,
		Logger:         logger,
	})
	return f
}

func (f *fixture) nextID() string {
	f.seq++
	return "m" + strconv.Itoa(f.seq)
}

// report posts body in the origin conversation and returns the stored incidence.
func (f *fixture) report(author, body string) *domain.Incidence {
	f.t.Helper()
	msg := domain.Message{ID: f.nextID(), ConversationID: "C-ORIGIN", Author: author, Body: body, Timestamp: f.clock.Now()}
	f.router.Handle(context.Background(), msg)
	inc, err := f.repo.GetByOriginMessage(context.Background(), "C-ORIGIN", msg.ID)
	require.NoError(f.t, err)
	return inc
}

// reply answers the last notice sent to quotedConv, quoting it.
func (f *fixture) reply(conv, author, body, quotedConv string) {
	f.t.Helper()
	notices := f.rec.To(quotedConv)
	require.NotEmpty(f.t, notices, "no notice in %s to quote", quotedConv)
	f.replyTo(conv, author, body, quotedConv, notices[len(notices)-1].Text)
}

func (f *fixture) replyTo(conv, author, body, quotedConv, quotedText string) {
	f.t.Helper()
	quoted := domain.Message{ID: f.nextID(), ConversationID: quotedConv, Body: quotedText}
	f.rec.Quote(quoted)
	f.router.Handle(context.Background(), domain.Message{
		ID:               f.nextID(),
		ConversationID:   conv,
		Author:           author,
		Body:             body,
		Timestamp:        f.clock.Now(),
		HasQuotedMessage: true,
		QuotedMessageID:  quoted.ID,
	})
}

func (f *fixture) command(conv, author, body string) string {
	f.t.Helper()
	f.rec.Reset()
	f.router.Handle(context.Background(), domain.Message{ID: f.nextID(), ConversationID: conv, Author: author, Body: body})
	sent := f.rec.To(conv)
	require.Len(f.t, sent, 1)
	return sent[0].Text
}

func (f *fixture) get(id int64) *domain.Incidence {
	f.t.Helper()
	inc, err := f.repo.GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return inc
}
