package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/clock"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/events"
	"github.com/spec-kit/incidence-service/internal/observability"
	"github.com/spec-kit/incidence-service/internal/repository"
	"github.com/spec-kit/incidence-service/internal/routing"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

// PassResult summarizes one reminder pass.
type PassResult struct {
	OutsideHours bool
	Scanned      int
	Reminded     int
	Unroutable   int
}

// ReminderScheduler periodically re-notifies teams about overdue incidences.
type ReminderScheduler struct {
	incidences   repository.IncidenceRepository
	dispatcher   events.Dispatcher
	routing      *routing.Store
	clock        clock.Clock
	location     *time.Location
	startHour    int
	endHour      int
	interval     time.Duration
	overdueAfter time.Duration
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// ReminderDependencies bundles collaborators for the scheduler.
type ReminderDependencies struct {
	IncidenceRepo repository.IncidenceRepository
	Dispatcher    events.Dispatcher
	Routing       *routing.Store
	Clock         clock.Clock
	Location      *time.Location
	StartHour     int
	EndHour       int
	Interval      time.Duration
	OverdueAfter  time.Duration
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewReminderScheduler constructs the scheduler.
func NewReminderScheduler(deps ReminderDependencies) *ReminderScheduler {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Hour
	}
	if deps.OverdueAfter < 0 {
		deps.OverdueAfter = 0
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ReminderScheduler{
		incidences:   deps.IncidenceRepo,
		dispatcher:   deps.Dispatcher,
		routing:      deps.Routing,
		clock:        deps.Clock,
		location:     deps.Location,
		startHour:    deps.StartHour,
		endHour:      deps.EndHour,
		interval:     deps.Interval,
		overdueAfter: deps.OverdueAfter,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
}

// Start runs a catch-up pass over every pending incidence, then one pass per
// interval with the configured overdue threshold. It returns when ctx ends.
func (s *ReminderScheduler) Start(ctx context.Context) error {
	s.runLogged(ctx, 0)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx, s.overdueAfter)
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return nil
		}
	}
}

func (s *ReminderScheduler) runLogged(ctx context.Context, threshold time.Duration) {
	result, err := s.RunPass(ctx, threshold)
	if err != nil {
		s.logger.Error("reminder pass failed", zap.Error(err))
		return
	}
	if result.OutsideHours {
		s.logger.Debug("reminder pass skipped outside business hours")
		return
	}
	s.logger.Info("reminder pass finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("reminded", result.Reminded),
		zap.Int("unroutable", result.Unroutable))
}

// InBusinessHours reports whether t falls in [startHour, endHour) local time.
func (s *ReminderScheduler) InBusinessHours(t time.Time) bool {
	h := t.In(s.location).Hour()
	return h >= s.startHour && h < s.endHour
}

// RunPass reminds every outstanding category of each pending incidence
// created at least threshold ago. Outside business hours it does nothing,
// not even query the store. An incidence with any category lacking a
// destination is skipped entirely.
func (s *ReminderScheduler) RunPass(ctx context.Context, threshold time.Duration) (PassResult, error) {
	now := s.clock.Now()
	if !s.InBusinessHours(now) {
		s.metrics.RecordReminderPass("outside_hours")
		return PassResult{OutsideHours: true}, nil
	}

	snap := s.routing.Current()
	var result PassResult
	for inc, err := range s.incidences.QueryOverdue(ctx, now.Add(-threshold)) {
		if err != nil {
			s.metrics.RecordReminderPass("failed")
			return result, apperrors.NewStoreFailure("query overdue incidences", err)
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Scanned++

		routes, ok := s.routesFor(snap, &inc)
		if !ok {
			result.Unroutable++
			continue
		}
		elapsed := inc.ElapsedUntil(now)
		for _, route := range routes {
			s.publish(ctx, &inc, now, events.ReminderDuePayload{Route: route, Elapsed: elapsed})
			result.Reminded++
		}
	}
	s.metrics.RecordReminderPass("completed")
	return result, nil
}

func (s *ReminderScheduler) routesFor(snap *routing.Snapshot, inc *domain.Incidence) ([]events.Route, bool) {
	outstanding := inc.Outstanding()
	routes := make([]events.Route, 0, len(outstanding))
	for _, c := range inc.Categories {
		if _, ok := snap.Destination(c); !ok {
			s.logger.Warn("reminder skipped: category has no destination",
				zap.Int64("incidence_id", inc.ID),
				zap.String("category", c))
			return nil, false
		}
	}
	for _, c := range outstanding {
		conv, _ := snap.Destination(c)
		routes = append(routes, events.Route{Category: c, Conversation: conv})
	}
	return routes, true
}

func (s *ReminderScheduler) publish(ctx context.Context, inc *domain.Incidence, at time.Time, payload events.ReminderDuePayload) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:          uuid.NewString(),
		Type:        events.EventReminderDue,
		IncidenceID: inc.ID,
		Incidence:   inc.Clone(),
		Timestamp:   at,
		Payload:     payload,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("reminder handler reported failure", zap.Int64("incidence_id", inc.ID), zap.Error(err))
	}
}
