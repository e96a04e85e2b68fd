package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/clock"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/events"
	"github.com/spec-kit/incidence-service/internal/repository"
	"github.com/spec-kit/incidence-service/internal/routing"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

// IntakeService turns unanswered origin messages into incidences.
type IntakeService struct {
	incidences repository.IncidenceRepository
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// IntakeDependencies bundles collaborators for the intake service.
type IntakeDependencies struct {
	IncidenceRepo repository.IncidenceRepository
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
}

// NewIntakeService constructs the service.
func NewIntakeService(deps IntakeDependencies) *IntakeService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &IntakeService{
		incidences: deps.IncidenceRepo,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Open classifies msg and, when at least one category matches, records and
// routes a new incidence. A nil incidence with a nil error means the message
// was not an incidence report.
func (s *IntakeService) Open(ctx context.Context, msg domain.Message, snap *routing.Snapshot) (*domain.Incidence, error) {
	if !snap.IsOrigin(msg.ConversationID) {
		return nil, nil
	}
	description := strings.TrimSpace(msg.Body)
	if description == "" && msg.Media == nil {
		return nil, nil
	}

	categories := snap.Classifier().Categories(msg.Body, snap.CategoryDictionaries())
	if len(categories) == 0 {
		s.logger.Debug("message matched no category", zap.String("conversation_id", msg.ConversationID))
		return nil, nil
	}

	now := s.clock.Now()
	inc := &domain.Incidence{
		CorrelationID:   uuid.NewString(),
		Description:     description,
		ReportedBy:      msg.Author,
		CreatedAt:       now,
		Categories:      categories,
		Confirmations:   domain.NewConfirmations(categories),
		Status:          domain.IncidenceStatusPending,
		OriginGroup:     msg.ConversationID,
		OriginMessageID: msg.ID,
		Attachment:      msg.Media,
	}
	if err := s.incidences.Create(ctx, inc); err != nil {
		return nil, apperrors.NewStoreFailure("create incidence", err)
	}

	routes, unrouted := routesFor(snap, categories)
	s.logger.Info("incidence created",
		zap.Int64("incidence_id", inc.ID),
		zap.Strings("categories", categories),
		zap.String("conversation_id", msg.ConversationID))

	publishEvent(ctx, s.dispatcher, incidenceEvent(events.EventIncidenceCreated, inc, msg.Author, now,
		events.IncidenceCreatedPayload{Routes: routes, Unrouted: unrouted, OriginConv: inc.OriginGroup}))
	return inc, nil
}

// Edit applies an edit of the message that raised a pending incidence. The
// description is replaced and categories are recomputed; an edit that
// matches no category keeps the current ones. Newly responsible categories
// are notified, dropped ones are told to stand down, and an edit that
// leaves only confirmed categories completes the incidence.
func (s *IntakeService) Edit(ctx context.Context, msg domain.Message, snap *routing.Snapshot) (*domain.Incidence, error) {
	existing, err := s.incidences.GetByOriginMessage(ctx, msg.ConversationID, msg.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreFailure("load edited incidence", err)
	}
	if existing.IsTerminal() {
		return nil, nil
	}

	categories := snap.Classifier().Categories(msg.Body, snap.CategoryDictionaries())
	now := s.clock.Now()
	var (
		added, removed []string
		completed      bool
	)

	updated, err := s.incidences.Update(ctx, existing.ID, func(inc *domain.Incidence) error {
		if inc.IsTerminal() {
			return domain.ErrTerminal
		}
		added, removed, completed = added[:0], removed[:0], false
		inc.Description = strings.TrimSpace(msg.Body)
		inc.UpdatedAt = now
		if len(categories) == 0 {
			return nil
		}
		for _, c := range categories {
			if !inc.HasCategory(c) {
				added = append(added, c)
			}
		}
		for _, c := range inc.Categories {
			if !slices.Contains(categories, c) {
				removed = append(removed, c)
			}
		}
		var err error
		completed, err = inc.Recategorize(categories, now)
		return err
	})
	if errors.Is(err, domain.ErrTerminal) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreFailure("apply edit", err)
	}

	s.logger.Info("incidence edited",
		zap.Int64("incidence_id", updated.ID),
		zap.Strings("categories", updated.Categories),
		zap.Strings("added", added),
		zap.Strings("removed", removed),
		zap.Bool("completed", completed))

	if len(removed) > 0 {
		routes, _ := routesFor(snap, removed)
		publishEvent(ctx, s.dispatcher, incidenceEvent(events.EventIncidenceWithdrawn, updated, msg.Author, now,
			events.IncidenceWithdrawnPayload{Removed: removed, Routes: routes}))
	}
	if len(added) > 0 {
		routes, unrouted := routesFor(snap, added)
		publishEvent(ctx, s.dispatcher, incidenceEvent(events.EventIncidenceCreated, updated, msg.Author, now,
			events.IncidenceCreatedPayload{Routes: routes, Unrouted: unrouted, OriginConv: updated.OriginGroup, Edited: true}))
	}
	if completed {
		payload := events.IncidenceCompletedPayload{Elapsed: updated.ElapsedUntil(*updated.CompletedAt)}
		if updated.IsMultiCategory() {
			payload.CategoryElapsed = updated.CategoryElapsed()
		}
		publishEvent(ctx, s.dispatcher, incidenceEvent(events.EventIncidenceCompleted, updated, msg.Author, now, payload))
	}
	return updated, nil
}
