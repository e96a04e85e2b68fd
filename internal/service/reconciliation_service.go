package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/classifier"
	"github.com/spec-kit/incidence-service/internal/clock"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/events"
	"github.com/spec-kit/incidence-service/internal/repository"
	"github.com/spec-kit/incidence-service/internal/routing"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

// Outcome is what reconciling one reply did to its incidence.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePartial   Outcome = "partial"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeDenied    Outcome = "denied"
	OutcomeFeedback  Outcome = "feedback"
	OutcomeIgnored   Outcome = "ignored"
)

const cancelDeniedReason = "Solo quien reportó la incidencia o un supervisor puede cancelarla."

// errUnchanged aborts an update that would not change the record.
var errUnchanged = errors.New("no change")

// ReconciliationService applies classified replies to incidences.
type ReconciliationService struct {
	incidences repository.IncidenceRepository
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// ReconciliationDependencies bundles collaborators for the engine.
type ReconciliationDependencies struct {
	IncidenceRepo repository.IncidenceRepository
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
}

// NewReconciliationService constructs the service.
func NewReconciliationService(deps ReconciliationDependencies) *ReconciliationService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ReconciliationService{
		incidences: deps.IncidenceRepo,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Reconcile merges msg, a reply resolved to inc, into the incidence. The
// category a confirmation applies to comes from the conversation msg
// arrived in, never from its text. Every change is one atomic update and
// events are published only after it commits.
func (s *ReconciliationService) Reconcile(ctx context.Context, msg domain.Message, inc *domain.Incidence, snap *routing.Snapshot) (Outcome, error) {
	if inc.IsTerminal() {
		return OutcomeIgnored, nil
	}

	intent := snap.Classifier().Intent(msg.Body, snap.Intents)
	category, fromTeam := snap.CategoryForConversation(msg.ConversationID)

	switch {
	case intent == classifier.IntentCancellation:
		return s.cancel(ctx, msg, inc, snap)
	case intent == classifier.IntentConfirmation && fromTeam && inc.HasCategory(category):
		return s.confirm(ctx, msg, inc, category)
	default:
		return s.feedback(ctx, msg, inc, snap, intent == classifier.IntentFeedback)
	}
}

func (s *ReconciliationService) confirm(ctx context.Context, msg domain.Message, inc *domain.Incidence, category string) (Outcome, error) {
	now := s.clock.Now()
	var result domain.ConfirmOutcome

	updated, err := s.incidences.Update(ctx, inc.ID, func(i *domain.Incidence) error {
		var err error
		result, err = i.Confirm(category, now)
		if err != nil {
			return err
		}
		if result == domain.ConfirmDuplicate {
			return errUnchanged
		}
		i.FeedbackHistory = append(i.FeedbackHistory, domain.FeedbackEntry{
			Author:   msg.Author,
			Text:     strings.TrimSpace(msg.Body),
			At:       now,
			Category: category,
			Kind:     domain.FeedbackKindConfirmation,
		})
		return nil
	})
	if outcome, done, err := s.settle(err, inc.ID); done {
		return outcome, err
	}

	logger := s.logger.With(zap.Int64("incidence_id", updated.ID), zap.String("category", category))
	if result == domain.ConfirmCompleted {
		logger.Info("incidence completed")
		payload := events.IncidenceCompletedPayload{
			Category: category,
			Elapsed:  updated.ElapsedUntil(*updated.CompletedAt),
		}
		if updated.IsMultiCategory() {
			payload.CategoryElapsed = updated.CategoryElapsed()
		}
		publishEvent(ctx, s.dispatcher, incidenceEvent(events.EventIncidenceCompleted, updated, msg.Author, now, payload))
		return OutcomeCompleted, nil
	}

	logger.Info("incidence partially confirmed", zap.Strings("outstanding", updated.Outstanding()))
	publishEvent(ctx, s.dispatcher, incidenceEvent(events.EventIncidenceProgressed, updated, msg.Author, now,
		events.IncidenceProgressedPayload{
			Category:    category,
			Confirmed:   updated.Confirmed(),
			Outstanding: updated.Outstanding(),
		}))
	return OutcomePartial, nil
}

func (s *ReconciliationService) cancel(ctx context.Context, msg domain.Message, inc *domain.Incidence, snap *routing.Snapshot) (Outcome, error) {
	if !s.mayCancel(msg.Author, inc, snap) {
		s.logger.Info("cancellation denied",
			zap.Int64("incidence_id", inc.ID),
			zap.String("actor", msg.Author))
		publishEvent(ctx, s.dispatcher, incidenceEvent(events.EventActionDenied, inc, msg.Author, s.clock.Now(),
			events.ActionDeniedPayload{Conversation: msg.ConversationID, Reason: cancelDeniedReason}))
		return OutcomeDenied, nil
	}

	now := s.clock.Now()
	updated, err := s.incidences.Update(ctx, inc.ID, func(i *domain.Incidence) error {
		return i.Cancel(msg.Author, now)
	})
	if outcome, done, err := s.settle(err, inc.ID); done {
		return outcome, err
	}

	s.logger.Info("incidence cancelled", zap.Int64("incidence_id", updated.ID), zap.String("actor", msg.Author))
	routes, _ := routesFor(snap, updated.Categories)
	publishEvent(ctx, s.dispatcher, incidenceEvent(events.EventIncidenceCancelled, updated, msg.Author, now,
		events.IncidenceCancelledPayload{Routes: routes}))
	return OutcomeCancelled, nil
}

// mayCancel allows the reporter and elevated directory roles.
func (s *ReconciliationService) mayCancel(actor string, inc *domain.Incidence, snap *routing.Snapshot) bool {
	if actor != "" && actor == inc.ReportedBy {
		return true
	}
	user, ok := snap.User(actor)
	return ok && user.Role.Elevated()
}

func (s *ReconciliationService) feedback(ctx context.Context, msg domain.Message, inc *domain.Incidence, snap *routing.Snapshot, relay bool) (Outcome, error) {
	text := strings.TrimSpace(msg.Body)
	if text == "" {
		return OutcomeIgnored, nil
	}
	category, fromTeam := snap.CategoryForConversation(msg.ConversationID)
	now := s.clock.Now()
	entry := domain.FeedbackEntry{
		Author:   msg.Author,
		Text:     text,
		At:       now,
		Category: category,
		Kind:     domain.FeedbackKindFeedback,
	}

	updated, err := s.incidences.Update(ctx, inc.ID, func(i *domain.Incidence) error {
		return i.AppendFeedback(entry)
	})
	if outcome, done, err := s.settle(err, inc.ID); done {
		return outcome, err
	}

	s.logger.Debug("feedback recorded",
		zap.Int64("incidence_id", updated.ID),
		zap.String("category", category),
		zap.Bool("relay", relay))
	if !relay {
		return OutcomeFeedback, nil
	}

	var targets []events.Route
	if fromTeam {
		targets = []events.Route{{Category: category, Conversation: updated.OriginGroup}}
	} else {
		targets, _ = routesFor(snap, updated.Outstanding())
	}
	if len(targets) > 0 {
		publishEvent(ctx, s.dispatcher, incidenceEvent(events.EventFeedbackRelayed, updated, msg.Author, now,
			events.FeedbackRelayedPayload{Entry: entry, Targets: targets}))
	}
	return OutcomeFeedback, nil
}

// settle maps an Update error to an outcome. done is false only when the
// update committed and the caller should go on to publish.
func (s *ReconciliationService) settle(err error, id int64) (Outcome, bool, error) {
	switch {
	case err == nil:
		return "", false, nil
	case errors.Is(err, errUnchanged), errors.Is(err, domain.ErrTerminal),
		errors.Is(err, domain.ErrCategoryNotResponsible), errors.Is(err, repository.ErrNotFound):
		return OutcomeIgnored, true, nil
	default:
		s.logger.Error("incidence update failed", zap.Int64("incidence_id", id), zap.Error(err))
		return "", true, apperrors.NewStoreFailure("update incidence", err)
	}
}
