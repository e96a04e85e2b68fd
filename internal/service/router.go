package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/correlation"
	"github.com/spec-kit/incidence-service/internal/dedup"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/observability"
	"github.com/spec-kit/incidence-service/internal/routing"
	"github.com/spec-kit/incidence-service/internal/transport"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

// Router is the single entry point for inbound chat traffic. Every message
// is routed to exactly one of: a command, reconciliation of a quoted
// incidence, or intake of a new report.
type Router struct {
	routing        *routing.Store
	transport      transport.Transport
	resolver       *correlation.Resolver
	dedup          *dedup.Deduplicator
	commands       *CommandService
	intake         *IntakeService
	reconciliation *ReconciliationService
	metrics        *observability.Metrics
	logger         *zap.Logger
}

// RouterDependencies bundles collaborators for the router.
type RouterDependencies struct {
	Routing        *routing.Store
	Transport      transport.Transport
	Resolver       *correlation.Resolver
	Dedup          *dedup.Deduplicator
	Commands       *CommandService
	Intake         *IntakeService
	Reconciliation *ReconciliationService
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

var _ transport.Handler = (*Router)(nil)

// NewRouter constructs the router.
func NewRouter(deps RouterDependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Router{
		routing:        deps.Routing,
		transport:      deps.Transport,
		resolver:       deps.Resolver,
		dedup:          deps.Dedup,
		commands:       deps.Commands,
		intake:         deps.Intake,
		reconciliation: deps.Reconciliation,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
	}
}

// Handle processes one inbound message. Failures are logged; a panic while
// handling a message never takes the listener down.
func (r *Router) Handle(ctx context.Context, msg domain.Message) {
	defer r.recover(msg)
	if err := r.route(ctx, msg); err != nil {
		r.logFailure(msg, err)
	}
}

// HandleEdit processes an edit of a previously delivered message.
func (r *Router) HandleEdit(ctx context.Context, msg domain.Message) {
	defer r.recover(msg)
	snap := r.routing.Current()
	inc, err := r.intake.Edit(ctx, msg, snap)
	if err != nil {
		r.logFailure(msg, err)
		return
	}
	if inc != nil {
		r.metrics.RecordOutcome("edited")
	}
}

func (r *Router) route(ctx context.Context, msg domain.Message) error {
	snap := r.routing.Current()

	if seen, err := r.dedup.Seen(ctx, msg.ConversationID, msg.ID); err != nil {
		r.logger.Warn("dedup check failed", zap.String("message_id", msg.ID), zap.Error(err))
	} else if seen {
		r.logger.Debug("duplicate delivery skipped", zap.String("message_id", msg.ID))
		return nil
	}

	if r.commands != nil && r.commands.Execute(ctx, msg, snap) {
		r.metrics.RecordOutcome("command")
		return nil
	}

	if msg.HasQuotedMessage {
		inc, err := r.resolveQuoted(ctx, msg)
		switch {
		case err == nil:
			outcome, err := r.reconciliation.Reconcile(ctx, msg, inc, snap)
			if err != nil {
				return err
			}
			r.metrics.RecordOutcome(string(outcome))
			r.logger.Debug("reply reconciled",
				zap.Int64("incidence_id", inc.ID),
				zap.String("outcome", string(outcome)))
			return nil
		case errors.Is(err, correlation.ErrUnresolved):
			r.logger.Debug("reply not correlated",
				zap.String("message_id", msg.ID),
				zap.Error(apperrors.NewCorrelationMiss(err.Error())))
		default:
			return err
		}
	}

	inc, err := r.intake.Open(ctx, msg, snap)
	if err != nil {
		return err
	}
	if inc != nil {
		r.metrics.RecordOutcome("created")
	}
	return nil
}

func (r *Router) resolveQuoted(ctx context.Context, msg domain.Message) (*domain.Incidence, error) {
	quoted, err := r.transport.QuotedMessage(ctx, msg)
	if err != nil {
		r.logger.Warn("quoted message unavailable",
			zap.String("message_id", msg.ID),
			zap.Error(apperrors.NewTransportFailure(msg.ConversationID, err)))
		return nil, correlation.ErrUnresolved
	}
	return r.resolver.Resolve(ctx, msg, quoted)
}

func (r *Router) logFailure(msg domain.Message, err error) {
	fields := []zap.Field{
		zap.String("conversation_id", msg.ConversationID),
		zap.String("message_id", msg.ID),
		zap.Error(err),
	}
	if apperrors.HasCode(err, apperrors.CodeStoreFailure) {
		r.logger.Error("message handling failed", fields...)
		return
	}
	r.logger.Warn("message handling failed", fields...)
}

func (r *Router) recover(msg domain.Message) {
	if rec := recover(); rec != nil {
		r.logger.Error("panic while handling message",
			zap.String("message_id", msg.ID),
			zap.String("panic", fmt.Sprint(rec)))
	}
}
