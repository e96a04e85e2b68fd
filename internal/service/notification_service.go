package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/correlation"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/events"
	"github.com/spec-kit/incidence-service/internal/observability"
	"github.com/spec-kit/incidence-service/internal/transport"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

// NotificationService renders domain events into chat notices. Delivery is
// a single best-effort attempt: failures are logged and counted, never
// retried, and never undo the change that triggered them.
type NotificationService struct {
	dispatcher events.Dispatcher
	transport  transport.Transport
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, tr transport.Transport, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		transport:  tr,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIncidenceCreated, n.handleIncidenceCreated)
	n.dispatcher.Subscribe(events.EventIncidenceProgressed, n.handleIncidenceProgressed)
	n.dispatcher.Subscribe(events.EventIncidenceCompleted, n.handleIncidenceCompleted)
	n.dispatcher.Subscribe(events.EventIncidenceCancelled, n.handleIncidenceCancelled)
	n.dispatcher.Subscribe(events.EventFeedbackRelayed, n.handleFeedbackRelayed)
	n.dispatcher.Subscribe(events.EventReminderDue, n.handleReminderDue)
	n.dispatcher.Subscribe(events.EventActionDenied, n.handleActionDenied)
	n.dispatcher.Subscribe(events.EventIncidenceWithdrawn, n.handleIncidenceWithdrawn)
}

func (n *NotificationService) handleIncidenceCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IncidenceCreatedPayload)
	if !ok || event.Incidence == nil {
		return nil
	}
	inc := event.Incidence

	for _, c := range payload.Unrouted {
		n.logger.Warn("no destination configured for category",
			zap.Int64("incidence_id", inc.ID),
			zap.String("category", c))
	}

	notified := make([]string, 0, len(payload.Routes))
	for _, route := range payload.Routes {
		body := fmt.Sprintf("%s\n\nCategoría: %s\nReportó: %s", inc.Description, route.Category, inc.ReportedBy)
		if n.deliver(ctx, correlation.TemplateNewIncidence, inc, route, body, true) {
			notified = append(notified, route.Category)
		}
	}

	if payload.Edited || payload.OriginConv == "" {
		return nil
	}
	body := "Se notificó a: " + joinOrNone(notified)
	if len(notified) < len(payload.Routes)+len(payload.Unrouted) {
		body += "\nSin notificar: " + joinOrNone(missing(inc.Categories, notified))
	}
	n.deliver(ctx, correlation.TemplateAcknowledgement, inc, events.Route{Conversation: payload.OriginConv}, body, false)
	return nil
}

func (n *NotificationService) handleIncidenceProgressed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IncidenceProgressedPayload)
	if !ok || event.Incidence == nil {
		return nil
	}
	inc := event.Incidence
	body := fmt.Sprintf("%s\n\nConfirmado por: %s\nPendiente: %s",
		inc.Description, joinOrNone(payload.Confirmed), joinOrNone(payload.Outstanding))
	n.deliver(ctx, correlation.TemplateProgress, inc,
		events.Route{Category: payload.Category, Conversation: inc.OriginGroup}, body, false)
	return nil
}

func (n *NotificationService) handleIncidenceCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IncidenceCompletedPayload)
	if !ok || event.Incidence == nil {
		return nil
	}
	inc := event.Incidence

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nTiempo total: %s", inc.Description, payload.Elapsed)
	for _, c := range inc.Categories {
		if e, ok := payload.CategoryElapsed[c]; ok {
			fmt.Fprintf(&b, "\n%s: %s", c, e)
		}
	}
	n.deliver(ctx, correlation.TemplateCompleted, inc,
		events.Route{Category: payload.Category, Conversation: inc.OriginGroup}, b.String(), false)
	return nil
}

func (n *NotificationService) handleIncidenceCancelled(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IncidenceCancelledPayload)
	if !ok || event.Incidence == nil {
		return nil
	}
	inc := event.Incidence
	body := fmt.Sprintf("%s\n\nCancelada por: %s", inc.Description, event.Actor)

	n.deliver(ctx, correlation.TemplateCancelled, inc, events.Route{Conversation: inc.OriginGroup}, body, false)
	for _, route := range payload.Routes {
		n.deliver(ctx, correlation.TemplateCancelled, inc, route, body, false)
	}
	return nil
}

func (n *NotificationService) handleIncidenceWithdrawn(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IncidenceWithdrawnPayload)
	if !ok || event.Incidence == nil {
		return nil
	}
	inc := event.Incidence
	for _, route := range payload.Routes {
		body := fmt.Sprintf("%s\n\nYa no se requiere la atención de: %s\nResponsables: %s",
			inc.Description, route.Category, strings.Join(inc.Categories, ", "))
		n.deliver(ctx, correlation.TemplateWithdrawn, inc, route, body, false)
	}
	return nil
}

func (n *NotificationService) handleFeedbackRelayed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.FeedbackRelayedPayload)
	if !ok || event.Incidence == nil {
		return nil
	}
	inc := event.Incidence
	from := payload.Entry.Author
	if payload.Entry.Category != "" {
		from = fmt.Sprintf("%s (%s)", from, payload.Entry.Category)
	}
	body := fmt.Sprintf("%s\n\n%s: %s", inc.Description, from, payload.Entry.Text)
	for _, route := range payload.Targets {
		n.deliver(ctx, correlation.TemplateFeedbackRequest, inc, route, body, false)
	}
	return nil
}

func (n *NotificationService) handleReminderDue(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ReminderDuePayload)
	if !ok || event.Incidence == nil {
		return nil
	}
	inc := event.Incidence
	body := fmt.Sprintf("%s\n\nCategoría: %s\nTiempo transcurrido: %s",
		inc.Description, payload.Route.Category, payload.Elapsed)
	n.deliver(ctx, correlation.TemplateReminder, inc, payload.Route, body, true)
	return nil
}

func (n *NotificationService) handleActionDenied(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ActionDeniedPayload)
	if !ok {
		return nil
	}
	text := correlation.Render(correlation.TemplateDenied, payload.Reason, nil)
	err := n.transport.SendText(ctx, payload.Conversation, text)
	n.metrics.RecordNotification(correlation.TemplateDenied.String(), err)
	if err != nil {
		n.logger.Error("notification failed",
			zap.String("template", correlation.TemplateDenied.String()),
			zap.Int64("incidence_id", event.IncidenceID),
			zap.Error(apperrors.NewTransportFailure(payload.Conversation, err)))
	}
	return nil
}

// deliver sends one rendered notice. With withMedia the incidence
// attachment is uploaded with the notice as its caption.
func (n *NotificationService) deliver(ctx context.Context, tmpl correlation.Template, inc *domain.Incidence, route events.Route, body string, withMedia bool) bool {
	if route.Conversation == "" {
		return false
	}
	text := correlation.Render(tmpl, body, inc)

	var err error
	if withMedia && inc.Attachment != nil && len(inc.Attachment.Data) > 0 {
		err = n.transport.SendMedia(ctx, route.Conversation, inc.Attachment.Data, inc.Attachment.MimeType, text)
	} else {
		err = n.transport.SendText(ctx, route.Conversation, text)
	}
	n.metrics.RecordNotification(tmpl.String(), err)
	if err != nil {
		n.logger.Error("notification failed",
			zap.String("template", tmpl.String()),
			zap.Int64("incidence_id", inc.ID),
			zap.String("category", route.Category),
			zap.Error(apperrors.NewTransportFailure(route.Conversation, err)))
		return false
	}
	return true
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "ninguna"
	}
	return strings.Join(items, ", ")
}

func missing(all, present []string) []string {
	var out []string
	for _, c := range all {
		if !slices.Contains(present, c) {
			out = append(out, c)
		}
	}
	return out
}
