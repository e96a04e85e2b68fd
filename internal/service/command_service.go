package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/clock"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/repository"
	"github.com/spec-kit/incidence-service/internal/routing"
	"github.com/spec-kit/incidence-service/internal/transport"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

const commandListLimit = 50

// CommandRequest is one parsed command invocation.
type CommandRequest struct {
	Message  domain.Message
	Args     []string
	Snapshot *routing.Snapshot
}

// Command is one row of the command table.
type Command struct {
	Name        string
	Usage       string
	Description string
	MinArgs     int
	MaxArgs     int
	Role        domain.Role
	Handler     func(ctx context.Context, req CommandRequest) (string, error)
}

// CommandService dispatches slash commands through a declarative table
// evaluated longest name first.
type CommandService struct {
	commands   []Command
	incidences repository.IncidenceRepository
	routing    *routing.Store
	transport  transport.Transport
	clock      clock.Clock
	location   *time.Location
	logger     *zap.Logger
}

// CommandDependencies bundles collaborators for the command service.
type CommandDependencies struct {
	IncidenceRepo repository.IncidenceRepository
	Routing       *routing.Store
	Transport     transport.Transport
	Clock         clock.Clock
	Location      *time.Location
	Logger        *zap.Logger
}

// NewCommandService builds the service with the built-in command table.
func NewCommandService(deps CommandDependencies) *CommandService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &CommandService{
		incidences: deps.IncidenceRepo,
		routing:    deps.Routing,
		transport:  deps.Transport,
		clock:      deps.Clock,
		location:   deps.Location,
		logger:     deps.Logger,
	}
	s.commands = []Command{
		{Name: "/tareas", Usage: "/tareas", Description: "Lista las incidencias pendientes", Handler: s.pending},
		{Name: "/tareasFecha", Usage: "/tareasFecha AAAA-MM-DD", Description: "Lista las incidencias pendientes creadas ese día", MinArgs: 1, MaxArgs: 1, Handler: s.pendingOn},
		{Name: "/incidencia", Usage: "/incidencia <id>", Description: "Muestra el detalle de una incidencia", MinArgs: 1, MaxArgs: 1, Handler: s.detail},
		{Name: "/recargar", Usage: "/recargar", Description: "Recarga categorías, diccionarios y usuarios", Role: domain.RoleAdmin, Handler: s.reload},
		{Name: "/ayuda", Usage: "/ayuda", Description: "Muestra esta ayuda", Handler: s.help},
	}
	sort.SliceStable(s.commands, func(i, j int) bool {
		return len(s.commands[i].Name) > len(s.commands[j].Name)
	})
	return s
}

// Match returns the command invoked by body and its arguments.
func (s *CommandService) Match(body string) (Command, []string, bool) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "/") {
		return Command{}, nil, false
	}
	for _, cmd := range s.commands {
		if len(body) < len(cmd.Name) || !strings.EqualFold(body[:len(cmd.Name)], cmd.Name) {
			continue
		}
		rest := body[len(cmd.Name):]
		if rest != "" && !unicode.IsSpace(rune(rest[0])) {
			continue
		}
		return cmd, strings.Fields(rest), true
	}
	return Command{}, nil, false
}

// Execute runs the command in msg and replies in its conversation. It
// reports false when msg is not a command.
func (s *CommandService) Execute(ctx context.Context, msg domain.Message, snap *routing.Snapshot) bool {
	if !strings.HasPrefix(strings.TrimSpace(msg.Body), "/") {
		return false
	}

	cmd, args, ok := s.Match(msg.Body)
	var reply string
	var err error
	switch {
	case !ok:
		reply = "Comando no reconocido. Usa /ayuda para ver los comandos disponibles."
	case !s.roleOf(msg.Author, snap).Satisfies(cmd.Role):
		err = apperrors.NewAuthorizationDenied("No tienes permiso para usar " + cmd.Name + ".")
	case len(args) < cmd.MinArgs || len(args) > cmd.MaxArgs:
		err = apperrors.NewMalformedCommand("Uso: " + cmd.Usage)
	default:
		reply, err = cmd.Handler(ctx, CommandRequest{Message: msg, Args: args, Snapshot: snap})
	}

	if err != nil {
		reply = s.replyForError(cmd, err)
	}
	if sendErr := s.transport.SendText(ctx, msg.ConversationID, reply); sendErr != nil {
		s.logger.Error("command reply failed",
			zap.String("command", cmd.Name),
			zap.Error(apperrors.NewTransportFailure(msg.ConversationID, sendErr)))
	}
	return true
}

func (s *CommandService) replyForError(cmd Command, err error) string {
	domainErr := apperrors.ToDomainError(err)
	switch domainErr.Code {
	case apperrors.CodeAuthorizationDenied, apperrors.CodeMalformedCommand, apperrors.CodeNotFound, apperrors.CodeValidation:
		return domainErr.Message
	default:
		s.logger.Error("command failed", zap.String("command", cmd.Name), zap.Error(err))
		return "No se pudo completar el comando. Intenta de nuevo más tarde."
	}
}

func (s *CommandService) roleOf(author string, snap *routing.Snapshot) domain.Role {
	if u, ok := snap.User(author); ok && u.Role != "" {
		return u.Role
	}
	return domain.RoleMember
}

func (s *CommandService) pending(ctx context.Context, req CommandRequest) (string, error) {
	return s.listPending(ctx, req, nil, nil, "Incidencias pendientes")
}

func (s *CommandService) pendingOn(ctx context.Context, req CommandRequest) (string, error) {
	day, err := time.ParseInLocation("2006-01-02", req.Args[0], s.location)
	if err != nil {
		return "", apperrors.NewMalformedCommand("Fecha inválida. Uso: /tareasFecha AAAA-MM-DD")
	}
	next := day.AddDate(0, 0, 1)
	return s.listPending(ctx, req, &day, &next, "Incidencias pendientes del "+req.Args[0])
}

// listPending lists pending incidences; inside a team conversation only
// that team's incidences are shown.
func (s *CommandService) listPending(ctx context.Context, req CommandRequest, from, to *time.Time, title string) (string, error) {
	filter := repository.IncidenceFilter{
		Statuses:    []domain.IncidenceStatus{domain.IncidenceStatusPending},
		CreatedFrom: from,
		CreatedTo:   to,
		Limit:       commandListLimit,
	}
	if category, ok := req.Snapshot.CategoryForConversation(req.Message.ConversationID); ok {
		filter.Category = &category
	}
	list, err := s.incidences.List(ctx, filter)
	if err != nil {
		return "", apperrors.NewStoreFailure("list incidences", err)
	}
	if len(list) == 0 {
		return title + ": ninguna.", nil
	}

	now := s.clock.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):", title, len(list))
	for i := range list {
		inc := &list[i]
		fmt.Fprintf(&b, "\n#%d [%s] %s (%s; pendiente: %s)",
			inc.ID, strings.Join(inc.Categories, ", "), summarize(inc.Description, 80),
			inc.ElapsedUntil(now), joinOrNone(inc.Outstanding()))
	}
	return b.String(), nil
}

func (s *CommandService) detail(ctx context.Context, req CommandRequest) (string, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(req.Args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return "", apperrors.NewMalformedCommand("Identificador inválido. Uso: /incidencia <id>")
	}
	inc, err := s.incidences.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperrors.NewDomainError(apperrors.CodeNotFound, fmt.Sprintf("No existe la incidencia %d.", id), 404, nil)
	}
	if err != nil {
		return "", apperrors.NewStoreFailure("get incidence", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Incidencia #%d (%s)\n%s\n", inc.ID, inc.Status, inc.Description)
	fmt.Fprintf(&b, "Reportó: %s\nCreada: %s\n", inc.ReportedBy, inc.CreatedAt.In(s.location).Format("2006-01-02 15:04"))
	for _, c := range inc.Categories {
		state := "pendiente"
		switch {
		case inc.Confirmations[c] != nil:
			state = "confirmada en " + inc.ElapsedUntil(*inc.Confirmations[c]).String()
		case !inc.IsMultiCategory() && inc.CompletedAt != nil:
			state = "confirmada en " + inc.ElapsedUntil(*inc.CompletedAt).String()
		}
		fmt.Fprintf(&b, "- %s: %s\n", c, state)
	}
	if inc.CancelledAt != nil {
		fmt.Fprintf(&b, "Cancelada por %s\n", inc.CancelledBy)
	}
	fmt.Fprintf(&b, "Comentarios: %d", len(inc.FeedbackHistory))
	return b.String(), nil
}

func (s *CommandService) reload(ctx context.Context, _ CommandRequest) (string, error) {
	snap, err := s.routing.Reload(ctx)
	if err != nil {
		s.logger.Error("routing reload failed", zap.Error(err))
		return "", apperrors.NewValidationError("No se pudo recargar la configuración: "+err.Error(), nil)
	}
	s.logger.Info("routing reloaded", zap.Int64("version", snap.Version))
	return fmt.Sprintf("Configuración recargada (versión %d, %d categorías).", snap.Version, len(snap.Categories)), nil
}

func (s *CommandService) help(context.Context, CommandRequest) (string, error) {
	cmds := append([]Command(nil), s.commands...)
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	var b strings.Builder
	b.WriteString("Comandos disponibles:")
	for _, c := range cmds {
		fmt.Fprintf(&b, "\n%s: %s", c.Usage, c.Description)
		if c.Role == domain.RoleAdmin {
			b.WriteString(" (administradores)")
		}
	}
	return b.String(), nil
}

func summarize(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
