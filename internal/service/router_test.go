package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incidence-service/internal/correlation"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/repository"
	"github.com/spec-kit/incidence-service/internal/transport/transporttest"
)

func countContaining(sent []transporttest.Sent, substr string) int {
	n := 0
	for _, s := range sent {
		if strings.Contains(s.Text, substr) {
			n++
		}
	}
	return n
}

func last(t *testing.T, sent []transporttest.Sent) string {
	t.Helper()
	require.NotEmpty(t, sent)
	return sent[len(sent)-1].Text
}

func TestReportIsRoutedAndConfirmationCompletesIt(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "fuga de agua en el baño")

	assert.Equal(t, []string{"mantenimiento"}, inc.Categories)
	assert.Equal(t, domain.IncidenceStatusPending, inc.Status)

	notices := f.rec.To("C-MAN")
	require.Len(t, notices, 1)
	assert.True(t, strings.HasPrefix(notices[0].Text, "*Nueva incidencia*"))
	assert.Contains(t, notices[0].Text, "fuga de agua en el baño")
	assert.Contains(t, notices[0].Text, "Ref: "+inc.CorrelationID)

	acks := f.rec.To("C-ORIGIN")
	require.Len(t, acks, 1)
	assert.Contains(t, acks[0].Text, "Se notificó a: mantenimiento")
	assert.NotContains(t, acks[0].Text, "Sin notificar")

	f.clock.Advance(2*time.Hour + 5*time.Minute)
	f.reply("C-MAN", "U-TEAM", "listo", "C-MAN")

	stored := f.get(inc.ID)
	assert.Equal(t, domain.IncidenceStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, testStart.Add(2*time.Hour+5*time.Minute), *stored.CompletedAt)

	done := last(t, f.rec.To("C-ORIGIN"))
	assert.True(t, strings.HasPrefix(done, "*Incidencia completada*"))
	assert.Contains(t, done, "Tiempo total: 0 días, 2 horas, 5 minutos")
	assert.Equal(t, int64(1), f.metrics.Snapshot().Outcomes["completed"])
}

func TestMultiCategoryCompletesAfterEveryTeamConfirms(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "fuga en la cocina y la computadora no prende")
	require.Equal(t, []string{"mantenimiento", "sistemas"}, inc.Categories)
	require.Len(t, f.rec.To("C-SIS"), 1)

	f.clock.Advance(30 * time.Minute)
	f.reply("C-MAN", "U-MAN", "listo", "C-MAN")

	stored := f.get(inc.ID)
	assert.Equal(t, domain.IncidenceStatusPending, stored.Status)
	assert.Equal(t, []string{"sistemas"}, stored.Outstanding())
	progress := last(t, f.rec.To("C-ORIGIN"))
	assert.True(t, strings.HasPrefix(progress, "*Avance de incidencia*"))
	assert.Contains(t, progress, "Pendiente: sistemas")

	// A repeated confirmation from the same team changes nothing.
	f.reply("C-MAN", "U-MAN", "ya quedó", "C-MAN")
	assert.Equal(t, 1, countContaining(f.rec.To("C-ORIGIN"), "Avance de incidencia"))
	assert.Equal(t, int64(1), f.metrics.Snapshot().Outcomes["ignored"])

	f.clock.Advance(90 * time.Minute)
	f.reply("C-SIS", "U-SIS", "Ya quedó!", "C-SIS")

	stored = f.get(inc.ID)
	assert.Equal(t, domain.IncidenceStatusCompleted, stored.Status)
	done := last(t, f.rec.To("C-ORIGIN"))
	assert.Contains(t, done, "Tiempo total: 0 días, 2 horas, 0 minutos")
	assert.Contains(t, done, "mantenimiento: 0 días, 0 horas, 30 minutos")
	assert.Contains(t, done, "sistemas: 0 días, 2 horas, 0 minutos")
}

func TestRepliesToTerminalIncidencesAreIgnored(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "se fue la luz en el almacén")
	notice := last(t, f.rec.To("C-ELE"))

	f.replyTo("C-ELE", "U-ELE", "listo", "C-ELE", notice)
	require.Equal(t, domain.IncidenceStatusCompleted, f.get(inc.ID).Status)
	before := len(f.rec.Sent())

	f.replyTo("C-ELE", "U-ELE", "hecho", "C-ELE", notice)
	f.replyTo("C-ELE", "U-ELE", "falta revisar el tablero", "C-ELE", notice)

	assert.Len(t, f.rec.Sent(), before)
	stored := f.get(inc.ID)
	assert.Len(t, stored.FeedbackHistory, 1)
	assert.Equal(t, int64(2), f.metrics.Snapshot().Outcomes["ignored"])
}

func TestConfirmationFromUninvolvedTeamIsRecordedAsFeedback(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "hay una gotera en la sala")
	notice := last(t, f.rec.To("C-MAN"))
	f.rec.Reset()

	f.replyTo("C-SIS", "U-SIS", "listo", "C-MAN", notice)

	stored := f.get(inc.ID)
	assert.Equal(t, domain.IncidenceStatusPending, stored.Status)
	require.Len(t, stored.FeedbackHistory, 1)
	assert.Equal(t, domain.FeedbackKindFeedback, stored.FeedbackHistory[0].Kind)
	assert.Equal(t, "sistemas", stored.FeedbackHistory[0].Category)
	assert.Empty(t, f.rec.Sent())
}

func TestCancellation(t *testing.T) {
	cases := []struct {
		name      string
		conv      string
		author    string
		body      string
		quote     string
		cancelled bool
	}{
		{"reporter", "C-ORIGIN", "U-REP", "cancelar", "C-ORIGIN", true},
		{"administrator", "C-MAN", "U-ADMIN", "Ya no es necesario", "C-MAN", true},
		{"supervisor", "C-ORIGIN", "U-SUP", "cancelar", "C-ORIGIN", true},
		{"team member", "C-MAN", "U-MAN", "cancelar", "C-MAN", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			inc := f.report("U-REP", "la puerta del almacén no cierra")
			notice := last(t, f.rec.To(tc.quote))
			f.rec.Reset()
			f.clock.Advance(time.Minute)

			f.replyTo(tc.conv, tc.author, tc.body, tc.quote, notice)

			stored := f.get(inc.ID)
			if !tc.cancelled {
				assert.Equal(t, domain.IncidenceStatusPending, stored.Status)
				denied := f.rec.To(tc.conv)
				require.Len(t, denied, 1)
				assert.True(t, strings.HasPrefix(denied[0].Text, "*Acción no permitida*"))
				assert.Equal(t, int64(1), f.metrics.Snapshot().Outcomes["denied"])
				return
			}
			assert.Equal(t, domain.IncidenceStatusCancelled, stored.Status)
			assert.Equal(t, tc.author, stored.CancelledBy)
			assert.Equal(t, 1, countContaining(f.rec.To("C-ORIGIN"), "Incidencia cancelada"))
			assert.Equal(t, 1, countContaining(f.rec.To("C-MAN"), "Incidencia cancelada"))
		})
	}
}

func TestCancellationRequiresWholeMessage(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "fuga en el baño")
	f.reply("C-ORIGIN", "U-REP", "no vayan a cancelar la cita", "C-ORIGIN")
	assert.Equal(t, domain.IncidenceStatusPending, f.get(inc.ID).Status)
}

func TestFeedbackIsRelayedBetweenTeamAndOrigin(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "fuga en el baño y la impresora no imprime")
	ack := last(t, f.rec.To("C-ORIGIN"))
	sisNotice := last(t, f.rec.To("C-SIS"))
	f.reply("C-MAN", "U-MAN", "listo", "C-MAN")
	f.rec.Reset()

	f.replyTo("C-SIS", "U-SIS", "Necesitamos la clave del equipo", "C-SIS", sisNotice)
	relayed := f.rec.To("C-ORIGIN")
	require.Len(t, relayed, 1)
	assert.True(t, strings.HasPrefix(relayed[0].Text, "*Retroalimentación de incidencia*"))
	assert.Contains(t, relayed[0].Text, "U-SIS (sistemas): Necesitamos la clave del equipo")

	f.rec.Reset()
	f.replyTo("C-ORIGIN", "U-REP", "pregunta: ¿a qué hora vienen?", "C-ORIGIN", ack)
	assert.Empty(t, f.rec.To("C-MAN"), "confirmed teams are not bothered")
	assert.Len(t, f.rec.To("C-SIS"), 1)

	// Plain chatter is recorded but not relayed.
	f.rec.Reset()
	f.replyTo("C-SIS", "U-SIS", "ok", "C-SIS", sisNotice)
	assert.Empty(t, f.rec.Sent())
	assert.Len(t, f.get(inc.ID).FeedbackHistory, 4)
}

func TestConcurrentConfirmationsCompleteExactlyOnce(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "fuga, robo, apagón y la computadora dañada")
	require.Len(t, inc.Categories, 4)

	var msgs []domain.Message
	for _, conv := range []string{"C-MAN", "C-SIS", "C-SEG", "C-ELE"} {
		quoted := domain.Message{ID: "q-" + conv, ConversationID: conv, Body: last(t, f.rec.To(conv))}
		f.rec.Quote(quoted)
		msgs = append(msgs, domain.Message{
			ID: "r-" + conv, ConversationID: conv, Author: "U-" + conv, Body: "listo",
			HasQuotedMessage: true, QuotedMessageID: quoted.ID,
		})
	}
	f.rec.Reset()

	var wg sync.WaitGroup
	for _, m := range msgs {
		wg.Add(1)
		go func(m domain.Message) {
			defer wg.Done()
			f.router.Handle(context.Background(), m)
		}(m)
	}
	wg.Wait()

	stored := f.get(inc.ID)
	assert.Equal(t, domain.IncidenceStatusCompleted, stored.Status)
	assert.Empty(t, stored.Outstanding())
	origin := f.rec.To("C-ORIGIN")
	assert.Equal(t, 1, countContaining(origin, "Incidencia completada"))
	assert.Equal(t, 3, countContaining(origin, "Avance de incidencia"))
}

func TestTransportFailureDoesNotUndoState(t *testing.T) {
	f := newFixture(t)
	f.rec.FailFor("C-MAN", errors.New("channel archived"))

	inc := f.report("U-REP", "fuga en el baño")
	assert.Equal(t, domain.IncidenceStatusPending, inc.Status)

	ack := last(t, f.rec.To("C-ORIGIN"))
	assert.Contains(t, ack, "Se notificó a: ninguna")
	assert.Contains(t, ack, "Sin notificar: mantenimiento")
	key := correlation.TemplateNewIncidence.String() + "|failed"
	assert.Equal(t, int64(1), f.metrics.Snapshot().Notifications[key])
}

func TestUnroutedCategoryIsReportedInAcknowledgement(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "hay basura en el pasillo")
	assert.Equal(t, []string{"limpieza"}, inc.Categories)

	ack := last(t, f.rec.To("C-ORIGIN"))
	assert.Contains(t, ack, "Se notificó a: ninguna")
	assert.Contains(t, ack, "Sin notificar: limpieza")
}

func TestMessagesThatAreNotReportsCreateNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.Handle(ctx, domain.Message{ID: "a", ConversationID: "C-ORIGIN", Author: "U-REP", Body: "hola, buenos días"})
	f.router.Handle(ctx, domain.Message{ID: "b", ConversationID: "C-MAN", Author: "U-MAN", Body: "otra fuga en el baño"})
	f.router.Handle(ctx, domain.Message{ID: "c", ConversationID: "C-ORIGIN", Author: "U-REP", Body: "   "})

	list, err := f.repo.List(ctx, repository.IncidenceFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.rec.Sent())
}

func TestUncorrelatedReplyFallsThroughToIntake(t *testing.T) {
	f := newFixture(t)
	f.replyTo("C-ORIGIN", "U-REP", "también hay fuga en la cocina", "C-ORIGIN", "oigan, ¿alguien vio mis llaves?")

	list, err := f.repo.List(context.Background(), repository.IncidenceFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "también hay fuga en la cocina", list[0].Description)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Outcomes["created"])
}

func TestEditAddsCategoriesAndNotifiesNewTeams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := domain.Message{ID: "orig", ConversationID: "C-ORIGIN", Author: "U-REP", Body: "fuga en el baño"}
	f.router.Handle(ctx, msg)
	f.rec.Reset()

	msg.Body = "fuga en el baño y no hay internet"
	f.router.HandleEdit(ctx, msg)

	inc, err := f.repo.GetByOriginMessage(ctx, "C-ORIGIN", "orig")
	require.NoError(t, err)
	assert.Equal(t, []string{"mantenimiento", "sistemas"}, inc.Categories)
	assert.Equal(t, "fuga en el baño y no hay internet", inc.Description)
	assert.Len(t, f.rec.To("C-SIS"), 1)
	assert.Empty(t, f.rec.To("C-MAN"))
	assert.Empty(t, f.rec.To("C-ORIGIN"))

	// An edit that matches nothing keeps the categories.
	msg.Body = "corrijo: es en la cocina"
	f.router.HandleEdit(ctx, msg)
	inc, err = f.repo.GetByOriginMessage(ctx, "C-ORIGIN", "orig")
	require.NoError(t, err)
	assert.Equal(t, []string{"mantenimiento", "sistemas"}, inc.Categories)
	assert.Equal(t, "corrijo: es en la cocina", inc.Description)

	// Edits of untracked messages are ignored.
	f.router.HandleEdit(ctx, domain.Message{ID: "other", ConversationID: "C-ORIGIN", Body: "fuga"})
	list, err := f.repo.List(ctx, repository.IncidenceFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEditDroppingLastOutstandingCategoryCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := domain.Message{ID: "orig", ConversationID: "C-ORIGIN", Author: "U-REP", Body: "fuga, robo y no hay internet"}
	f.router.Handle(ctx, msg)
	inc, err := f.repo.GetByOriginMessage(ctx, "C-ORIGIN", "orig")
	require.NoError(t, err)
	require.Equal(t, []string{"mantenimiento", "sistemas", "seguridad"}, inc.Categories)
	segNotice := last(t, f.rec.To("C-SEG"))

	f.clock.Advance(time.Hour)
	f.reply("C-MAN", "U-MAN", "listo", "C-MAN")
	f.clock.Advance(time.Hour)
	f.reply("C-SIS", "U-SIS", "listo", "C-SIS")
	f.clock.Advance(time.Hour)
	f.rec.Reset()

	msg.Body = "fuga y no hay internet"
	f.router.HandleEdit(ctx, msg)

	stored := f.get(inc.ID)
	assert.Equal(t, []string{"mantenimiento", "sistemas"}, stored.Categories)
	assert.Equal(t, domain.IncidenceStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, testStart.Add(2*time.Hour), *stored.CompletedAt)

	withdrawn := f.rec.To("C-SEG")
	require.Len(t, withdrawn, 1)
	assert.True(t, strings.HasPrefix(withdrawn[0].Text, "*Incidencia reasignada*"))
	assert.Contains(t, withdrawn[0].Text, "Ya no se requiere la atención de: seguridad")
	done := last(t, f.rec.To("C-ORIGIN"))
	assert.True(t, strings.HasPrefix(done, "*Incidencia completada*"))
	assert.Contains(t, done, "Tiempo total: 0 días, 2 horas, 0 minutos")

	// The dropped team's late confirmation no longer touches the record.
	f.rec.Reset()
	f.replyTo("C-SEG", "U-SEG", "listo", "C-SEG", segNotice)
	assert.Empty(t, f.rec.Sent())
	assert.Equal(t, domain.IncidenceStatusCompleted, f.get(inc.ID).Status)
}

func TestEditDroppingPendingCategoryNotifiesThatTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := domain.Message{ID: "orig", ConversationID: "C-ORIGIN", Author: "U-REP", Body: "fuga y robo en la bodega"}
	f.router.Handle(ctx, msg)
	f.rec.Reset()

	msg.Body = "fuga en la bodega"
	f.router.HandleEdit(ctx, msg)

	inc, err := f.repo.GetByOriginMessage(ctx, "C-ORIGIN", "orig")
	require.NoError(t, err)
	assert.Equal(t, []string{"mantenimiento"}, inc.Categories)
	assert.Equal(t, domain.IncidenceStatusPending, inc.Status)
	assert.Equal(t, 1, countContaining(f.rec.To("C-SEG"), "Incidencia reasignada"))
	assert.Empty(t, f.rec.To("C-MAN"))
	assert.Empty(t, f.rec.To("C-ORIGIN"))

	entries, err := f.history.ListByIncidence(ctx, inc.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"incidence_created", "incidence_withdrawn"}, eventTypes(entries))
}

type failingRepo struct {
	repository.IncidenceRepository
}

func (failingRepo) Update(context.Context, int64, repository.Mutator) (*domain.Incidence, error) {
	return nil, errors.New("connection reset")
}

func TestReconcileSurfacesStoreFailure(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "fuga en el baño")
	svc := NewReconciliationService(ReconciliationDependencies{IncidenceRepo: failingRepo{f.repo}, Clock: f.clock})

	_, err := svc.Reconcile(context.Background(),
		domain.Message{ConversationID: "C-MAN", Author: "U-MAN", Body: "listo"}, inc, f.routing.Current())
	require.Error(t, err)
	assert.Equal(t, domain.IncidenceStatusPending, f.get(inc.ID).Status)
}
