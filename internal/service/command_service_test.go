package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPrefersLongestCommandName(t *testing.T) {
	f := newFixture(t)
	cmds := f.router.commands

	cmd, args, ok := cmds.Match("/tareasFecha 2026-03-10")
	require.True(t, ok)
	assert.Equal(t, "/tareasFecha", cmd.Name)
	assert.Equal(t, []string{"2026-03-10"}, args)

	cmd, args, ok = cmds.Match("  /TAREAS  ")
	require.True(t, ok)
	assert.Equal(t, "/tareas", cmd.Name)
	assert.Empty(t, args)

	_, _, ok = cmds.Match("/tareasX")
	assert.False(t, ok)
	_, _, ok = cmds.Match("tareas")
	assert.False(t, ok)
}

func TestPendingListings(t *testing.T) {
	f := newFixture(t)
	f.report("U-REP", "fuga en el baño")
	f.report("U-REP", "la impresora no imprime")
	sisNotice := last(t, f.rec.To("C-SIS"))

	all := f.command("C-ORIGIN", "U-REP", "/tareas")
	assert.Contains(t, all, "Incidencias pendientes (2):")
	assert.Contains(t, all, "[mantenimiento] fuga en el baño")
	assert.Contains(t, all, "[sistemas] la impresora no imprime")

	team := f.command("C-MAN", "U-MAN", "/tareas")
	assert.Contains(t, team, "Incidencias pendientes (1):")
	assert.Contains(t, team, "fuga en el baño")
	assert.NotContains(t, team, "impresora")

	f.replyTo("C-SIS", "U-SIS", "listo", "C-SIS", sisNotice)
	after := f.command("C-ORIGIN", "U-REP", "/tareas")
	assert.Contains(t, after, "Incidencias pendientes (1):")
	assert.NotContains(t, after, "impresora")
}

func TestPendingOnDate(t *testing.T) {
	f := newFixture(t)
	f.report("U-REP", "fuga en el baño")

	assert.Contains(t, f.command("C-ORIGIN", "U-REP", "/tareasFecha 2026-03-10"),
		"Incidencias pendientes del 2026-03-10 (1):")
	assert.Equal(t, "Incidencias pendientes del 2026-03-11: ninguna.",
		f.command("C-ORIGIN", "U-REP", "/tareasFecha 2026-03-11"))
	assert.Contains(t, f.command("C-ORIGIN", "U-REP", "/tareasFecha marzo"), "Fecha inválida")
	assert.Equal(t, "Uso: /tareasFecha AAAA-MM-DD", f.command("C-ORIGIN", "U-REP", "/tareasFecha"))
	assert.Equal(t, "Uso: /tareas", f.command("C-ORIGIN", "U-REP", "/tareas 2026-03-10"))
}

func TestIncidenceDetail(t *testing.T) {
	f := newFixture(t)
	inc := f.report("U-REP", "fuga en el baño y no hay internet")
	f.reply("C-MAN", "U-MAN", "listo", "C-MAN")

	out := f.command("C-ORIGIN", "U-REP", "/incidencia 1")
	assert.Contains(t, out, "Incidencia #1 (pending)")
	assert.Contains(t, out, "Reportó: U-REP")
	assert.Contains(t, out, "Creada: 2026-03-10 10:00")
	assert.Contains(t, out, "- mantenimiento: confirmada en 0 días, 0 horas, 0 minutos")
	assert.Contains(t, out, "- sistemas: pendiente")
	assert.Equal(t, int64(1), inc.ID)

	assert.Equal(t, "No existe la incidencia 99.", f.command("C-ORIGIN", "U-REP", "/incidencia 99"))
	assert.Contains(t, f.command("C-ORIGIN", "U-REP", "/incidencia uno"), "Identificador inválido")
	assert.Equal(t, "Uso: /incidencia <id>", f.command("C-ORIGIN", "U-REP", "/incidencia"))
}

func TestReloadRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "No tienes permiso para usar /recargar.", f.command("C-ORIGIN", "U-REP", "/recargar"))
	assert.Equal(t, int64(1), f.routing.Current().Version)

	assert.Equal(t, "Configuración recargada (versión 2, 5 categorías).", f.command("C-ORIGIN", "U-ADMIN", "/recargar"))
	assert.Equal(t, int64(2), f.routing.Current().Version)
}

func TestHelpAndUnknownCommands(t *testing.T) {
	f := newFixture(t)

	help := f.command("C-ORIGIN", "U-REP", "/ayuda")
	assert.Contains(t, help, "/tareasFecha AAAA-MM-DD")
	assert.Contains(t, help, "/recargar: Recarga categorías, diccionarios y usuarios (administradores)")

	assert.Contains(t, f.command("C-ORIGIN", "U-REP", "/fuga"), "Comando no reconocido")
	assert.Zero(t, f.metrics.Snapshot().Outcomes["created"], "commands never open incidences")
}
