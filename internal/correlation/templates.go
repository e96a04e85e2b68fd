package correlation

import (
	"fmt"
	"strings"

	"github.com/spec-kit/incidence-service/internal/domain"
)

// Template enumerates every outbound notice the bot renders. Only the
// templates in Quotable are accepted as the quoted side of a reply.
type Template int

const (
	TemplateNewIncidence Template = iota + 1
	TemplateAcknowledgement
	TemplateReminder
	TemplateFeedbackRequest
	TemplateProgress
	TemplateCompleted
	TemplateCancelled
	TemplateDenied
	TemplateWithdrawn
)

type templateSpec struct {
	name    string
	leading string
}

var templateTable = map[Template]templateSpec{
	TemplateNewIncidence:    {name: "new_incidence", leading: "Nueva incidencia"},
	TemplateAcknowledgement: {name: "acknowledgement", leading: "Incidencia registrada"},
	TemplateReminder:        {name: "reminder", leading: "Recordatorio de incidencia pendiente"},
	TemplateFeedbackRequest: {name: "feedback_request", leading: "Retroalimentación de incidencia"},
	TemplateProgress:        {name: "progress", leading: "Avance de incidencia"},
	TemplateCompleted:       {name: "completed", leading: "Incidencia completada"},
	TemplateCancelled:       {name: "cancelled", leading: "Incidencia cancelada"},
	TemplateDenied:          {name: "denied", leading: "Acción no permitida"},
	TemplateWithdrawn:       {name: "withdrawn", leading: "Incidencia reasignada"},
}

// Quotable lists the templates a reply may quote, in declaration order.
var Quotable = []Template{
	TemplateNewIncidence,
	TemplateAcknowledgement,
	TemplateReminder,
	TemplateFeedbackRequest,
}

func (t Template) String() string {
	if spec, ok := templateTable[t]; ok {
		return spec.name
	}
	return fmt.Sprintf("template(%d)", int(t))
}

// Leading is the fixed first line of the rendered notice.
func (t Template) Leading() string {
	return templateTable[t].leading
}

// Render lays out a notice: the bold leading line, the body and, when inc
// is non-nil, the marker footer.
func Render(t Template, body string, inc *domain.Incidence) string {
	var b strings.Builder
	b.WriteString("*")
	b.WriteString(t.Leading())
	b.WriteString("*\n")
	if body = strings.TrimSpace(body); body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	if inc != nil {
		b.WriteString("\n")
		b.WriteString(Footer(inc))
	}
	return b.String()
}

// Footer renders the marker lines parsed back by the resolver strategies.
func Footer(inc *domain.Incidence) string {
	return fmt.Sprintf("%s %d\n%s %s", idMarker, inc.ID, refMarker, inc.CorrelationID)
}

// MatchTemplate returns the quotable template whose leading line opens text.
func MatchTemplate(text string) (Template, bool) {
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	first = strings.Trim(first, "*_ \t\r")
	for _, t := range Quotable {
		if first == t.Leading() {
			return t, true
		}
	}
	return 0, false
}
