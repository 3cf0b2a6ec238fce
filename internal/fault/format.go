package fault

import (
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/desk/internal/models"
)

const notGiven = "Ej angivet"

func orNotGiven(s string) string {
	if s == "" {
		return notGiven
	}
	return s
}

// Subject is the notification subject line for a report.
func Subject(r *models.FaultReport) string {
	if r.Urgency == models.UrgencyCritical || r.Urgency == models.UrgencyHigh {
		return fmt.Sprintf("AKUT FELANMÄLAN - %s (%s)", strings.ToUpper(string(r.Urgency)), r.Category)
	}
	return fmt.Sprintf("Felanmälan - %s (%s)", strings.ToUpper(string(r.Urgency)), r.Category)
}

// FormatNotification renders a report as plain text for e-mail and chat
// notifications.
func FormatNotification(r *models.FaultReport) string {
	var sb strings.Builder
	sb.WriteString(Subject(r))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Ärende: %s\n", r.ID)
	fmt.Fprintf(&sb, "Kategori: %s\n", r.Category)
	fmt.Fprintf(&sb, "Beskrivning: %s\n\n", r.Description)
	fmt.Fprintf(&sb, "Anmälare: %s\n", orNotGiven(r.ReporterName))
	fmt.Fprintf(&sb, "E-post: %s\n", orNotGiven(r.ReporterEmail))
	fmt.Fprintf(&sb, "Telefon: %s\n\n", orNotGiven(r.ReporterPhone))
	fmt.Fprintf(&sb, "Plats: %s\n\n", orNotGiven(r.Location))
	fmt.Fprintf(&sb, "Tid: %s", r.CreatedAt.Format(time.RFC3339))
	return sb.String()
}
