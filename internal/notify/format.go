package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/desk/internal/models"
)

func orNotGiven(s string) string {
	if s == "" {
		return "Ej angivet"
	}
	return s
}

// EscalationSubject is the subject line for an escalation packet.
func EscalationSubject(e *models.EscalationContext) string {
	return fmt.Sprintf("Eskalering: %s - %s", strings.ToUpper(string(e.Priority)), e.SessionID)
}

// FormatEscalation renders an escalation packet as plain text.
func FormatEscalation(e *models.EscalationContext) string {
	var sb strings.Builder
	sb.WriteString(EscalationSubject(e))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Ärende: %s\n", e.ID)
	fmt.Fprintf(&sb, "Anledning: %s\n", e.Reason)
	fmt.Fprintf(&sb, "Intent: %s\n", e.Intent)
	fmt.Fprintf(&sb, "Sentiment: %s\n", e.Sentiment)
	fmt.Fprintf(&sb, "Lead score: %d/5\n", e.LeadScore)
	fmt.Fprintf(&sb, "Kundens namn: %s\n", orNotGiven(e.CustomerName))
	fmt.Fprintf(&sb, "Kundens email: %s\n", orNotGiven(e.CustomerEmail))
	fmt.Fprintf(&sb, "Kundens telefon: %s\n\n", orNotGiven(e.CustomerPhone))
	fmt.Fprintf(&sb, "Sammanfattning:\n%s\n\n", e.Summary)
	fmt.Fprintf(&sb, "Kundens ärende:\n%s\n", e.CustomerIssue)
	if len(e.SuggestedActions) > 0 {
		sb.WriteString("\nFöreslagna åtgärder:\n")
		for _, a := range e.SuggestedActions {
			fmt.Fprintf(&sb, "- %s\n", a)
		}
	}
	if len(e.RecentMessages) > 0 {
		sb.WriteString("\nSenaste meddelanden:\n")
		for _, m := range e.RecentMessages {
			fmt.Fprintf(&sb, "%s\n", m)
		}
	}
	fmt.Fprintf(&sb, "\nTid: %s", e.CreatedAt.Format(time.RFC3339))
	return sb.String()
}
