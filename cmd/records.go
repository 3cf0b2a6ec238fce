package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/output"
	"github.com/joescharf/desk/internal/store"
)

var (
	listLimit     int
	faultUrgency  string
	faultStatus   string
	recordSession string
	escReason     string
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Inspect stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun(cmd.Context())
	},
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun(cmd.Context())
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsShowRun(cmd.Context(), args[0])
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsDeleteRun(cmd.Context(), args[0])
	},
}

var faultsCmd = &cobra.Command{
	Use:     "faults",
	Aliases: []string{"fault"},
	Short:   "Inspect fault reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return faultsListRun(cmd.Context())
	},
}

var faultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fault reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return faultsListRun(cmd.Context())
	},
}

var faultsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a fault report and its notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return faultsShowRun(cmd.Context(), args[0])
	},
}

var escalationsCmd = &cobra.Command{
	Use:     "escalations",
	Aliases: []string{"escalation"},
	Short:   "Inspect conversations handed to a human",
	RunE: func(cmd *cobra.Command, args []string) error {
		return escalationsListRun(cmd.Context())
	},
}

var escalationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List escalations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return escalationsListRun(cmd.Context())
	},
}

var escalationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an escalation packet and its notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return escalationsShowRun(cmd.Context(), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{sessionsCmd, faultsCmd, escalationsCmd} {
		c.PersistentFlags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of rows")
	}
	faultsCmd.PersistentFlags().StringVar(&faultUrgency, "urgency", "", "Filter by urgency (critical, high, medium, low)")
	faultsCmd.PersistentFlags().StringVar(&faultStatus, "status", "", "Filter by status (collecting, complete, sent)")
	faultsCmd.PersistentFlags().StringVar(&recordSession, "session", "", "Filter by session ID")
	escalationsCmd.PersistentFlags().StringVar(&escReason, "reason", "", "Filter by reason")
	escalationsCmd.PersistentFlags().StringVar(&recordSession, "session", "", "Filter by session ID")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
	faultsCmd.AddCommand(faultsListCmd, faultsShowCmd)
	escalationsCmd.AddCommand(escalationsListCmd, escalationsShowCmd)
	rootCmd.AddCommand(sessionsCmd, faultsCmd, escalationsCmd)
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// shortID returns the first 12 characters of an ID for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return err
}

func sessionsListRun(ctx context.Context) error {
	ctx = ctxOrBackground(ctx)
	s, err := getStore()
	if err != nil {
		return err
	}

	sessions, err := s.ListSessions(ctx, listLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.Info("No sessions found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Customer", "Messages", "Intent", "Sentiment", "Lead", "Last Activity"})
	for _, sess := range sessions {
		_ = table.Append([]string{
			sess.ID,
			sess.Attr(models.AttrName),
			fmt.Sprint(len(sess.Messages)),
			string(sess.CurrentIntent),
			output.SentimentColor(string(sess.CurrentSentiment)),
			output.LeadColor(sess.LeadScore),
			humanize.Time(sess.LastActivity),
		})
	}
	_ = table.Render()
	return nil
}

func sessionsShowRun(ctx context.Context, id string) error {
	ctx = ctxOrBackground(ctx)
	s, err := getStore()
	if err != nil {
		return err
	}

	sess, err := s.LoadSession(ctx, id)
	if err != nil {
		return notFound("session", id, err)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(sess.ID), humanize.Time(sess.CreatedAt))
	fmt.Fprintf(ui.Out, "  Lead score:  %s\n", output.LeadColor(sess.LeadScore))
	if sess.CurrentIntent != "" {
		fmt.Fprintf(ui.Out, "  Intent:      %s\n", sess.CurrentIntent)
	}
	if sess.CurrentSentiment != "" {
		fmt.Fprintf(ui.Out, "  Sentiment:   %s\n", output.SentimentColor(string(sess.CurrentSentiment)))
	}
	if sess.EscalationCount > 0 {
		fmt.Fprintf(ui.Out, "  Escalations: %d\n", sess.EscalationCount)
	}
	for name, attr := range sess.Attributes {
		fmt.Fprintf(ui.Out, "  %-12s %s (%s)\n", name+":", attr.Value, attr.Source)
	}
	if f := sess.OpenFault; f != nil {
		fmt.Fprintf(ui.Out, "  Open fault:  %s %s %s\n", f.ID, f.Category, output.UrgencyColor(string(f.Urgency)))
	}

	fmt.Fprintln(ui.Out)
	for _, m := range sess.Messages {
		speaker := "Kund"
		if m.Role == models.RoleAssistant {
			speaker = "desk"
		}
		ui.Reply(speaker, m.Content)
	}
	return nil
}

func sessionsDeleteRun(ctx context.Context, id string) error {
	ctx = ctxOrBackground(ctx)
	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.DeleteSession(ctx, id); err != nil {
		return notFound("session", id, err)
	}
	ui.Success("Deleted session %s", id)
	return nil
}

func faultsListRun(ctx context.Context) error {
	ctx = ctxOrBackground(ctx)
	filter := store.FaultListFilter{SessionID: recordSession, Limit: listLimit}
	if faultUrgency != "" {
		u, err := models.ParseUrgency(faultUrgency)
		if err != nil {
			return err
		}
		filter.Urgency = u
	}
	if faultStatus != "" {
		st := models.FaultStatus(faultStatus)
		if !st.Valid() {
			return fmt.Errorf("invalid status: %s", faultStatus)
		}
		filter.Status = st
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	faults, err := s.ListFaultReports(ctx, filter)
	if err != nil {
		return err
	}
	if len(faults) == 0 {
		ui.Info("No fault reports found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Category", "Urgency", "Status", "Location", "Contact", "Created"})
	for _, f := range faults {
		contact := f.ReporterEmail
		if contact == "" {
			contact = f.ReporterPhone
		}
		_ = table.Append([]string{
			shortID(f.ID),
			string(f.Category),
			output.UrgencyColor(string(f.Urgency)),
			output.StatusColor(string(f.Status)),
			f.Location,
			contact,
			humanize.Time(f.CreatedAt),
		})
	}
	_ = table.Render()
	return nil
}

func faultsShowRun(ctx context.Context, id string) error {
	ctx = ctxOrBackground(ctx)
	s, err := getStore()
	if err != nil {
		return err
	}

	f, err := s.GetFaultReport(ctx, id)
	if err != nil {
		return notFound("fault report", id, err)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(f.ID), output.StatusColor(string(f.Status)))
	fmt.Fprintf(ui.Out, "  Session:     %s\n", f.SessionID)
	fmt.Fprintf(ui.Out, "  Category:    %s\n", f.Category)
	fmt.Fprintf(ui.Out, "  Urgency:     %s\n", output.UrgencyColor(string(f.Urgency)))
	fmt.Fprintf(ui.Out, "  Description: %s\n", f.Description)
	if f.Location != "" {
		fmt.Fprintf(ui.Out, "  Location:    %s\n", f.Location)
	}
	if f.ReporterName != "" {
		fmt.Fprintf(ui.Out, "  Reporter:    %s\n", f.ReporterName)
	}
	if f.ReporterEmail != "" {
		fmt.Fprintf(ui.Out, "  Email:       %s\n", f.ReporterEmail)
	}
	if f.ReporterPhone != "" {
		fmt.Fprintf(ui.Out, "  Phone:       %s\n", f.ReporterPhone)
	}
	fmt.Fprintf(ui.Out, "  Created:     %s\n", humanize.Time(f.CreatedAt))

	return printNotifications(ctx, s, f.ID)
}

func escalationsListRun(ctx context.Context) error {
	ctx = ctxOrBackground(ctx)
	filter := store.EscalationListFilter{SessionID: recordSession, Limit: listLimit}
	if escReason != "" {
		r, err := models.ParseEscalationReason(escReason)
		if err != nil {
			return err
		}
		filter.Reason = r
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	escalations, err := s.ListEscalations(ctx, filter)
	if err != nil {
		return err
	}
	if len(escalations) == 0 {
		ui.Info("No escalations found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Session", "Priority", "Reason", "Customer", "Lead", "Created"})
	for _, e := range escalations {
		_ = table.Append([]string{
			shortID(e.ID),
			e.SessionID,
			string(e.Priority),
			string(e.Reason),
			e.CustomerName,
			output.LeadColor(e.LeadScore),
			humanize.Time(e.CreatedAt),
		})
	}
	_ = table.Render()
	return nil
}

func escalationsShowRun(ctx context.Context, id string) error {
	ctx = ctxOrBackground(ctx)
	s, err := getStore()
	if err != nil {
		return err
	}

	e, err := s.GetEscalation(ctx, id)
	if err != nil {
		return notFound("escalation", id, err)
	}

	fmt.Fprintf(ui.Out, "%s  %s / %s\n", output.Cyan(e.ID), e.Priority, e.Reason)
	fmt.Fprintf(ui.Out, "  Session:   %s (%d turns)\n", e.SessionID, e.Turns)
	fmt.Fprintf(ui.Out, "  Issue:     %s\n", e.CustomerIssue)
	fmt.Fprintf(ui.Out, "  Intent:    %s\n", e.Intent)
	fmt.Fprintf(ui.Out, "  Sentiment: %s\n", output.SentimentColor(string(e.Sentiment)))
	fmt.Fprintf(ui.Out, "  Lead:      %s\n", output.LeadColor(e.LeadScore))
	if e.CustomerName != "" || e.CustomerEmail != "" || e.CustomerPhone != "" {
		contact := []string{}
		for _, v := range []string{e.CustomerName, e.CustomerEmail, e.CustomerPhone, e.CustomerCompany} {
			if v != "" {
				contact = append(contact, v)
			}
		}
		fmt.Fprintf(ui.Out, "  Customer:  %s\n", strings.Join(contact, ", "))
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, e.Summary)
	if len(e.SuggestedActions) > 0 {
		fmt.Fprintln(ui.Out)
		for _, a := range e.SuggestedActions {
			fmt.Fprintf(ui.Out, "  - %s\n", a)
		}
	}

	return printNotifications(ctx, s, e.ID)
}

func printNotifications(ctx context.Context, s store.Store, recordID string) error {
	notes, err := s.ListNotifications(ctx, recordID)
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out)
	if len(notes) == 0 {
		ui.Info("No notifications recorded.")
		return nil
	}

	table := ui.Table([]string{"Sink", "Status", "Error", "When"})
	for _, n := range notes {
		status := output.Green(string(n.Status))
		if n.Status != models.NotificationSent {
			status = output.Red(string(n.Status))
		}
		_ = table.Append([]string{n.Sink, status, n.Error, humanize.Time(n.CreatedAt)})
	}
	_ = table.Render()
	return nil
}
