package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/joescharf/desk/internal/fault"
	"github.com/joescharf/desk/internal/models"
)

// SlackNotifier posts Block Kit messages to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
}

// NewSlackNotifier creates a SlackNotifier for webhookURL.
func NewSlackNotifier(webhookURL string) (*SlackNotifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack: webhook URL is required")
	}
	return &SlackNotifier{webhookURL: webhookURL}, nil
}

func (n *SlackNotifier) Name() string { return "slack" }

func (n *SlackNotifier) NotifyEscalation(ctx context.Context, e *models.EscalationContext) error {
	return n.post(ctx, EscalationSubject(e), escalationBlocks(e))
}

func (n *SlackNotifier) NotifyFault(ctx context.Context, r *models.FaultReport) error {
	return n.post(ctx, fault.Subject(r), faultBlocks(r))
}

func (n *SlackNotifier) post(ctx context.Context, text string, blocks []slack.Block) error {
	msg := &slack.WebhookMessage{
		Text:   text,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	return nil
}

func mrkdwn(format string, args ...any) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf(format, args...), false, false)
}

func header(text string) *slack.HeaderBlock {
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
}

func escalationBlocks(e *models.EscalationContext) []slack.Block {
	customer := e.CustomerName
	if customer == "" {
		customer = "Okänd"
	}
	return []slack.Block{
		header(fmt.Sprintf("🚨 Eskalering: %s", strings.ToUpper(string(e.Priority)))),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn("*Anledning:*\n%s", e.Reason),
			mrkdwn("*Intent:*\n%s", e.Intent),
			mrkdwn("*Sentiment:*\n%s", e.Sentiment),
			mrkdwn("*Lead score:*\n%d/5", e.LeadScore),
			mrkdwn("*Kund:*\n%s", customer),
			mrkdwn("*Session:*\n%s", e.SessionID),
		}, nil),
		slack.NewSectionBlock(mrkdwn("*Sammanfattning:*\n%s", e.Summary), nil, nil),
		slack.NewSectionBlock(mrkdwn("*Ärende:*\n%s", e.CustomerIssue), nil, nil),
	}
}

func faultBlocks(r *models.FaultReport) []slack.Block {
	return []slack.Block{
		header(fault.Subject(r)),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn("*Kategori:*\n%s", r.Category),
			mrkdwn("*Brådska:*\n%s", r.Urgency),
			mrkdwn("*Plats:*\n%s", orNotGiven(r.Location)),
			mrkdwn("*Anmälare:*\n%s", orNotGiven(r.ReporterName)),
			mrkdwn("*E-post:*\n%s", orNotGiven(r.ReporterEmail)),
			mrkdwn("*Telefon:*\n%s", orNotGiven(r.ReporterPhone)),
		}, nil),
		slack.NewSectionBlock(mrkdwn("*Beskrivning:*\n%s", r.Description), nil, nil),
	}
}
