// Package escalation decides when a conversation must be handed to a human
// and builds the context packet for whoever picks it up.
package escalation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
)

// Defaults for Options.
const (
	DefaultTechnicalTurns = 3
	DefaultMaxTurns       = 8
	IssueLength           = 200
	RecentLength          = 100
	RecentCount           = 5
)

// Rule is the static handling of one escalation reason. Reasons without
// AutoEscalate are queued for the team instead of paging anyone.
type Rule struct {
	Reason        models.EscalationReason
	Priority      models.Priority
	AutoEscalate  bool
	NotifyTargets []string
	Response      string
	// Summary may reference {intent}, {sentiment} and {turns}.
	Summary string
	Actions []string
}

const firstAction = "Läs igenom konversationen för kontext"

var rules = map[models.EscalationReason]Rule{
	models.ReasonLegalThreat: {
		Priority:      models.PriorityCritical,
		AutoEscalate:  true,
		NotifyTargets: []string{"legal", "management"},
		Response:      "Jag kopplar dig direkt till vår jurist.",
		Summary:       "Kunden har nämnt legala åtgärder. Detta kräver omedelbar hantering av jurist.",
		Actions: []string{
			"Omedelbar kontakt med juridik",
			"Dokumentera allting noga",
			"Svara ej innan konsulterat jurist",
		},
	},
	models.ReasonAngryCustomer: {
		Priority:      models.PriorityHigh,
		AutoEscalate:  true,
		NotifyTargets: []string{"support_lead"},
		Response:      "Jag förstår att du är frustrerad. Låt mig koppla dig till en chef som kan hjälpa dig direkt.",
		Summary:       "Kunden är mycket frustrerad/arg ({sentiment}). Har samtalat i {turns} rundor utan lösning.",
		Actions: []string{
			"Bekräfta kundens känslor",
			"Erbjud kompensation/lösning snabbt",
			"Följ upp personligen inom 24h",
		},
	},
	models.ReasonTechnicalIssue: {
		Priority:      models.PriorityMedium,
		NotifyTargets: []string{"technical"},
		Response:      "Detta verkar vara ett tekniskt problem. Jag eskalerar detta till vårt tekniska team.",
		Summary:       "Tekniskt problem som inte kunnat lösas efter {turns} försök.",
		Actions: []string{
			"Samla in felmeddelanden/loggar",
			"Kontakta tekniska teamet",
			"Ge kunden tidsuppskattning",
		},
	},
	models.ReasonRefundDispute: {
		Priority:      models.PriorityHigh,
		AutoEscalate:  true,
		NotifyTargets: []string{"billing", "support"},
		Response:      "Jag förstår angående din återbetalning. Låt mig koppla dig till vår avdelning som hanterar detta.",
		Summary:       "Kunden vill ha återbetalning och är {sentiment}. Kräver manuell hantering.",
		Actions: []string{
			"Verifiera köp och betalningsstatus",
			"Kontrollera refund policy",
			"Gör bedömning baserat på policy",
		},
	},
	models.ReasonManagerRequest: {
		Priority:      models.PriorityHigh,
		AutoEscalate:  true,
		NotifyTargets: []string{"support_lead"},
		Response:      "Självklart, jag kopplar dig till en chef.",
		Summary:       "Kunden har specifikt begärt att prata med en chef.",
	},
	models.ReasonComplexCase: {
		Priority:      models.PriorityMedium,
		NotifyTargets: []string{"support"},
		Response:      "Detta är en lite mer komplex fråga. Låt mig koppla dig till rätt person.",
		Summary:       "Komplext ärende som kräver {turns}+ samtal och mänsklig bedömning.",
	},
	models.ReasonBillingError: {
		Priority:      models.PriorityHigh,
		AutoEscalate:  true,
		NotifyTargets: []string{"billing"},
		Response:      "Jag ser att det är ett problem med din betalning. Jag eskalerar detta direkt.",
		Summary:       "Fel i betalningssystemet som kräver omedelbar åtgärd.",
	},
	models.ReasonContractual: {
		Priority:      models.PriorityHigh,
		AutoEscalate:  true,
		NotifyTargets: []string{"legal", "sales"},
		Response:      "När det gäller avtal och kontrakt kopplar jag dig till rätt person.",
		Summary:       "Frågor rörande avtal/kontrakt som kräver juridisk kompetens.",
	},
}

// RuleFor returns the rule for reason.
func RuleFor(reason models.EscalationReason) (Rule, bool) {
	r, ok := rules[reason]
	if !ok {
		return Rule{}, false
	}
	r.Reason = reason
	return r, true
}

// Options configures an Engine.
type Options struct {
	// TechnicalTurns is how many turns a technical issue may run before it
	// is escalated.
	TechnicalTurns int
	// MaxTurns is how many turns any conversation may run before it counts
	// as complex.
	MaxTurns int
	// Sentiments escalate as angry_customer. Empty means angry only.
	Sentiments []models.Sentiment
	Now        func() time.Time
	NewID      func() string
}

// Input is everything Decide looks at.
type Input struct {
	Text      string
	Intent    models.Intent
	Sentiment models.Sentiment
	LeadScore int
	// Turns counts user messages in the session, the current one included.
	Turns int
}

// Engine is safe for concurrent use.
type Engine struct {
	lib  *patterns.Library
	opts Options
}

// New creates an Engine, filling zero options with defaults.
func New(lib *patterns.Library, opts Options) *Engine {
	if opts.TechnicalTurns <= 0 {
		opts.TechnicalTurns = DefaultTechnicalTurns
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if len(opts.Sentiments) == 0 {
		opts.Sentiments = []models.Sentiment{models.SentimentAngry}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return models.NewID(models.PrefixEscalation) }
	}
	return &Engine{lib: lib, opts: opts}
}

// Decide returns the escalation reason for in. The checks run in a fixed
// order and the first hit wins. Decide depends on nothing but its input.
func (e *Engine) Decide(in Input) (models.EscalationReason, bool) {
	switch {
	case e.lib.Legal.Any(in.Text):
		return models.ReasonLegalThreat, true
	case e.escalatingSentiment(in.Sentiment):
		return models.ReasonAngryCustomer, true
	case e.lib.Manager.Any(in.Text):
		return models.ReasonManagerRequest, true
	case in.Intent == models.IntentTechnicalIssue && in.Turns > e.opts.TechnicalTurns:
		return models.ReasonTechnicalIssue, true
	case in.Intent == models.IntentRefund && in.Sentiment.Negative():
		return models.ReasonRefundDispute, true
	case in.Turns > e.opts.MaxTurns:
		return models.ReasonComplexCase, true
	case e.lib.Billing.Any(in.Text):
		return models.ReasonBillingError, true
	case e.lib.Contract.Any(in.Text):
		return models.ReasonContractual, true
	}
	return "", false
}

func (e *Engine) escalatingSentiment(s models.Sentiment) bool {
	for _, v := range e.opts.Sentiments {
		if v == s {
			return true
		}
	}
	return false
}

// BuildContext assembles the packet for a decided escalation. s is read,
// never modified; pass a snapshot.
func (e *Engine) BuildContext(reason models.EscalationReason, s *models.Session, in Input) *models.EscalationContext {
	rule, _ := RuleFor(reason)
	ctx := &models.EscalationContext{
		ID:               e.opts.NewID(),
		Priority:         rule.Priority,
		Reason:           reason,
		Summary:          summary(rule, in),
		SuggestedActions: actions(rule),
		Intent:           in.Intent,
		Sentiment:        in.Sentiment,
		LeadScore:        in.LeadScore,
		Turns:            in.Turns,
		NotifyTargets:    append([]string(nil), rule.NotifyTargets...),
		AutoEscalate:     rule.AutoEscalate,
		CreatedAt:        e.opts.Now(),
	}
	if rule.Priority == "" {
		ctx.Priority = models.PriorityMedium
	}
	if s == nil {
		ctx.CustomerIssue = "Ingen beskrivning tillgänglig"
		return ctx
	}
	ctx.SessionID = s.ID
	ctx.CustomerIssue = customerIssue(s.Messages)
	ctx.RecentMessages = recentMessages(s.Recent(RecentCount))
	ctx.CustomerName = s.Attr(models.AttrName)
	ctx.CustomerEmail = s.Attr(models.AttrEmail)
	ctx.CustomerPhone = s.Attr(models.AttrPhone)
	ctx.CustomerCompany = s.Attr(models.AttrCompany)
	return ctx
}

// Reply is the text shown to the user for reason. contact, when set, is
// appended as a direct-contact line.
func (e *Engine) Reply(reason models.EscalationReason, contact string) string {
	text := "Jag hjälper dig gärna vidare. Låt mig koppla dig till vår support."
	if rule, ok := RuleFor(reason); ok {
		text = rule.Response
	}
	if contact != "" {
		text += fmt.Sprintf("\n\nDu kan också nå oss direkt på %s.", contact)
	}
	return text
}

func summary(rule Rule, in Input) string {
	tmpl := rule.Summary
	if tmpl == "" {
		tmpl = "Eskalering efter {turns} samtal. Intent: {intent}, Sentiment: {sentiment}"
	}
	return strings.NewReplacer(
		"{intent}", string(in.Intent),
		"{sentiment}", string(in.Sentiment),
		"{turns}", fmt.Sprint(in.Turns),
	).Replace(tmpl)
}

func actions(rule Rule) []string {
	out := make([]string, 0, len(rule.Actions)+1)
	out = append(out, firstAction)
	return append(out, rule.Actions...)
}

func customerIssue(msgs []models.Message) string {
	if len(msgs) == 0 {
		return "Ingen beskrivning tillgänglig"
	}
	for _, m := range msgs {
		if m.Role == models.RoleUser {
			return truncate(m.Content, IssueLength)
		}
	}
	return "Ej specificerat"
}

func recentMessages(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if utf8.RuneCountInString(content) > RecentLength {
			content = truncate(content, RecentLength) + "..."
		}
		out = append(out, string(m.Role)+": "+content)
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
