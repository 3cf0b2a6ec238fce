// Package compose produces the free-text reply for messages that no
// deterministic stage answered. It asks a Generator under a deadline and
// falls back to a rule-based reply whenever generation is unavailable.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joescharf/desk/internal/memory"
	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
	"github.com/joescharf/desk/internal/security"
)

// Generator produces a reply to user given a system prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Defaults for Options.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxAttempts = 2
)

// Fallback causes, reported to Options.OnFallback and in Result.
const (
	CauseUnavailable = "unavailable"
	CauseTimeout     = "timeout"
	CauseCancelled   = "cancelled"
	CauseError       = "error"
	CauseInvalid     = "invalid"
)

// ErrorReply is sent when the pipeline itself fails.
const ErrorReply = "Jag ber om ursäkt, men något gick fel. Låt mig koppla dig till vår support."

// Options configures a Composer.
type Options struct {
	// Timeout bounds all attempts of one Compose call together.
	Timeout     time.Duration
	MaxAttempts int
	Logger      *slog.Logger
	// OnFallback is called with the cause whenever the fallback reply is used.
	OnFallback func(cause string)
}

// Composer is safe for concurrent use.
type Composer struct {
	gen     Generator
	lib     *patterns.Library
	company models.Company
	opts    Options
}

// New creates a Composer. gen may be nil, in which case every reply is the
// rule-based fallback.
func New(gen Generator, lib *patterns.Library, company models.Company, opts Options) *Composer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Composer{gen: gen, lib: lib, company: company, opts: opts}
}

// Request is one message needing a free-text reply.
type Request struct {
	Text           string
	Classification models.ClassificationResult
	// Session is a snapshot taken before the call. It is only read.
	Session *models.Session
}

// Result is the composed reply. Cause is empty when the reply was generated.
type Result struct {
	Reply string
	Cause string
}

// Compose returns a reply for req. It never fails: any generation problem
// yields the fallback reply and a cause.
func (c *Composer) Compose(ctx context.Context, req Request) Result {
	if c.gen == nil {
		return c.fallback(req, CauseUnavailable, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	system := c.SystemPrompt(req.Session)
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		text, err := c.gen.Generate(ctx, system, req.Text)
		if err == nil {
			clean, ok := security.SanitizeOutput(c.lib, text)
			if !ok {
				return c.fallback(req, CauseInvalid, nil)
			}
			return Result{Reply: clean}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.opts.Logger.Debug("generation attempt failed", "attempt", attempt, "err", err)
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return c.fallback(req, CauseTimeout, lastErr)
	case errors.Is(ctx.Err(), context.Canceled):
		return c.fallback(req, CauseCancelled, lastErr)
	}
	return c.fallback(req, CauseError, lastErr)
}

func (c *Composer) fallback(req Request, cause string, err error) Result {
	if cause != CauseUnavailable {
		sessionID := ""
		if req.Session != nil {
			sessionID = req.Session.ID
		}
		c.opts.Logger.Warn("generation unavailable, using fallback reply",
			"session_id", sessionID, "cause", cause, "err", err)
	}
	if c.opts.OnFallback != nil {
		c.opts.OnFallback(cause)
	}
	return Result{Reply: c.FallbackReply(req.Classification), Cause: cause}
}

// FallbackReply answers from intent and sentiment alone.
func (c *Composer) FallbackReply(r models.ClassificationResult) string {
	switch {
	case r.Intent == models.IntentPricing && c.company.Pricing != "":
		return c.company.Pricing
	case r.Intent == models.IntentBooking:
		return fmt.Sprintf("Vill du boka ett möte eller en visning? Du kan nå oss på %s eller via vår hemsida.", c.company.Phone)
	case r.Sentiment == models.SentimentAngry:
		return "Jag förstår att detta är viktigt för dig. Låt mig koppla dig till en kollega som kan hjälpa dig direkt."
	case r.Sentiment == models.SentimentFrustrated:
		return "Jag ber om ursäkt för besväret. Låt mig hjälpa dig vidare. Kan du beskriva vad du behöver hjälp med?"
	}
	return fmt.Sprintf("Tack för ditt meddelande. För att ge dig bästa möjliga hjälp, kontakta oss på %s.", c.company.Contact())
}

// SystemPrompt grounds the generator in the company profile and what is
// known about the conversation.
func (c *Composer) SystemPrompt(s *models.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Du är en hjälpsam kundtjänstassistent för %s.\n\n", c.company.Name)
	sb.WriteString("Använd endast följande information för att svara:\n")
	fmt.Fprintf(&sb, "- Företag: %s\n", c.company.Name)
	fmt.Fprintf(&sb, "- Telefon: %s\n", c.company.Phone)
	fmt.Fprintf(&sb, "- Email: %s\n", c.company.Email)
	if c.company.Hours != "" {
		fmt.Fprintf(&sb, "- Öppettider: %s\n", c.company.Hours)
	}
	if c.company.Services != "" {
		fmt.Fprintf(&sb, "- Tjänster: %s\n", c.company.Services)
	}
	if c.company.Pricing != "" {
		fmt.Fprintf(&sb, "- Priser: %s\n", c.company.Pricing)
	}
	sb.WriteString("\nSvara på svenska, var professionell och trevlig. Om du inte vet svaret, säg att du inte kan ge felaktig information och föreslå kontakt med kundtjänst.")
	sb.WriteString(memory.ContextPrompt(s))
	return sb.String()
}

// Suggested returns quick-reply labels for the client to offer next.
func Suggested(intent models.Intent, leadScore int) []string {
	switch {
	case intent == models.IntentPricing:
		return []string{"Se priser", "Boka möte", "Jämför paket"}
	case intent == models.IntentHowItWorks:
		return []string{"Hur fungerar det?", "Se demo", "Implementation"}
	case leadScore >= 4:
		return []string{"Boka möte", "Se priser", "Kontakta mig"}
	case leadScore >= 2:
		return []string{"Mer information", "Kostnad", "Funktioner"}
	}
	return []string{"Hur fungerar det?", "Priser", "Kontakta support"}
}
