// Package security screens inbound messages before any other pipeline stage
// sees them: rate limiting, prompt-injection rejection and sanitisation of
// lower-confidence meta-instructions. It also cleans generated replies.
package security

import (
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/joescharf/desk/internal/patterns"
)

// Kind classifies the outcome of a check.
type Kind string

const (
	KindAllowed     Kind = "allowed"
	KindSanitized   Kind = "sanitized"
	KindRejected    Kind = "rejected"
	KindRateLimited Kind = "rate_limited"
	KindInvalid     Kind = "invalid_input"
)

// Redacted replaces suspicious spans in sanitised text.
const Redacted = "[FILTERED]"

// User-facing replies for blocked messages.
const (
	DenialReply      = "Meddelandet kunde inte bearbetas. Vänligen kontakta oss via telefon om problemet kvarstår."
	RateLimitedReply = "Du har skickat för många förfrågningar. Vänta en stund och försök igen."
	InvalidReply     = "Jag förstår tyvärr inte din fråga. Kan du omformulera den?"
)

// Result is the outcome of Check.
type Result struct {
	Allowed bool
	Text    string
	Reason  string
	Kind    Kind
}

// Reply returns the message shown to the user for a blocked result.
func (r Result) Reply() string {
	switch r.Kind {
	case KindRateLimited:
		return RateLimitedReply
	case KindInvalid:
		return InvalidReply
	case KindRejected:
		return DenialReply
	}
	return ""
}

// Options configures a Filter.
type Options struct {
	PerMinute int
	PerHour   int
	// MaxLength caps message length in runes. Zero means 4000.
	MaxLength int
	Now       func() time.Time
	Logger    *slog.Logger
}

// Filter runs the inbound checks.
type Filter struct {
	lib       *patterns.Library
	limiter   *Limiter
	maxLength int
	logger    *slog.Logger
}

// NewFilter creates a Filter over the given pattern library.
func NewFilter(lib *patterns.Library, opts Options) *Filter {
	if opts.MaxLength <= 0 {
		opts.MaxLength = 4000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Filter{
		lib:       lib,
		limiter:   NewLimiter(opts.PerMinute, opts.PerHour, opts.Now),
		maxLength: opts.MaxLength,
		logger:    opts.Logger,
	}
}

// Check screens text sent by identifier. Checks run in a fixed order: rate
// limit, input shape, injection patterns, then sanitisation. The rate-limit
// counter is incremented for every allowed attempt, including ones that are
// later rejected for their content.
func (f *Filter) Check(identifier, text string) Result {
	if ok, reason := f.limiter.Allow(identifier); !ok {
		f.logger.Warn("rate limited", "identifier", identifier, "reason", reason)
		return Result{Kind: KindRateLimited, Reason: reason}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Kind: KindInvalid, Reason: "empty message"}
	}
	if utf8.RuneCountInString(trimmed) > f.maxLength {
		return Result{Kind: KindInvalid, Reason: "message too long"}
	}

	for _, rule := range f.lib.Injection {
		if phrases := rule.Phrases(trimmed); len(phrases) > 0 {
			f.logger.Warn("blocked message", "identifier", identifier, "rule", rule.Tag)
			return Result{Kind: KindRejected, Reason: "detected " + rule.Tag + " pattern: " + phrases[0]}
		}
	}

	if f.lib.Suspicious.Any(trimmed) {
		out := trimmed
		for _, rule := range f.lib.Suspicious {
			out = rule.Replace(out, Redacted)
		}
		return Result{Allowed: true, Kind: KindSanitized, Text: out, Reason: "suspicious pattern"}
	}
	if excessiveCaps(trimmed) {
		return Result{Allowed: true, Kind: KindSanitized, Text: trimmed, Reason: "unusual capitalization"}
	}

	return Result{Allowed: true, Kind: KindAllowed, Text: trimmed}
}

// Remaining reports the attempts left for identifier.
func (f *Filter) Remaining(identifier string) (perMinute, perHour int) {
	return f.limiter.Remaining(identifier)
}

// Prune forgets idle identifiers.
func (f *Filter) Prune() int {
	return f.limiter.Prune()
}

// excessiveCaps flags messages over 20 runes where more than 30% of runes
// are upper-case letters.
func excessiveCaps(s string) bool {
	total := utf8.RuneCountInString(s)
	if total <= 20 {
		return false
	}
	upper := 0
	for _, r := range s {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) > float64(total)*0.3
}
