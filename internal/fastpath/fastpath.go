// Package fastpath answers a small set of unambiguous utterances with fixed
// replies so they skip classification entirely.
package fastpath

import (
	"fmt"
	"unicode/utf8"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
)

// MaxLength is the longest message the fast path will consider, in runes.
const MaxLength = 40

// Reply is a canned answer.
type Reply struct {
	Intent    models.Intent
	Text      string
	LeadScore int
}

// Responder matches the fast-path table.
type Responder struct {
	lib     *patterns.Library
	replies map[models.Intent]string
}

// New creates a Responder with replies for company.
func New(lib *patterns.Library, company models.Company) *Responder {
	return &Responder{
		lib:     lib,
		replies: map[models.Intent]string{
			models.IntentGreeting:  fmt.Sprintf("Hej! %s här. Jag hjälper dig med frågor om fastigheter, felanmälan och förvaltning. Vad kan jag hjälpa dig med?", company.Name),
			models.IntentGratitude: "Varsågod! Har du fler frågor är det bara att fråga.",
			models.IntentGoodbye:   "Ha en bra dag!",
			models.IntentContact:   contactReply(company),
			models.IntentHours: fmt.Sprintf("Vi har öppet %s. Akuta ärenden dygnet runt: ring jouren på %s.",
				company.Hours, company.Phone),
			models.IntentHowToReport: fmt.Sprintf("Felanmälan gör du här i chatten, genom att ringa %s eller via formuläret på hemsidan. För akuta ärenden, ring jouren.",
				company.Phone),
		},
	}
}

func contactReply(c models.Company) string {
	s := "Ring oss på " + c.Contact() + "."
	if c.Offices != "" {
		s += " Vi finns i " + c.Offices + "."
	}
	return s
}

// Match returns a canned reply when text is a pure greeting, thanks,
// goodbye, contact, hours or how-to-report message. It never matches when
// the text carries fault or escalation vocabulary.
func (r *Responder) Match(text string) (Reply, bool) {
	if utf8.RuneCountInString(text) > MaxLength {
		return Reply{}, false
	}
	rule, ok := patterns.FirstMatch(r.lib.FastPath, text)
	if !ok {
		return Reply{}, false
	}
	if r.lib.Urgency.Any(text) || r.lib.Legal.Any(text) || r.lib.Manager.Any(text) {
		return Reply{}, false
	}
	intent := models.Intent(rule.Tag)
	reply, ok := r.replies[intent]
	if !ok {
		return Reply{}, false
	}
	score := models.MinLeadScore
	if intent == models.IntentHowToReport {
		score = 2
	}
	return Reply{Intent: intent, Text: reply, LeadScore: score}, true
}
