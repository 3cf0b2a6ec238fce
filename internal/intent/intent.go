// Package intent scores a user message for intent, sentiment and lead
// propensity.
package intent

import (
	"strconv"
	"strings"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
)

// DefaultConfidence is reported when no intent pattern matches.
const DefaultConfidence = 0.3

// Options configures a Classifier.
type Options struct {
	// HistoryWindow limits how many trailing history messages feed the lead
	// score floors. Zero uses the whole history.
	HistoryWindow int
}

// Classifier is safe for concurrent use.
type Classifier struct {
	lib    *patterns.Library
	window int
}

// New creates a Classifier.
func New(lib *patterns.Library, opts Options) *Classifier {
	return &Classifier{lib: lib, window: opts.HistoryWindow}
}

// Classify scores text against the intent, sentiment and lead tables.
// history holds the prior messages of the conversation, oldest first, and
// does not include text.
func (c *Classifier) Classify(text string, history []models.Message) models.ClassificationResult {
	in, confidence, phrases := c.DetectIntent(text)
	sentiment := c.DetectSentiment(text)
	lead := c.LeadScore(text, history)

	return models.ClassificationResult{
		Intent:          in,
		Confidence:      confidence,
		Sentiment:       sentiment,
		LeadScore:       lead,
		TriggerPhrases:  phrases,
		ShouldEscalate:  shouldEscalate(in, sentiment, lead),
		ConversionReady: lead >= 4 && sentiment != models.SentimentAngry,
		HasQuestion:     strings.Contains(text, "?"),
		HasUrgentWords:  c.lib.UrgentWords.Any(text),
	}
}

// DetectIntent returns the intent with the highest summed pattern weight,
// its confidence and every phrase that matched any intent.
func (c *Classifier) DetectIntent(text string) (models.Intent, float64, []string) {
	scores := patterns.Scores(c.lib.Intent, text)
	best, ok := patterns.Best(scores)
	if !ok {
		return models.IntentGeneral, DefaultConfidence, nil
	}
	in, err := models.ParseIntent(best.Tag)
	if err != nil {
		return models.IntentGeneral, DefaultConfidence, nil
	}

	var phrases []string
	for _, s := range scores {
		phrases = append(phrases, s.Phrases...)
	}
	confidence := best.Value / 2
	if confidence > 1 {
		confidence = 1
	}
	return in, confidence, phrases
}

// DetectSentiment checks angry, frustrated, positive and slightly negative
// patterns in that order. No match is neutral.
func (c *Classifier) DetectSentiment(text string) models.Sentiment {
	r, ok := patterns.FirstMatch(c.lib.Sentiment, text)
	if !ok {
		return models.SentimentNeutral
	}
	s, err := models.ParseSentiment(r.Tag)
	if err != nil {
		return models.SentimentNeutral
	}
	return s
}

// LeadScore is the highest lead tier matching text, raised by floors:
// two or more pricing mentions across the history and text give 3, a
// booking mention in the history gives 4, and company language in text
// gives 3. The result is clamped to 1..5.
func (c *Classifier) LeadScore(text string, history []models.Message) int {
	score := 0
	for _, r := range c.lib.LeadTiers {
		if !r.Matches(text) {
			continue
		}
		if tier, err := strconv.Atoi(r.Tag); err == nil && tier > score {
			score = tier
		}
	}

	prior := c.userTexts(history)
	pricing := 0
	if c.lib.PricingHistory.Any(text) {
		pricing++
	}
	booked := false
	for _, m := range prior {
		if c.lib.PricingHistory.Any(m) {
			pricing++
		}
		if c.lib.BookingHistory.Any(m) {
			booked = true
		}
	}
	if pricing >= 2 {
		score = max(score, 3)
	}
	if booked {
		score = max(score, 4)
	}
	if c.lib.Company.Any(text) {
		score = max(score, 3)
	}
	return models.ClampLeadScore(score)
}

func (c *Classifier) userTexts(history []models.Message) []string {
	if c.window > 0 && len(history) > c.window {
		history = history[len(history)-c.window:]
	}
	var out []string
	for _, m := range history {
		if m.Role == models.RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}

func shouldEscalate(in models.Intent, s models.Sentiment, lead int) bool {
	return in == models.IntentLegalThreat ||
		in == models.IntentEscalationDemand ||
		s == models.SentimentAngry ||
		(s == models.SentimentFrustrated && lead <= 2)
}
