package models

import "fmt"

// Intent is the classified purpose of a user message.
type Intent string

const (
	IntentPricing          Intent = "pricing_question"
	IntentHowItWorks       Intent = "how_it_works"
	IntentBooking          Intent = "booking_request"
	IntentTechnicalIssue   Intent = "technical_issue"
	IntentRefund           Intent = "refund_request"
	IntentComplaint        Intent = "complaint"
	IntentFeatureRequest   Intent = "feature_request"
	IntentIntegration      Intent = "integration_question"
	IntentEscalationDemand Intent = "escalation_demand"
	IntentLegalThreat      Intent = "legal_threat"
	IntentGeneral          Intent = "general_inquiry"
)

// Pipeline-level intents. These are never produced by the intent classifier;
// they tag replies from stages that short-circuit before it runs.
const (
	IntentFaultReport   Intent = "fault_report"
	IntentGreeting      Intent = "greeting"
	IntentGratitude     Intent = "gratitude"
	IntentGoodbye       Intent = "goodbye"
	IntentContact       Intent = "contact"
	IntentHours         Intent = "hours"
	IntentHowToReport   Intent = "how_to_report"
	IntentSecurityBlock Intent = "security_block"
	IntentRateLimited   Intent = "rate_limited"
)

// ClassifierIntents lists the intents the classifier may return, in
// declaration order. Ties in scoring resolve to the earlier entry.
var ClassifierIntents = []Intent{
	IntentPricing,
	IntentHowItWorks,
	IntentBooking,
	IntentTechnicalIssue,
	IntentRefund,
	IntentComplaint,
	IntentFeatureRequest,
	IntentIntegration,
	IntentEscalationDemand,
	IntentLegalThreat,
	IntentGeneral,
}

var pipelineIntents = []Intent{
	IntentFaultReport, IntentGreeting, IntentGratitude, IntentGoodbye,
	IntentContact, IntentHours, IntentHowToReport, IntentSecurityBlock, IntentRateLimited,
}

// Valid reports whether i is a known intent tag.
func (i Intent) Valid() bool {
	for _, v := range ClassifierIntents {
		if v == i {
			return true
		}
	}
	for _, v := range pipelineIntents {
		if v == i {
			return true
		}
	}
	return false
}

// ParseIntent converts a string to an Intent.
func ParseIntent(s string) (Intent, error) {
	i := Intent(s)
	if !i.Valid() {
		return "", fmt.Errorf("unknown intent: %q", s)
	}
	return i, nil
}

// Sentiment is the emotional tone of a user message.
type Sentiment string

const (
	SentimentPositive         Sentiment = "positive"
	SentimentNeutral          Sentiment = "neutral"
	SentimentSlightlyNegative Sentiment = "slightly_negative"
	SentimentFrustrated       Sentiment = "frustrated"
	SentimentAngry            Sentiment = "angry"
)

// Valid reports whether s is a known sentiment.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentSlightlyNegative, SentimentFrustrated, SentimentAngry:
		return true
	}
	return false
}

// Negative reports whether the sentiment counts as dissatisfied.
func (s Sentiment) Negative() bool {
	return s == SentimentFrustrated || s == SentimentAngry
}

// ParseSentiment converts a string to a Sentiment.
func ParseSentiment(s string) (Sentiment, error) {
	v := Sentiment(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown sentiment: %q", s)
	}
	return v, nil
}

// Lead score bounds.
const (
	MinLeadScore = 1
	MaxLeadScore = 5
)

// ClampLeadScore forces a score into the 1-5 range.
func ClampLeadScore(score int) int {
	if score < MinLeadScore {
		return MinLeadScore
	}
	if score > MaxLeadScore {
		return MaxLeadScore
	}
	return score
}

// ClassificationResult is produced fresh for every classified message.
type ClassificationResult struct {
	Intent          Intent    `json:"intent"`
	Confidence      float64   `json:"confidence"`
	Sentiment       Sentiment `json:"sentiment"`
	LeadScore       int       `json:"lead_score"`
	TriggerPhrases  []string  `json:"trigger_phrases,omitempty"`
	ShouldEscalate  bool      `json:"should_escalate"`
	ConversionReady bool      `json:"conversion_ready"`
	HasQuestion     bool      `json:"has_question"`
	HasUrgentWords  bool      `json:"has_urgent_words"`
}

// Action tells the caller what to do next with the conversation.
type Action string

const (
	ActionNone        Action = "none"
	ActionEscalate    Action = "escalate"
	ActionCollectInfo Action = "collect_info"
	ActionBookCall    Action = "book_call"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionEscalate, ActionCollectInfo, ActionBookCall:
		return true
	}
	return false
}
