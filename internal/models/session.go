package models

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageMeta is classification data attached to a message.
type MessageMeta struct {
	Intent    Intent    `json:"intent,omitempty"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
	LeadScore int       `json:"lead_score,omitempty"`
}

// Message is one entry in a session's log. Messages are never edited after
// they are appended.
type Message struct {
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
	Meta      *MessageMeta `json:"meta,omitempty"`
}

// AttributeSource is the kind of event an attribute was learned from.
type AttributeSource string

const (
	SourceUserInfo      AttributeSource = "user_info"
	SourceIssueCategory AttributeSource = "issue_category"
	SourceBuyingSignal  AttributeSource = "buying_signal"
	SourceObjection     AttributeSource = "objection"
	SourcePreference    AttributeSource = "preference"
	SourceInteraction   AttributeSource = "interaction"
)

// Well-known attribute names.
const (
	AttrName         = "customer_name"
	AttrEmail        = "customer_email"
	AttrPhone        = "customer_phone"
	AttrCompany      = "customer_company"
	AttrPrimaryIssue = "primary_issue"
)

// Attribute is a value extracted from the conversation.
type Attribute struct {
	Value     string          `json:"value"`
	Source    AttributeSource `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// Session holds everything known about one ongoing conversation.
type Session struct {
	ID               string               `json:"id"`
	CreatedAt        time.Time            `json:"created_at"`
	LastActivity     time.Time            `json:"last_activity"`
	Messages         []Message            `json:"messages"`
	Attributes       map[string]Attribute `json:"attributes"`
	LeadScore        int                  `json:"lead_score"`
	CurrentIntent    Intent               `json:"current_intent,omitempty"`
	CurrentSentiment Sentiment            `json:"current_sentiment,omitempty"`
	EscalationCount  int                  `json:"escalation_count"`
	OpenFault        *FaultReport         `json:"open_fault,omitempty"`
}

// NewSession creates an empty session with the minimum lead score.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		Attributes:   make(map[string]Attribute),
		LeadScore:    MinLeadScore,
	}
}

// RaiseLeadScore records a new observation. The stored score is the maximum
// ever seen and never decreases.
func (s *Session) RaiseLeadScore(score int) {
	score = ClampLeadScore(score)
	if score > s.LeadScore {
		s.LeadScore = score
	}
}

// Attr returns the value of an attribute, or "" when unknown.
func (s *Session) Attr(name string) string {
	if s.Attributes == nil {
		return ""
	}
	return s.Attributes[name].Value
}

// UserTurns counts messages authored by the user.
func (s *Session) UserTurns() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// Recent returns up to the last n messages. n <= 0 returns all of them.
func (s *Session) Recent(n int) []Message {
	if n <= 0 || n >= len(s.Messages) {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Clone returns a deep copy that is safe to read without holding the
// session lock.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	c.Attributes = make(map[string]Attribute, len(s.Attributes))
	for k, v := range s.Attributes {
		c.Attributes[k] = v
	}
	if s.OpenFault != nil {
		f := *s.OpenFault
		c.OpenFault = &f
	}
	return &c
}
