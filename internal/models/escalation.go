package models

import (
	"fmt"
	"time"
)

// Priority ranks how quickly a human needs to pick up an escalation.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// EscalationReason is why a conversation was handed to a human.
type EscalationReason string

const (
	ReasonLegalThreat    EscalationReason = "legal_threat"
	ReasonAngryCustomer  EscalationReason = "angry_customer"
	ReasonTechnicalIssue EscalationReason = "technical_issue"
	ReasonRefundDispute  EscalationReason = "refund_dispute"
	ReasonManagerRequest EscalationReason = "manager_request"
	ReasonComplexCase    EscalationReason = "complex_case"
	ReasonBillingError   EscalationReason = "billing_error"
	ReasonContractual    EscalationReason = "contractual"
)

// EscalationReasons lists every reason.
var EscalationReasons = []EscalationReason{
	ReasonLegalThreat,
	ReasonAngryCustomer,
	ReasonTechnicalIssue,
	ReasonRefundDispute,
	ReasonManagerRequest,
	ReasonComplexCase,
	ReasonBillingError,
	ReasonContractual,
}

// Valid reports whether r is a known reason.
func (r EscalationReason) Valid() bool {
	for _, v := range EscalationReasons {
		if v == r {
			return true
		}
	}
	return false
}

// ParseEscalationReason converts a string to an EscalationReason.
func ParseEscalationReason(s string) (EscalationReason, error) {
	r := EscalationReason(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown escalation reason: %q", s)
	}
	return r, nil
}

// EscalationContext is the packet handed to a human agent. It is built once
// per escalation decision and not modified afterwards.
type EscalationContext struct {
	ID               string           `json:"id"`
	SessionID        string           `json:"session_id"`
	Priority         Priority         `json:"priority"`
	Reason           EscalationReason `json:"reason"`
	Summary          string           `json:"summary"`
	CustomerIssue    string           `json:"customer_issue"`
	SuggestedActions []string         `json:"suggested_actions"`
	RecentMessages   []string         `json:"recent_messages"`
	Intent           Intent           `json:"intent"`
	Sentiment        Sentiment        `json:"sentiment"`
	LeadScore        int              `json:"lead_score"`
	Turns            int              `json:"turns"`
	CustomerName     string           `json:"customer_name,omitempty"`
	CustomerEmail    string           `json:"customer_email,omitempty"`
	CustomerPhone    string           `json:"customer_phone,omitempty"`
	CustomerCompany  string           `json:"customer_company,omitempty"`
	NotifyTargets    []string         `json:"notify_targets,omitempty"`

	// AutoEscalate is set for reasons that page the notify targets at once.
	// The rest wait in the escalation queue.
	AutoEscalate bool      `json:"auto_escalate"`
	CreatedAt    time.Time `json:"created_at"`
}
