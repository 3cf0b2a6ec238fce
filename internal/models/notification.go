package models

import "time"

// NotificationKind is the type of record a notification was sent for.
type NotificationKind string

const (
	NotifyFault      NotificationKind = "fault"
	NotifyEscalation NotificationKind = "escalation"
)

// NotificationStatus is the delivery outcome of one send.
type NotificationStatus string

const (
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

// Notification records one delivery attempt to one sink.
type Notification struct {
	ID        string             `json:"id"`
	Kind      NotificationKind   `json:"kind"`
	RecordID  string             `json:"record_id"`
	Sink      string             `json:"sink"`
	Status    NotificationStatus `json:"status"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}
