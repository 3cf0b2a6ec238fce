package models

import "github.com/oklog/ulid/v2"

// ID prefixes for generated records.
const (
	PrefixFault        = "fault_"
	PrefixEscalation   = "esc_"
	PrefixSession      = "sess_"
	PrefixNotification = "ntf_"
)

// NewID returns a prefixed, time-sortable ULID.
func NewID(prefix string) string {
	return prefix + ulid.Make().String()
}
