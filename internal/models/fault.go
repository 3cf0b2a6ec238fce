package models

import (
	"fmt"
	"time"
)

// Urgency describes how time-sensitive a fault report is.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Rank orders urgencies from low (0) to critical (3). Unknown values rank -1.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 0
	case UrgencyMedium:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyCritical:
		return 3
	}
	return -1
}

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool { return u.Rank() >= 0 }

// ParseUrgency converts a string to an Urgency.
func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(s)
	if !u.Valid() {
		return "", fmt.Errorf("unknown urgency: %q", s)
	}
	return u, nil
}

// FaultCategory groups fault reports by the affected system.
type FaultCategory string

const (
	CategoryWater      FaultCategory = "water"
	CategoryElectrical FaultCategory = "electrical"
	CategoryHeating    FaultCategory = "heating"
	CategorySecurity   FaultCategory = "security"
	CategoryStructural FaultCategory = "structural"
	CategoryAppliance  FaultCategory = "appliance"
	CategoryNoise      FaultCategory = "noise"
	CategoryOther      FaultCategory = "other"
)

// Valid reports whether c is a known category.
func (c FaultCategory) Valid() bool {
	switch c {
	case CategoryWater, CategoryElectrical, CategoryHeating, CategorySecurity,
		CategoryStructural, CategoryAppliance, CategoryNoise, CategoryOther:
		return true
	}
	return false
}

// ParseFaultCategory converts a string to a FaultCategory.
func ParseFaultCategory(s string) (FaultCategory, error) {
	c := FaultCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown fault category: %q", s)
	}
	return c, nil
}

// FaultStatus is the lifecycle state of a fault report.
type FaultStatus string

const (
	FaultCollecting FaultStatus = "collecting"
	FaultComplete   FaultStatus = "complete"
	FaultSent       FaultStatus = "sent"
)

func (s FaultStatus) rank() int {
	switch s {
	case FaultCollecting:
		return 0
	case FaultComplete:
		return 1
	case FaultSent:
		return 2
	}
	return -1
}

// Valid reports whether s is a known status.
func (s FaultStatus) Valid() bool { return s.rank() >= 0 }

// FaultReport is a structured report of a property fault.
type FaultReport struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	Category      FaultCategory `json:"category"`
	Urgency       Urgency       `json:"urgency"`
	Description   string        `json:"description"`
	Location      string        `json:"location,omitempty"`
	ReporterName  string        `json:"reporter_name,omitempty"`
	ReporterEmail string        `json:"reporter_email,omitempty"`
	ReporterPhone string        `json:"reporter_phone,omitempty"`
	Status        FaultStatus   `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Advance moves the report to the next status. Moving backward, standing
// still, or skipping a state is an error, and a sent report never changes.
func (f *FaultReport) Advance(to FaultStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown fault status: %q", to)
	}
	if to.rank() != f.Status.rank()+1 {
		return fmt.Errorf("invalid fault status transition: %s -> %s", f.Status, to)
	}
	f.Status = to
	return nil
}

// HasContact reports whether at least one contact channel is known.
func (f *FaultReport) HasContact() bool {
	return f.ReporterEmail != "" || f.ReporterPhone != ""
}

// Complete reports whether the report carries everything needed for dispatch.
func (f *FaultReport) Complete() bool {
	return f.Description != "" && f.Location != "" && f.HasContact()
}

// Open reports whether the report still accepts new information.
func (f *FaultReport) Open() bool {
	return f.Status == FaultCollecting
}
