package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/joescharf/desk/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// FaultListFilter specifies filters for listing fault reports.
type FaultListFilter struct {
	SessionID string
	Urgency   models.Urgency
	Status    models.FaultStatus
	Limit     int
}

// EscalationListFilter specifies filters for listing escalations.
type EscalationListFilter struct {
	SessionID string
	Reason    models.EscalationReason
	Limit     int
}

// Store defines the persistence interface for desk.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, s *models.Session) error
	LoadSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Fault reports
	SaveFaultReport(ctx context.Context, r *models.FaultReport) error
	GetFaultReport(ctx context.Context, id string) (*models.FaultReport, error)
	ListFaultReports(ctx context.Context, filter FaultListFilter) ([]*models.FaultReport, error)

	// Escalations
	SaveEscalation(ctx context.Context, e *models.EscalationContext) error
	GetEscalation(ctx context.Context, id string) (*models.EscalationContext, error)
	ListEscalations(ctx context.Context, filter EscalationListFilter) ([]*models.EscalationContext, error)

	// Notifications
	RecordNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, recordID string) ([]*models.Notification, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Backends accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Open connects to the configured backend and runs its migrations.
func Open(ctx context.Context, backend, dbPath, redisURL string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch backend {
	case "", BackendSQLite:
		s, err = NewSQLiteStore(dbPath)
	case BackendRedis:
		s, err = NewRedisStore(ctx, redisURL)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", backend)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}
