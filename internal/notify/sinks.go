package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joescharf/desk/internal/models"
)

// LogNotifier writes each packet to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) NotifyEscalation(ctx context.Context, e *models.EscalationContext) error {
	n.logger.InfoContext(ctx, "escalation",
		"id", e.ID,
		"session_id", e.SessionID,
		"reason", e.Reason,
		"priority", e.Priority,
		"targets", e.NotifyTargets)
	return nil
}

func (n *LogNotifier) NotifyFault(ctx context.Context, r *models.FaultReport) error {
	n.logger.InfoContext(ctx, "fault report",
		"id", r.ID,
		"session_id", r.SessionID,
		"urgency", r.Urgency,
		"category", r.Category,
		"location", r.Location)
	return nil
}

// LedgerEntry is one line of the ledger file.
type LedgerEntry struct {
	Kind       models.NotificationKind   `json:"kind"`
	RecordedAt time.Time                 `json:"recorded_at"`
	Fault      *models.FaultReport       `json:"fault,omitempty"`
	Escalation *models.EscalationContext `json:"escalation,omitempty"`
}

// LedgerNotifier appends one JSON line per packet to a file, giving staff a
// running log they can import elsewhere.
type LedgerNotifier struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewLedgerNotifier creates a ledger at path, creating its directory.
func NewLedgerNotifier(path string) (*LedgerNotifier, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &LedgerNotifier{path: path, now: time.Now}, nil
}

func (n *LedgerNotifier) Name() string { return "ledger" }

func (n *LedgerNotifier) NotifyEscalation(_ context.Context, e *models.EscalationContext) error {
	return n.append(LedgerEntry{Kind: models.NotifyEscalation, RecordedAt: n.now(), Escalation: e})
}

func (n *LedgerNotifier) NotifyFault(_ context.Context, r *models.FaultReport) error {
	return n.append(LedgerEntry{Kind: models.NotifyFault, RecordedAt: n.now(), Fault: r})
}

func (n *LedgerNotifier) append(entry LedgerEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	line = append(line, '\n')

	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := os.OpenFile(n.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	return f.Close()
}
