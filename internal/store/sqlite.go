package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/desk/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time. Concurrent sessions save snapshots on every
	// message, so queue them in the pool instead of failing with
	// "database is locked".
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

// SaveSession upserts the full session snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, data, lead_score, message_count, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data=excluded.data, lead_score=excluded.lead_score,
			message_count=excluded.message_count, last_activity=excluded.last_activity`,
		sess.ID, string(data), sess.LeadScore, len(sess.Messages), sess.CreatedAt.UTC(), sess.LastActivity.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns ErrNotFound for an unknown id and a decode error for
// a snapshot that cannot be read back.
func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM sessions WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return decodeSession(data)
}

// ListSessions returns the most recently active sessions first. Snapshots
// that fail to decode are skipped.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	query := "SELECT data FROM sessions ORDER BY last_activity DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess, err := decodeSession(data)
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func decodeSession(data string) (*models.Session, error) {
	sess := &models.Session{}
	if err := json.Unmarshal([]byte(data), sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Attributes == nil {
		sess.Attributes = make(map[string]models.Attribute)
	}
	return sess, nil
}

// --- Fault reports ---

const faultColumns = `id, session_id, category, urgency, status, description, location,
	reporter_name, reporter_email, reporter_phone, created_at, updated_at`

// SaveFaultReport upserts a report. Reports are saved at every state
// change, so the latest write wins.
func (s *SQLiteStore) SaveFaultReport(ctx context.Context, r *models.FaultReport) error {
	if r.ID == "" {
		r.ID = models.NewID(models.PrefixFault)
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fault_reports (`+faultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET category=excluded.category, urgency=excluded.urgency,
			status=excluded.status, description=excluded.description, location=excluded.location,
			reporter_name=excluded.reporter_name, reporter_email=excluded.reporter_email,
			reporter_phone=excluded.reporter_phone, updated_at=excluded.updated_at`,
		r.ID, r.SessionID, string(r.Category), string(r.Urgency), string(r.Status),
		r.Description, r.Location, r.ReporterName, r.ReporterEmail, r.ReporterPhone,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save fault report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFaultReport(ctx context.Context, id string) (*models.FaultReport, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+faultColumns+" FROM fault_reports WHERE id = ?", id)
	r, err := scanFault(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fault report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get fault report: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListFaultReports(ctx context.Context, filter FaultListFilter) ([]*models.FaultReport, error) {
	query := "SELECT " + faultColumns + " FROM fault_reports"
	var where []string
	var args []any
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Urgency != "" {
		where = append(where, "urgency = ?")
		args = append(args, string(filter.Urgency))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query += whereClause(where) + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fault reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reports []*models.FaultReport
	for rows.Next() {
		r, err := scanFault(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fault report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFault(sc scanner) (*models.FaultReport, error) {
	r := &models.FaultReport{}
	var category, urgency, status string
	err := sc.Scan(&r.ID, &r.SessionID, &category, &urgency, &status, &r.Description, &r.Location,
		&r.ReporterName, &r.ReporterEmail, &r.ReporterPhone, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Category = models.FaultCategory(category)
	r.Urgency = models.Urgency(urgency)
	r.Status = models.FaultStatus(status)
	return r, nil
}

// --- Escalations ---

// SaveEscalation inserts a packet. Packets are write-once; saving the same
// id twice is an error.
func (s *SQLiteStore) SaveEscalation(ctx context.Context, e *models.EscalationContext) error {
	if e.ID == "" {
		e.ID = models.NewID(models.PrefixEscalation)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode escalation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO escalations (id, session_id, reason, priority, summary, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, string(e.Reason), string(e.Priority), e.Summary, string(data), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save escalation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEscalation(ctx context.Context, id string) (*models.EscalationContext, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM escalations WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("escalation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get escalation: %w", err)
	}
	e := &models.EscalationContext{}
	if err := json.Unmarshal([]byte(data), e); err != nil {
		return nil, fmt.Errorf("decode escalation: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) ListEscalations(ctx context.Context, filter EscalationListFilter) ([]*models.EscalationContext, error) {
	query := "SELECT data FROM escalations"
	var where []string
	var args []any
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Reason != "" {
		where = append(where, "reason = ?")
		args = append(args, string(filter.Reason))
	}
	query += whereClause(where) + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.EscalationContext
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		e := &models.EscalationContext{}
		if err := json.Unmarshal([]byte(data), e); err != nil {
			return nil, fmt.Errorf("decode escalation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Notifications ---

func (s *SQLiteStore) RecordNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = models.NewID(models.PrefixNotification)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, kind, record_id, sink, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Kind), n.RecordID, n.Sink, string(n.Status), n.Error, n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// ListNotifications returns the delivery log, oldest first. An empty
// recordID lists every record.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recordID string) ([]*models.Notification, error) {
	query := "SELECT id, kind, record_id, sink, status, error, created_at FROM notifications"
	var args []any
	if recordID != "" {
		query += " WHERE record_id = ?"
		args = append(args, recordID)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var kind, status string
		if err := rows.Scan(&n.ID, &kind, &n.RecordID, &n.Sink, &status, &n.Error, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = models.NotificationKind(kind)
		n.Status = models.NotificationStatus(status)
		out = append(out, n)
	}
	return out, rows.Err()
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
