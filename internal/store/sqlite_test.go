package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/desk/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "etcd", "", "")
	assert.ErrorContains(t, err, "unknown store backend")
}

// --- Sessions ---

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	sess := models.NewSession("sess_1", now)
	sess.Messages = append(sess.Messages, models.Message{
		Role: models.RoleUser, Content: "Vad kostar det?", Timestamp: now,
		Meta: &models.MessageMeta{Intent: models.IntentPricing, LeadScore: 2},
	})
	sess.Attributes[models.AttrName] = models.Attribute{Value: "Åsa", Source: models.SourceUserInfo, Timestamp: now}
	sess.RaiseLeadScore(3)
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.LoadSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.LeadScore)
	assert.Equal(t, "Åsa", got.Attr(models.AttrName))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, models.IntentPricing, got.Messages[0].Meta.Intent)

	// Upsert
	sess.LastActivity = now.Add(time.Minute)
	sess.RaiseLeadScore(5)
	require.NoError(t, s.SaveSession(ctx, sess))
	got, err = s.LoadSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.LeadScore)
}

func TestLoadSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadSession_Corrupt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, data, created_at, last_activity) VALUES (?, ?, ?, ?)`,
		"bad", "{not json", time.Now(), time.Now())
	require.NoError(t, err)

	_, err = s.LoadSession(ctx, "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	list, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "corrupt snapshots are skipped")
}

func TestListSessions_Order(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		sess := models.NewSession(id, base)
		sess.LastActivity = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveSession(ctx, sess))
	}

	list, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	require.NoError(t, s.DeleteSession(ctx, "c"))
	assert.ErrorIs(t, s.DeleteSession(ctx, "c"), ErrNotFound)
}

// --- Fault reports ---

func TestFaultReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	r := &models.FaultReport{
		ID: "fault_1", SessionID: "sess_1", Category: models.CategoryWater,
		Urgency: models.UrgencyCritical, Description: "Vattenläcka i köket",
		Status: models.FaultCollecting, CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, s.SaveFaultReport(ctx, r))

	r.Location = "Storgatan 12"
	r.ReporterEmail = "anders@example.se"
	r.Status = models.FaultSent
	r.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, s.SaveFaultReport(ctx, r))

	got, err := s.GetFaultReport(ctx, "fault_1")
	require.NoError(t, err)
	assert.Equal(t, models.FaultSent, got.Status)
	assert.Equal(t, "Storgatan 12", got.Location)
	assert.Equal(t, models.CategoryWater, got.Category)

	require.NoError(t, s.SaveFaultReport(ctx, &models.FaultReport{
		SessionID: "sess_2", Category: models.CategoryNoise, Urgency: models.UrgencyMedium,
		Description: "Det låter", Status: models.FaultCollecting,
		CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour),
	}))

	tests := []struct {
		name   string
		filter FaultListFilter
		want   int
	}{
		{"all", FaultListFilter{}, 2},
		{"by session", FaultListFilter{SessionID: "sess_1"}, 1},
		{"by urgency", FaultListFilter{Urgency: models.UrgencyMedium}, 1},
		{"by status", FaultListFilter{Status: models.FaultSent}, 1},
		{"limit", FaultListFilter{Limit: 1}, 1},
		{"no match", FaultListFilter{Urgency: models.UrgencyHigh}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListFaultReports(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, list, tt.want)
		})
	}

	list, err := s.ListFaultReports(ctx, FaultListFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryNoise, list[0].Category, "newest first")
	assert.NotEmpty(t, list[0].ID, "id generated on save")

	_, err = s.GetFaultReport(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Escalations ---

func TestEscalations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	e := &models.EscalationContext{
		ID: "esc_1", SessionID: "sess_1", Priority: models.PriorityCritical,
		Reason: models.ReasonLegalThreat, Summary: "Legal",
		SuggestedActions: []string{"Läs igenom konversationen för kontext"},
		CreatedAt:        base,
	}
	require.NoError(t, s.SaveEscalation(ctx, e))
	assert.Error(t, s.SaveEscalation(ctx, e), "write-once")

	require.NoError(t, s.SaveEscalation(ctx, &models.EscalationContext{
		SessionID: "sess_2", Priority: models.PriorityHigh,
		Reason: models.ReasonManagerRequest, CreatedAt: base.Add(time.Minute),
	}))

	got, err := s.GetEscalation(ctx, "esc_1")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonLegalThreat, got.Reason)
	assert.Equal(t, e.SuggestedActions, got.SuggestedActions)

	list, err := s.ListEscalations(ctx, EscalationListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.ReasonManagerRequest, list[0].Reason)

	list, err = s.ListEscalations(ctx, EscalationListFilter{Reason: models.ReasonLegalThreat})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sess_1", list[0].SessionID)

	_, err = s.GetEscalation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Notifications ---

func TestNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordNotification(ctx, &models.Notification{
		Kind: models.NotifyFault, RecordID: "fault_1", Sink: "slack", Status: models.NotificationSent,
	}))
	require.NoError(t, s.RecordNotification(ctx, &models.Notification{
		Kind: models.NotifyFault, RecordID: "fault_1", Sink: "email", Status: models.NotificationFailed, Error: "dial tcp: refused",
	}))
	require.NoError(t, s.RecordNotification(ctx, &models.Notification{
		Kind: models.NotifyEscalation, RecordID: "esc_1", Sink: "slack", Status: models.NotificationSent,
	}))

	all, err := s.ListNotifications(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forFault, err := s.ListNotifications(ctx, "fault_1")
	require.NoError(t, err)
	require.Len(t, forFault, 2)
	sinks := []string{forFault[0].Sink, forFault[1].Sink}
	assert.ElementsMatch(t, []string{"slack", "email"}, sinks)
	for _, n := range forFault {
		if n.Sink == "email" {
			assert.Equal(t, models.NotificationFailed, n.Status)
			assert.Equal(t, "dial tcp: refused", n.Error)
		}
	}
}
