package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"go.uber.org/goleak"

	"github.com/joescharf/desk/internal/models"
)

type fakeNotifier struct {
	name string
	err  error
	hold chan struct{}

	mu          sync.Mutex
	faults      []*models.FaultReport
	escalations []*models.EscalationContext
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) NotifyEscalation(ctx context.Context, e *models.EscalationContext) error {
	f.wait(ctx)
	f.mu.Lock()
	f.escalations = append(f.escalations, e)
	f.mu.Unlock()
	return f.err
}

func (f *fakeNotifier) NotifyFault(ctx context.Context, r *models.FaultReport) error {
	f.wait(ctx)
	f.mu.Lock()
	f.faults = append(f.faults, r)
	f.mu.Unlock()
	return f.err
}

func (f *fakeNotifier) wait(ctx context.Context) {
	if f.hold == nil {
		return
	}
	select {
	case <-f.hold:
	case <-ctx.Done():
	}
}

func (f *fakeNotifier) faultCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.faults)
}

type fakeRecorder struct {
	mu  sync.Mutex
	got []*models.Notification
}

func (r *fakeRecorder) RecordNotification(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	return nil
}

func testReport() *models.FaultReport {
	return &models.FaultReport{
		ID:            "fault_1",
		SessionID:     "s1",
		Category:      models.CategoryWater,
		Urgency:       models.UrgencyCritical,
		Description:   "Vattenläcka i badrummet",
		Location:      "Storgatan 1",
		ReporterEmail: "anna@example.se",
		Status:        models.FaultComplete,
		CreatedAt:     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func testEscalation() *models.EscalationContext {
	return &models.EscalationContext{
		ID:               "esc_1",
		SessionID:        "s1",
		Priority:         models.PriorityCritical,
		Reason:           models.ReasonLegalThreat,
		Summary:          "Kunden hotar med juridiska åtgärder.",
		CustomerIssue:    "Jag kontaktar min advokat",
		SuggestedActions: []string{"Läs igenom konversationen för kontext"},
		RecentMessages:   []string{"user: Jag kontaktar min advokat"},
		Intent:           models.IntentLegalThreat,
		Sentiment:        models.SentimentAngry,
		LeadScore:        1,
		CreatedAt:        time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_FansOutAndRecords(t *testing.T) {
	defer goleak.VerifyNone(t)

	ok := &fakeNotifier{name: "ok"}
	bad := &fakeNotifier{name: "bad", err: errors.New("boom")}
	rec := &fakeRecorder{}
	var mu sync.Mutex
	results := map[string]error{}

	d := NewDispatcher([]Notifier{ok, bad}, Options{
		Workers:  2,
		Recorder: rec,
		OnResult: func(_ models.NotificationKind, sink string, err error) {
			mu.Lock()
			results[sink] = err
			mu.Unlock()
		},
	})
	assert.Equal(t, []string{"ok", "bad"}, d.Sinks())

	d.DispatchFault(context.Background(), testReport())
	d.Close()

	assert.Equal(t, 1, ok.faultCount())
	assert.Equal(t, 1, bad.faultCount())
	assert.NoError(t, results["ok"])
	assert.Error(t, results["bad"])

	require.Len(t, rec.got, 2)
	statuses := map[string]models.NotificationStatus{}
	for _, n := range rec.got {
		assert.Equal(t, models.NotifyFault, n.Kind)
		assert.Equal(t, "fault_1", n.RecordID)
		statuses[n.Sink] = n.Status
	}
	assert.Equal(t, models.NotificationSent, statuses["ok"])
	assert.Equal(t, models.NotificationFailed, statuses["bad"])
}

func TestDispatcher_CopiesPacket(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeNotifier{name: "s", hold: make(chan struct{})}
	d := NewDispatcher([]Notifier{sink}, Options{Workers: 1})

	r := testReport()
	d.DispatchFault(context.Background(), r)
	r.Status = models.FaultSent
	r.Location = "changed"
	close(sink.hold)
	d.Close()

	require.Equal(t, 1, sink.faultCount())
	assert.Equal(t, models.FaultComplete, sink.faults[0].Status)
	assert.Equal(t, "Storgatan 1", sink.faults[0].Location)
}

func TestDispatcher_DropsWhenFullOrClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeNotifier{name: "s", hold: make(chan struct{})}
	d := NewDispatcher([]Notifier{sink}, Options{Workers: 1, QueueSize: 1})

	// One packet held by the worker, one queued, the rest dropped.
	for range 5 {
		d.DispatchEscalation(context.Background(), testEscalation())
		time.Sleep(5 * time.Millisecond)
	}
	close(sink.hold)
	d.Close()
	d.Close()

	sink.mu.Lock()
	got := len(sink.escalations)
	sink.mu.Unlock()
	assert.Equal(t, 2, got)

	d.DispatchFault(context.Background(), testReport())
	assert.Equal(t, 0, sink.faultCount())
}

func TestDispatcher_TimeoutPerSend(t *testing.T) {
	defer goleak.VerifyNone(t)

	slow := &fakeNotifier{name: "slow", hold: make(chan struct{})}
	rec := &fakeRecorder{}
	d := NewDispatcher([]Notifier{slow}, Options{Timeout: 20 * time.Millisecond, Recorder: rec})

	start := time.Now()
	d.DispatchFault(context.Background(), testReport())
	d.Close()
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, rec.got, 1)
}

func TestSlackNotifier(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewSlackNotifier(srv.URL)
	require.NoError(t, err)

	require.NoError(t, n.NotifyEscalation(context.Background(), testEscalation()))
	assert.Contains(t, payload["text"], "Eskalering: CRITICAL")
	blocks, ok := payload["blocks"].([]any)
	require.True(t, ok)
	assert.Len(t, blocks, 4)

	require.NoError(t, n.NotifyFault(context.Background(), testReport()))
	assert.Contains(t, payload["text"], "AKUT FELANMÄLAN")

	_, err = NewSlackNotifier("")
	assert.Error(t, err)
}

func TestSlackNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, err := NewSlackNotifier(srv.URL)
	require.NoError(t, err)
	assert.Error(t, n.NotifyFault(context.Background(), testReport()))
}

func TestEmailNotifier(t *testing.T) {
	n, err := NewEmailNotifier(EmailConfig{
		Host:     "smtp.example.se",
		Username: "bot",
		Password: "secret",
		From:     "bot@example.se",
		To:       []string{"jour@example.se", "chef@example.se"},
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.se:587", n.client.ServerAddr())

	var got *mail.Msg
	n.send = func(_ context.Context, msg *mail.Msg) error {
		got = msg
		return nil
	}

	require.NoError(t, n.NotifyFault(context.Background(), testReport()))
	require.NotNil(t, got)

	rcpts, err := got.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"jour@example.se", "chef@example.se"}, rcpts)
	assert.Equal(t, []string{"AKUT FELANMÄLAN - CRITICAL (water)"}, got.GetGenHeader(mail.HeaderSubject))
	assert.NotEmpty(t, got.GetGenHeader(mail.HeaderDate))
	assert.NotEmpty(t, got.GetGenHeader(mail.HeaderMessageID))

	var raw strings.Builder
	_, err = got.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "Plats: Storgatan 1")
	assert.Contains(t, raw.String(), "charset=UTF-8")

	n.send = func(context.Context, *mail.Msg) error { return errors.New("refused") }
	assert.ErrorContains(t, n.NotifyEscalation(context.Background(), testEscalation()), "refused")
}

func TestNewEmailNotifier_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  EmailConfig
	}{
		{"missing recipients", EmailConfig{Host: "smtp.example.se", From: "bot@example.se"}},
		{"bad sender", EmailConfig{Host: "smtp.example.se", From: "not an address", To: []string{"a@example.se"}}},
		{"bad recipient", EmailConfig{Host: "smtp.example.se", From: "bot@example.se", To: []string{"@"}}},
		{"bad port", EmailConfig{Host: "smtp.example.se", Port: 70000, From: "bot@example.se", To: []string{"a@example.se"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEmailNotifier(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestEmailNotifier_ContextCancel(t *testing.T) {
	n, err := NewEmailNotifier(EmailConfig{Host: "h", From: "f@x.se", To: []string{"t@x.se"}})
	require.NoError(t, err)
	n.send = func(ctx context.Context, _ *mail.Msg) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, n.NotifyFault(ctx, testReport()), context.DeadlineExceeded)
}

func TestLedgerNotifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.jsonl")
	n, err := NewLedgerNotifier(path)
	require.NoError(t, err)

	require.NoError(t, n.NotifyFault(context.Background(), testReport()))
	require.NoError(t, n.NotifyEscalation(context.Background(), testEscalation()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []LedgerEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LedgerEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, models.NotifyFault, entries[0].Kind)
	assert.Equal(t, "fault_1", entries[0].Fault.ID)
	assert.Equal(t, models.NotifyEscalation, entries[1].Kind)
	assert.Equal(t, models.ReasonLegalThreat, entries[1].Escalation.Reason)
}

func TestFormatEscalation(t *testing.T) {
	text := FormatEscalation(testEscalation())
	assert.True(t, strings.HasPrefix(text, "Eskalering: CRITICAL - s1"))
	assert.Contains(t, text, "Kundens namn: Ej angivet")
	assert.Contains(t, text, "- Läs igenom konversationen för kontext")
	assert.Contains(t, text, "user: Jag kontaktar min advokat")
}
