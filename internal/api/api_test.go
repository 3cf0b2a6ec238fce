package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/desk/internal/compose"
	"github.com/joescharf/desk/internal/escalation"
	"github.com/joescharf/desk/internal/fastpath"
	"github.com/joescharf/desk/internal/fault"
	"github.com/joescharf/desk/internal/intent"
	"github.com/joescharf/desk/internal/memory"
	"github.com/joescharf/desk/internal/metrics"
	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
	"github.com/joescharf/desk/internal/pipeline"
	"github.com/joescharf/desk/internal/security"
	"github.com/joescharf/desk/internal/store"
)

type fakeDispatcher struct {
	mu          sync.Mutex
	faults      []*models.FaultReport
	escalations []*models.EscalationContext
}

func (d *fakeDispatcher) DispatchFault(_ context.Context, r *models.FaultReport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := *r
	d.faults = append(d.faults, &c)
}

func (d *fakeDispatcher) DispatchEscalation(_ context.Context, e *models.EscalationContext) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.escalations = append(d.escalations, e)
}

func (d *fakeDispatcher) escalationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.escalations)
}

func setupTestServer(t *testing.T) (*Server, store.Store, *fakeDispatcher) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	lib := patterns.Default()
	company := models.DefaultCompany()
	d := &fakeDispatcher{}
	p, err := pipeline.New(pipeline.Deps{
		Company:    company,
		Security:   security.NewFilter(lib, security.Options{}),
		Faults:     fault.New(lib, d, fault.Options{Phone: company.Phone}),
		FastPath:   fastpath.New(lib, company),
		Intent:     intent.New(lib, intent.Options{}),
		Escalation: escalation.New(lib, escalation.Options{}),
		Memory:     memory.New(lib, memory.Options{Store: s}),
		Composer:   compose.New(nil, lib, company, compose.Options{}),
		Records:    s,
		Notifier:   d,
		Metrics:    metrics.New(),
	})
	require.NoError(t, err)

	return NewServer(p, s, Options{Version: "test"}), s, d
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func chat(t *testing.T, h http.Handler, sessionID, message string) pipeline.Response {
	t.Helper()
	body, err := json.Marshal(pipeline.Request{Message: message, SessionID: sessionID})
	require.NoError(t, err)
	w := do(t, h, "POST", "/api/v1/chat", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp pipeline.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestChat_BadRequests(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"message":`, "invalid JSON"},
		{"empty message", `{"message":"   ","session_id":"s1"}`, "message is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp["error"])
		})
	}
}

func TestChat_FaultReportFlow(t *testing.T) {
	srv, s, d := setupTestServer(t)
	router := srv.Router()

	first := chat(t, router, "s1", "Kranen droppar lite")
	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, models.ActionCollectInfo, first.Action)
	require.NotEmpty(t, first.FaultReportID)

	chat(t, router, "s1", "Storgatan 12")
	last := chat(t, router, "s1", "anna@example.se")
	assert.Equal(t, first.FaultReportID, last.FaultReportID)
	assert.Equal(t, models.ActionNone, last.Action)

	// Persisted through the store.
	w := do(t, router, "GET", "/api/v1/faults/"+first.FaultReportID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.FaultReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.FaultSent, got.Status)
	assert.Equal(t, "Storgatan 12", got.Location)
	assert.Len(t, d.faults, 1)

	w = do(t, router, "GET", "/api/v1/faults?status=sent&urgency=medium", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []*models.FaultReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	snap, err := s.LoadSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 6)
}

func TestListFaults_Filters(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/faults", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	tests := []struct {
		name  string
		query string
	}{
		{"bad urgency", "?urgency=extreme"},
		{"bad status", "?status=lost"},
		{"bad limit", "?limit=many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "GET", "/api/v1/faults"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetFault_NotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	w := do(t, srv.Router(), "GET", "/api/v1/faults/fault_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEscalations(t *testing.T) {
	srv, _, d := setupTestServer(t)
	router := srv.Router()

	resp := chat(t, router, "s1", "Jag kontaktar konsumentverket")
	require.True(t, resp.Escalate)
	require.NotEmpty(t, resp.EscalationID)
	assert.Equal(t, 1, d.escalationCount())

	w := do(t, router, "GET", "/api/v1/escalations?reason=legal_threat", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []*models.EscalationContext
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, resp.EscalationID, list[0].ID)

	w = do(t, router, "GET", "/api/v1/escalations/"+resp.EscalationID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "GET", "/api/v1/escalations?reason=boredom", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "GET", "/api/v1/escalations/esc_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_ListGetReset(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	chat(t, router, "s1", "Hej!")
	chat(t, router, "s2", "Vad kostar det?")

	w := do(t, router, "GET", "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var live []sessionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	require.Len(t, live, 2)

	w = do(t, router, "GET", "/api/v1/sessions?source=store&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stored []sessionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Len(t, stored, 1)

	w = do(t, router, "GET", "/api/v1/sessions/s2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, models.IntentPricing, sess.CurrentIntent)
	assert.Len(t, sess.Messages, 2)

	w = do(t, router, "DELETE", "/api/v1/sessions/s2", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, "GET", "/api/v1/sessions/s2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, router, "DELETE", "/api/v1/sessions/s2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "GET", "/api/v1/sessions?source=elsewhere", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSession_FallsBackToStore(t *testing.T) {
	srv, s, _ := setupTestServer(t)

	snap := models.NewSession("old", time.Now())
	require.NoError(t, s.SaveSession(context.Background(), snap))

	w := do(t, srv.Router(), "GET", "/api/v1/sessions/old", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNotifications(t *testing.T) {
	srv, s, d := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/notifications", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.NoError(t, s.RecordNotification(context.Background(), &models.Notification{
		ID:       models.NewID(models.PrefixNotification),
		Kind:     models.NotifyFault,
		RecordID: "fault_1",
		Sink:     "slack",
		Status:   models.NotificationSent,
	}))
	w = do(t, router, "GET", "/api/v1/notifications?record_id=fault_1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ns []*models.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ns))
	require.Len(t, ns, 1)
	assert.Equal(t, "slack", ns[0].Sink)

	w = do(t, router, "POST", "/api/v1/notify/test", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, d.escalationCount())
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()
	chat(t, router, "s1", "Hej!")

	w := do(t, router, "GET", "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	var h healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "test", h.Version)
	assert.Equal(t, 1, h.ActiveSessions)
	assert.Equal(t, "ok", h.Store)

	w = do(t, router, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `desk_messages_total{stage="fastpath"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	w := do(t, srv.Router(), "OPTIONS", "/api/v1/chat", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
