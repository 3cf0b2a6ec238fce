package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/desk/internal/memory"
	"github.com/joescharf/desk/internal/metrics"
	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/pipeline"
	"github.com/joescharf/desk/internal/store"
)

// MaxMessageBytes caps the body of a chat request.
const MaxMessageBytes = 64 << 10

const defaultListLimit = 50

// Server provides the REST API handlers.
type Server struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	memory   *memory.Service
	notifier pipeline.EscalationDispatcher
	metrics  *metrics.Metrics
	ui       http.Handler
	version  string
	started  time.Time
	logger   *slog.Logger
}

// Options configures optional parts of the Server.
type Options struct {
	// UI is served at / when set.
	UI      http.Handler
	Version string
	Logger  *slog.Logger
}

// NewServer creates a new API server around p. The store may be nil, in
// which case only live sessions can be inspected.
func NewServer(p *pipeline.Pipeline, s store.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		pipeline: p,
		store:    s,
		memory:   p.Memory,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		ui:       opts.UI,
		version:  opts.Version,
		started:  time.Now(),
		logger:   opts.Logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/chat", s.chat)

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.resetSession)

	mux.HandleFunc("GET /api/v1/faults", s.listFaults)
	mux.HandleFunc("GET /api/v1/faults/{id}", s.getFault)

	mux.HandleFunc("GET /api/v1/escalations", s.listEscalations)
	mux.HandleFunc("GET /api/v1/escalations/{id}", s.getEscalation)

	mux.HandleFunc("GET /api/v1/notifications", s.listNotifications)
	mux.HandleFunc("POST /api/v1/notify/test", s.testNotification)

	mux.HandleFunc("GET /healthz", s.health)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.ui != nil {
		mux.Handle("/", s.ui)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps a store error to 404 or 500.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// queryLimit reads ?limit=, falling back to the default for missing or
// non-positive values.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit: %s", raw)
	}
	if n <= 0 {
		return defaultListLimit, nil
	}
	return n, nil
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return false
	}
	return true
}

// --- Chat ---

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp := s.pipeline.Process(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// --- Sessions ---

// sessionSummary is the list view of a session.
type sessionSummary struct {
	ID              string           `json:"id"`
	CreatedAt       time.Time        `json:"created_at"`
	LastActivity    time.Time        `json:"last_activity"`
	Messages        int              `json:"messages"`
	Intent          models.Intent    `json:"intent,omitempty"`
	Sentiment       models.Sentiment `json:"sentiment,omitempty"`
	LeadScore       int              `json:"lead_score"`
	EscalationCount int              `json:"escalation_count"`
	OpenFaultID     string           `json:"open_fault_id,omitempty"`
	CustomerName    string           `json:"customer_name,omitempty"`
}

func summarize(sess *models.Session) sessionSummary {
	out := sessionSummary{
		ID:              sess.ID,
		CreatedAt:       sess.CreatedAt,
		LastActivity:    sess.LastActivity,
		Messages:        len(sess.Messages),
		Intent:          sess.CurrentIntent,
		Sentiment:       sess.CurrentSentiment,
		LeadScore:       sess.LeadScore,
		EscalationCount: sess.EscalationCount,
		CustomerName:    sess.Attr(models.AttrName),
	}
	if sess.OpenFault != nil {
		out.OpenFaultID = sess.OpenFault.ID
	}
	return out
}

// listSessions returns live sessions. ?source=store lists persisted
// snapshots instead.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var sessions []*models.Session
	switch source := r.URL.Query().Get("source"); source {
	case "", "live":
		sessions = s.memory.List()
		if len(sessions) > limit {
			sessions = sessions[:limit]
		}
	case "store":
		if !s.requireStore(w) {
			return
		}
		sessions, err = s.store.ListSessions(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid source: %s", source))
		return
	}

	result := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, summarize(sess))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if sess, ok := s.memory.Snapshot(id); ok {
		writeJSON(w, http.StatusOK, sess)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	sess, err := s.store.LoadSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// resetSession forgets a conversation, live and persisted.
func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed := s.memory.Remove(id)
	if s.store != nil {
		err := s.store.DeleteSession(r.Context(), id)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if !removed {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.metrics.SetActiveSessions(s.memory.Len())
	w.WriteHeader(http.StatusNoContent)
}

// --- Fault reports ---

func (s *Server) listFaults(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := store.FaultListFilter{SessionID: q.Get("session_id"), Limit: limit}
	if v := q.Get("urgency"); v != "" {
		u, err := models.ParseUrgency(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Urgency = u
	}
	if v := q.Get("status"); v != "" {
		st := models.FaultStatus(v)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status: %s", v))
			return
		}
		filter.Status = st
	}

	faults, err := s.store.ListFaultReports(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if faults == nil {
		faults = []*models.FaultReport{}
	}
	writeJSON(w, http.StatusOK, faults)
}

func (s *Server) getFault(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	f, err := s.store.GetFaultReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// --- Escalations ---

func (s *Server) listEscalations(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := store.EscalationListFilter{SessionID: q.Get("session_id"), Limit: limit}
	if v := q.Get("reason"); v != "" {
		reason, err := models.ParseEscalationReason(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Reason = reason
	}

	escalations, err := s.store.ListEscalations(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if escalations == nil {
		escalations = []*models.EscalationContext{}
	}
	writeJSON(w, http.StatusOK, escalations)
}

func (s *Server) getEscalation(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	e, err := s.store.GetEscalation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- Notifications ---

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	recordID := r.URL.Query().Get("record_id")
	if recordID == "" {
		writeError(w, http.StatusBadRequest, "record_id is required")
		return
	}
	ns, err := s.store.ListNotifications(r.Context(), recordID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ns == nil {
		ns = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, ns)
}

// testNotification sends a sample escalation through every sink.
func (s *Server) testNotification(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "no notification sinks configured")
		return
	}
	e := TestEscalation(time.Now())
	s.notifier.DispatchEscalation(context.WithoutCancel(r.Context()), e)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "id": e.ID})
}

// TestEscalation is the sample packet used to check sink configuration.
func TestEscalation(now time.Time) *models.EscalationContext {
	return &models.EscalationContext{
		ID:               models.NewID(models.PrefixEscalation),
		SessionID:        "test_conversation",
		Priority:         models.PriorityMedium,
		Reason:           models.ReasonTechnicalIssue,
		Summary:          "Testeskalering från notifieringssystemet.",
		CustomerIssue:    "Detta är ett testärende.",
		SuggestedActions: []string{"Ingen åtgärd krävs"},
		Intent:           models.IntentTechnicalIssue,
		Sentiment:        models.SentimentNeutral,
		LeadScore:        2,
		CreatedAt:        now,
	}
}

// --- Health ---

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version,omitempty"`
	Uptime         string `json:"uptime"`
	ActiveSessions int    `json:"active_sessions"`
	Store          string `json:"store"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:         "healthy",
		Version:        s.version,
		Uptime:         time.Since(s.started).Truncate(time.Second).String(),
		ActiveSessions: s.memory.Len(),
		Store:          "none",
	}
	if s.store != nil {
		resp.Store = "ok"
		if _, err := s.store.ListSessions(r.Context(), 1); err != nil {
			s.logger.Warn("health check store probe failed", "err", err)
			resp.Status = "degraded"
			resp.Store = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
