package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/pipeline"
	"github.com/joescharf/desk/internal/store"
)

// Server wraps the support pipeline and its records as MCP tools.
type Server struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	version  string
}

// NewServer creates the MCP server wrapper. The store may be nil, in which
// case the list tools report that no records are available.
func NewServer(p *pipeline.Pipeline, s store.Store, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{pipeline: p, store: s, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("desk", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.processMessageTool())
	srv.AddTool(s.classifyMessageTool())
	srv.AddTool(s.getSessionTool())
	srv.AddTool(s.listFaultReportsTool())
	srv.AddTool(s.listEscalationsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// desk_process_message
func (s *Server) processMessageTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_process_message",
		mcp.WithDescription("Send one customer message through the support agent and return its decision: reply, intent, sentiment, lead score, escalation and fault report details."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The customer's message")),
		mcp.WithString("session_id", mcp.Description("Conversation to continue. A new one is started when empty.")),
	)
	return tool, s.handleProcessMessage
}

func (s *Server) handleProcessMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil || strings.TrimSpace(message) == "" {
		return mcp.NewToolResultError("missing required parameter: message"), nil
	}

	resp := s.pipeline.Process(ctx, pipeline.Request{
		Message:   message,
		SessionID: request.GetString("session_id", ""),
	})
	return jsonResult(resp, "response")
}

// desk_classify_message
func (s *Server) classifyMessageTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_classify_message",
		mcp.WithDescription("Classify a message without recording it in any conversation. Returns intent, sentiment, lead score and, for fault reports, the detected category and urgency."),
		mcp.WithString("message", mcp.Required(), mcp.Description("Text to classify")),
	)
	return tool, s.handleClassifyMessage
}

func (s *Server) handleClassifyMessage(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil || strings.TrimSpace(message) == "" {
		return mcp.NewToolResultError("missing required parameter: message"), nil
	}

	r := s.pipeline.Intent.Classify(message, nil)
	out := map[string]any{
		"intent":     r.Intent,
		"confidence": r.Confidence,
		"sentiment":  r.Sentiment,
		"lead_score": r.LeadScore,
		"escalate":   r.ShouldEscalate,
		"triggers":   r.TriggerPhrases,
	}
	// Low urgency never opens a fault report.
	if u := s.pipeline.Faults.DetectUrgency(message); u != models.UrgencyLow {
		out["urgency"] = u
		out["fault_category"] = s.pipeline.Faults.DetectCategory(message)
	}
	return jsonResult(out, "classification")
}

// desk_get_session
func (s *Server) getSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_get_session",
		mcp.WithDescription("Get a conversation with its messages, learned customer attributes, lead score and any open fault report."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	)
	return tool, s.handleGetSession
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	sess, ok := s.pipeline.Memory.Snapshot(id)
	if !ok && s.store != nil {
		if stored, err := s.store.LoadSession(ctx, id); err == nil {
			sess, ok = stored, true
		}
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", id)), nil
	}

	type attrOut struct {
		Value  string `json:"value"`
		Source string `json:"source"`
	}
	type messageOut struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
		Intent    string `json:"intent,omitempty"`
	}

	attrs := make(map[string]attrOut, len(sess.Attributes))
	for k, a := range sess.Attributes {
		attrs[k] = attrOut{Value: a.Value, Source: string(a.Source)}
	}
	msgs := make([]messageOut, len(sess.Messages))
	for i, m := range sess.Messages {
		msgs[i] = messageOut{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		}
		if m.Meta != nil {
			msgs[i].Intent = string(m.Meta.Intent)
		}
	}

	result := map[string]any{
		"id":               sess.ID,
		"created_at":       sess.CreatedAt.Format(time.RFC3339),
		"last_activity":    sess.LastActivity.Format(time.RFC3339),
		"lead_score":       sess.LeadScore,
		"intent":           sess.CurrentIntent,
		"sentiment":        sess.CurrentSentiment,
		"escalation_count": sess.EscalationCount,
		"attributes":       attrs,
		"messages":         msgs,
	}
	if sess.OpenFault != nil {
		result["open_fault"] = sess.OpenFault
	}
	return jsonResult(result, "session")
}

// desk_list_fault_reports
func (s *Server) listFaultReportsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_list_fault_reports",
		mcp.WithDescription("List fault reports, newest first. Returns a JSON array with id, category, urgency, status, location and reporter contact."),
		mcp.WithString("urgency", mcp.Description("Filter by urgency: critical, high, medium, low")),
		mcp.WithString("status", mcp.Description("Filter by status: collecting, complete, sent")),
		mcp.WithString("session_id", mcp.Description("Filter by session")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of reports (default 20)")),
	)
	return tool, s.handleListFaultReports
}

func (s *Server) handleListFaultReports(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no store configured"), nil
	}

	filter := store.FaultListFilter{
		SessionID: request.GetString("session_id", ""),
		Limit:     request.GetInt("limit", 20),
	}
	if v := request.GetString("urgency", ""); v != "" {
		u, err := models.ParseUrgency(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Urgency = u
	}
	if v := request.GetString("status", ""); v != "" {
		st := models.FaultStatus(v)
		if !st.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s", v)), nil
		}
		filter.Status = st
	}

	faults, err := s.store.ListFaultReports(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list fault reports: %v", err)), nil
	}

	type faultOut struct {
		ID          string `json:"id"`
		SessionID   string `json:"session_id"`
		Category    string `json:"category"`
		Urgency     string `json:"urgency"`
		Status      string `json:"status"`
		Description string `json:"description"`
		Location    string `json:"location,omitempty"`
		Contact     string `json:"contact,omitempty"`
		CreatedAt   string `json:"created_at"`
	}

	out := make([]faultOut, len(faults))
	for i, f := range faults {
		contact := f.ReporterEmail
		if contact == "" {
			contact = f.ReporterPhone
		}
		out[i] = faultOut{
			ID:          f.ID,
			SessionID:   f.SessionID,
			Category:    string(f.Category),
			Urgency:     string(f.Urgency),
			Status:      string(f.Status),
			Description: f.Description,
			Location:    f.Location,
			Contact:     contact,
			CreatedAt:   f.CreatedAt.Format(time.RFC3339),
		}
	}
	return jsonResult(out, "fault reports")
}

// desk_list_escalations
func (s *Server) listEscalationsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_list_escalations",
		mcp.WithDescription("List conversations handed to a human, newest first. Returns a JSON array with id, session, priority, reason and summary."),
		mcp.WithString("reason", mcp.Description("Filter by reason, e.g. legal_threat, angry_customer, technical_issue")),
		mcp.WithString("session_id", mcp.Description("Filter by session")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of escalations (default 20)")),
	)
	return tool, s.handleListEscalations
}

func (s *Server) handleListEscalations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no store configured"), nil
	}

	filter := store.EscalationListFilter{
		SessionID: request.GetString("session_id", ""),
		Limit:     request.GetInt("limit", 20),
	}
	if v := request.GetString("reason", ""); v != "" {
		reason, err := models.ParseEscalationReason(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Reason = reason
	}

	escalations, err := s.store.ListEscalations(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list escalations: %v", err)), nil
	}

	type escalationOut struct {
		ID        string `json:"id"`
		SessionID string `json:"session_id"`
		Priority  string `json:"priority"`
		Reason    string `json:"reason"`
		Summary   string `json:"summary"`
		Issue     string `json:"customer_issue"`
		LeadScore int    `json:"lead_score"`
		CreatedAt string `json:"created_at"`
	}

	out := make([]escalationOut, len(escalations))
	for i, e := range escalations {
		out[i] = escalationOut{
			ID:        e.ID,
			SessionID: e.SessionID,
			Priority:  string(e.Priority),
			Reason:    string(e.Reason),
			Summary:   e.Summary,
			Issue:     e.CustomerIssue,
			LeadScore: e.LeadScore,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	return jsonResult(out, "escalations")
}
