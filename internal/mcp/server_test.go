package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/desk/internal/compose"
	"github.com/joescharf/desk/internal/escalation"
	"github.com/joescharf/desk/internal/fastpath"
	"github.com/joescharf/desk/internal/fault"
	"github.com/joescharf/desk/internal/intent"
	"github.com/joescharf/desk/internal/memory"
	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
	"github.com/joescharf/desk/internal/pipeline"
	"github.com/joescharf/desk/internal/security"
	"github.com/joescharf/desk/internal/store"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type nopDispatcher struct{}

func (nopDispatcher) DispatchFault(context.Context, *models.FaultReport)            {}
func (nopDispatcher) DispatchEscalation(context.Context, *models.EscalationContext) {}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	lib := patterns.Default()
	company := models.DefaultCompany()
	p, err := pipeline.New(pipeline.Deps{
		Company:    company,
		Security:   security.NewFilter(lib, security.Options{}),
		Faults:     fault.New(lib, nopDispatcher{}, fault.Options{Phone: company.Phone}),
		FastPath:   fastpath.New(lib, company),
		Intent:     intent.New(lib, intent.Options{}),
		Escalation: escalation.New(lib, escalation.Options{}),
		Memory:     memory.New(lib, memory.Options{Store: st}),
		Composer:   compose.New(nil, lib, company, compose.Options{}),
		Records:    st,
		Notifier:   nopDispatcher{},
	})
	require.NoError(t, err)

	srv := NewServer(p, st, "test")
	require.NotNil(t, srv)
	return srv, st
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func process(t *testing.T, srv *Server, sessionID, message string) pipeline.Response {
	t.Helper()
	result, err := srv.handleProcessMessage(context.Background(), callToolReq("desk_process_message", map[string]any{
		"message":    message,
		"session_id": sessionID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var resp pipeline.Response
	resultJSON(t, result, &resp)
	return resp
}

// ---------------------------------------------------------------------------
// Tests: MCPServer registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

// ---------------------------------------------------------------------------
// Tests: desk_process_message
// ---------------------------------------------------------------------------

func TestHandleProcessMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := process(t, srv, "s1", "Hej!")
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, models.IntentGreeting, resp.Intent)
	assert.NotEmpty(t, resp.Reply)
}

func TestHandleProcessMessage_NewSession(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := process(t, srv, "", "Vad kostar det?")
	assert.True(t, strings.HasPrefix(resp.SessionID, models.PrefixSession))
}

func TestHandleProcessMessage_MissingMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, args := range []map[string]any{nil, {"message": "  "}} {
		result, err := srv.handleProcessMessage(context.Background(), callToolReq("desk_process_message", args))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "missing required parameter: message")
	}
}

// ---------------------------------------------------------------------------
// Tests: desk_classify_message
// ---------------------------------------------------------------------------

func TestHandleClassifyMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		message  string
		urgency  string
		category string
	}{
		{"critical leak", "Akut! Vattenläcka i köket, det forsar vatten!", "critical", "water"},
		{"pricing", "Vad kostar det?", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := srv.handleClassifyMessage(ctx, callToolReq("desk_classify_message", map[string]any{"message": tt.message}))
			require.NoError(t, err)
			require.False(t, result.IsError)

			var out map[string]any
			resultJSON(t, result, &out)
			assert.NotEmpty(t, out["intent"])
			if tt.urgency == "" {
				assert.NotContains(t, out, "urgency")
				return
			}
			assert.Equal(t, tt.urgency, out["urgency"])
			assert.Equal(t, tt.category, out["fault_category"])
		})
	}

	// Classification leaves no session behind.
	assert.Zero(t, srv.pipeline.Memory.Len())
}

// ---------------------------------------------------------------------------
// Tests: desk_get_session
// ---------------------------------------------------------------------------

func TestHandleGetSession(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	process(t, srv, "s1", "Hej, jag heter Anna")
	process(t, srv, "s1", "Kranen droppar lite")

	result, err := srv.handleGetSession(ctx, callToolReq("desk_get_session", map[string]any{"session_id": "s1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		ID         string                       `json:"id"`
		Messages   []map[string]any             `json:"messages"`
		Attributes map[string]map[string]string `json:"attributes"`
		OpenFault  *models.FaultReport          `json:"open_fault"`
	}
	resultJSON(t, result, &out)
	assert.Equal(t, "s1", out.ID)
	assert.Len(t, out.Messages, 4)
	assert.Equal(t, "Anna", out.Attributes[models.AttrName]["value"])
	require.NotNil(t, out.OpenFault)
	assert.Equal(t, models.FaultCollecting, out.OpenFault.Status)
}

func TestHandleGetSession_FromStore(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	process(t, srv, "s1", "Hej!")
	srv.pipeline.Memory.Remove("s1")

	result, err := srv.handleGetSession(ctx, callToolReq("desk_get_session", map[string]any{"session_id": "s1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	_, err = st.LoadSession(ctx, "s1")
	require.NoError(t, err)
}

func TestHandleGetSession_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGetSession(context.Background(), callToolReq("desk_get_session", map[string]any{"session_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "session not found")
}

// ---------------------------------------------------------------------------
// Tests: desk_list_fault_reports
// ---------------------------------------------------------------------------

func TestHandleListFaultReports(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	process(t, srv, "s1", "Akut! Vattenläcka i köket, det forsar vatten!")
	process(t, srv, "s2", "Kranen droppar lite")

	result, err := srv.handleListFaultReports(ctx, callToolReq("desk_list_fault_reports", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var all []map[string]any
	resultJSON(t, result, &all)
	assert.Len(t, all, 2)

	result, err = srv.handleListFaultReports(ctx, callToolReq("desk_list_fault_reports", map[string]any{"urgency": "critical"}))
	require.NoError(t, err)
	var critical []map[string]any
	resultJSON(t, result, &critical)
	require.Len(t, critical, 1)
	assert.Equal(t, "s1", critical[0]["session_id"])

	result, err = srv.handleListFaultReports(ctx, callToolReq("desk_list_fault_reports", map[string]any{"limit": 1}))
	require.NoError(t, err)
	var limited []map[string]any
	resultJSON(t, result, &limited)
	assert.Len(t, limited, 1)
}

func TestHandleListFaultReports_BadFilter(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	for _, args := range []map[string]any{{"urgency": "extreme"}, {"status": "lost"}} {
		result, err := srv.handleListFaultReports(ctx, callToolReq("desk_list_fault_reports", args))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	}
}

// ---------------------------------------------------------------------------
// Tests: desk_list_escalations
// ---------------------------------------------------------------------------

func TestHandleListEscalations(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	resp := process(t, srv, "s1", "Jag kontaktar konsumentverket")
	require.True(t, resp.Escalate)

	result, err := srv.handleListEscalations(ctx, callToolReq("desk_list_escalations", map[string]any{"reason": "legal_threat"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var out []map[string]any
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, resp.EscalationID, out[0]["id"])
	assert.Equal(t, "Jag kontaktar konsumentverket", out[0]["customer_issue"])

	result, err = srv.handleListEscalations(ctx, callToolReq("desk_list_escalations", map[string]any{"reason": "boredom"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestListTools_NoStore(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.store = nil
	ctx := context.Background()

	result, err := srv.handleListFaultReports(ctx, callToolReq("desk_list_fault_reports", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleListEscalations(ctx, callToolReq("desk_list_escalations", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
