package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/hylla/tempo/internal/adapters/server/common"
	"github.com/hylla/tempo/internal/domain"
	"github.com/hylla/tempo/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// stubService provides deterministic responses for MCP tool tests.
type stubService struct {
	dep     common.Dependency
	items   []engine.ItemView
	window  common.ExecutionWindow
	details common.ItemDetails
	report  engine.Report
	err     error

	lastAdd    common.AddDependencyRequest
	lastRemove common.RemoveDependencyRequest
	lastScope  common.ScopeRequest
	lastWindow common.ExecutionWindowRequest
	lastItemID string
}

// AddDependency records the request and returns the configured edge.
func (s *stubService) AddDependency(_ context.Context, req common.AddDependencyRequest) (common.Dependency, error) {
	s.lastAdd = req
	return s.dep, s.err
}

// RemoveDependency records the request.
func (s *stubService) RemoveDependency(_ context.Context, req common.RemoveDependencyRequest) error {
	s.lastRemove = req
	return s.err
}

// ListView records the scope and returns fixture items.
func (s *stubService) ListView(_ context.Context, req common.ScopeRequest) ([]engine.ItemView, error) {
	s.lastScope = req
	return s.items, s.err
}

// ExecutionWindow records the request and returns the fixture window.
func (s *stubService) ExecutionWindow(_ context.Context, req common.ExecutionWindowRequest) (common.ExecutionWindow, error) {
	s.lastWindow = req
	return s.window, s.err
}

// BlockedView records the scope and returns fixture items.
func (s *stubService) BlockedView(_ context.Context, req common.ScopeRequest) ([]engine.ItemView, error) {
	s.lastScope = req
	return s.items, s.err
}

// ItemDetails records the id and returns fixture details.
func (s *stubService) ItemDetails(_ context.Context, id string) (common.ItemDetails, error) {
	s.lastItemID = id
	return s.details, s.err
}

// IntegrityReport records the scope and returns the fixture report.
func (s *stubService) IntegrityReport(_ context.Context, req common.ScopeRequest) (engine.Report, error) {
	s.lastScope = req
	return s.report, s.err
}

// ApplyBatch is unused by MCP tools.
func (s *stubService) ApplyBatch(context.Context, common.BatchRequest) ([]common.BatchResult, error) {
	return nil, s.err
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map for stable assertions.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "tempo-test",
				"version": "1.0.0",
			},
		},
	}
}

// newTestServer starts one MCP server over svc and runs initialize.
func newTestServer(t *testing.T, svc *stubService) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, svc)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	return server
}

// TestNewHandlerRequiresService verifies a nil service is rejected.
func TestNewHandlerRequiresService(t *testing.T) {
	if _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("NewHandler(nil) error = nil, want error")
	}
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubService{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersTempoTools verifies tool discovery lists every tempo.* tool.
func TestHandlerRegistersTempoTools(t *testing.T) {
	server := newTestServer(t, &stubService{})
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	for _, want := range []string{
		"tempo.add_dependency",
		"tempo.remove_dependency",
		"tempo.list_view",
		"tempo.execution_window",
		"tempo.blocked_view",
		"tempo.item_details",
		"tempo.integrity_report",
	} {
		if !slices.Contains(toolNames, want) {
			t.Fatalf("tool list missing %s: %#v", want, toolNames)
		}
	}
}

// TestHandlerAddDependencyTool verifies argument mapping and structured results.
func TestHandlerAddDependencyTool(t *testing.T) {
	svc := &stubService{dep: common.Dependency{ID: "d1", ItemID: "b", DependsOnID: "a", Type: domain.DependencyStartToStart, LagMinutes: 15}}
	server := newTestServer(t, svc)

	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "tempo.add_dependency", map[string]any{
		"item_id":       "b",
		"depends_on_id": "a",
		"type":          "SS",
		"lag_minutes":   15,
		"actor":         "agent-7",
	}))
	if isErr, _ := resp.Result["isError"].(bool); isErr {
		t.Fatalf("unexpected tool error: %s", toolResultText(t, resp.Result))
	}
	structured := toolResultStructured(t, resp.Result)
	if structured["id"] != "d1" || structured["type"] != "SS" {
		t.Fatalf("unexpected structured result %#v", structured)
	}
	if svc.lastAdd.Type != "SS" || svc.lastAdd.LagMinutes != 15 || svc.lastAdd.Actor != "agent-7" {
		t.Fatalf("unexpected add request %#v", svc.lastAdd)
	}
}

// TestHandlerToolErrorsCarryCodes verifies service errors surface as coded tool errors.
func TestHandlerToolErrorsCarryCodes(t *testing.T) {
	cases := []struct {
		name     string
		tool     string
		args     map[string]any
		err      error
		wantText string
	}{
		{
			name:     "cycle",
			tool:     "tempo.add_dependency",
			args:     map[string]any{"item_id": "a", "depends_on_id": "c"},
			err:      fmt.Errorf("%w: %w", common.ErrDependencyCycle, domain.ErrDependencyCycle),
			wantText: "dependency_cycle: ",
		},
		{
			name:     "not found",
			tool:     "tempo.remove_dependency",
			args:     map[string]any{"id": "missing"},
			err:      fmt.Errorf("%w: dependency", common.ErrNotFound),
			wantText: "not_found: ",
		},
		{
			name:     "scope",
			tool:     "tempo.list_view",
			args:     map[string]any{},
			err:      fmt.Errorf("%w: one of project_id or assignee_id is required", common.ErrInvalidRequest),
			wantText: "invalid_request: ",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(t, &stubService{err: tc.err})
			_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, tc.tool, tc.args))
			if isErr, _ := resp.Result["isError"].(bool); !isErr {
				t.Fatalf("expected tool error, got %#v", resp.Result)
			}
			if text := toolResultText(t, resp.Result); !strings.HasPrefix(text, tc.wantText) {
				t.Fatalf("text = %q, want prefix %q", text, tc.wantText)
			}
		})
	}
}

// TestHandlerMissingRequiredArgument verifies required arguments fail as tool errors.
func TestHandlerMissingRequiredArgument(t *testing.T) {
	svc := &stubService{}
	server := newTestServer(t, svc)

	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "tempo.item_details", map[string]any{}))
	if isErr, _ := resp.Result["isError"].(bool); !isErr {
		t.Fatalf("expected tool error, got %#v", resp.Result)
	}
	if svc.lastItemID != "" {
		t.Fatalf("service should not be called, got id %q", svc.lastItemID)
	}
}

// TestHandlerScopedReadTools verifies scope arguments reach the view service.
func TestHandlerScopedReadTools(t *testing.T) {
	svc := &stubService{
		items:  []engine.ItemView{{ID: "a", Blocked: true}},
		report: engine.Report{Counts: engine.ReportCounts{OrphanedEdges: 2}},
	}
	server := newTestServer(t, svc)

	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(6, "tempo.blocked_view", map[string]any{
		"assignee_id":      "dana",
		"include_archived": true,
	}))
	structured := toolResultStructured(t, resp.Result)
	items, ok := structured["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected items %#v", structured)
	}
	if svc.lastScope.AssigneeID != "dana" || !svc.lastScope.IncludeArchived {
		t.Fatalf("unexpected scope %#v", svc.lastScope)
	}

	_, resp = postJSONRPC(t, server.Client(), server.URL, callToolRequest(7, "tempo.integrity_report", map[string]any{"project_id": "p1"}))
	structured = toolResultStructured(t, resp.Result)
	counts, ok := structured["counts"].(map[string]any)
	if !ok || counts["orphaned_edges"] != float64(2) {
		t.Fatalf("unexpected report %#v", structured)
	}
	if svc.lastScope.ProjectID != "p1" {
		t.Fatalf("project scope = %q, want p1", svc.lastScope.ProjectID)
	}
}

// TestHandlerExecutionWindowTool verifies RFC3339 argument parsing.
func TestHandlerExecutionWindowTool(t *testing.T) {
	svc := &stubService{window: common.ExecutionWindow{Items: []engine.ItemView{}}}
	server := newTestServer(t, svc)

	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(8, "tempo.execution_window", map[string]any{
		"project_id": "p1",
		"from":       "2026-03-02T00:00:00Z",
	}))
	if isErr, _ := resp.Result["isError"].(bool); isErr {
		t.Fatalf("unexpected tool error: %s", toolResultText(t, resp.Result))
	}
	if svc.lastWindow.From == nil || svc.lastWindow.To != nil || svc.lastWindow.ProjectID != "p1" {
		t.Fatalf("unexpected window request %#v", svc.lastWindow)
	}

	_, resp = postJSONRPC(t, server.Client(), server.URL, callToolRequest(9, "tempo.execution_window", map[string]any{
		"project_id": "p1",
		"to":         "tomorrow",
	}))
	if text := toolResultText(t, resp.Result); !strings.Contains(text, "to must be RFC3339") {
		t.Fatalf("text = %q, want RFC3339 error", text)
	}
}
