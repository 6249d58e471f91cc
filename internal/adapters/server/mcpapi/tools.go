package mcpapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/tempo/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerDependencyTools registers the cycle-guarded edge mutations.
func registerDependencyTools(srv *mcpserver.MCPServer, deps common.DependencyService) {
	srv.AddTool(
		mcp.NewTool(
			"tempo.add_dependency",
			mcp.WithDescription("Record that item_id depends on depends_on_id. Rejected when the edge would close a cycle."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Successor item id")),
			mcp.WithString("depends_on_id", mcp.Required(), mcp.Description("Predecessor item id")),
			mcp.WithString("type", mcp.Description("Dependency type"), mcp.Enum("FS", "SS", "FF", "SF")),
			mcp.WithNumber("lag_minutes", mcp.Description("Lag in minutes; negative means lead")),
			mcp.WithString("actor", mcp.Description("Actor id recorded in the change ledger")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			dependsOnID, err := req.RequireString("depends_on_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			dep, err := deps.AddDependency(ctx, common.AddDependencyRequest{
				ItemID:      itemID,
				DependsOnID: dependsOnID,
				Type:        req.GetString("type", ""),
				LagMinutes:  req.GetInt("lag_minutes", 0),
				Actor:       req.GetString("actor", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("add_dependency", dep)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tempo.remove_dependency",
			mcp.WithDescription("Delete one dependency edge by id."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Dependency id")),
			mcp.WithString("actor", mcp.Description("Actor id recorded in the change ledger")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := deps.RemoveDependency(ctx, common.RemoveDependencyRequest{
				ID:    id,
				Actor: req.GetString("actor", ""),
			}); err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("remove_dependency", map[string]any{"id": id, "removed": true})
		},
	)
}

// scopeOptions returns the shared scope arguments for read tools.
func scopeOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("project_id", mcp.Description("Project scope; exclusive with assignee_id")),
		mcp.WithString("assignee_id", mcp.Description("User scope; exclusive with project_id")),
		mcp.WithBoolean("include_archived", mcp.Description("Include archived items")),
	}
}

// scopeFromRequest reads the shared scope arguments.
func scopeFromRequest(req mcp.CallToolRequest) common.ScopeRequest {
	return common.ScopeRequest{
		ProjectID:       req.GetString("project_id", ""),
		AssigneeID:      req.GetString("assignee_id", ""),
		IncludeArchived: req.GetBool("include_archived", false),
	}
}

// newScopedTool builds one read tool that accepts the shared scope arguments.
func newScopedTool(name, description string, extra ...mcp.ToolOption) mcp.Tool {
	opts := append([]mcp.ToolOption{mcp.WithDescription(description)}, scopeOptions()...)
	return mcp.NewTool(name, append(opts, extra...)...)
}

// registerViewTools registers projection and diagnostic reads.
func registerViewTools(srv *mcpserver.MCPServer, views common.ViewService) {
	srv.AddTool(
		newScopedTool("tempo.list_view", "List scoped items with schedule, dependency, and rollup signals."),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := views.ListView(ctx, scopeFromRequest(req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_view", map[string]any{"items": items})
		},
	)

	srv.AddTool(
		newScopedTool(
			"tempo.execution_window",
			"List scoped items whose schedule overlaps [from, to).",
			mcp.WithString("from", mcp.Description("RFC3339 window start; defaults to now")),
			mcp.WithString("to", mcp.Description("RFC3339 window end; defaults to the configured window length")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			in := common.ExecutionWindowRequest{ScopeRequest: scopeFromRequest(req)}
			var err error
			if in.From, err = parseTimeArg(req, "from"); err != nil {
				return toolResultFromError(err), nil
			}
			if in.To, err = parseTimeArg(req, "to"); err != nil {
				return toolResultFromError(err), nil
			}
			window, err := views.ExecutionWindow(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("execution_window", window)
		},
	)

	srv.AddTool(
		newScopedTool("tempo.blocked_view", "List scoped items that are blocked, waiting on an unfinished predecessor, or scheduled against a violated edge."),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := views.BlockedView(ctx, scopeFromRequest(req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("blocked_view", map[string]any{"items": items})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tempo.item_details",
			mcp.WithDescription("Return one item with its dependency links, blocks, time entries, and blockers."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			details, err := views.ItemDetails(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("item_details", details)
		},
	)

	srv.AddTool(
		newScopedTool("tempo.integrity_report", "Report invalid blocks, orphaned records, cross-project edges, cycles, and non-member assignees."),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			report, err := views.IntegrityReport(ctx, scopeFromRequest(req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("integrity_report", report)
		},
	)
}

// parseTimeArg parses one optional RFC3339 tool argument.
func parseTimeArg(req mcp.CallToolRequest, key string) (*time.Time, error) {
	raw := strings.TrimSpace(req.GetString(key, ""))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", common.ErrInvalidRequest, key)
	}
	return &ts, nil
}
