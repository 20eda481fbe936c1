package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/query"
)

// ConflictsTool handles the tana_conflicts MCP tool.
type ConflictsTool struct {
	runner Runner
}

// NewConflictsTool creates a ConflictsTool.
func NewConflictsTool(runner Runner) *ConflictsTool {
	return &ConflictsTool{runner: runner}
}

// Definition returns the MCP tool definition for registration.
func (t *ConflictsTool) Definition() mcp.Tool {
	return newTool("tana_conflicts",
		mcp.WithDescription(
			"Report problems in the tag graph: circular inheritance (errors), "+
				"tags that reach two different directories and references to "+
				"unknown parent tags (warnings).",
		),
	)
}

// Handle processes the tana_conflicts tool call.
func (t *ConflictsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return run(ctx, t.runner, &query.ConflictsRequest{Common: commonArgs(req)})
}
