package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/query"
)

// DetectChangesTool handles the tana_detect_changes MCP tool.
type DetectChangesTool struct {
	runner Runner
}

// NewDetectChangesTool creates a DetectChangesTool.
func NewDetectChangesTool(runner Runner) *DetectChangesTool {
	return &DetectChangesTool{runner: runner}
}

// Definition returns the MCP tool definition for registration.
func (t *DetectChangesTool) Definition() mcp.Tool {
	return newTool("tana_detect_changes",
		mcp.WithDescription(
			"Compare the supertags of an export with the last recorded snapshot "+
				"of the same source: added, removed and modified tags and usage "+
				"count changes. The first call for a source reports an initial load. "+
				"The current tags become the new baseline unless `dry_run` is set.",
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Compare without recording the current tags."),
		),
	)
}

// Handle processes the tana_detect_changes tool call.
func (t *DetectChangesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return run(ctx, t.runner, &query.DetectChangesRequest{
		Common: commonArgs(req),
		DryRun: boolArg(req, "dry_run", false),
	})
}
