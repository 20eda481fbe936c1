package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/query"
)

// ListTagsTool handles the tana_list_tags MCP tool.
type ListTagsTool struct {
	runner Runner
}

// NewListTagsTool creates a ListTagsTool.
func NewListTagsTool(runner Runner) *ListTagsTool {
	return &ListTagsTool{runner: runner}
}

// Definition returns the MCP tool definition for registration.
func (t *ListTagsTool) Definition() mcp.Tool {
	return newTool("tana_list_tags",
		mcp.WithDescription(
			"List the supertags of a Tana export with their usage counts. "+
				"Optionally include each tag's inheritance chain and the output "+
				"directory it maps to, directly or through an ancestor.",
		),
		mcp.WithBoolean("include_chains",
			mcp.Description("Include the inheritance chain of every tag, nearest ancestor first."),
		),
		mcp.WithBoolean("include_directories",
			mcp.Description("Include the directory each tag resolves to from the keytags mapping."),
		),
		mcp.WithString("name_contains",
			mcp.Description("Only list tags whose name contains this text (case-insensitive)."),
		),
		mcp.WithNumber("min_usage",
			mcp.Description("Only list tags used by at least this many nodes."),
		),
	)
}

// Handle processes the tana_list_tags tool call.
func (t *ListTagsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return run(ctx, t.runner, &query.ListTagsRequest{
		Common:             commonArgs(req),
		IncludeChains:      boolArg(req, "include_chains", false),
		IncludeDirectories: boolArg(req, "include_directories", false),
		NameContains:       req.GetString("name_contains", ""),
		MinUsage:           intArg(req, "min_usage", 0),
	})
}
