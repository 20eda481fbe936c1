package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/query"
)

// ListNodesTool handles the tana_list_nodes MCP tool.
type ListNodesTool struct {
	runner Runner
}

// NewListNodesTool creates a ListNodesTool.
func NewListNodesTool(runner Runner) *ListNodesTool {
	return &ListNodesTool{runner: runner}
}

// Definition returns the MCP tool definition for registration.
func (t *ListNodesTool) Definition() mcp.Tool {
	return newTool("tana_list_nodes",
		mcp.WithDescription(
			"List the nodes tagged with a supertag, one page at a time. With "+
				"`include_inherited`, nodes carrying any descendant tag are listed too.",
		),
		mcp.WithString("tag",
			mcp.Required(),
			mcp.Description("Tag id or name (case-insensitive)."),
		),
		mcp.WithBoolean("include_inherited",
			mcp.Description("Also list nodes whose tags inherit from this tag."),
		),
		mcp.WithString("sort_by",
			mcp.Description("Sort key. Defaults to name."),
			mcp.Enum(query.SortName, query.SortCreated, query.SortModified, query.SortID),
		),
		mcp.WithString("order",
			mcp.Description("Sort order. Defaults to asc."),
			mcp.Enum("asc", "desc"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of matching nodes to skip."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Page size, at most 1000. Defaults to 50."),
		),
	)
}

// Handle processes the tana_list_nodes tool call.
func (t *ListNodesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return run(ctx, t.runner, &query.ListNodesRequest{
		Common:           commonArgs(req),
		Tag:              req.GetString("tag", ""),
		IncludeInherited: boolArg(req, "include_inherited", false),
		SortBy:           req.GetString("sort_by", ""),
		Order:            req.GetString("order", ""),
		Offset:           intArg(req, "offset", 0),
		Limit:            intArg(req, "limit", 0),
	})
}
