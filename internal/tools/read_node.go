package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/query"
)

// ReadNodeTool handles the tana_read_node MCP tool.
type ReadNodeTool struct {
	runner Runner
}

// NewReadNodeTool creates a ReadNodeTool.
func NewReadNodeTool(runner Runner) *ReadNodeTool {
	return &ReadNodeTool{runner: runner}
}

// Definition returns the MCP tool definition for registration.
func (t *ReadNodeTool) Definition() mcp.Tool {
	return newTool("tana_read_node",
		mcp.WithDescription(
			"Read one node of a Tana export as markdown: title, supertags, body "+
				"and, when requested, an outline of its children. Use "+
				"`format: json` to get the structured view instead.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Id of the node to read."),
		),
		mcp.WithBoolean("include_children",
			mcp.Description("Render an outline of the node's children."),
		),
		mcp.WithNumber("depth",
			mcp.Description("How many levels of children to render (1-20). Defaults to 1."),
		),
		mcp.WithString("format",
			mcp.Description("Output format."),
			mcp.Enum("markdown", "json"),
		),
	)
}

// Handle processes the tana_read_node tool call.
func (t *ReadNodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r := &query.ReadNodeRequest{
		Common:          commonArgs(req),
		NodeID:          req.GetString("node_id", ""),
		IncludeChildren: boolArg(req, "include_children", false),
		Depth:           intArg(req, "depth", 0),
	}
	if req.GetString("format", "markdown") == "json" {
		return run(ctx, t.runner, r)
	}

	res, err := t.runner.Do(ctx, r)
	if err != nil {
		return failure(err)
	}
	return mcp.NewToolResultText(res.(*query.NodeView).Markdown), nil
}
