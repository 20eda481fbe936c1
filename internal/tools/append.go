package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/mutation"
	"github.com/HendryAvila/tanagraph/internal/query"
)

// AppendTool handles the tana_append_to_node MCP tool.
type AppendTool struct {
	runner Runner
}

// NewAppendTool creates an AppendTool.
func NewAppendTool(runner Runner) *AppendTool {
	return &AppendTool{runner: runner}
}

// Definition returns the MCP tool definition for registration.
func (t *AppendTool) Definition() mcp.Tool {
	return newTool("tana_append_to_node",
		mcp.WithDescription(
			"Append text to a node's body and write the export file back. The "+
				"node and the whole document are backed up first; the source is "+
				"replaced atomically. Use `before_section`/`after_section` to place "+
				"the text around a markdown heading of the body.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Id of the node to modify."),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Text to insert."),
		),
		mcp.WithString("position",
			mcp.Description("Where to insert. Defaults to end."),
			mcp.Enum(
				string(mutation.PositionStart),
				string(mutation.PositionEnd),
				string(mutation.PositionBeforeSection),
				string(mutation.PositionAfterSection),
			),
		),
		mcp.WithString("section",
			mcp.Description("Heading text the section positions refer to (case-insensitive)."),
		),
	)
}

// Handle processes the tana_append_to_node tool call.
func (t *AppendTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.runner.Do(ctx, &query.AppendRequest{
		Common:   commonArgs(req),
		NodeID:   req.GetString("node_id", ""),
		Content:  req.GetString("content", ""),
		Position: req.GetString("position", ""),
		Section:  req.GetString("section", ""),
	})
	if err != nil {
		var me *mutation.Error
		if errors.As(err, &me) && me.NeedsRecovery() {
			return mcp.NewToolResultError(fmt.Sprintf(
				"%s\n\nThe source was not modified. Backups were kept:\n- node: %s\n- document: %s",
				apperr.Format(err), me.NodeBackup, me.DocumentBackup)), nil
		}
		return failure(err)
	}
	return jsonResult(res)
}
