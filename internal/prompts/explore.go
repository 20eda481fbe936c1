// Package prompts implements MCP prompt handlers.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ExplorePrompt handles the tana-explore MCP prompt.
// It guides the AI through a tour of a workspace, optionally focused on
// one supertag.
type ExplorePrompt struct{}

// NewExplorePrompt creates an ExplorePrompt.
func NewExplorePrompt() *ExplorePrompt {
	return &ExplorePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ExplorePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("tana-explore",
		mcp.WithPromptDescription(
			"Explore a Tana export: its supertags, how they inherit from each "+
				"other, and the nodes behind them.",
		),
		mcp.WithArgument("tag",
			mcp.ArgumentDescription("Supertag to focus on. Omit for a tour of the whole workspace."),
		),
		mcp.WithArgument("source",
			mcp.ArgumentDescription("Export file. Omit to use the configured default."),
		),
	)
}

// Handle processes the tana-explore prompt request.
func (p *ExplorePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	tag := req.Params.Arguments["tag"]
	sourceHint := ""
	if source := req.Params.Arguments["source"]; source != "" {
		sourceHint = fmt.Sprintf(" Pass source=%q to every tool.", source)
	}

	var text string
	if tag == "" {
		text = "Give me a tour of my Tana workspace." + sourceHint + "\n\n" +
			"Please:\n" +
			"1. Run `tana_list_tags` with include_chains and include_directories\n" +
			"2. Group the supertags by inheritance and show the most used ones first\n" +
			"3. Point out tags without a directory mapping\n" +
			"4. Run `tana_conflicts` and explain any problem it reports\n" +
			"5. Suggest which tags I should look at next"
	} else {
		text = fmt.Sprintf("Show me what is tagged #%s in my Tana workspace.%s\n\n"+
			"Please:\n"+
			"1. Run `tana_list_tags` with name_contains=%q and include_chains to see where it sits in the hierarchy\n"+
			"2. Run `tana_list_nodes` with tag=%q and include_inherited, sorted by modified, newest first\n"+
			"3. Summarize the nodes in a short list\n"+
			"4. Offer to open any of them with `tana_read_node`",
			tag, sourceHint, tag, tag)
	}

	return &mcp.GetPromptResult{
		Description: "Explore Tana workspace",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}, nil
}
