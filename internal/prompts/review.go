package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPrompt handles the tana-review MCP prompt.
// It instructs the AI to report what changed since the last import and
// whether the tag graph is healthy.
type ReviewPrompt struct{}

// NewReviewPrompt creates a ReviewPrompt.
func NewReviewPrompt() *ReviewPrompt {
	return &ReviewPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("tana-review",
		mcp.WithPromptDescription(
			"Review a new Tana export: which supertags were added, removed or "+
				"changed since the last check, and whether inheritance and "+
				"directory mappings still hold.",
		),
	)
}

// Handle processes the tana-review prompt request.
func (p *ReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Review Tana export",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `tana_detect_changes` on my Tana export.\n\n" +
						"Then:\n" +
						"1. List added and removed supertags, and modified ones with what changed\n" +
						"2. Mention the biggest usage count changes\n" +
						"3. Run `tana_conflicts` and flag every error first\n" +
						"4. For new supertags, ask me whether they need a directory mapping and set it with `tana_keytags`",
				),
			},
		},
	}, nil
}
