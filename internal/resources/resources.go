// Package resources implements MCP resource handlers.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (tana://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/query"
)

// TagsURI addresses the tag list of the default source.
const TagsURI = "tana://workspace/tags"

// Runner executes façade requests. *query.Facade implements it.
type Runner interface {
	Do(ctx context.Context, req query.Request) (any, error)
}

// Handler manages workspace resource endpoints.
type Handler struct {
	runner Runner
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

// TagsResource returns the MCP resource definition for the workspace tags.
func (h *Handler) TagsResource() mcp.Resource {
	return mcp.NewResource(
		TagsURI,
		"Tana Workspace Tags",
		mcp.WithResourceDescription("Supertags of the default export with usage counts, inheritance chains and directories"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleTags returns the tag list of the default source as JSON.
func (h *Handler) HandleTags(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	res, err := h.runner.Do(ctx, &query.ListTagsRequest{IncludeChains: true, IncludeDirectories: true})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return errorResource(req.Params.URI, apperr.Format(err)), nil
		}
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling tags: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
