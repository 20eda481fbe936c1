// Package tools implements the MCP tool handlers that expose the query
// façade to AI hosts.
//
// Each tool follows the same pattern:
// - A struct with its dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() turns the arguments into a typed request and runs it
//
// Failures a caller can act on (unknown node, bad arguments, missing
// source) come back as tool errors carrying the error code and remedy.
// Anything else is returned as a Go error.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/query"
)

// Runner executes façade requests. *query.Facade implements it.
type Runner interface {
	Do(ctx context.Context, req query.Request) (any, error)
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// sourceOptions are the arguments every read tool accepts.
func sourceOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("source",
			mcp.Description("Path of the export file. Relative paths are looked up in the files directory. Omit to use the configured default source."),
		),
		mcp.WithNumber("ttl_seconds",
			mcp.Description("Cache lifetime for this call in seconds. Omit to keep the server default."),
		),
		mcp.WithBoolean("force_refresh",
			mcp.Description("Reparse the source even when the cached copy is fresh."),
		),
	}
}

// commonArgs reads the shared source arguments.
func commonArgs(req mcp.CallToolRequest) query.Common {
	return query.Common{
		Source:       req.GetString("source", ""),
		TTL:          time.Duration(intArg(req, "ttl_seconds", 0)) * time.Second,
		ForceRefresh: boolArg(req, "force_refresh", false),
	}
}

// newTool builds a tool definition with the shared source arguments
// appended to opts.
func newTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append(opts, sourceOptions()...)...)
}

// run executes a request and renders the outcome as JSON.
func run(ctx context.Context, r Runner, req query.Request) (*mcp.CallToolResult, error) {
	res, err := r.Do(ctx, req)
	if err != nil {
		return failure(err)
	}
	return jsonResult(res)
}

// failure turns typed errors into tool errors and passes the rest through.
func failure(err error) (*mcp.CallToolResult, error) {
	if _, ok := apperr.As(err); ok {
		return mcp.NewToolResultError(apperr.Format(err)), nil
	}
	return nil, err
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
