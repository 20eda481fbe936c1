// tanagraph: Tana export ingestion engine.
//
// Reads Tana workspace exports, resolves supertag inheritance and directory
// mappings, detects tag changes between exports and appends content to
// nodes with backups. The same operations are available as an MCP server
// (stdio transport) and as one-shot commands printing JSON.
//
// Usage:
//
//	tanagraph serve                 # Start MCP server (stdio transport)
//	tanagraph tags --chains         # List supertags
//	tanagraph read <node-id>        # Render a node as markdown
//	tanagraph version
package main

import (
	"fmt"
	"os"

	"github.com/HendryAvila/tanagraph/internal/apperr"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", apperr.Format(err))
		os.Exit(1)
	}
}
