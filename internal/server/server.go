// Package server wires all components and creates the MCP server instance.
//
// This is the composition root: it creates the concrete cache, stores and
// engines and injects them into the façade, the tools and the resources.
// No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/cache"
	"github.com/HendryAvila/tanagraph/internal/config"
	"github.com/HendryAvila/tanagraph/internal/history"
	"github.com/HendryAvila/tanagraph/internal/keytags"
	"github.com/HendryAvila/tanagraph/internal/metrics"
	"github.com/HendryAvila/tanagraph/internal/mutation"
	"github.com/HendryAvila/tanagraph/internal/prompts"
	"github.com/HendryAvila/tanagraph/internal/query"
	"github.com/HendryAvila/tanagraph/internal/resources"
	"github.com/HendryAvila/tanagraph/internal/tags"
	"github.com/HendryAvila/tanagraph/internal/tools"
	"github.com/HendryAvila/tanagraph/internal/watch"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Components is the wired engine shared by the MCP server and the CLI.
type Components struct {
	Cache   *cache.Store
	Keytags *keytags.Store
	Facade  *query.Facade
	Metrics *metrics.Collector
	// Watcher is nil unless watching is enabled.
	Watcher *watch.Watcher
	// History is nil when snapshot history is disabled or failed to open.
	History *history.Store
}

// invalidateFunc adapts a function to watch.Invalidator.
type invalidateFunc func(key string)

func (f invalidateFunc) Invalidate(key string) { f(key) }

// Wire builds every component from the configuration.
//
// The returned cleanup function stops the watcher and closes the history
// database. It is always non-nil and safe to call even if an optional
// subsystem failed to start.
func Wire(cfg *config.Config, logger *zap.Logger) (*Components, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{Metrics: metrics.New()}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Cache ---
	//
	// The watcher observes parses to learn which sources to watch and
	// drops entries through the cache, so it is bound to the store after
	// both exist.

	observer := cache.Observer(c.Metrics)
	if cfg.Watch {
		w, err := watch.New(invalidateFunc(func(key string) { c.Cache.Invalidate(key) }), logger.Named("watch"))
		if err != nil {
			logger.Warn("source watching disabled", zap.Error(err))
		} else {
			c.Watcher = w
			observer = cache.Observers(c.Metrics, w)
		}
	}

	store, err := cache.New(cache.FileLoader(tags.ExtractOptions{IncludeSystem: cfg.IncludeSystem}), cache.Options{
		TTL:        cfg.CacheTTL,
		MaxSources: cfg.CacheMaxSources,
		Observer:   observer,
		Logger:     logger.Named("cache"),
	})
	if err != nil {
		if c.Watcher != nil {
			_ = c.Watcher.Close()
		}
		return nil, noop, fmt.Errorf("creating cache: %w", err)
	}
	c.Cache = store

	if c.Watcher != nil {
		ctx, cancel := context.WithCancel(context.Background())
		go c.Watcher.Run(ctx)
		closers = append(closers, func() {
			cancel()
			if err := c.Watcher.Close(); err != nil {
				logger.Warn("watcher close", zap.Error(err))
			}
		})
	}

	// --- Snapshot history ---
	//
	// History is optional: if it fails to open, change detection compares
	// against snapshots held in memory for the life of the process.

	var hist query.History
	if cfg.HistoryEnabled {
		hs, err := history.New(history.Config{DataDir: cfg.DataDir, Keep: cfg.HistoryKeep})
		if err != nil {
			logger.Warn("snapshot history disabled", zap.Error(err))
		} else {
			c.History = hs
			hist = hs
			closers = append(closers, func() {
				if err := hs.Close(); err != nil {
					logger.Warn("history store close", zap.Error(err))
				}
			})
		}
	}

	// --- Façade ---

	c.Keytags = keytags.NewStore(cfg.MetadataDir, logger.Named("keytags"))
	engine := mutation.NewEngine(store, mutation.NewFileSource(), mutation.NewFileBackups(cfg.BackupsDir), c.Metrics, logger.Named("mutation"))

	c.Facade = query.New(store, engine, query.Options{
		DefaultSource: cfg.SourcePath,
		Resolve:       cfg.ResolveSource,
		Keytags:       c.Keytags,
		History:       hist,
		Logger:        logger.Named("query"),
	})

	return c, cleanup, nil
}

// New creates the MCP server with every tool, prompt and resource
// registered.
func New(c *Components) *server.MCPServer {
	s := server.NewMCPServer(
		"tanagraph",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Read tools ---

	listTags := tools.NewListTagsTool(c.Facade)
	s.AddTool(listTags.Definition(), listTags.Handle)

	readNode := tools.NewReadNodeTool(c.Facade)
	s.AddTool(readNode.Definition(), readNode.Handle)

	listNodes := tools.NewListNodesTool(c.Facade)
	s.AddTool(listNodes.Definition(), listNodes.Handle)

	detectChanges := tools.NewDetectChangesTool(c.Facade)
	s.AddTool(detectChanges.Definition(), detectChanges.Handle)

	conflicts := tools.NewConflictsTool(c.Facade)
	s.AddTool(conflicts.Definition(), conflicts.Handle)

	// --- Write tools ---

	appendTool := tools.NewAppendTool(c.Facade)
	s.AddTool(appendTool.Definition(), appendTool.Handle)

	keytagsTool := tools.NewKeytagsTool(c.Keytags, c.Facade)
	s.AddTool(keytagsTool.Definition(), keytagsTool.Handle)

	// --- Prompts ---

	explorePrompt := prompts.NewExplorePrompt()
	s.AddPrompt(explorePrompt.Definition(), explorePrompt.Handle)

	reviewPrompt := prompts.NewReviewPrompt()
	s.AddPrompt(reviewPrompt.Definition(), reviewPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(c.Facade)
	s.AddResource(resourceHandler.TagsResource(), resourceHandler.HandleTags)

	return s
}

// noop is the cleanup returned when wiring fails.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use the server.
func serverInstructions() string {
	return `You have access to tanagraph, a server that reads Tana workspace exports.

## WHAT IT DOES

An export is a JSON file of nodes. Nodes carry supertags; supertags can
inherit from other supertags and can be mapped to output directories in the
workspace's keytags configuration. Every tool reads the export on demand and
caches the parsed result for a short time, so edits to the file are picked up
without a restart.

## HOW TO USE IT

1. Start with ` + "`tana_list_tags`" + ` to see which supertags exist and how often
   they are used. Pass ` + "`include_chains`" + ` and ` + "`include_directories`" + ` to see
   inheritance and directory mappings.
2. Use ` + "`tana_list_nodes`" + ` to page through the nodes of a tag. Set
   ` + "`include_inherited`" + ` to include nodes tagged with descendant tags.
3. Use ` + "`tana_read_node`" + ` with a node id to read it as markdown.
4. Use ` + "`tana_detect_changes`" + ` to see what changed in the tags since the
   last check, and ` + "`tana_conflicts`" + ` to find inheritance cycles and
   directory clashes.

## WRITING

` + "`tana_append_to_node`" + ` is the only tool that modifies the export. It backs
up the node and the whole document before writing, and the write is atomic.
Confirm with the user before appending. ` + "`tana_keytags`" + ` edits the keytags
configuration, never the export.

## ERRORS

Errors start with a code in brackets, for example ` + "`[NODE_NOT_FOUND]`" + `, and
usually end with a suggested next step. Follow it instead of guessing ids.

## SOURCES

Every tool takes an optional ` + "`source`" + `. Omit it to use the configured default
export. Relative paths are looked up in the configured files directory.`
}
