package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/config"
	"github.com/HendryAvila/tanagraph/internal/logging"
	"github.com/HendryAvila/tanagraph/internal/query"
	"github.com/HendryAvila/tanagraph/internal/server"
)

// cli holds the persistent flags shared by every command.
type cli struct {
	configPath string
	envFile    string
	source     string
	ttl        time.Duration
	refresh    bool
}

// app is the wired engine a command runs against.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	c       *server.Components
	cleanup func()
}

func (a *app) close() {
	a.cleanup()
	_ = a.logger.Sync()
}

func newRootCmd() *cobra.Command {
	cl := &cli{}
	root := &cobra.Command{
		Use:   "tanagraph",
		Short: "Read, query and annotate Tana workspace exports",
		Long: `tanagraph parses Tana workspace exports into a node index and a supertag
graph. It lists tags with their inheritance chains and directory mappings,
renders nodes as markdown, reports tag changes between exports and appends
content to nodes after backing them up.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cl.configPath, "config", "", "YAML config file (default $TANAGRAPH_CONFIG)")
	flags.StringVar(&cl.envFile, "env-file", ".env", "dotenv file with TANAGRAPH_* variables")
	flags.StringVarP(&cl.source, "source", "s", "", "export file (default: configured source)")
	flags.DurationVar(&cl.ttl, "ttl", 0, "cache lifetime for this call (default: configured TTL)")
	flags.BoolVar(&cl.refresh, "refresh", false, "reparse the source even if cached")

	root.AddCommand(
		newServeCmd(cl),
		newTagsCmd(cl),
		newReadCmd(cl),
		newNodesCmd(cl),
		newAppendCmd(cl),
		newChangesCmd(cl),
		newConflictsCmd(cl),
		newKeytagsCmd(cl),
		newCallCmd(cl),
		newVersionCmd(),
	)
	return root
}

// open loads the configuration and wires the engine.
func (cl *cli) open() (*app, error) {
	cfg, err := config.Load(config.LoadOptions{File: cl.configPath, EnvFile: cl.envFile})
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, err
	}
	c, cleanup, err := server.Wire(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, c: c, cleanup: cleanup}, nil
}

func (cl *cli) common() query.Common {
	return query.Common{Source: cl.source, TTL: cl.ttl, ForceRefresh: cl.refresh}
}

// run opens the engine, executes one request and prints the result as JSON.
func (cl *cli) run(cmd *cobra.Command, req query.Request) error {
	a, err := cl.open()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.c.Facade.Do(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tanagraph v%s\n", server.Version)
		},
	}
}
