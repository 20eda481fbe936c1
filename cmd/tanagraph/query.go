package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/tanagraph/internal/query"
)

func newTagsCmd(cl *cli) *cobra.Command {
	req := &query.ListTagsRequest{}
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List the supertags of an export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Common = cl.common()
			return cl.run(cmd, req)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&req.IncludeChains, "chains", false, "include inheritance chains")
	f.BoolVar(&req.IncludeDirectories, "directories", false, "include directory mappings")
	f.StringVar(&req.NameContains, "name", "", "only tags whose name contains this text")
	f.IntVar(&req.MinUsage, "min-usage", 0, "only tags used at least this often")
	return cmd
}

func newReadCmd(cl *cli) *cobra.Command {
	req := &query.ReadNodeRequest{}
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "read <node-id>",
		Short: "Render a node as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Common = cl.common()
			req.NodeID = args[0]
			if asJSON {
				return cl.run(cmd, req)
			}

			a, err := cl.open()
			if err != nil {
				return err
			}
			defer a.close()
			res, err := a.c.Facade.Do(cmd.Context(), req)
			if err != nil {
				return err
			}
			view, ok := res.(*query.NodeView)
			if !ok {
				return fmt.Errorf("read_node returned %T", res)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), view.Markdown)
			return err
		},
	}
	f := cmd.Flags()
	f.BoolVar(&req.IncludeChildren, "children", false, "render an outline of the children")
	f.IntVar(&req.Depth, "depth", 0, "levels of children to render (default 1)")
	f.BoolVar(&asJSON, "json", false, "print the structured view instead of markdown")
	return cmd
}

func newNodesCmd(cl *cli) *cobra.Command {
	req := &query.ListNodesRequest{}
	cmd := &cobra.Command{
		Use:   "nodes <tag>",
		Short: "List the nodes carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Common = cl.common()
			req.Tag = args[0]
			return cl.run(cmd, req)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&req.IncludeInherited, "inherited", false, "include nodes tagged with descendant tags")
	f.StringVar(&req.SortBy, "sort", "", "sort key: name, created, modified or id")
	f.StringVar(&req.Order, "order", "", "sort order: asc or desc")
	f.IntVar(&req.Offset, "offset", 0, "matching nodes to skip")
	f.IntVar(&req.Limit, "limit", 0, "page size (default 50)")
	return cmd
}

func newAppendCmd(cl *cli) *cobra.Command {
	req := &query.AppendRequest{}
	cmd := &cobra.Command{
		Use:   "append <node-id> <content|->",
		Short: "Append content to a node, backing it up first",
		Long: `Append content to a node's body and write the export back atomically.
The node and the whole document are backed up before the write. Pass "-" as
content to read it from stdin.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := args[1]
			if content == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading content: %w", err)
				}
				content = strings.TrimRight(string(data), "\n")
			}
			req.Common = cl.common()
			req.NodeID = args[0]
			req.Content = content
			return cl.run(cmd, req)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Position, "position", "", "start, end, before_section or after_section (default end)")
	f.StringVar(&req.Section, "section", "", "heading the section positions refer to")
	return cmd
}

func newChangesCmd(cl *cli) *cobra.Command {
	req := &query.DetectChangesRequest{}
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Compare the tags with the last recorded snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Common = cl.common()
			return cl.run(cmd, req)
		},
	}
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "compare without recording a new snapshot")
	return cmd
}

func newConflictsCmd(cl *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "Report inheritance cycles and directory clashes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cl.run(cmd, &query.ConflictsRequest{Common: cl.common()})
		},
	}
}

func newCallCmd(cl *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "call <operation> [json-arguments]",
		Short: "Run any operation with JSON arguments",
		Long: `Run an operation by name, the way an MCP host does. Operations:
list_tags, read_node, list_nodes_by_tag, append_to_node, detect_changes,
conflicts. Arguments use the request's JSON field names; --source, --ttl and
--refresh fill in fields the arguments leave out.`,
		Example: `  tanagraph call read_node '{"node_id": "abc", "include_children": true}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			if len(args) == 2 {
				raw = []byte(args[1])
			}
			merged, err := withCommon(cl.common(), raw)
			if err != nil {
				return err
			}

			a, err := cl.open()
			if err != nil {
				return err
			}
			defer a.close()

			req, err := a.c.Facade.Decode(args[0], merged)
			if err != nil {
				return err
			}
			res, err := a.c.Facade.Do(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

// withCommon overlays raw JSON arguments on the flag defaults.
func withCommon(c query.Common, raw []byte) ([]byte, error) {
	base, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		var args map[string]json.RawMessage
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
		}
		for k, v := range args {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}
