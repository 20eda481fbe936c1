package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/tanagraph/internal/keytags"
	"github.com/HendryAvila/tanagraph/internal/query"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

func newKeytagsCmd(cl *cli) *cobra.Command {
	var workspace string
	cmd := &cobra.Command{
		Use:   "keytags",
		Short: "Show or edit the keytags configuration of a workspace",
		Long: `Show or edit the keytags configuration: directory mappings, extra
inheritance links and the registry of known supertags. The workspace defaults
to the one of the source.`,
	}
	cmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace id (default: workspace of the source)")

	// edit runs fn against the resolved workspace and prints its stats.
	edit := func(fn func(s *keytags.Store, ws string, args []string) (*keytags.File, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := cl.open()
			if err != nil {
				return err
			}
			defer a.close()

			ws := workspace
			if ws == "" {
				list, err := sourceTags(cmd, cl, a)
				if err != nil {
					return err
				}
				ws = list.WorkspaceID
			}
			f, err := fn(a.c.Keytags, ws, args)
			if err != nil {
				return err
			}
			return printJSON(cmd, f)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List configured workspaces",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := cl.open()
				if err != nil {
					return err
				}
				defer a.close()
				list, err := a.c.Keytags.List()
				if err != nil {
					return err
				}
				if list == nil {
					list = []keytags.Summary{}
				}
				return printJSON(cmd, list)
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the keytags file",
			Args:  cobra.NoArgs,
			RunE: edit(func(s *keytags.Store, ws string, _ []string) (*keytags.File, error) {
				return s.Load(ws)
			}),
		},
		&cobra.Command{
			Use:   "set-dir <tag> <directory>",
			Short: "Map a tag to an output directory",
			Args:  cobra.ExactArgs(2),
			RunE: edit(func(s *keytags.Store, ws string, args []string) (*keytags.File, error) {
				return s.SetDirectory(ws, args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "rm-dir <tag>",
			Short: "Remove a tag's directory mapping",
			Args:  cobra.ExactArgs(1),
			RunE: edit(func(s *keytags.Store, ws string, args []string) (*keytags.File, error) {
				return s.RemoveDirectory(ws, args[0])
			}),
		},
		&cobra.Command{
			Use:   "add-parent <tag> <parent>",
			Short: "Make a tag inherit from another",
			Args:  cobra.ExactArgs(2),
			RunE: edit(func(s *keytags.Store, ws string, args []string) (*keytags.File, error) {
				return s.AddParent(ws, args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "rm-parent <tag> <parent>",
			Short: "Remove an inheritance link",
			Args:  cobra.ExactArgs(2),
			RunE: edit(func(s *keytags.Store, ws string, args []string) (*keytags.File, error) {
				return s.RemoveParent(ws, args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "register",
			Short: "Import the source's supertags into the registry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := cl.open()
				if err != nil {
					return err
				}
				defer a.close()

				list, err := sourceTags(cmd, cl, a)
				if err != nil {
					return err
				}
				ws := workspace
				if ws == "" {
					ws = list.WorkspaceID
				}
				extracted := make([]tags.Tag, 0, len(list.Tags))
				for _, e := range list.Tags {
					extracted = append(extracted, e.Tag)
				}
				f, err := a.c.Keytags.RegisterTags(ws, list.Source, extracted)
				if err != nil {
					return err
				}
				return printJSON(cmd, f.Stats())
			},
		},
	)
	return cmd
}

func sourceTags(cmd *cobra.Command, cl *cli, a *app) (*query.TagList, error) {
	res, err := a.c.Facade.Do(cmd.Context(), &query.ListTagsRequest{Common: cl.common()})
	if err != nil {
		return nil, err
	}
	list, ok := res.(*query.TagList)
	if !ok {
		return nil, fmt.Errorf("list_tags returned %T", res)
	}
	return list, nil
}
