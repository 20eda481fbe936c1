package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/keytags"
	"github.com/HendryAvila/tanagraph/internal/query"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

// Keytags actions.
const (
	actionShow            = "show"
	actionList            = "list"
	actionSetDirectory    = "set_directory"
	actionRemoveDirectory = "remove_directory"
	actionAddParent       = "add_parent"
	actionRemoveParent    = "remove_parent"
	actionRegister        = "register"
)

// KeytagsTool handles the tana_keytags MCP tool. It edits the per-workspace
// configuration the resolver reads: directory mappings and extra
// inheritance links.
type KeytagsTool struct {
	store  *keytags.Store
	runner Runner
}

// NewKeytagsTool creates a KeytagsTool. The runner is used to find the
// workspace of a source and, for register, its tags.
func NewKeytagsTool(store *keytags.Store, runner Runner) *KeytagsTool {
	return &KeytagsTool{store: store, runner: runner}
}

// keytagsView is what every action returns.
type keytagsView struct {
	Action      string              `json:"action"`
	WorkspaceID string              `json:"workspace_id"`
	Path        string              `json:"path"`
	Directories map[string]string   `json:"directories"`
	Inheritance map[string][]string `json:"inheritance"`
	Stats       keytags.Stats       `json:"stats"`
}

// Definition returns the MCP tool definition for registration.
func (t *KeytagsTool) Definition() mcp.Tool {
	return newTool("tana_keytags",
		mcp.WithDescription(
			"Show or edit the keytags configuration of a workspace: which output "+
				"directory a tag maps to and which extra parents a tag inherits from. "+
				"`register` imports the source's current tags into the registry; "+
				"`list` shows every configured workspace. The workspace defaults to "+
				"the one of the source.",
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("What to do."),
			mcp.Enum(actionShow, actionList, actionSetDirectory, actionRemoveDirectory,
				actionAddParent, actionRemoveParent, actionRegister),
		),
		mcp.WithString("workspace_id",
			mcp.Description("Workspace to act on. Omit to use the workspace of the source."),
		),
		mcp.WithString("tag",
			mcp.Description("Tag id or name. Required by every edit action."),
		),
		mcp.WithString("directory",
			mcp.Description("Directory label for set_directory."),
		),
		mcp.WithString("parent",
			mcp.Description("Parent tag id or name for add_parent and remove_parent."),
		),
	)
}

// Handle processes the tana_keytags tool call.
func (t *KeytagsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := req.GetString("action", "")
	if action == actionList {
		list, err := t.store.List()
		if err != nil {
			return nil, fmt.Errorf("listing workspaces: %w", err)
		}
		if list == nil {
			list = []keytags.Summary{}
		}
		return jsonResult(list)
	}

	tag := req.GetString("tag", "")
	ws := req.GetString("workspace_id", "")

	var (
		f   *keytags.File
		err error
	)
	switch action {
	case actionShow, actionSetDirectory, actionRemoveDirectory, actionAddParent, actionRemoveParent:
		if ws == "" {
			if ws, err = t.workspace(ctx, req); err != nil {
				return failure(err)
			}
		}
		switch action {
		case actionShow:
			f, err = t.store.Load(ws)
		case actionSetDirectory:
			f, err = t.store.SetDirectory(ws, tag, req.GetString("directory", ""))
		case actionRemoveDirectory:
			f, err = t.store.RemoveDirectory(ws, tag)
		case actionAddParent:
			f, err = t.store.AddParent(ws, tag, req.GetString("parent", ""))
		case actionRemoveParent:
			f, err = t.store.RemoveParent(ws, tag, req.GetString("parent", ""))
		}
	case actionRegister:
		f, err = t.register(ctx, req, ws)
	default:
		return mcp.NewToolResultError(fmt.Sprintf(
			"Unknown action %q. Use one of: show, list, set_directory, remove_directory, add_parent, remove_parent, register.", action)), nil
	}
	if err != nil {
		return failure(err)
	}

	return jsonResult(keytagsView{
		Action:      action,
		WorkspaceID: f.WorkspaceID,
		Path:        t.store.Path(f.WorkspaceID),
		Directories: f.Directories,
		Inheritance: f.Inheritance,
		Stats:       f.Stats(),
	})
}

// workspace returns the workspace id of the request's source.
func (t *KeytagsTool) workspace(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	list, err := t.tags(ctx, req)
	if err != nil {
		return "", err
	}
	return list.WorkspaceID, nil
}

func (t *KeytagsTool) tags(ctx context.Context, req mcp.CallToolRequest) (*query.TagList, error) {
	res, err := t.runner.Do(ctx, &query.ListTagsRequest{Common: commonArgs(req)})
	if err != nil {
		return nil, err
	}
	return res.(*query.TagList), nil
}

// register syncs the supertag registry with the source's tags.
func (t *KeytagsTool) register(ctx context.Context, req mcp.CallToolRequest, ws string) (*keytags.File, error) {
	list, err := t.tags(ctx, req)
	if err != nil {
		return nil, err
	}
	if ws == "" {
		ws = list.WorkspaceID
	}
	extracted := make([]tags.Tag, 0, len(list.Tags))
	for _, e := range list.Tags {
		extracted = append(extracted, e.Tag)
	}
	return t.store.RegisterTags(ws, list.Source, extracted)
}
