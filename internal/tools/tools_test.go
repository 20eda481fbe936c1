package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/cache"
	"github.com/HendryAvila/tanagraph/internal/keytags"
	"github.com/HendryAvila/tanagraph/internal/mutation"
	"github.com/HendryAvila/tanagraph/internal/query"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

// --- Test helpers ---

const testExport = `{"workspace_id": "ws1", "docs": [
	{"id": "spark", "props": {"name": "spark-note", "_docType": "tagDef"}},
	{"id": "book", "props": {"name": "book-note", "_docType": "tagDef", "_extends": ["spark"]}},
	{"id": "root", "props": {"name": "Reading"}, "children": ["n1", "n2"]},
	{"id": "n1", "props": {"name": "Dune", "content": "# Quotes\nfear is the mind-killer"}, "supertags": ["book"]},
	{"id": "n2", "props": {"name": "Idea"}, "supertags": ["spark"]}
]}`

type fixture struct {
	dir     string
	source  string
	keytags *keytags.Store
	facade  *query.Facade
}

// setupFixture writes the export to a temp dir and wires a façade over it
// with the real cache, keytags store and mutation engine.
func setupFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "export.json")
	if err := os.WriteFile(source, []byte(testExport), 0o644); err != nil {
		t.Fatalf("setup: write export: %v", err)
	}

	store, err := cache.New(cache.FileLoader(tags.ExtractOptions{}), cache.Options{})
	if err != nil {
		t.Fatalf("setup: cache: %v", err)
	}
	kt := keytags.NewStore(filepath.Join(dir, "metadata"), nil)
	engine := mutation.NewEngine(store, mutation.NewFileSource(), mutation.NewFileBackups(filepath.Join(dir, "backups")), nil, nil)

	return &fixture{
		dir:     dir,
		source:  source,
		keytags: kt,
		facade:  query.New(store, engine, query.Options{DefaultSource: source, Keytags: kt}),
	}
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// isErrorResult checks if the result is a tool error.
func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// decodeResult unmarshals a successful JSON result into v.
func decodeResult(t *testing.T, result *mcp.CallToolResult, err error, v any) {
	t.Helper()
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if isErrorResult(result) {
		t.Fatalf("expected success, got error: %s", getResultText(result))
	}
	if err := json.Unmarshal([]byte(getResultText(result)), v); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, getResultText(result))
	}
}

// --- Definitions ---

func TestDefinitions(t *testing.T) {
	f := setupFixture(t)
	defs := map[string]mcp.Tool{
		"tana_list_tags":      NewListTagsTool(f.facade).Definition(),
		"tana_read_node":      NewReadNodeTool(f.facade).Definition(),
		"tana_list_nodes":     NewListNodesTool(f.facade).Definition(),
		"tana_append_to_node": NewAppendTool(f.facade).Definition(),
		"tana_detect_changes": NewDetectChangesTool(f.facade).Definition(),
		"tana_conflicts":      NewConflictsTool(f.facade).Definition(),
		"tana_keytags":        NewKeytagsTool(f.keytags, f.facade).Definition(),
	}
	for name, def := range defs {
		if def.Name != name {
			t.Errorf("Definition().Name = %q, want %q", def.Name, name)
		}
		if def.Description == "" {
			t.Errorf("%s has no description", name)
		}
		if _, ok := def.InputSchema.Properties["source"]; !ok {
			t.Errorf("%s does not accept a source argument", name)
		}
	}

	required := defs["tana_read_node"].InputSchema.Required
	if len(required) != 1 || required[0] != "node_id" {
		t.Errorf("tana_read_node required = %v, want [node_id]", required)
	}
}

// --- ListTagsTool ---

func TestListTagsTool_Handle(t *testing.T) {
	f := setupFixture(t)
	if _, err := f.keytags.SetDirectory("ws1", "spark-note", "notes"); err != nil {
		t.Fatalf("setup: set directory: %v", err)
	}
	tool := NewListTagsTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"include_chains":      true,
		"include_directories": true,
		"name_contains":       "BOOK",
	}))
	var list query.TagList
	decodeResult(t, result, err, &list)

	if list.WorkspaceID != "ws1" {
		t.Errorf("workspace = %q, want ws1", list.WorkspaceID)
	}
	if len(list.Tags) != 1 {
		t.Fatalf("got %d tags, want 1", len(list.Tags))
	}
	book := list.Tags[0]
	if book.Directory != "notes" || !book.Inherited {
		t.Errorf("book directory = %q (inherited %v), want notes via spark", book.Directory, book.Inherited)
	}
	if strings.Join(book.Chain, ",") != "book,spark" {
		t.Errorf("chain = %v, want [book spark]", book.Chain)
	}
}

func TestListTagsTool_MissingSource(t *testing.T) {
	f := setupFixture(t)
	tool := NewListTagsTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"source": filepath.Join(f.dir, "nope.json"),
	}))
	if err != nil {
		t.Fatalf("Handle returned a Go error for a missing source: %v", err)
	}
	if !isErrorResult(result) {
		t.Fatal("expected error result for a missing source")
	}
	if !strings.Contains(getResultText(result), "[SOURCE_NOT_FOUND]") {
		t.Errorf("error should carry the code, got: %s", getResultText(result))
	}
}

// --- ReadNodeTool ---

func TestReadNodeTool_Markdown(t *testing.T) {
	f := setupFixture(t)
	tool := NewReadNodeTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"node_id":          "root",
		"include_children": true,
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if isErrorResult(result) {
		t.Fatalf("expected success, got error: %s", getResultText(result))
	}
	text := getResultText(result)
	if !strings.HasPrefix(text, "# Reading\n") {
		t.Errorf("markdown should start with the title, got: %s", text)
	}
	for _, want := range []string{"- Dune", "- Idea"} {
		if !strings.Contains(text, want) {
			t.Errorf("outline should contain %q, got: %s", want, text)
		}
	}
}

func TestReadNodeTool_JSON(t *testing.T) {
	f := setupFixture(t)
	tool := NewReadNodeTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"node_id": "n1",
		"format":  "json",
	}))
	var view query.NodeView
	decodeResult(t, result, err, &view)
	if view.Name != "Dune" || !strings.Contains(view.Content, "mind-killer") {
		t.Errorf("view = %+v", view)
	}
}

func TestReadNodeTool_Errors(t *testing.T) {
	f := setupFixture(t)
	tool := NewReadNodeTool(f.facade)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing node id", map[string]interface{}{}, "node_id is required"},
		{"unknown node", map[string]interface{}{"node_id": "ghost"}, "[NODE_NOT_FOUND]"},
		{"depth too large", map[string]interface{}{"node_id": "root", "depth": float64(50)}, "depth must be at most 20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Handle(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("Handle returned a Go error: %v", err)
			}
			if !isErrorResult(result) {
				t.Fatal("expected error result")
			}
			if !strings.Contains(getResultText(result), tt.want) {
				t.Errorf("error = %q, want it to contain %q", getResultText(result), tt.want)
			}
		})
	}
}

// --- ListNodesTool ---

func TestListNodesTool_Handle(t *testing.T) {
	f := setupFixture(t)
	tool := NewListNodesTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"tag":               "spark-note",
		"include_inherited": true,
		"sort_by":           "name",
		"order":             "desc",
		"limit":             float64(1),
	}))
	var list query.NodeList
	decodeResult(t, result, err, &list)

	if list.Total != 2 {
		t.Errorf("total = %d, want 2", list.Total)
	}
	if len(list.Nodes) != 1 || list.Nodes[0].Name != "Idea" {
		t.Errorf("first page = %+v, want [Idea]", list.Nodes)
	}
}

func TestListNodesTool_UnknownTag(t *testing.T) {
	f := setupFixture(t)
	tool := NewListNodesTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{"tag": "nope"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !isErrorResult(result) || !strings.Contains(getResultText(result), "list_tags") {
		t.Errorf("expected a TAG_NOT_FOUND error with a remedy, got: %s", getResultText(result))
	}
}

// --- AppendTool ---

func TestAppendTool_Handle(t *testing.T) {
	f := setupFixture(t)
	tool := NewAppendTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"node_id":  "n1",
		"content":  "the spice must flow",
		"position": "after_section",
		"section":  "quotes",
	}))
	var res mutation.Result
	decodeResult(t, result, err, &res)

	if res.NodeBackup == "" || res.DocumentBackup == "" {
		t.Errorf("backups not reported: %+v", res)
	}
	data, err := os.ReadFile(f.source)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "the spice must flow") {
		t.Error("source was not updated")
	}

	// The next read sees the new body.
	read := NewReadNodeTool(f.facade)
	result, err = read.Handle(context.Background(), callRequest(map[string]interface{}{"node_id": "n1"}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(getResultText(result), "the spice must flow") {
		t.Errorf("read after append = %s", getResultText(result))
	}
}

func TestAppendTool_SectionRequired(t *testing.T) {
	f := setupFixture(t)
	tool := NewAppendTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"node_id":  "n1",
		"content":  "x",
		"position": "before_section",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !isErrorResult(result) || !strings.Contains(getResultText(result), "section is required") {
		t.Errorf("expected a missing section error, got: %s", getResultText(result))
	}
}

// --- DetectChangesTool ---

func TestDetectChangesTool_Handle(t *testing.T) {
	f := setupFixture(t)
	tool := NewDetectChangesTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(nil))
	var first query.ChangeReport
	decodeResult(t, result, err, &first)
	if !first.Changes.InitialLoad || first.Recorded == "" {
		t.Errorf("first call = %+v, want a recorded initial load", first)
	}

	result, err = tool.Handle(context.Background(), callRequest(map[string]interface{}{"dry_run": true}))
	var second query.ChangeReport
	decodeResult(t, result, err, &second)
	if second.HasChanges || second.Recorded != "" {
		t.Errorf("second call = %+v, want no changes", second)
	}
}

// --- ConflictsTool ---

func TestConflictsTool_Handle(t *testing.T) {
	f := setupFixture(t)
	if _, err := f.keytags.AddParent("ws1", "spark", "book"); err != nil {
		t.Fatalf("setup: add parent: %v", err)
	}
	tool := NewConflictsTool(f.facade)

	result, err := tool.Handle(context.Background(), callRequest(nil))
	var report query.ConflictReport
	decodeResult(t, result, err, &report)
	if report.Errors == 0 {
		t.Errorf("expected a circular inheritance error, got %+v", report)
	}
}

// --- KeytagsTool ---

func TestKeytagsTool_EditAndShow(t *testing.T) {
	f := setupFixture(t)
	tool := NewKeytagsTool(f.keytags, f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"action":    "set_directory",
		"tag":       "book-note",
		"directory": "library",
	}))
	var view keytagsView
	decodeResult(t, result, err, &view)
	if view.WorkspaceID != "ws1" {
		t.Errorf("workspace = %q, want ws1 from the source", view.WorkspaceID)
	}
	if view.Directories["book-note"] != "library" {
		t.Errorf("directories = %v", view.Directories)
	}

	result, err = tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"action": "show", "workspace_id": "ws1",
	}))
	decodeResult(t, result, err, &view)
	if view.Stats.DirectoryCount != 1 {
		t.Errorf("directory count = %d, want 1", view.Stats.DirectoryCount)
	}

	result, err = tool.Handle(context.Background(), callRequest(map[string]interface{}{
		"action": "remove_directory", "tag": "ghost",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !isErrorResult(result) || !strings.Contains(getResultText(result), "[TAG_NOT_FOUND]") {
		t.Errorf("expected TAG_NOT_FOUND, got: %s", getResultText(result))
	}
}

func TestKeytagsTool_RegisterAndList(t *testing.T) {
	f := setupFixture(t)
	tool := NewKeytagsTool(f.keytags, f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{"action": "register"}))
	var view keytagsView
	decodeResult(t, result, err, &view)
	if view.Stats.UserDefinedCount != 2 {
		t.Errorf("registered %d tags, want 2", view.Stats.UserDefinedCount)
	}

	result, err = tool.Handle(context.Background(), callRequest(map[string]interface{}{"action": "list"}))
	var list []keytags.Summary
	decodeResult(t, result, err, &list)
	if len(list) != 1 || list[0].WorkspaceID != "ws1" || list[0].SourceFile != f.source {
		t.Errorf("list = %+v", list)
	}
}

func TestKeytagsTool_UnknownAction(t *testing.T) {
	f := setupFixture(t)
	tool := NewKeytagsTool(f.keytags, f.facade)

	result, err := tool.Handle(context.Background(), callRequest(map[string]interface{}{"action": "explode"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !isErrorResult(result) {
		t.Error("expected error result for an unknown action")
	}
}
