package query

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/cache"
	"github.com/HendryAvila/tanagraph/internal/keytags"
	"github.com/HendryAvila/tanagraph/internal/mutation"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

const threeNodes = `[
	{"id": "root", "name": "Root"},
	{"id": "child1", "name": "Child 1", "parentId": "root", "supertags": ["project"], "content": "first body"},
	{"id": "child2", "name": "Child 2", "parentId": "root", "content": "second body"}
]`

const notesDoc = `{"docs": [
	{"id": "spark", "props": {"name": "spark-note", "_docType": "tagDef"}},
	{"id": "book", "props": {"name": "book-note", "_docType": "tagDef", "_extends": ["spark"]}},
	{"id": "loopA", "props": {"name": "loop-a", "_docType": "tagDef", "_extends": ["loopB"]}},
	{"id": "loopB", "props": {"name": "loop-b", "_docType": "tagDef", "_extends": ["loopA"]}},
	{"id": "n1", "props": {"name": "Dune", "content": "# Quotes\nfear is the mind-killer"}, "supertags": ["book"]},
	{"id": "n2", "props": {"name": "Idea", "created": 1700000000000}, "supertags": ["spark"]},
	{"id": "n3", "props": {"name": "idea", "created": 1600000000000}, "supertags": ["spark"]},
	{"id": "SYS_x", "props": {"name": "system"}, "supertags": ["spark"]}
]}`

type harness struct {
	dir     string
	source  string
	cache   *cache.Store
	keytags *keytags.Store
	facade  *Facade
}

func newHarness(t *testing.T, doc string) *harness {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(source, []byte(doc), 0o644))

	store, err := cache.New(cache.FileLoader(tags.ExtractOptions{}), cache.Options{})
	require.NoError(t, err)
	kt := keytags.NewStore(filepath.Join(dir, "metadata"), nil)
	engine := mutation.NewEngine(store, mutation.NewFileSource(), mutation.NewFileBackups(filepath.Join(dir, "backups")), nil, nil)

	return &harness{
		dir:     dir,
		source:  source,
		cache:   store,
		keytags: kt,
		facade:  New(store, engine, Options{DefaultSource: source, Keytags: kt}),
	}
}

func ctx() context.Context { return context.Background() }

// ─── End to end ─────────────────────────────────────────────────────────────

func TestThreeNodeScenario(t *testing.T) {
	h := newHarness(t, threeNodes)

	list, err := h.facade.ListTags(ctx(), &ListTagsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Tags, 1)
	assert.Equal(t, "project", list.Tags[0].Name)
	assert.Equal(t, 1, list.Tags[0].UsageCount)

	nodes, err := h.facade.ListNodesByTag(ctx(), &ListNodesRequest{Tag: "project", IncludeInherited: true})
	require.NoError(t, err)
	require.Len(t, nodes.Nodes, 1)
	assert.Equal(t, "child1", nodes.Nodes[0].ID)
	assert.Equal(t, 1, nodes.Total)

	view, err := h.facade.ReadNode(ctx(), &ReadNodeRequest{NodeID: "root", IncludeChildren: true, Depth: 1})
	require.NoError(t, err)
	assert.Contains(t, view.Markdown, "Child 1")
	assert.Contains(t, view.Markdown, "Child 2")
	assert.Contains(t, view.Markdown, "first body")
	assert.Equal(t, []ChildSummary{{"child1", "Child 1"}, {"child2", "Child 2"}}, view.Children)
}

func TestReadNode_WithoutChildrenOmitsOutline(t *testing.T) {
	h := newHarness(t, threeNodes)

	view, err := h.facade.ReadNode(ctx(), &ReadNodeRequest{NodeID: "root"})
	require.NoError(t, err)
	assert.NotContains(t, view.Markdown, "Child 1")
	assert.Len(t, view.Children, 2, "children are still listed")

	view, err = h.facade.ReadNode(ctx(), &ReadNodeRequest{NodeID: "child1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(view.Markdown, "# Child 1\n"))
	assert.Contains(t, view.Markdown, "**Tags:** #project")
	assert.Equal(t, "first body", view.Content)
}

func TestReadNode_DepthLimitsOutline(t *testing.T) {
	h := newHarness(t, `[
		{"id": "a", "name": "A"},
		{"id": "b", "name": "B", "parentId": "a"},
		{"id": "c", "name": "C", "parentId": "b"},
		{"id": "d", "name": "D", "parentId": "c"}
	]`)

	view, err := h.facade.ReadNode(ctx(), &ReadNodeRequest{NodeID: "a", IncludeChildren: true, Depth: 2})
	require.NoError(t, err)
	assert.Contains(t, view.Markdown, "- B\n  - C\n")
	assert.NotContains(t, view.Markdown, "- D")
}

// ─── Tags and inheritance ───────────────────────────────────────────────────

func TestListTags_DirectoriesThroughInheritance(t *testing.T) {
	h := newHarness(t, notesDoc)
	_, err := h.keytags.SetDirectory("default_workspace", "spark-note", "notes")
	require.NoError(t, err)

	list, err := h.facade.ListTags(ctx(), &ListTagsRequest{IncludeChains: true, IncludeDirectories: true})
	require.NoError(t, err)
	require.Len(t, list.Tags, 4)

	byName := map[string]TagEntry{}
	for _, e := range list.Tags {
		byName[e.Name] = e
	}
	book := byName["book-note"]
	assert.Equal(t, "notes", book.Directory)
	assert.True(t, book.Inherited)
	assert.Equal(t, []string{"book", "spark"}, book.Chain)
	assert.Equal(t, []string{"book-note", "spark-note"}, book.ChainNames)

	spark := byName["spark-note"]
	assert.Equal(t, "notes", spark.Directory)
	assert.False(t, spark.Inherited)

	// A cycle leaves the chain empty but does not fail the listing.
	assert.Empty(t, byName["loop-a"].Chain)
	assert.True(t, tags.HasErrors(list.Conflicts))
}

func TestListTags_Filters(t *testing.T) {
	h := newHarness(t, notesDoc)

	list, err := h.facade.ListTags(ctx(), &ListTagsRequest{MinUsage: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)

	list, err = h.facade.ListTags(ctx(), &ListTagsRequest{NameContains: "BOOK"})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "book", list.Tags[0].ID)
	assert.Empty(t, list.Conflicts, "conflicts are only computed when enriching")
}

func TestConflicts(t *testing.T) {
	h := newHarness(t, notesDoc)

	report, err := h.facade.Conflicts(ctx(), &ConflictsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Errors, "one cycle error per tag in the loop")
	assert.Equal(t, 0, report.Warnings)
}

func TestListNodesByTag_Inherited(t *testing.T) {
	h := newHarness(t, notesDoc)

	direct, err := h.facade.ListNodesByTag(ctx(), &ListNodesRequest{Tag: "spark-note"})
	require.NoError(t, err)
	assert.Equal(t, []string{"n2", "n3"}, ids(direct.Nodes), "system nodes are skipped")

	all, err := h.facade.ListNodesByTag(ctx(), &ListNodesRequest{Tag: "Spark-Note", IncludeInherited: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"spark", "book"}, all.MatchedTags)
	assert.Equal(t, []string{"n1", "n2", "n3"}, ids(all.Nodes))
	assert.Equal(t, "book", all.Nodes[0].Via)
	assert.Empty(t, all.Nodes[1].Via)
}

func TestListNodesByTag_InheritedThroughCycle(t *testing.T) {
	h := newHarness(t, `{"docs": [
		{"id": "base", "props": {"name": "base", "_docType": "tagDef"}},
		{"id": "loop", "props": {"name": "loop", "_docType": "tagDef", "_extends": ["loop"]}},
		{"id": "kid", "props": {"name": "kid", "_docType": "tagDef", "_extends": ["base", "loop"]}},
		{"id": "n1", "props": {"name": "Looped"}, "supertags": ["kid"]}
	]}`)

	list, err := h.facade.ListNodesByTag(ctx(), &ListNodesRequest{Tag: "base", IncludeInherited: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "kid"}, list.MatchedTags)
	assert.Equal(t, []string{"n1"}, ids(list.Nodes))
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Conflicts, 1)
	assert.Equal(t, tags.ConflictCircular, list.Conflicts[0].Kind)
	assert.Equal(t, []string{"kid"}, list.Conflicts[0].TagIDs)
}

func TestListTags_DirectMappingSurvivesAncestorCycle(t *testing.T) {
	h := newHarness(t, notesDoc)
	_, err := h.keytags.SetDirectory("default_workspace", "loop-a", "loops")
	require.NoError(t, err)

	list, err := h.facade.ListTags(ctx(), &ListTagsRequest{IncludeDirectories: true})
	require.NoError(t, err)
	for _, e := range list.Tags {
		switch e.Name {
		case "loop-a":
			assert.Equal(t, "loops", e.Directory)
			assert.False(t, e.Inherited)
		case "loop-b":
			assert.Empty(t, e.Directory, "inherited lookup still needs a chain")
		}
	}
}

func TestListNodesByTag_SortAndPage(t *testing.T) {
	h := newHarness(t, notesDoc)
	req := func(sortBy, order string, offset, limit int) []string {
		t.Helper()
		res, err := h.facade.ListNodesByTag(ctx(), &ListNodesRequest{
			Tag: "spark", IncludeInherited: true, SortBy: sortBy, Order: order, Offset: offset, Limit: limit,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Total)
		return ids(res.Nodes)
	}

	// "Idea" and "idea" tie case-insensitively; exact comparison orders
	// upper case first.
	assert.Equal(t, []string{"n1", "n2", "n3"}, req("name", "asc", 0, 0))
	assert.Equal(t, []string{"n3", "n2", "n1"}, req("name", "desc", 0, 0))
	assert.Equal(t, []string{"n1", "n3", "n2"}, req("created", "asc", 0, 0))
	assert.Equal(t, []string{"n3", "n2", "n1"}, req("id", "desc", 0, 0))
	assert.Equal(t, []string{"n2"}, req("id", "asc", 1, 1))
	assert.Empty(t, req("id", "asc", 10, 5))

	// Repeated requests yield the same page.
	assert.Equal(t, req("modified", "desc", 0, 2), req("modified", "desc", 0, 2))
}

func TestListNodesByTag_UnknownTag(t *testing.T) {
	h := newHarness(t, notesDoc)
	_, err := h.facade.ListNodesByTag(ctx(), &ListNodesRequest{Tag: "nope"})
	assert.Equal(t, apperr.TagNotFound, apperr.KindOf(err))
	assert.Contains(t, apperr.Format(err), "list_tags")
}

func ids(nodes []NodeSummary) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// ─── Change detection ───────────────────────────────────────────────────────

func TestDetectChanges(t *testing.T) {
	h := newHarness(t, threeNodes)

	first, err := h.facade.DetectChanges(ctx(), &DetectChangesRequest{})
	require.NoError(t, err)
	assert.True(t, first.Changes.InitialLoad)
	assert.NotEmpty(t, first.Recorded)

	same, err := h.facade.DetectChanges(ctx(), &DetectChangesRequest{})
	require.NoError(t, err)
	assert.False(t, same.HasChanges)
	assert.Equal(t, first.Recorded, same.Previous)
	assert.Empty(t, same.Recorded, "nothing differs, nothing recorded")

	updated := strings.Replace(threeNodes, `"content": "second body"}`, `"content": "second body", "supertags": ["person"]}`, 1)
	require.NoError(t, os.WriteFile(h.source, []byte(updated), 0o644))

	dry, err := h.facade.DetectChanges(ctx(), &DetectChangesRequest{Common: Common{ForceRefresh: true}, DryRun: true})
	require.NoError(t, err)
	require.Len(t, dry.Changes.Added, 1)
	assert.Equal(t, "person", dry.Changes.Added[0].ID)
	assert.Empty(t, dry.Recorded)

	next, err := h.facade.DetectChanges(ctx(), &DetectChangesRequest{})
	require.NoError(t, err)
	assert.True(t, next.HasChanges, "dry run did not record")
	assert.NotEmpty(t, next.Recorded)
}

// ─── Mutation ───────────────────────────────────────────────────────────────

func TestAppendToNode_DropsCachedSnapshot(t *testing.T) {
	h := newHarness(t, notesDoc)

	before, err := h.facade.ReadNode(ctx(), &ReadNodeRequest{NodeID: "n1"})
	require.NoError(t, err)

	res, err := h.facade.AppendToNode(ctx(), &AppendRequest{
		NodeID: "n1", Content: "spice must flow", Position: "after_section", Section: "quotes",
	})
	require.NoError(t, err)
	assert.FileExists(t, res.NodeBackup)
	assert.FileExists(t, res.DocumentBackup)

	after, err := h.facade.ReadNode(ctx(), &ReadNodeRequest{NodeID: "n1"})
	require.NoError(t, err)
	assert.NotEqual(t, before.Content, after.Content)
	assert.Contains(t, after.Content, "spice must flow")
}

func TestAppendToNode_Disabled(t *testing.T) {
	h := newHarness(t, threeNodes)
	f := New(h.cache, nil, Options{DefaultSource: h.source})

	_, err := f.AppendToNode(ctx(), &AppendRequest{NodeID: "root", Content: "x"})
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
}

// ─── Dispatch and validation ────────────────────────────────────────────────

func TestDispatch_DecodeAndDo(t *testing.T) {
	h := newHarness(t, threeNodes)

	for _, op := range Ops {
		_, ok := h.facade.routes[op]
		assert.True(t, ok, "no route for %s", op)
	}

	req, err := h.facade.Decode("read_node", []byte(`{"node_id": "root", "include_children": true}`))
	require.NoError(t, err)
	out, err := h.facade.Do(ctx(), req)
	require.NoError(t, err)
	view, ok := out.(*NodeView)
	require.True(t, ok, "got %T", out)
	assert.Len(t, view.Children, 2)

	_, err = h.facade.Decode("drop_tables", nil)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	_, err = h.facade.Decode("read_node", []byte(`{"node_id": 7}`))
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	_, err = h.facade.Do(ctx(), nil)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
}

func TestValidation(t *testing.T) {
	h := newHarness(t, threeNodes)

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"missing node id", &ReadNodeRequest{}, "node_id is required"},
		{"negative depth", &ReadNodeRequest{NodeID: "x", Depth: -1}, "depth must be at least 0"},
		{"bad sort", &ListNodesRequest{Tag: "t", SortBy: "size"}, "sort_by must be one of"},
		{"bad order", &ListNodesRequest{Tag: "t", Order: "up"}, "order must be one of"},
		{"section required", &AppendRequest{NodeID: "n", Content: "c", Position: "before_section"}, "section is required"},
		{"bad position", &AppendRequest{NodeID: "n", Content: "c", Position: "middle"}, "position must be one of"},
		{"limit too large", &ListNodesRequest{Tag: "t", Limit: 5000}, "limit must be at most 1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.facade.Do(ctx(), tt.req)
			require.Error(t, err)
			assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSourceErrors(t *testing.T) {
	h := newHarness(t, threeNodes)

	_, err := h.facade.ListTags(ctx(), &ListTagsRequest{Common: Common{Source: filepath.Join(h.dir, "missing.json")}})
	assert.Equal(t, apperr.SourceNotFound, apperr.KindOf(err))

	bare := New(h.cache, nil, Options{})
	_, err = bare.ListTags(ctx(), &ListTagsRequest{})
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	_, err = h.facade.ReadNode(ctx(), &ReadNodeRequest{NodeID: "ghost"})
	assert.Equal(t, apperr.NodeNotFound, apperr.KindOf(err))
}

func TestSourceResolve(t *testing.T) {
	h := newHarness(t, threeNodes)
	f := New(h.cache, nil, Options{
		Resolve: func(p string) string { return filepath.Join(h.dir, p) },
	})

	list, err := f.ListTags(ctx(), &ListTagsRequest{Common: Common{Source: "export.json"}})
	require.NoError(t, err)
	assert.Equal(t, h.source, list.Source)
}
