package resources

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tanagraph/internal/cache"
	"github.com/HendryAvila/tanagraph/internal/query"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

func newHandler(t *testing.T, source string) *Handler {
	t.Helper()
	store, err := cache.New(cache.FileLoader(tags.ExtractOptions{}), cache.Options{})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	return NewHandler(query.New(store, nil, query.Options{DefaultSource: source}))
}

func readTags(t *testing.T, h *Handler) mcp.TextResourceContents {
	t.Helper()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = TagsURI

	contents, err := h.HandleTags(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleTags failed: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents[0] is %T, want TextResourceContents", contents[0])
	}
	return text
}

func TestTagsResource_Definition(t *testing.T) {
	res := newHandler(t, "").TagsResource()
	if res.URI != TagsURI {
		t.Errorf("URI = %q, want %q", res.URI, TagsURI)
	}
	if res.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", res.MIMEType)
	}
}

func TestHandleTags(t *testing.T) {
	source := filepath.Join(t.TempDir(), "export.json")
	doc := `[{"id": "a", "name": "A", "supertags": ["project"]}, {"id": "b", "name": "B", "supertags": ["project"]}]`
	if err := os.WriteFile(source, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	text := readTags(t, newHandler(t, source))
	if text.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", text.MIMEType)
	}
	var list query.TagList
	if err := json.Unmarshal([]byte(text.Text), &list); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(list.Tags) != 1 || list.Tags[0].Name != "project" || list.Tags[0].UsageCount != 2 {
		t.Errorf("tags = %+v", list.Tags)
	}
}

func TestHandleTags_NoSource(t *testing.T) {
	text := readTags(t, newHandler(t, ""))
	if text.MIMEType != "text/plain" || !strings.Contains(text.Text, "[INVALID_REQUEST]") {
		t.Errorf("got %q (%s), want an INVALID_REQUEST error", text.Text, text.MIMEType)
	}
}
