package cache

import (
	"context"
	"path/filepath"

	"github.com/HendryAvila/tanagraph/internal/export"
	"github.com/HendryAvila/tanagraph/internal/graph"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

// SourceKey turns a source path into its cache key: the cleaned absolute
// path, so two spellings of the same file share one entry.
func SourceKey(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// FileLoader parses the export file named by the key, indexes it and
// extracts its tags.
func FileLoader(opts tags.ExtractOptions) Loader {
	return func(_ context.Context, key string) (*Snapshot, error) {
		doc, err := export.ParseFile(key)
		if err != nil {
			return nil, err
		}
		ix, err := graph.Build(doc)
		if err != nil {
			return nil, err
		}
		return &Snapshot{
			WorkspaceID: ix.WorkspaceID,
			Index:       ix,
			Tags:        tags.Extract(ix, opts),
		}, nil
	}
}
