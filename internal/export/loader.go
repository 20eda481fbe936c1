package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/HendryAvila/tanagraph/internal/apperr"
)

// Parse decodes raw export bytes and recognizes their shape.
//
// It fails with MalformedInput when the bytes are not a single well-formed
// JSON value, and with UnrecognizedSchema when no tolerated shape matches.
// Parse never touches the filesystem.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, apperr.Wrap(apperr.MalformedInput, err, "export is not valid JSON").
			WithRemedy("check that the file is a complete JSON export")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, apperr.New(apperr.MalformedInput, "unexpected data after the top-level JSON value").
			WithRemedy("check that the file is a complete JSON export")
	}

	rec := Recognize(root)
	if rec.Unrecognized {
		return nil, apperr.New(apperr.UnrecognizedSchema,
			"export matches none of the tolerated shapes (collection, array, single node)").
			WithRemedy("export the workspace as JSON from Tana, or provide a node array")
	}

	records, skipped, wsHint := collect(rec.Nodes)
	linkChildren(records)

	ws := workspaceID(root, wsHint)
	return &Document{
		Shape:       rec.Shape,
		Records:     records,
		WorkspaceID: ws,
		Expanded:    expandedNodes(root, ws),
		Skipped:     skipped,
		root:        root,
	}, nil
}

// ParseFile reads and parses the export at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.SourceNotFound, err, "export %s not found", path).
				WithRemedy("check the source path or set source_path in the config")
		}
		return nil, fmt.Errorf("reading export %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.Source = path
	return doc, nil
}

// linkChildren fills ParentID for flat records that are only linked from
// their parent's children list. The first referencing parent wins.
func linkChildren(records []*Record) {
	byID := make(map[string]*Record, len(records))
	for _, r := range records {
		if _, dup := byID[r.ID]; !dup {
			byID[r.ID] = r
		}
	}
	for _, r := range records {
		for _, cid := range r.ChildIDs {
			if c, ok := byID[cid]; ok && c.ParentID == "" && c.ID != r.ID {
				c.ParentID = r.ID
			}
		}
	}
}
