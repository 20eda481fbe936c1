package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/tanagraph/internal/apperr"
)

// Find returns the record with the given id, or nil.
func (d *Document) Find(id string) *Record {
	for _, r := range d.Records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// SetBody replaces a node's text body in the decoded tree, writing to the
// field the body was read from, and stamps the edit time in epoch
// milliseconds. The record itself is updated to match.
//
// Documents handed out by the cache must never be passed here; callers
// mutate a freshly parsed copy.
func (d *Document) SetBody(id, text string, edited time.Time) error {
	rec := d.Find(id)
	if rec == nil {
		return apperr.New(apperr.NodeNotFound, "node %q not found in document", id)
	}

	target := rec.raw
	field := rec.ContentField
	if strings.HasPrefix(field, "props.") {
		props, ok := rec.raw["props"].(map[string]any)
		if !ok {
			props = make(map[string]any)
			rec.raw["props"] = props
		}
		target = props
		field = strings.TrimPrefix(field, "props.")
	}
	target[field] = text

	stamp := json.Number(fmt.Sprintf("%d", edited.UnixMilli()))
	if props, ok := rec.raw["props"].(map[string]any); ok && !hasKey(rec.raw, "edited") {
		props["edited"] = stamp
	} else {
		rec.raw["edited"] = stamp
	}

	rec.Content = text
	rec.Modified = edited.UTC()
	rec.Body = buildBody(text, rec.ChildIDs)
	return nil
}

// Marshal encodes the decoded tree back to indented JSON.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d.root); err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return buf.Bytes(), nil
}
