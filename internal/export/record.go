package export

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// tagDefDocType is the props._docType value Tana uses for supertag
// definitions.
const tagDefDocType = "tagDef"

var workspaceFields = []string{"workspace_id", "workspaceId", "workspace", "space_id", "spaceId"}

// pending is a raw node object waiting to be normalized, with the id of the
// object it was nested under.
type pending struct {
	obj      map[string]any
	parentID string
}

// collect walks the given top-level node objects iteratively and returns
// normalized records in pre-order. Each object is visited exactly once.
func collect(top []any) (records []*Record, skipped int, wsHint string) {
	stack := make([]pending, 0, len(top))
	for i := len(top) - 1; i >= 0; i-- {
		if obj, ok := top[i].(map[string]any); ok {
			stack = append(stack, pending{obj: obj})
		}
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rec, nested := normalize(p.obj, p.parentID)
		if wsHint == "" {
			wsHint = firstString(p.obj, workspaceFields...)
		}
		if rec == nil {
			skipped++
		} else {
			records = append(records, rec)
		}

		parent := ""
		if rec != nil {
			parent = rec.ID
		}
		for i := len(nested) - 1; i >= 0; i-- {
			stack = append(stack, pending{obj: nested[i], parentID: parent})
		}
	}
	return records, skipped, wsHint
}

// normalize converts a raw object into a Record. It returns nil when the
// object has no id. Nested child objects are returned for the caller to
// schedule.
func normalize(obj map[string]any, structuralParent string) (*Record, []map[string]any) {
	props, _ := obj["props"].(map[string]any)

	var nested []map[string]any
	var childIDs []string
	if children, ok := obj["children"].([]any); ok {
		for _, c := range children {
			switch v := c.(type) {
			case string:
				if v != "" {
					childIDs = append(childIDs, v)
				}
			case map[string]any:
				nested = append(nested, v)
				if id := recordID(v); id != "" {
					childIDs = append(childIDs, id)
				}
			}
		}
	}

	id := recordID(obj)
	if id == "" {
		return nil, nested
	}

	rec := &Record{
		ID:       id,
		Name:     firstString(obj, "name"),
		ParentID: firstString(obj, "parentId", "parent_id"),
		ChildIDs: childIDs,
		raw:      obj,
	}
	if rec.Name == "" && props != nil {
		rec.Name = firstString(props, "name")
	}
	if rec.ParentID == "" {
		rec.ParentID = structuralParent
	}

	rec.IsTagDef = stringValue(obj["type"]) == "supertag" ||
		stringValue(obj["_docType"]) == tagDefDocType ||
		(props != nil && stringValue(props["_docType"]) == tagDefDocType)

	rec.Tags = tagRefs(obj["supertags"], obj["tags"])
	rec.ParentTagIDs = refIDs(obj["extends"], obj["parentTags"], obj["parent_tags"])
	if props != nil {
		rec.ParentTagIDs = append(rec.ParentTagIDs, refIDs(props["_extends"], props["extends"])...)
	}
	rec.ParentTagIDs = dedupe(rec.ParentTagIDs)

	rec.Description = firstString(obj, "description", "notes")
	if rec.Description == "" && props != nil {
		rec.Description = firstString(props, "description")
	}
	if fields, ok := obj["fields"].([]any); ok {
		rec.FieldCount = len(fields)
	}

	switch {
	case hasKey(obj, "content"):
		rec.ContentField = "content"
		rec.Content = stringValue(obj["content"])
	case props != nil && hasKey(props, "content"):
		rec.ContentField = "props.content"
		rec.Content = stringValue(props["content"])
	case props != nil:
		rec.ContentField = "props.content"
	default:
		rec.ContentField = "content"
	}

	rec.Created = firstTime(obj, props, "created", "createdAt", "created_at")
	rec.Modified = firstTime(obj, props, "edited", "editedAt", "modified", "modified_at")

	rec.Body = buildBody(rec.Content, childIDs)
	return rec, nested
}

func buildBody(content string, childIDs []string) []Fragment {
	body := make([]Fragment, 0, len(childIDs)+1)
	if content != "" {
		body = append(body, Fragment{Kind: FragmentText, Text: content})
	}
	for _, id := range childIDs {
		body = append(body, Fragment{Kind: FragmentChild, ChildID: id})
	}
	return body
}

// isNodeLike reports whether v is an object carrying a node id.
func isNodeLike(v any) bool {
	obj, ok := v.(map[string]any)
	return ok && recordID(obj) != ""
}

func recordID(obj map[string]any) string {
	return firstString(obj, "id", "uid")
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

// tagRefs reads tag lists that hold either bare ids or {uid|id, name}
// objects.
func tagRefs(lists ...any) []TagRef {
	var refs []TagRef
	seen := make(map[string]bool)
	for _, l := range lists {
		items, ok := l.([]any)
		if !ok {
			continue
		}
		for _, it := range items {
			var ref TagRef
			switch v := it.(type) {
			case string:
				ref.ID = v
			case map[string]any:
				ref.ID = firstString(v, "uid", "id")
				ref.Name = firstString(v, "name")
				if ref.ID == "" {
					ref.ID = ref.Name
				}
			}
			if ref.ID == "" || seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

func refIDs(lists ...any) []string {
	var ids []string
	for _, r := range tagRefs(lists...) {
		ids = append(ids, r.ID)
	}
	return ids
}

func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func firstTime(obj, props map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		if t, ok := parseTime(obj[k]); ok {
			return t
		}
	}
	if props != nil {
		for _, k := range keys {
			if t, ok := parseTime(props[k]); ok {
				return t
			}
		}
	}
	return time.Time{}
}

// parseTime accepts epoch milliseconds (number or numeric string) and
// RFC 3339 strings.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case json.Number:
		if ms, err := t.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		if f, err := t.Float64(); err == nil {
			return time.UnixMilli(int64(f)).UTC(), true
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
