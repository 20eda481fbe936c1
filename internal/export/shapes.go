package export

import (
	"encoding/json"
	"sort"
	"strings"
)

// collectionKeys are the fields a collection-shaped export may hold its
// node list under, in lookup order.
var collectionKeys = []string{"docs", "documents", "nodes"}

// recognizer is a pure predicate-plus-extractor pair for one export shape.
type recognizer struct {
	shape Shape
	// match returns the top-level node list when root has this shape.
	match func(root any) ([]any, bool)
}

// recognizers are tried in order; the first match wins.
var recognizers = []recognizer{
	{shape: ShapeCollection, match: matchCollection},
	{shape: ShapeArray, match: matchArray},
	{shape: ShapeSingle, match: matchSingle},
}

// Recognition is the outcome of shape detection: either a recognized shape
// with its top-level node list, or Unrecognized.
type Recognition struct {
	Shape        Shape
	Nodes        []any
	Unrecognized bool
}

// Recognize runs the recognizers in order against a decoded document.
func Recognize(root any) Recognition {
	for _, r := range recognizers {
		if nodes, ok := r.match(root); ok {
			return Recognition{Shape: r.shape, Nodes: nodes}
		}
	}
	return Recognition{Unrecognized: true}
}

func matchCollection(root any) ([]any, bool) {
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, k := range collectionKeys {
		if list, ok := obj[k].([]any); ok {
			return list, true
		}
	}
	return nil, false
}

func matchArray(root any) ([]any, bool) {
	list, ok := root.([]any)
	if !ok {
		return nil, false
	}
	for _, it := range list {
		if _, ok := it.(map[string]any); !ok {
			return nil, false
		}
	}
	return list, true
}

func matchSingle(root any) ([]any, bool) {
	if !isNodeLike(root) {
		return nil, false
	}
	return []any{root}, true
}

// workspaceID extracts the workspace marker from collection metadata. The
// node-level hint found during traversal is used when the envelope has none.
func workspaceID(root any, nodeHint string) string {
	if obj, ok := root.(map[string]any); ok {
		if meta, ok := obj["metadata"].(map[string]any); ok {
			if id := firstString(meta, "workspace_id", "workspaceId"); id != "" {
				return id
			}
		}
		if id := firstString(obj, "workspace_id", "workspaceId", "currentWorkspaceId"); id != "" {
			return id
		}
	}
	if nodeHint != "" {
		return nodeHint
	}
	return DefaultWorkspaceID
}

// expandedNodes reads the "workspaces" metadata map. Each workspace entry is
// a JSON object (or a string holding one) with an "expanded" list of paths
// of the form "workspace+tab+nodeID"; the last segment is the node id.
func expandedNodes(root any, wsID string) []string {
	obj, ok := root.(map[string]any)
	if !ok {
		return nil
	}
	workspaces, ok := obj["workspaces"].(map[string]any)
	if !ok {
		return nil
	}

	var entries []any
	if e, ok := workspaces[wsID]; ok {
		entries = []any{e}
	} else {
		keys := make([]string, 0, len(workspaces))
		for k := range workspaces {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			entries = append(entries, workspaces[k])
		}
	}

	var out []string
	seen := make(map[string]bool)
	for _, e := range entries {
		info := workspaceInfo(e)
		paths, _ := info["expanded"].([]any)
		for _, p := range paths {
			s, ok := p.(string)
			if !ok {
				continue
			}
			parts := strings.Split(s, "+")
			if len(parts) < 2 {
				continue
			}
			id := parts[len(parts)-1]
			if id != "" && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func workspaceInfo(v any) map[string]any {
	switch w := v.(type) {
	case map[string]any:
		return w
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(w), &m); err == nil {
			return m
		}
	}
	return nil
}
