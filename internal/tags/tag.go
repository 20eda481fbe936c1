// Package tags resolves supertags: which nodes define tags, how often each
// tag is used, the inheritance chain of a tag and the output directory a
// tag is assigned through that chain.
package tags

import (
	"github.com/HendryAvila/tanagraph/internal/graph"
)

// Tag is a tag definition together with its computed usage.
type Tag struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	UsageCount   int      `json:"usage_count"`
	ParentTagIDs []string `json:"parent_tag_ids,omitempty"`
	FieldCount   int      `json:"field_count"`
	// Implicit is set for tags that are applied to nodes but have no
	// definition node in the export.
	Implicit bool `json:"implicit,omitempty"`
}

// ExtractOptions controls tag extraction.
type ExtractOptions struct {
	// IncludeSystem keeps SYS_ tag definitions and counts usages on SYS_
	// nodes.
	IncludeSystem bool
}

// Extract identifies tag definitions and counts usages in a single scan of
// the index. Definitions come first in document order, followed by implicit
// tags in order of first use.
func Extract(ix *graph.Index, opts ExtractOptions) []Tag {
	var out []Tag
	pos := make(map[string]int)

	for _, n := range ix.Nodes() {
		if !n.IsTagDef {
			continue
		}
		if graph.IsSystem(n.ID) && !opts.IncludeSystem {
			continue
		}
		pos[n.ID] = len(out)
		out = append(out, Tag{
			ID:           n.ID,
			Name:         displayName(n.Name, n.ID),
			Description:  n.Description,
			ParentTagIDs: n.ParentTagIDs,
			FieldCount:   n.FieldCount,
		})
	}

	for _, n := range ix.Nodes() {
		if graph.IsSystem(n.ID) && !opts.IncludeSystem {
			continue
		}
		for _, ref := range n.Tags {
			if graph.IsSystem(ref.ID) && !opts.IncludeSystem {
				continue
			}
			i, ok := pos[ref.ID]
			if !ok {
				name := ref.Name
				if def, found := ix.Node(ref.ID); found && name == "" {
					name = def.Name
				}
				i = len(out)
				pos[ref.ID] = i
				out = append(out, Tag{ID: ref.ID, Name: displayName(name, ref.ID), Implicit: true})
			}
			out[i].UsageCount++
		}
	}
	return out
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
