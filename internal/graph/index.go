// Package graph builds the node index of a parsed export: id lookup,
// parent to children adjacency and the workspace root set.
package graph

import (
	"strings"
	"time"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/export"
)

// SystemPrefix marks workspace-internal nodes. They are left out of the
// root set and of tag usage counting unless a caller asks for them.
const SystemPrefix = "SYS_"

// IsSystem reports whether id names a system-internal node.
func IsSystem(id string) bool {
	return strings.HasPrefix(id, SystemPrefix)
}

// Node is one vertex of the index. Nodes are rebuilt on every parse and are
// never modified after Build returns.
type Node struct {
	ID       string
	Name     string
	ParentID string
	Tags     []export.TagRef
	Body     []export.Fragment
	Content  string
	Created  time.Time
	Modified time.Time

	// Definition attributes, only meaningful when IsTagDef is set.
	IsTagDef     bool
	ParentTagIDs []string
	Description  string
	FieldCount   int
}

// TagIDs returns the ids of the tags applied to the node.
func (n *Node) TagIDs() []string {
	ids := make([]string, len(n.Tags))
	for i, t := range n.Tags {
		ids[i] = t.ID
	}
	return ids
}

// HasTag reports whether the tag id is applied directly to the node.
func (n *Node) HasTag(id string) bool {
	for _, t := range n.Tags {
		if t.ID == id {
			return true
		}
	}
	return false
}

// Index is an immutable lookup structure over one parsed document.
type Index struct {
	WorkspaceID string
	Source      string

	nodes    map[string]*Node
	order    []*Node
	children map[string][]string

	// roots holds every root candidate in priority order; system ids are
	// filtered at query time.
	roots []string
}

// Build indexes a parsed document. Duplicate node ids fail the whole build;
// no partial index is returned.
func Build(doc *export.Document) (*Index, error) {
	ix := &Index{
		WorkspaceID: doc.WorkspaceID,
		Source:      doc.Source,
		nodes:       make(map[string]*Node, len(doc.Records)),
		order:       make([]*Node, 0, len(doc.Records)),
		children:    make(map[string][]string),
	}

	for _, r := range doc.Records {
		if _, dup := ix.nodes[r.ID]; dup {
			return nil, apperr.New(apperr.DuplicateNodeID, "node id %q appears more than once", r.ID).
				WithDetail("node_id", r.ID).
				WithRemedy("re-export the workspace; ids must be unique within one export")
		}
		n := &Node{
			ID:           r.ID,
			Name:         r.Name,
			ParentID:     r.ParentID,
			Tags:         r.Tags,
			Body:         r.Body,
			Content:      r.Content,
			Created:      r.Created,
			Modified:     r.Modified,
			IsTagDef:     r.IsTagDef,
			ParentTagIDs: r.ParentTagIDs,
			Description:  r.Description,
			FieldCount:   r.FieldCount,
		}
		ix.nodes[n.ID] = n
		ix.order = append(ix.order, n)
	}

	ix.buildChildren(doc.Records)
	ix.buildRoots(doc.Expanded)
	return ix, nil
}

// buildChildren lists a parent's declared children first, in declared
// order, then any remaining nodes that name it as parent, in document order.
func (ix *Index) buildChildren(records []*export.Record) {
	listed := make(map[string]map[string]bool)
	add := func(parent, child string) {
		seen := listed[parent]
		if seen == nil {
			seen = make(map[string]bool)
			listed[parent] = seen
		}
		if seen[child] || child == parent {
			return
		}
		seen[child] = true
		ix.children[parent] = append(ix.children[parent], child)
	}

	for _, r := range records {
		for _, cid := range r.ChildIDs {
			if _, ok := ix.nodes[cid]; ok {
				add(r.ID, cid)
			}
		}
	}
	for _, n := range ix.order {
		if _, ok := ix.nodes[n.ParentID]; ok {
			add(n.ParentID, n.ID)
		}
	}
}

// buildRoots applies the root priority policy: parentless nodes (including
// nodes whose parent is not part of the export) first, then nodes the
// workspace metadata marks as expanded.
func (ix *Index) buildRoots(expanded []string) {
	seen := make(map[string]bool)
	for _, n := range ix.order {
		if _, ok := ix.nodes[n.ParentID]; n.ParentID == "" || !ok {
			seen[n.ID] = true
			ix.roots = append(ix.roots, n.ID)
		}
	}
	for _, id := range expanded {
		if _, ok := ix.nodes[id]; ok && !seen[id] {
			seen[id] = true
			ix.roots = append(ix.roots, id)
		}
	}
}

// Node returns the node with the given id.
func (ix *Index) Node(id string) (*Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// Children returns the ordered child ids of a node. The slice is shared and
// must not be modified.
func (ix *Index) Children(id string) []string {
	return ix.children[id]
}

// Roots returns the root set in priority order. System nodes are included
// only when includeSystem is set.
func (ix *Index) Roots(includeSystem bool) []string {
	out := make([]string, 0, len(ix.roots))
	for _, id := range ix.roots {
		if includeSystem || !IsSystem(id) {
			out = append(out, id)
		}
	}
	return out
}

// Nodes returns every node in document order. The slice is shared and must
// not be modified.
func (ix *Index) Nodes() []*Node {
	return ix.order
}

// Len returns the number of indexed nodes.
func (ix *Index) Len() int { return len(ix.order) }
