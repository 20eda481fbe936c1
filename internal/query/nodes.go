package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/cache"
	"github.com/HendryAvila/tanagraph/internal/graph"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

// Pagination defaults of ListNodesByTag.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// TagLabel is a tag reference with its display name.
type TagLabel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChildSummary names one direct child of a node.
type ChildSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NodeView is the result of ReadNode.
type NodeView struct {
	Source   string         `json:"source"`
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	ParentID string         `json:"parent_id,omitempty"`
	Tags     []TagLabel     `json:"tags"`
	Content  string         `json:"content"`
	Markdown string         `json:"markdown"`
	Children []ChildSummary `json:"children"`
	Created  time.Time      `json:"created,omitempty"`
	Modified time.Time      `json:"modified,omitempty"`
}

// ReadNode renders one node. With IncludeChildren its children are
// rendered too, Depth levels deep (at least one).
func (f *Facade) ReadNode(ctx context.Context, req *ReadNodeRequest) (*NodeView, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key, snap, err := f.load(ctx, &req.Common)
	if err != nil {
		return nil, err
	}
	ix := snap.Index
	n, ok := ix.Node(req.NodeID)
	if !ok {
		return nil, nodeNotFound(req.NodeID)
	}

	levels := 0
	if req.IncludeChildren {
		levels = max(req.Depth, 1)
	}
	names := tagNames(snap)
	labels := labelsOf(n, names)

	children := make([]ChildSummary, 0, len(ix.Children(n.ID)))
	for _, cid := range ix.Children(n.ID) {
		if c, ok := ix.Node(cid); ok {
			children = append(children, ChildSummary{ID: c.ID, Name: title(c)})
		}
	}

	return &NodeView{
		Source:   key,
		ID:       n.ID,
		Name:     n.Name,
		ParentID: n.ParentID,
		Tags:     labels,
		Content:  bodyText(n),
		Markdown: renderMarkdown(ix, n, labels, levels),
		Children: children,
		Created:  n.Created,
		Modified: n.Modified,
	}, nil
}

func nodeNotFound(id string) error {
	return apperr.New(apperr.NodeNotFound, "node %q not found", id).
		WithDetail("node_id", id).
		WithRemedy("call list_nodes_by_tag to find node ids")
}

// NodeSummary is one entry of a node listing.
type NodeSummary struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Preview  string     `json:"preview,omitempty"`
	Tags     []TagLabel `json:"tags"`
	Created  time.Time  `json:"created,omitempty"`
	Modified time.Time  `json:"modified,omitempty"`
	// Via is the tag that matched when it is not the requested tag
	// itself.
	Via string `json:"via,omitempty"`
}

// NodeList is the result of ListNodesByTag.
type NodeList struct {
	Source      string        `json:"source"`
	WorkspaceID string        `json:"workspace_id"`
	Tag         TagLabel      `json:"tag"`
	MatchedTags []string      `json:"matched_tags"`
	Total       int           `json:"total"`
	Offset      int           `json:"offset"`
	Limit       int           `json:"limit"`
	SortBy      string        `json:"sort_by"`
	Order       string        `json:"order"`
	Nodes       []NodeSummary `json:"nodes"`
	// Conflicts lists matched tags whose own chain does not resolve. Their
	// nodes are still listed.
	Conflicts []tags.Conflict `json:"conflicts,omitempty"`
}

// ListNodesByTag lists the nodes carrying a tag. With IncludeInherited,
// nodes carrying any tag that inherits from it are included as well.
//
// Results are sorted stably by the requested key with ties broken by node
// id, so the same request always yields the same page.
func (f *Facade) ListNodesByTag(ctx context.Context, req *ListNodesRequest) (*NodeList, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key, snap, err := f.load(ctx, &req.Common)
	if err != nil {
		return nil, err
	}
	r, _, err := f.resolver(snap)
	if err != nil {
		return nil, err
	}
	target, ok := r.Lookup(req.Tag)
	if !ok {
		return nil, apperr.New(apperr.TagNotFound, "tag %q not found", req.Tag).
			WithDetail("tag", req.Tag).
			WithRemedy("call list_tags to see available tags")
	}

	matched := []string{target.ID}
	if req.IncludeInherited {
		for _, t := range r.Tags() {
			if t.ID != target.ID && r.IsAncestor(target.ID, t.ID) {
				matched = append(matched, t.ID)
			}
		}
	}
	var conflicts []tags.Conflict
	for _, id := range matched {
		if c, bad := r.ChainConflict(id); bad {
			conflicts = append(conflicts, c)
		}
	}
	want := make(map[string]bool, len(matched))
	for _, id := range matched {
		want[id] = true
	}

	names := tagNames(snap)
	var hits []NodeSummary
	for _, n := range snap.Index.Nodes() {
		if graph.IsSystem(n.ID) {
			continue
		}
		via := ""
		for _, ref := range n.Tags {
			if want[ref.ID] {
				via = ref.ID
				if ref.ID == target.ID {
					break
				}
			}
		}
		if via == "" {
			continue
		}
		s := NodeSummary{
			ID:       n.ID,
			Name:     n.Name,
			Preview:  preview(bodyText(n)),
			Tags:     labelsOf(n, names),
			Created:  n.Created,
			Modified: n.Modified,
		}
		if via != target.ID {
			s.Via = via
		}
		hits = append(hits, s)
	}

	sortBy, order := req.SortBy, req.Order
	if sortBy == "" {
		sortBy = SortName
	}
	if order == "" {
		order = "asc"
	}
	sortNodes(hits, sortBy, order == "desc")

	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	start := min(req.Offset, len(hits))
	end := min(start+limit, len(hits))

	page := make([]NodeSummary, end-start)
	copy(page, hits[start:end])

	return &NodeList{
		Source:      key,
		WorkspaceID: snap.WorkspaceID,
		Tag:         TagLabel{ID: target.ID, Name: target.Name},
		MatchedTags: matched,
		Total:       len(hits),
		Offset:      req.Offset,
		Limit:       limit,
		SortBy:      sortBy,
		Order:       order,
		Nodes:       page,
		Conflicts:   conflicts,
	}, nil
}

// sortNodes orders by key; desc reverses the key order only, ties stay in
// ascending id order.
func sortNodes(nodes []NodeSummary, key string, desc bool) {
	cmp := func(a, b *NodeSummary) int {
		switch key {
		case SortCreated:
			return a.Created.Compare(b.Created)
		case SortModified:
			return a.Modified.Compare(b.Modified)
		case SortID:
			return strings.Compare(a.ID, b.ID)
		default:
			if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
				return c
			}
			return strings.Compare(a.Name, b.Name)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		c := cmp(&nodes[i], &nodes[j])
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// tagNames maps tag ids to display names for one snapshot.
func tagNames(snap *cache.Snapshot) map[string]string {
	names := make(map[string]string, len(snap.Tags))
	for _, t := range snap.Tags {
		names[t.ID] = t.Name
	}
	return names
}

func labelsOf(n *graph.Node, names map[string]string) []TagLabel {
	labels := make([]TagLabel, 0, len(n.Tags))
	for _, ref := range n.Tags {
		name := names[ref.ID]
		if name == "" {
			name = ref.Name
		}
		if name == "" {
			name = ref.ID
		}
		labels = append(labels, TagLabel{ID: ref.ID, Name: name})
	}
	return labels
}
