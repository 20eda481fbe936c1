package tags

import (
	"sort"
	"strings"

	"github.com/HendryAvila/tanagraph/internal/apperr"
)

// Mapping assigns output directory labels to tags. Keys may be tag ids or
// tag names; names match case-insensitively.
type Mapping struct {
	exact map[string]string
	fold  map[string]string
}

// NewMapping builds a Mapping from a key to label map. When two keys differ
// only in case, the lexically smaller key wins the case-insensitive lookup.
func NewMapping(m map[string]string) Mapping {
	mp := Mapping{
		exact: make(map[string]string, len(m)),
		fold:  make(map[string]string, len(m)),
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		mp.exact[k] = m[k]
		lk := strings.ToLower(k)
		if _, ok := mp.fold[lk]; !ok {
			mp.fold[lk] = m[k]
		}
	}
	return mp
}

// Len returns the number of configured keys.
func (m Mapping) Len() int { return len(m.exact) }

// lookup finds the label for a tag: by id, then by exact name, then by
// case-insensitive name.
func (m Mapping) lookup(t *Tag) (string, bool) {
	if l, ok := m.exact[t.ID]; ok {
		return l, true
	}
	if l, ok := m.exact[t.Name]; ok {
		return l, true
	}
	l, ok := m.fold[strings.ToLower(t.Name)]
	return l, ok
}

// Resolver answers inheritance and directory questions over one tag list.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	tags    map[string]*Tag
	order   []string
	byName  map[string]string
	parents map[string][]string
	unknown []Conflict
}

// NewResolver indexes tags and merges their declared parents with an
// optional inheritance map (tag reference to parent references, by id or
// name). Declared parents come first. References that match no tag are
// dropped and reported by DetectConflicts.
func NewResolver(list []Tag, inheritance map[string][]string) *Resolver {
	r := &Resolver{
		tags:    make(map[string]*Tag, len(list)),
		byName:  make(map[string]string, len(list)),
		parents: make(map[string][]string, len(list)),
	}
	for i := range list {
		t := &list[i]
		if _, dup := r.tags[t.ID]; dup {
			continue
		}
		r.tags[t.ID] = t
		r.order = append(r.order, t.ID)
		if lk := strings.ToLower(t.Name); lk != "" {
			if _, taken := r.byName[lk]; !taken {
				r.byName[lk] = t.ID
			}
		}
	}

	for _, id := range r.order {
		for _, p := range r.tags[id].ParentTagIDs {
			r.link(id, p)
		}
	}

	keys := make([]string, 0, len(inheritance))
	for k := range inheritance {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		child, ok := r.Lookup(k)
		if !ok {
			r.unknown = append(r.unknown, unknownTag(k, ""))
			continue
		}
		for _, p := range inheritance[k] {
			r.link(child.ID, p)
		}
	}
	return r
}

func (r *Resolver) link(childID, parentRef string) {
	parent, ok := r.Lookup(parentRef)
	if !ok {
		r.unknown = append(r.unknown, unknownTag(parentRef, childID))
		return
	}
	for _, existing := range r.parents[childID] {
		if existing == parent.ID {
			return
		}
	}
	r.parents[childID] = append(r.parents[childID], parent.ID)
}

// Lookup finds a tag by id, or by name case-insensitively.
func (r *Resolver) Lookup(ref string) (*Tag, bool) {
	if t, ok := r.tags[ref]; ok {
		return t, true
	}
	if id, ok := r.byName[strings.ToLower(ref)]; ok {
		return r.tags[id], true
	}
	return nil, false
}

// Tags returns the tags in their original order.
func (r *Resolver) Tags() []*Tag {
	out := make([]*Tag, len(r.order))
	for i, id := range r.order {
		out[i] = r.tags[id]
	}
	return out
}

// Parents returns the resolved parent ids of a tag in declaration order.
func (r *Resolver) Parents(id string) []string {
	return r.parents[id]
}

// ResolveChain returns the tag followed by all of its ancestors in
// depth-first, left-to-right order of declared parents. An ancestor reached
// twice through different parents appears once, at its first position.
//
// A tag met again while it is still on the current path is a cycle: the
// walk stops and a CircularInheritance error carries the path, for example
// [A B C A].
func (r *Resolver) ResolveChain(ref string) ([]string, error) {
	t, ok := r.Lookup(ref)
	if !ok {
		return nil, apperr.New(apperr.TagNotFound, "tag %q not found", ref).
			WithRemedy("call list_tags to see available tags")
	}

	var chain []string
	done := make(map[string]bool)
	onPath := make(map[string]bool)
	var path []string

	var walk func(id string) error
	walk = func(id string) error {
		if onPath[id] {
			cycle := append(append([]string(nil), path[indexOf(path, id):]...), id)
			return apperr.New(apperr.CircularInheritance,
				"tag %q has circular inheritance: %s", t.ID, strings.Join(cycle, " -> ")).
				WithDetail("tag_id", t.ID).
				WithDetail("cycle", cycle).
				WithRemedy("remove one of the parent links in the cycle")
		}
		if done[id] {
			return nil
		}
		done[id] = true
		onPath[id] = true
		path = append(path, id)
		chain = append(chain, id)
		for _, p := range r.parents[id] {
			if err := walk(p); err != nil {
				return err
			}
		}
		onPath[id] = false
		path = path[:len(path)-1]
		return nil
	}

	if err := walk(t.ID); err != nil {
		return nil, err
	}
	return chain, nil
}

// IsAncestor reports whether ancestor can be reached from id by following
// parent links, excluding id itself. Cycles elsewhere in the graph do not
// hide a reachable ancestor.
func (r *Resolver) IsAncestor(ancestor, id string) bool {
	a, ok := r.Lookup(ancestor)
	if !ok {
		return false
	}
	t, ok := r.Lookup(id)
	if !ok {
		return false
	}
	seen := map[string]bool{t.ID: true}
	stack := append([]string(nil), r.parents[t.ID]...)
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p == a.ID {
			return true
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		stack = append(stack, r.parents[p]...)
	}
	return false
}

// ResolveDirectory returns the output label of a tag: its own mapping if it
// has one, otherwise the mapping of the first mapped ancestor in chain
// order. ok is false when no tag in the chain is mapped.
//
// A directly mapped tag never needs its chain, so a cycle among its
// ancestors does not affect it. When several parents lead to different
// labels, the first one reached by the depth-first walk of ResolveChain
// wins.
func (r *Resolver) ResolveDirectory(ref string, m Mapping) (label string, ok bool, err error) {
	if t, found := r.Lookup(ref); found {
		if l, direct := m.lookup(t); direct {
			return l, true, nil
		}
	}
	chain, err := r.ResolveChain(ref)
	if err != nil {
		return "", false, err
	}
	for _, id := range chain[1:] {
		if l, found := m.lookup(r.tags[id]); found {
			return l, true, nil
		}
	}
	return "", false, nil
}

// DirectMapping returns the label configured for the tag itself, ignoring
// inheritance.
func (r *Resolver) DirectMapping(id string, m Mapping) (string, bool) {
	t, ok := r.tags[id]
	if !ok {
		return "", false
	}
	return m.lookup(t)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return 0
}
