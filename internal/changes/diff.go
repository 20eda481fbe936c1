// Package changes compares two tag snapshots of the same source.
//
// Diff is a pure function: it reads only its two arguments and never
// touches the cache, the filesystem or the history database. Callers decide
// where the previous snapshot comes from.
package changes

import (
	"github.com/HendryAvila/tanagraph/internal/tags"
)

// --- Result types ---

// UsageChange is a usage-count delta for a tag present in both snapshots.
type UsageChange struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// Delta returns After - Before.
func (u UsageChange) Delta() int { return u.After - u.Before }

// FieldChange records one tracked attribute that differs between snapshots.
type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Modification is a tag whose name, description or field count changed.
type Modification struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Changes []FieldChange `json:"changes"`
}

// ChangeSet is the outcome of comparing two snapshots.
//
// Added, UsageChanges and Modified follow the order of the current
// snapshot; Removed follows the order of the previous one.
type ChangeSet struct {
	Added        []tags.Tag     `json:"added"`
	Removed      []tags.Tag     `json:"removed"`
	UsageChanges []UsageChange  `json:"usage_changes"`
	Modified     []Modification `json:"modified"`

	// InitialLoad is set when there was no previous snapshot to compare.
	InitialLoad bool `json:"initial_load,omitempty"`
	Total       int  `json:"total_tags"`
}

// HasChanges reports whether the tag set itself changed. Usage-only deltas
// do not count.
func (c ChangeSet) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.Modified) > 0
}

// --- Comparison ---

// Initial returns the change set for a source seen for the first time.
func Initial(current []tags.Tag) ChangeSet {
	return ChangeSet{InitialLoad: true, Total: len(current)}
}

// Diff compares previous and current by tag id.
func Diff(previous, current []tags.Tag) ChangeSet {
	before := make(map[string]tags.Tag, len(previous))
	for _, t := range previous {
		if _, dup := before[t.ID]; !dup {
			before[t.ID] = t
		}
	}
	now := make(map[string]bool, len(current))

	cs := ChangeSet{Total: len(current)}
	for _, t := range current {
		if now[t.ID] {
			continue
		}
		now[t.ID] = true

		old, ok := before[t.ID]
		if !ok {
			cs.Added = append(cs.Added, t)
			continue
		}
		if old.UsageCount != t.UsageCount {
			cs.UsageChanges = append(cs.UsageChanges, UsageChange{
				ID: t.ID, Name: t.Name, Before: old.UsageCount, After: t.UsageCount,
			})
		}
		if fc := compare(old, t); len(fc) > 0 {
			cs.Modified = append(cs.Modified, Modification{ID: t.ID, Name: t.Name, Changes: fc})
		}
	}

	removed := make(map[string]bool)
	for _, t := range previous {
		if !now[t.ID] && !removed[t.ID] {
			removed[t.ID] = true
			cs.Removed = append(cs.Removed, t)
		}
	}
	return cs
}

func compare(old, cur tags.Tag) []FieldChange {
	var out []FieldChange
	if old.Name != cur.Name {
		out = append(out, FieldChange{Field: "name", Before: old.Name, After: cur.Name})
	}
	if old.Description != cur.Description {
		out = append(out, FieldChange{Field: "description", Before: old.Description, After: cur.Description})
	}
	if old.FieldCount != cur.FieldCount {
		out = append(out, FieldChange{Field: "field_count", Before: old.FieldCount, After: cur.FieldCount})
	}
	return out
}
