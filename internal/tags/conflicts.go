package tags

import (
	"fmt"
	"sort"

	"github.com/HendryAvila/tanagraph/internal/apperr"
)

// ConflictKind classifies an entry of the conflict report.
type ConflictKind string

const (
	ConflictCircular      ConflictKind = "circular_inheritance"
	ConflictDirectory     ConflictKind = "directory_mapping"
	ConflictUnknownParent ConflictKind = "unknown_reference"
)

// Severity of a conflict. Cycles are errors because they make a chain
// unresolvable; everything else is a warning.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Conflict is one problem found in the inheritance graph or the directory
// mapping.
type Conflict struct {
	Kind      ConflictKind `json:"kind"`
	Severity  Severity     `json:"severity"`
	TagIDs    []string     `json:"tag_ids,omitempty"`
	Directory string       `json:"directory,omitempty"`
	Path      []string     `json:"path,omitempty"`
	Message   string       `json:"message"`
}

func unknownTag(ref, childID string) Conflict {
	c := Conflict{Kind: ConflictUnknownParent, Severity: SeverityWarning}
	if childID != "" {
		c.TagIDs = []string{childID}
		c.Message = fmt.Sprintf("parent tag %q of %q is not defined in the export; link ignored", ref, childID)
	} else {
		c.Message = fmt.Sprintf("inheritance entry %q matches no tag; entry ignored", ref)
	}
	return c
}

// DetectConflicts resolves every tag independently and reports:
//   - each tag whose chain hits a cycle (error),
//   - each pair of distinct tags mapped directly to the same directory where
//     neither inherits from the other (warning),
//   - inheritance references that match no tag (warning).
//
// A cycle in one tag never stops the others from being checked.
func (r *Resolver) DetectConflicts(m Mapping) []Conflict {
	var out []Conflict

	for _, id := range r.order {
		if c, bad := r.ChainConflict(id); bad {
			out = append(out, c)
		}
	}

	byLabel := make(map[string][]string)
	for _, id := range r.order {
		if label, ok := m.lookup(r.tags[id]); ok {
			byLabel[label] = append(byLabel[label], id)
		}
	}
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	for _, label := range labels {
		ids := byLabel[label]
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, b := ids[i], ids[j]
				if r.IsAncestor(a, b) || r.IsAncestor(b, a) {
					continue
				}
				out = append(out, Conflict{
					Kind:      ConflictDirectory,
					Severity:  SeverityWarning,
					TagIDs:    []string{a, b},
					Directory: label,
					Message: fmt.Sprintf("tags %q and %q are unrelated but both map to directory %q",
						r.tags[a].Name, r.tags[b].Name, label),
				})
			}
		}
	}

	out = append(out, r.unknown...)
	return out
}

// ChainConflict resolves the chain of one tag and reports a cycle as a
// conflict. ok is false when the chain resolves.
func (r *Resolver) ChainConflict(id string) (c Conflict, ok bool) {
	_, err := r.ResolveChain(id)
	if err == nil {
		return Conflict{}, false
	}
	c = Conflict{
		Kind:     ConflictCircular,
		Severity: SeverityError,
		TagIDs:   []string{id},
		Message:  err.Error(),
	}
	if ae, isApp := apperr.As(err); isApp {
		c.Message = ae.Message
		if cycle, found := ae.Details["cycle"].([]string); found {
			c.Path = cycle
		}
	}
	return c, true
}

// HasErrors reports whether any conflict is fatal for some tag.
func HasErrors(cs []Conflict) bool {
	for _, c := range cs {
		if c.Severity == SeverityError {
			return true
		}
	}
	return false
}
