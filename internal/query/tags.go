package query

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/tags"
)

// TagEntry is one tag in a listing, optionally with its resolved chain and
// directory.
type TagEntry struct {
	tags.Tag
	Chain      []string `json:"chain,omitempty"`
	ChainNames []string `json:"chain_names,omitempty"`
	Directory  string   `json:"directory,omitempty"`
	// Inherited is set when Directory comes from an ancestor rather than
	// the tag's own mapping.
	Inherited bool `json:"directory_inherited,omitempty"`
}

// TagList is the result of ListTags.
type TagList struct {
	Source      string          `json:"source"`
	WorkspaceID string          `json:"workspace_id"`
	LoadedAt    time.Time       `json:"loaded_at"`
	Total       int             `json:"total"`
	Tags        []TagEntry      `json:"tags"`
	Conflicts   []tags.Conflict `json:"conflicts,omitempty"`
}

// ListTags returns the tags of a source. A tag whose chain cannot be
// resolved is still listed; the failure is reported in Conflicts.
func (f *Facade) ListTags(ctx context.Context, req *ListTagsRequest) (*TagList, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key, snap, err := f.load(ctx, &req.Common)
	if err != nil {
		return nil, err
	}

	out := &TagList{
		Source:      key,
		WorkspaceID: snap.WorkspaceID,
		LoadedAt:    snap.LoadedAt,
		Tags:        make([]TagEntry, 0, len(snap.Tags)),
	}

	enrich := req.IncludeChains || req.IncludeDirectories
	var (
		r *tags.Resolver
		m tags.Mapping
	)
	if enrich {
		r, m, err = f.resolver(snap)
		if err != nil {
			return nil, err
		}
		out.Conflicts = r.DetectConflicts(m)
	}

	needle := strings.ToLower(req.NameContains)
	for _, t := range snap.Tags {
		if t.UsageCount < req.MinUsage {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Name), needle) {
			continue
		}
		e := TagEntry{Tag: t}
		if enrich {
			if req.IncludeChains {
				if chain, err := r.ResolveChain(t.ID); err == nil {
					e.Chain = chain
					e.ChainNames = chainNames(r, chain)
				}
			}
			if req.IncludeDirectories {
				if label, ok, err := r.ResolveDirectory(t.ID, m); err == nil && ok {
					e.Directory = label
					_, direct := r.DirectMapping(t.ID, m)
					e.Inherited = !direct
				}
			}
		}
		out.Tags = append(out.Tags, e)
	}
	out.Total = len(out.Tags)
	return out, nil
}

func chainNames(r *tags.Resolver, chain []string) []string {
	names := make([]string, len(chain))
	for i, id := range chain {
		if t, ok := r.Lookup(id); ok {
			names[i] = t.Name
		} else {
			names[i] = id
		}
	}
	return names
}

// ConflictReport is the result of Conflicts.
type ConflictReport struct {
	Source      string          `json:"source"`
	WorkspaceID string          `json:"workspace_id"`
	Conflicts   []tags.Conflict `json:"conflicts"`
	Errors      int             `json:"errors"`
	Warnings    int             `json:"warnings"`
}

// Conflicts reports inheritance cycles, directory clashes and unknown
// parent references of a source's tags.
func (f *Facade) Conflicts(ctx context.Context, req *ConflictsRequest) (*ConflictReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key, snap, err := f.load(ctx, &req.Common)
	if err != nil {
		return nil, err
	}
	r, m, err := f.resolver(snap)
	if err != nil {
		return nil, err
	}

	out := &ConflictReport{
		Source:      key,
		WorkspaceID: snap.WorkspaceID,
		Conflicts:   r.DetectConflicts(m),
	}
	if out.Conflicts == nil {
		out.Conflicts = []tags.Conflict{}
	}
	for _, c := range out.Conflicts {
		if c.Severity == tags.SeverityError {
			out.Errors++
		} else {
			out.Warnings++
		}
	}
	if len(out.Conflicts) > 0 {
		f.logger.Warn("tag conflicts found",
			zap.String("source", key),
			zap.Int("errors", out.Errors),
			zap.Int("warnings", out.Warnings))
	}
	return out, nil
}
