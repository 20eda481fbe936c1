package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/changes"
	"github.com/HendryAvila/tanagraph/internal/history"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

// ChangeReport is the result of DetectChanges.
type ChangeReport struct {
	Source      string            `json:"source"`
	WorkspaceID string            `json:"workspace_id"`
	HasChanges  bool              `json:"has_changes"`
	Changes     changes.ChangeSet `json:"changes"`
	// Previous identifies the snapshot the comparison was made against.
	Previous        string     `json:"previous_snapshot,omitempty"`
	PreviousTakenAt *time.Time `json:"previous_taken_at,omitempty"`
	// Recorded is the id of the snapshot stored for the next comparison.
	Recorded string `json:"recorded_snapshot,omitempty"`
}

// DetectChanges compares the current tags of a source with the last
// recorded ones. The first comparison of a source reports an initial load.
// Unless DryRun is set, the current tags are recorded when anything,
// including usage counts, differs.
func (f *Facade) DetectChanges(ctx context.Context, req *DetectChangesRequest) (*ChangeReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key, snap, err := f.load(ctx, &req.Common)
	if err != nil {
		return nil, err
	}

	prev, err := f.history.Latest(key)
	if err != nil {
		return nil, fmt.Errorf("loading previous snapshot: %w", err)
	}

	out := &ChangeReport{Source: key, WorkspaceID: snap.WorkspaceID}
	if prev == nil {
		out.Changes = changes.Initial(snap.Tags)
	} else {
		out.Changes = changes.Diff(prev.Tags, snap.Tags)
		out.Previous = prev.ID
		taken := prev.TakenAt
		out.PreviousTakenAt = &taken
	}
	out.HasChanges = out.Changes.HasChanges()

	differs := prev == nil || out.HasChanges || len(out.Changes.UsageChanges) > 0
	if differs && !req.DryRun {
		rec, err := f.history.Record(key, snap.WorkspaceID, snap.Tags)
		if err != nil {
			return nil, fmt.Errorf("recording snapshot: %w", err)
		}
		out.Recorded = rec.ID
	}

	f.logger.Info("changes detected",
		zap.String("source", key),
		zap.Bool("initial_load", out.Changes.InitialLoad),
		zap.Int("added", len(out.Changes.Added)),
		zap.Int("removed", len(out.Changes.Removed)),
		zap.Int("modified", len(out.Changes.Modified)),
		zap.Int("usage_changes", len(out.Changes.UsageChanges)))
	return out, nil
}

// memoryHistory keeps the latest tag list per source for the life of the
// process. It stands in when no persistent history is configured.
type memoryHistory struct {
	mu     sync.Mutex
	latest map[string]*history.Snapshot
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{latest: make(map[string]*history.Snapshot)}
}

func (h *memoryHistory) Latest(sourceKey string) (*history.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap, ok := h.latest[sourceKey]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (h *memoryHistory) Record(sourceKey, workspaceID string, list []tags.Tag) (*history.Snapshot, error) {
	snap := &history.Snapshot{
		ID:          uuid.New().String(),
		SourceKey:   sourceKey,
		WorkspaceID: workspaceID,
		TakenAt:     time.Now().UTC(),
		TagCount:    len(list),
		Tags:        append([]tags.Tag(nil), list...),
	}
	h.mu.Lock()
	h.latest[sourceKey] = snap
	h.mu.Unlock()
	return snap, nil
}
