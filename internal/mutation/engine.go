// Package mutation appends content to node bodies without ever losing data.
//
// Every append is two-phase. Phase one writes a backup of the node body and
// a full copy of the source document; if either fails nothing is written.
// Phase two writes the updated document; if that fails the backups stay
// where they are and the error carries their paths.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/export"
	"github.com/HendryAvila/tanagraph/internal/graph"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Guard serializes work on a source and drops its cached snapshot when the
// work succeeds. *cache.Store implements it.
type Guard interface {
	Mutate(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Request describes one append.
type Request struct {
	Source   string
	NodeID   string
	Content  string
	Position Position
	Section  string
}

// Result describes a completed append.
type Result struct {
	OperationID      string    `json:"operation_id"`
	NodeID           string    `json:"node_id"`
	NodeName         string    `json:"node_name"`
	Source           string    `json:"source"`
	Position         Position  `json:"position"`
	Section          string    `json:"section,omitempty"`
	PreviousModified time.Time `json:"previous_modified,omitempty"`
	NewModified      time.Time `json:"new_modified"`
	NodeBackup       string    `json:"node_backup"`
	DocumentBackup   string    `json:"document_backup"`
	ContentLength    int       `json:"content_length"`
	Body             string    `json:"body"`
}

// Phase names the step of an append that failed.
type Phase string

const (
	// PhaseBackup: no backup could be written and the source is untouched.
	PhaseBackup Phase = "backup"
	// PhaseWrite: backups exist but the source could not be replaced.
	PhaseWrite Phase = "write"
)

// Error is a failed append. Err carries the BackupFailed or
// SourceWriteFailed kind.
type Error struct {
	Phase          Phase
	NodeBackup     string
	DocumentBackup string
	Err            error
}

func (e *Error) Error() string {
	if e.Phase == PhaseWrite {
		return fmt.Sprintf("%v (backups kept at %s and %s)", e.Err, e.NodeBackup, e.DocumentBackup)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NeedsRecovery reports whether backups were written but the source was not
// updated.
func (e *Error) NeedsRecovery() bool { return e.Phase == PhaseWrite }

// Observer is told the outcome of every append.
type Observer interface {
	Mutation(outcome string)
}

type nopObserver struct{}

func (nopObserver) Mutation(string) {}

// Engine performs appends.
type Engine struct {
	guard    Guard
	source   SourceStore
	backups  BackupWriter
	observer Observer
	logger   *zap.Logger
}

// NewEngine wires an engine. A nil logger or observer is replaced by a
// no-op.
func NewEngine(guard Guard, source SourceStore, backups BackupWriter, observer Observer, logger *zap.Logger) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{guard: guard, source: source, backups: backups, observer: observer, logger: logger}
}

// Append inserts req.Content into the node's body. It reads and parses the
// source afresh under the source lock, so the node and its body are checked
// against the current document rather than a cached snapshot.
func (e *Engine) Append(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.New(apperr.InvalidRequest, "content must not be empty")
	}
	if req.Position == "" {
		req.Position = PositionEnd
	}
	if _, err := ParsePosition(string(req.Position)); err != nil {
		return nil, err
	}
	if req.Position.NeedsSection() && strings.TrimSpace(req.Section) == "" {
		return nil, apperr.New(apperr.InvalidRequest, "position %s requires a section name", req.Position)
	}

	opID := uuid.New().String()
	log := e.logger.With(zap.String("operation_id", opID), zap.String("node_id", req.NodeID), zap.String("source", req.Source))

	var res *Result
	err := e.guard.Mutate(ctx, req.Source, func(ctx context.Context) error {
		r, err := e.apply(ctx, req, log)
		if err != nil {
			return err
		}
		r.OperationID = opID
		res = r
		return nil
	})

	outcome := "ok"
	var me *Error
	switch {
	case err == nil:
		log.Info("node updated",
			zap.String("position", describe(req.Position, req.Section)),
			zap.String("node_backup", res.NodeBackup),
			zap.String("document_backup", res.DocumentBackup))
	case errors.As(err, &me):
		outcome = string(me.Phase) + "_failed"
		log.Error("append failed", zap.String("phase", string(me.Phase)), zap.Error(err))
	default:
		outcome = "rejected"
		log.Debug("append rejected", zap.Error(err))
	}
	e.observer.Mutation(outcome)
	return res, err
}

func (e *Engine) apply(ctx context.Context, req Request, log *zap.Logger) (*Result, error) {
	data, err := e.source.Read(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	doc, err := export.Parse(data)
	if err != nil {
		return nil, err
	}
	doc.Source = req.Source
	if _, err := graph.Build(doc); err != nil {
		return nil, err
	}

	rec := doc.Find(req.NodeID)
	if rec == nil {
		return nil, apperr.New(apperr.NodeNotFound, "node %q not found", req.NodeID).
			WithDetail("node_id", req.NodeID).
			WithRemedy("call list_nodes or read_node to find a valid node id")
	}
	body, err := Insert(rec.Content, req.Content, req.Position, req.Section)
	if err != nil {
		return nil, err
	}

	now := timeNow()
	prevModified := rec.Modified
	prevBody := rec.Content

	// Phase one.
	nodeBackup, err := e.backups.WriteNode(ctx, NodeBackup{
		NodeID:      rec.ID,
		NodeName:    rec.Name,
		Source:      req.Source,
		WorkspaceID: doc.WorkspaceID,
		Body:        prevBody,
		TakenAt:     now,
	})
	if err != nil {
		return nil, &Error{Phase: PhaseBackup, Err: apperr.Wrap(apperr.BackupFailed, err, "node backup failed, nothing was written").
			WithRemedy("check that the backups directory is writable")}
	}
	docBackup, err := e.backups.WriteDocument(ctx, req.Source, data, now)
	if err != nil {
		return nil, &Error{Phase: PhaseBackup, NodeBackup: nodeBackup, Err: apperr.Wrap(apperr.BackupFailed, err, "document backup failed, nothing was written").
			WithRemedy("check that the backups directory is writable")}
	}
	log.Info("backups written", zap.String("node_backup", nodeBackup), zap.String("document_backup", docBackup))

	// Phase two.
	writeFailed := func(cause error) error {
		return &Error{
			Phase:          PhaseWrite,
			NodeBackup:     nodeBackup,
			DocumentBackup: docBackup,
			Err: apperr.Wrap(apperr.SourceWriteFailed, cause, "source %s was not updated", req.Source).
				WithDetail("node_backup", nodeBackup).
				WithDetail("document_backup", docBackup).
				WithRemedy("the original document is preserved at %s", docBackup),
		}
	}
	if err := doc.SetBody(rec.ID, body, now); err != nil {
		return nil, writeFailed(err)
	}
	out, err := doc.Marshal()
	if err != nil {
		return nil, writeFailed(err)
	}
	if err := e.source.Write(ctx, req.Source, out); err != nil {
		return nil, writeFailed(err)
	}

	return &Result{
		NodeID:           rec.ID,
		NodeName:         rec.Name,
		Source:           req.Source,
		Position:         req.Position,
		Section:          req.Section,
		PreviousModified: prevModified,
		NewModified:      rec.Modified,
		NodeBackup:       nodeBackup,
		DocumentBackup:   docBackup,
		ContentLength:    len(req.Content),
		Body:             body,
	}, nil
}
