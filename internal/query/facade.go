// Package query is the single entry surface for callers. It composes the
// cache, the tag resolver, the keytags configuration, snapshot history and
// the mutation engine into the operations the CLI and the MCP tools expose.
//
// Every operation is a request type implementing Request. New builds one
// dispatch table from Op to handler; Do routes a request through it.
package query

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/cache"
	"github.com/HendryAvila/tanagraph/internal/history"
	"github.com/HendryAvila/tanagraph/internal/keytags"
	"github.com/HendryAvila/tanagraph/internal/mutation"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

// Snapshots returns parsed snapshots of a source. *cache.Store implements it.
type Snapshots interface {
	Get(ctx context.Context, key string, ttl time.Duration, force bool) (*cache.Snapshot, error)
}

// Keytags loads the per-workspace configuration. *keytags.Store implements
// it.
type Keytags interface {
	Load(workspaceID string) (*keytags.File, error)
}

// History stores the tag lists change detection compares against.
// *history.Store implements it.
type History interface {
	Latest(sourceKey string) (*history.Snapshot, error)
	Record(sourceKey, workspaceID string, list []tags.Tag) (*history.Snapshot, error)
}

// Appender performs guarded appends. *mutation.Engine implements it.
type Appender interface {
	Append(ctx context.Context, req mutation.Request) (*mutation.Result, error)
}

// Options configures a Facade. Every field is optional.
type Options struct {
	// DefaultSource is used by requests that name no source.
	DefaultSource string
	// Resolve maps a source argument to a file path before it becomes a
	// cache key, for example against a files directory.
	Resolve func(path string) string
	// Keytags supplies directory mappings and configured inheritance.
	// Without it no tag has a directory.
	Keytags Keytags
	// History persists snapshots for change detection. Without it
	// comparisons only last for the life of the process.
	History History
	Logger  *zap.Logger
}

type handler func(ctx context.Context, req Request) (any, error)

type route struct {
	newRequest func() Request
	run        handler
}

// Facade runs requests against snapshots served by the cache.
type Facade struct {
	snapshots     Snapshots
	appender      Appender
	keytags       Keytags
	history       History
	defaultSource string
	resolve       func(string) string
	logger        *zap.Logger

	routes map[Op]route
}

// New wires a façade. appender may be nil, in which case append requests
// are rejected.
func New(snapshots Snapshots, appender Appender, opts Options) *Facade {
	f := &Facade{
		snapshots:     snapshots,
		appender:      appender,
		keytags:       opts.Keytags,
		history:       opts.History,
		defaultSource: opts.DefaultSource,
		resolve:       opts.Resolve,
		logger:        opts.Logger,
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.history == nil {
		f.history = newMemoryHistory()
	}

	f.routes = map[Op]route{
		OpListTags:      {func() Request { return &ListTagsRequest{} }, bind(f.ListTags)},
		OpReadNode:      {func() Request { return &ReadNodeRequest{} }, bind(f.ReadNode)},
		OpListNodes:     {func() Request { return &ListNodesRequest{} }, bind(f.ListNodesByTag)},
		OpAppendToNode:  {func() Request { return &AppendRequest{} }, bind(f.AppendToNode)},
		OpDetectChanges: {func() Request { return &DetectChangesRequest{} }, bind(f.DetectChanges)},
		OpConflicts:     {func() Request { return &ConflictsRequest{} }, bind(f.Conflicts)},
	}
	return f
}

func bind[R Request, T any](fn func(context.Context, R) (T, error)) handler {
	return func(ctx context.Context, req Request) (any, error) {
		r, ok := req.(R)
		if !ok {
			return nil, apperr.New(apperr.InvalidRequest, "request %T does not match operation %s", req, req.Op())
		}
		res, err := fn(ctx, r)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

// Do runs req through the dispatch table.
func (f *Facade) Do(ctx context.Context, req Request) (any, error) {
	if req == nil {
		return nil, apperr.New(apperr.InvalidRequest, "request must not be nil")
	}
	rt, ok := f.routes[req.Op()]
	if !ok {
		return nil, unknownOp(string(req.Op()))
	}
	return rt.run(ctx, req)
}

// Decode builds the request for an operation name from its JSON arguments.
func (f *Facade) Decode(op string, args []byte) (Request, error) {
	rt, ok := f.routes[Op(op)]
	if !ok {
		return nil, unknownOp(op)
	}
	req := rt.newRequest()
	if len(args) > 0 {
		if err := json.Unmarshal(args, req); err != nil {
			return nil, apperr.Wrap(apperr.InvalidRequest, err, "invalid arguments for %s", op)
		}
	}
	return req, nil
}

func unknownOp(op string) error {
	return apperr.New(apperr.InvalidRequest, "unknown operation %q", op).
		WithDetail("operations", Ops)
}

// --- Shared helpers ---

// load resolves the request's source to a cache key and returns the
// current snapshot.
func (f *Facade) load(ctx context.Context, c *Common) (string, *cache.Snapshot, error) {
	key, err := f.sourceKey(c)
	if err != nil {
		return "", nil, err
	}
	snap, err := f.snapshots.Get(ctx, key, c.TTL, c.ForceRefresh)
	if err != nil {
		return "", nil, err
	}
	return key, snap, nil
}

func (f *Facade) sourceKey(c *Common) (string, error) {
	path := c.Source
	if path == "" {
		path = f.defaultSource
	}
	if f.resolve != nil {
		path = f.resolve(path)
	}
	if path == "" {
		return "", apperr.New(apperr.InvalidRequest, "no source given").
			WithRemedy("pass a source path or configure a default source")
	}
	key, err := cache.SourceKey(path)
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidRequest, err, "invalid source path %q", path)
	}
	return key, nil
}

// resolver builds the tag resolver of a snapshot together with the
// workspace's directory mapping.
func (f *Facade) resolver(snap *cache.Snapshot) (*tags.Resolver, tags.Mapping, error) {
	var (
		inheritance map[string][]string
		mapping     tags.Mapping
	)
	if f.keytags != nil {
		kf, err := f.keytags.Load(snap.WorkspaceID)
		if err != nil {
			return nil, mapping, err
		}
		inheritance = kf.InheritanceMap()
		mapping = kf.Mapping()
	}
	return tags.NewResolver(snap.Tags, inheritance), mapping, nil
}
