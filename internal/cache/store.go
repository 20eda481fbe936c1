// Package cache keeps the most recent parsed snapshot of each source.
//
// Each source key has one lock. The lock is held for the whole read-through
// (check, parse, replace) and for the whole of a mutation, so a mutation and
// a concurrent refresh of the same source never interleave. Snapshots are
// replaced wholesale: a reader holding an old snapshot keeps a valid,
// complete value.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/graph"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTTL        = 30 * time.Second
	DefaultMaxSources = 16
)

// Miss reasons reported to the Observer.
const (
	ReasonEmpty   = "empty"
	ReasonExpired = "expired"
	ReasonForced  = "forced"
)

// Snapshot is one parsed source: the node index plus its extracted tags.
// Snapshots are shared between callers and must be treated as read-only.
type Snapshot struct {
	Key         string
	WorkspaceID string
	Index       *graph.Index
	Tags        []tags.Tag
	LoadedAt    time.Time
}

// Loader parses a source into a fresh snapshot. LoadedAt is set by the
// store.
type Loader func(ctx context.Context, key string) (*Snapshot, error)

// Clock abstracts time so expiry can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Observer receives cache events. The metrics package implements it.
type Observer interface {
	CacheHit(key string)
	CacheMiss(key, reason string)
	Parsed(key string, elapsed time.Duration, err error)
	Invalidated(key string)
}

// NopObserver ignores every event. Embed it to implement only some of
// Observer's methods.
type NopObserver struct{}

func (NopObserver) CacheHit(string) {}
func (NopObserver) CacheMiss(string, string) {}
func (NopObserver) Parsed(string, time.Duration, error) {}
func (NopObserver) Invalidated(string) {}

type multiObserver []Observer

// Observers fans every event out to each of obs in order.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

func (m multiObserver) CacheHit(key string) {
	for _, o := range m {
		o.CacheHit(key)
	}
}

func (m multiObserver) CacheMiss(key, reason string) {
	for _, o := range m {
		o.CacheMiss(key, reason)
	}
}

func (m multiObserver) Parsed(key string, elapsed time.Duration, err error) {
	for _, o := range m {
		o.Parsed(key, elapsed, err)
	}
}

func (m multiObserver) Invalidated(key string) {
	for _, o := range m {
		o.Invalidated(key)
	}
}

// Options configures a Store.
type Options struct {
	TTL        time.Duration
	MaxSources int
	Clock      Clock
	Observer   Observer
	Logger     *zap.Logger
}

// Store owns the source-key to snapshot map.
type Store struct {
	load     Loader
	ttl      time.Duration
	clock    Clock
	observer Observer
	logger   *zap.Logger

	entries *lru.Cache[string, *Snapshot]

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock serializes work on one key. refs counts holders and waiters; the
// lock leaves the map when it drops to zero.
type keyLock struct {
	sync.Mutex
	refs int
}

// New creates a Store that fills misses with load.
func New(load Loader, opts Options) (*Store, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSources <= 0 {
		opts.MaxSources = DefaultMaxSources
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Store{
		load:     load,
		ttl:      opts.TTL,
		clock:    opts.Clock,
		observer: opts.Observer,
		logger:   opts.Logger,
		locks:    make(map[string]*keyLock),
	}
	entries, err := lru.NewWithEvict[string, *Snapshot](opts.MaxSources, func(key string, _ *Snapshot) {
		s.logger.Debug("cache entry evicted", zap.String("source", key))
	})
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return s, nil
}

// TTL returns the default time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// lock acquires the key lock and returns its release function.
func (s *Store) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// heldLocks returns the number of keys with a holder or waiter.
func (s *Store) heldLocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// lookup returns the cached snapshot or a CacheMiss error naming the reason.
func (s *Store) lookup(key string, ttl time.Duration, force bool) (*Snapshot, error) {
	if force {
		return nil, apperr.New(apperr.CacheMiss, "refresh forced").WithDetail("reason", ReasonForced)
	}
	snap, ok := s.entries.Get(key)
	if !ok {
		return nil, apperr.New(apperr.CacheMiss, "no entry").WithDetail("reason", ReasonEmpty)
	}
	if s.clock.Now().Sub(snap.LoadedAt) > ttl {
		return nil, apperr.New(apperr.CacheMiss, "entry expired").WithDetail("reason", ReasonExpired)
	}
	return snap, nil
}

// Get returns the snapshot for key. The source is reparsed when force is
// set, when there is no entry, or when the entry is older than ttl (the
// store default when ttl is zero). Parse errors are returned as is and
// leave any existing entry untouched.
func (s *Store) Get(ctx context.Context, key string, ttl time.Duration, force bool) (*Snapshot, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	defer s.lock(key)()

	snap, err := s.lookup(key, ttl, force)
	if err == nil {
		s.observer.CacheHit(key)
		s.logger.Debug("cache hit", zap.String("source", key))
		return snap, nil
	}
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.CacheMiss {
		return nil, err
	}
	reason, _ := ae.Details["reason"].(string)
	s.observer.CacheMiss(key, reason)
	return s.refresh(ctx, key, reason)
}

// refresh runs the loader and replaces the entry. Callers hold the key lock.
func (s *Store) refresh(ctx context.Context, key, reason string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	snap, err := s.load(ctx, key)
	elapsed := time.Since(start)
	s.observer.Parsed(key, elapsed, err)
	if err != nil {
		s.logger.Debug("source parse failed", zap.String("source", key), zap.Error(err))
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("loader returned no snapshot")
	}
	snap.Key = key
	snap.LoadedAt = s.clock.Now()
	s.entries.Add(key, snap)
	s.logger.Debug("cache populated",
		zap.String("source", key),
		zap.String("reason", reason),
		zap.Int("nodes", snap.Index.Len()),
		zap.Int("tags", len(snap.Tags)),
		zap.Duration("elapsed", elapsed),
	)
	return snap, nil
}

// Peek returns the cached snapshot without checking its age or parsing.
func (s *Store) Peek(key string) (*Snapshot, bool) {
	return s.entries.Peek(key)
}

// Invalidate drops the entry for key. It waits for any in-flight refresh or
// mutation of that key to finish.
func (s *Store) Invalidate(key string) {
	defer s.lock(key)()
	s.drop(key)
}

func (s *Store) drop(key string) {
	if s.entries.Remove(key) {
		s.observer.Invalidated(key)
		s.logger.Debug("cache entry dropped", zap.String("source", key))
	}
}

// Mutate runs fn while holding the key lock. When fn succeeds the entry is
// dropped before Mutate returns, so the next Get reparses. When fn fails the
// entry is kept: nothing was written.
func (s *Store) Mutate(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	defer s.lock(key)()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	s.drop(key)
	return nil
}

// Len returns the number of cached sources.
func (s *Store) Len() int { return s.entries.Len() }
