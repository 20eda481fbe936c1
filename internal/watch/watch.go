// Package watch drops cached snapshots when their source file changes on
// disk. It never parses; the next request reparses synchronously.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/cache"
)

// Invalidator drops a cached source. *cache.Store implements it.
type Invalidator interface {
	Invalidate(key string)
}

// Watcher tracks the directories of loaded sources. It observes the cache
// to learn which sources have been parsed.
type Watcher struct {
	cache.NopObserver

	fs     *fsnotify.Watcher
	target Invalidator
	logger *zap.Logger

	mu      sync.Mutex
	sources map[string]bool
	dirs    map[string]bool

	done chan struct{}
	once sync.Once
}

// New creates a watcher. Call Run to start processing events.
func New(target Invalidator, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	return &Watcher{
		fs:      fw,
		target:  target,
		logger:  logger,
		sources: make(map[string]bool),
		dirs:    make(map[string]bool),
		done:    make(chan struct{}),
	}, nil
}

// Parsed starts tracking a source after its first successful parse.
func (w *Watcher) Parsed(key string, _ time.Duration, err error) {
	if err != nil {
		return
	}
	if err := w.Track(key); err != nil {
		w.logger.Warn("cannot watch source", zap.String("source", key), zap.Error(err))
	}
}

// Track watches the directory holding key. Directories are watched rather
// than files so atomic renames over the source are seen.
func (w *Watcher) Track(key string) error {
	key = filepath.Clean(key)
	dir := filepath.Dir(key)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sources[key] {
		return nil
	}
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.sources[key] = true
	w.logger.Debug("watching source", zap.String("source", key))
	return nil
}

// Tracked reports whether key is being watched.
func (w *Watcher) Tracked(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sources[filepath.Clean(key)]
}

// Run processes events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return
	}
	key := filepath.Clean(ev.Name)
	w.mu.Lock()
	tracked := w.sources[key]
	w.mu.Unlock()
	if !tracked {
		return
	}
	w.logger.Debug("source changed on disk", zap.String("source", key), zap.String("op", ev.Op.String()))
	w.target.Invalidate(key)
}

// Close stops Run and releases the underlying watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}
