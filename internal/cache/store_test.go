package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/graph"
	"github.com/HendryAvila/tanagraph/internal/tags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingLoader returns a distinct empty snapshot on every call and counts
// the calls.
type countingLoader struct {
	calls atomic.Int32
	err   error
}

func (l *countingLoader) load(_ context.Context, key string) (*Snapshot, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return &Snapshot{Index: &graph.Index{}, Tags: []tags.Tag{{ID: key}}}, nil
}

type recordingObserver struct {
	mu          sync.Mutex
	hits        int
	misses      []string
	invalidated int
}

func (o *recordingObserver) CacheHit(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits++
}

func (o *recordingObserver) CacheMiss(_, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses = append(o.misses, reason)
}

func (o *recordingObserver) Parsed(string, time.Duration, error) {}

func (o *recordingObserver) Invalidated(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalidated++
}

func newStore(t *testing.T, l *countingLoader, clock Clock, obs Observer) *Store {
	t.Helper()
	s, err := New(l.load, Options{TTL: 30 * time.Second, Clock: clock, Observer: obs})
	require.NoError(t, err)
	return s
}

func TestGet_WithinTTLReturnsSameSnapshot(t *testing.T) {
	clock := newFakeClock()
	l := &countingLoader{}
	obs := &recordingObserver{}
	s := newStore(t, l, clock, obs)
	ctx := context.Background()

	first, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	second, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, l.calls.Load())
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, []string{ReasonEmpty}, obs.misses)
}

func TestGet_AfterTTLReparsesOnce(t *testing.T) {
	clock := newFakeClock()
	l := &countingLoader{}
	obs := &recordingObserver{}
	s := newStore(t, l, clock, obs)
	ctx := context.Background()

	first, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)

	clock.Advance(31 * time.Second)
	second, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)
	third, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Same(t, second, third)
	assert.EqualValues(t, 2, l.calls.Load())
	assert.Equal(t, []string{ReasonEmpty, ReasonExpired}, obs.misses)
}

func TestGet_PerCallTTL(t *testing.T) {
	clock := newFakeClock()
	l := &countingLoader{}
	s := newStore(t, l, clock, nil)
	ctx := context.Background()

	_, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)
	clock.Advance(5 * time.Second)

	_, err = s.Get(ctx, "src", time.Second, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, l.calls.Load())
}

func TestGet_ForceRefresh(t *testing.T) {
	l := &countingLoader{}
	s := newStore(t, l, newFakeClock(), nil)
	ctx := context.Background()

	first, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)
	second, err := s.Get(ctx, "src", 0, true)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.EqualValues(t, 2, l.calls.Load())
}

func TestGet_LoadErrorKeepsOldEntry(t *testing.T) {
	clock := newFakeClock()
	l := &countingLoader{}
	s := newStore(t, l, clock, nil)
	ctx := context.Background()

	first, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)

	l.err = apperr.New(apperr.MalformedInput, "broken")
	_, err = s.Get(ctx, "src", 0, true)
	assert.Equal(t, apperr.MalformedInput, apperr.KindOf(err))

	peeked, ok := s.Peek("src")
	require.True(t, ok)
	assert.Same(t, first, peeked)
}

func TestGet_CacheMissNeverSurfaces(t *testing.T) {
	l := &countingLoader{}
	s := newStore(t, l, newFakeClock(), nil)

	_, err := s.Get(context.Background(), "fresh", 0, false)
	assert.NoError(t, err)
}

func TestGet_CanceledContext(t *testing.T) {
	l := &countingLoader{}
	s := newStore(t, l, newFakeClock(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "src", 0, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, l.calls.Load())
}

func TestMutate_SuccessDropsEntry(t *testing.T) {
	l := &countingLoader{}
	obs := &recordingObserver{}
	s := newStore(t, l, newFakeClock(), obs)
	ctx := context.Background()

	_, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)

	require.NoError(t, s.Mutate(ctx, "src", func(context.Context) error { return nil }))
	_, ok := s.Peek("src")
	assert.False(t, ok, "entry must be gone when Mutate returns")
	assert.Equal(t, 1, obs.invalidated)

	_, err = s.Get(ctx, "src", 0, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, l.calls.Load())
}

func TestMutate_FailureKeepsEntry(t *testing.T) {
	l := &countingLoader{}
	s := newStore(t, l, newFakeClock(), nil)
	ctx := context.Background()

	first, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)

	boom := errors.New("disk full")
	err = s.Mutate(ctx, "src", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	again, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestMutate_SerializesWithGet(t *testing.T) {
	l := &countingLoader{}
	s := newStore(t, l, newFakeClock(), nil)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Mutate(ctx, "src", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	got := make(chan *Snapshot, 1)
	go func() {
		snap, _ := s.Get(ctx, "src", 0, false)
		got <- snap
	}()

	select {
	case <-got:
		t.Fatal("Get completed while a mutation of the same source was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.NotNil(t, <-got)
}

func TestMutate_DifferentSourcesDoNotContend(t *testing.T) {
	l := &countingLoader{}
	s := newStore(t, l, newFakeClock(), nil)
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = s.Mutate(ctx, "a", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	defer close(release)

	done := make(chan error, 1)
	go func() {
		_, err := s.Get(ctx, "b", 0, false)
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Get on another source blocked behind a mutation")
	}
}

func TestGet_ConcurrentCallersParseOnce(t *testing.T) {
	l := &countingLoader{}
	s := newStore(t, l, newFakeClock(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	snaps := make([]*Snapshot, 16)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snaps[i], _ = s.Get(ctx, "src", 0, false)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, l.calls.Load())
	for _, snap := range snaps {
		assert.Same(t, snaps[0], snap)
	}
}

func TestKeyLocks_ReleasedWhenIdle(t *testing.T) {
	l := &countingLoader{}
	s, err := New(l.load, Options{MaxSources: 2, Clock: newFakeClock()})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("src-%d", i)
		_, err := s.Get(ctx, key, 0, false)
		require.NoError(t, err)
		require.NoError(t, s.Mutate(ctx, key, func(context.Context) error { return nil }))
		s.Invalidate(key)
	}
	assert.Equal(t, 0, s.heldLocks())
	assert.LessOrEqual(t, s.Len(), 2)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Mutate(ctx, "busy", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	assert.Equal(t, 1, s.heldLocks())
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 0, s.heldLocks())
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "root", "name": "Root"},
		{"id": "child1", "name": "Child", "parentId": "root", "supertags": ["project"]}
	]`), 0o644))

	key, err := SourceKey(filepath.Join(dir, ".", "export.json"))
	require.NoError(t, err)
	assert.Equal(t, path, key)

	s, err := New(FileLoader(tags.ExtractOptions{}), Options{})
	require.NoError(t, err)

	snap, err := s.Get(context.Background(), key, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Index.Len())
	require.Len(t, snap.Tags, 1)
	assert.Equal(t, "project", snap.Tags[0].Name)
	assert.Equal(t, key, snap.Key)
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	s := newStore(t, &countingLoader{}, newFakeClock(), Observers(a, b, NopObserver{}))
	ctx := context.Background()

	_, err := s.Get(ctx, "src", 0, false)
	require.NoError(t, err)
	_, err = s.Get(ctx, "src", 0, false)
	require.NoError(t, err)
	s.Invalidate("src")

	for _, o := range []*recordingObserver{a, b} {
		assert.Equal(t, 1, o.hits)
		assert.Equal(t, []string{ReasonEmpty}, o.misses)
		assert.Equal(t, 1, o.invalidated)
	}
}
