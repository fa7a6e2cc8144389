package assetcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aweris/assetcache/internal/store"
)

// countingStore wraps a Store and counts calls.
type countingStore struct {
	Store
	gets atomic.Int64
	sets atomic.Int64

	getDelay time.Duration
	setErr   map[string]error
}

func (s *countingStore) Get(ctx context.Context, key string) (Entry, error) {
	s.gets.Add(1)
	if s.getDelay > 0 {
		time.Sleep(s.getDelay)
	}
	return s.Store.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte) error {
	s.sets.Add(1)
	if err := s.setErr[key]; err != nil {
		return err
	}
	return s.Store.Set(ctx, key, value)
}

// fakeFetcher serves fixed bodies and fails for anything in fail.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.fail[url] {
		return nil, fmt.Errorf("%w: %s: status 404", ErrDownloadFailed, url)
	}
	return []byte("body of " + url), nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testEnv struct {
	store   *countingStore
	mem     *store.Memory
	fetcher *fakeFetcher
	handles *Handles
}

func newTestEnv() *testEnv {
	mem := store.NewMemory()
	return &testEnv{
		store:   &countingStore{Store: mem},
		mem:     mem,
		fetcher: &fakeFetcher{fail: map[string]bool{}},
		handles: NewHandles(),
	}
}

func (e *testEnv) build(t *testing.T) *Manager {
	t.Helper()
	m, err := Build(context.Background(),
		WithStore(e.store),
		WithFetcher(e.fetcher),
		WithHandles(e.handles),
		WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	return m
}

func TestBuildReadsKeys(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.mem.Set(ctx, "b.png", []byte("b")))
	require.NoError(t, env.mem.Set(ctx, "a.png", []byte("a")))

	m := env.build(t)

	assert.Equal(t, []string{"a.png", "b.png"}, m.Keys())
	assert.True(t, m.Has("a.png"))
	assert.False(t, m.Has("c.png"))
}

func TestBuildPropagatesStoreError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, WithStore(store.NewMemory()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheURLUnknownKey(t *testing.T) {
	env := newTestEnv()
	m := env.build(t)

	h, err := m.CacheURL(context.Background(), "missing.png")
	require.NoError(t, err)
	assert.Empty(t, h)
	assert.Zero(t, env.store.gets.Load())
	assert.Zero(t, env.fetcher.count())
}

func TestCacheURLReturnsSameHandle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.mem.Set(ctx, "a.png", []byte("pixels")))
	m := env.build(t)

	first, err := m.CacheURL(ctx, "a.png")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := m.CacheURL(ctx, "a.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, env.store.gets.Load())

	data, ok := env.handles.Resolve(first)
	require.True(t, ok)
	assert.Equal(t, []byte("pixels"), data)
}

func TestCacheURLCorruptEntry(t *testing.T) {
	env := newTestEnv()
	env.mem.MarkCorrupt("bad.png")
	m := env.build(t)
	require.True(t, m.Has("bad.png"))

	h, err := m.CacheURL(context.Background(), "bad.png")
	require.NoError(t, err)
	assert.Empty(t, h)
	assert.Zero(t, env.handles.Len())

	// Nothing was cached, so the store is read again.
	_, err = m.CacheURL(context.Background(), "bad.png")
	require.NoError(t, err)
	assert.EqualValues(t, 2, env.store.gets.Load())
}

func TestCacheURLConcurrentCallsShareHandle(t *testing.T) {
	env := newTestEnv()
	env.store.getDelay = 20 * time.Millisecond
	ctx := context.Background()
	require.NoError(t, env.mem.Set(ctx, "a.png", []byte("pixels")))
	m := env.build(t)

	const callers = 16
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.CacheURL(ctx, "a.png")
			assert.NoError(t, err)
			results[i] = h
		}()
	}
	wg.Wait()

	for _, h := range results {
		assert.Equal(t, results[0], h)
	}
	assert.Equal(t, 1, env.handles.Len())
}

// gatedStore blocks Get until release is closed or ctx is done.
type gatedStore struct {
	Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) Get(ctx context.Context, key string) (Entry, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
	return s.Store.Get(ctx, key)
}

func TestCacheURLCancelOnlyAffectsOwnCaller(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Set(context.Background(), "a.png", []byte("pixels")))
	gated := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	handles := NewHandles()

	m, err := Build(context.Background(), WithStore(gated), WithHandles(handles))
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.CacheURL(firstCtx, "a.png")
		firstErr <- err
	}()
	<-gated.entered

	type result struct {
		h   string
		err error
	}
	second := make(chan result, 1)
	go func() {
		h, err := m.CacheURL(context.Background(), "a.png")
		second <- result{h, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(gated.release)

	got := <-second
	require.NoError(t, got.err)
	require.NotEmpty(t, got.h)
	data, ok := handles.Resolve(got.h)
	require.True(t, ok)
	assert.Equal(t, []byte("pixels"), data)
	assert.Equal(t, 1, handles.Len())
}

func TestManualCacheThenCacheURL(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	m := env.build(t)

	require.NoError(t, m.ManualCache(ctx, []string{"a.png", "b.png", "a.png"}))
	assert.Equal(t, []string{"a.png", "b.png"}, m.Keys())
	assert.Equal(t, 2, env.fetcher.count())

	h, err := m.CacheURL(ctx, "a.png")
	require.NoError(t, err)
	require.NotEmpty(t, h)
	assert.Equal(t, 2, env.fetcher.count())

	data, ok := env.handles.Resolve(h)
	require.True(t, ok)
	assert.Equal(t, []byte("body of a.png"), data)
}

func TestManualCacheSkipsKnownKeys(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.mem.Set(ctx, "a.png", []byte("a")))
	m := env.build(t)

	require.NoError(t, m.ManualCache(ctx, []string{"a.png"}))
	assert.Zero(t, env.fetcher.count())
	assert.Zero(t, env.store.sets.Load())

	require.NoError(t, m.ManualCache(ctx, []string{"a.png", "b.png"}))
	assert.Equal(t, []string{"b.png"}, env.fetcher.calls)
	assert.Equal(t, []string{"a.png", "b.png"}, m.Keys())
}

func TestManualCacheIsAllOrNothing(t *testing.T) {
	env := newTestEnv()
	env.fetcher.fail["bad.png"] = true
	m := env.build(t)

	err := m.ManualCache(context.Background(), []string{"a.png", "bad.png"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.Contains(t, err.Error(), "download failed")
	assert.Empty(t, m.Keys())
	assert.Zero(t, env.store.sets.Load())

	h, err := m.CacheURL(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestManualCacheWrapsPlainFetchErrors(t *testing.T) {
	env := newTestEnv()
	boom := errors.New("connection reset")
	m, err := Build(context.Background(),
		WithStore(env.store),
		WithHandles(env.handles),
		WithFetcher(FetchFunc(func(ctx context.Context, url string) ([]byte, error) {
			return nil, boom
		})),
	)
	require.NoError(t, err)

	err = m.ManualCache(context.Background(), []string{"a.png"})
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.ErrorIs(t, err, boom)
}

func TestManualCacheStoreErrorLeavesIndex(t *testing.T) {
	env := newTestEnv()
	diskFull := errors.New("disk full")
	env.store.setErr = map[string]error{"b.png": diskFull}
	m := env.build(t)

	err := m.ManualCache(context.Background(), []string{"a.png", "b.png"})
	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)
	assert.NotErrorIs(t, err, ErrDownloadFailed)
	assert.Empty(t, m.Keys())
}

func TestManualCacheRespectsConcurrency(t *testing.T) {
	var running, peak atomic.Int64
	fetcher := FetchFunc(func(ctx context.Context, url string) ([]byte, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return []byte(url), nil
	})

	m, err := Build(context.Background(),
		WithStore(store.NewMemory()),
		WithFetcher(fetcher),
		WithHandles(NewHandles()),
		WithConcurrency(2),
	)
	require.NoError(t, err)

	urls := make([]string, 10)
	for i := range urls {
		urls[i] = fmt.Sprintf("%d.png", i)
	}
	require.NoError(t, m.ManualCache(context.Background(), urls))
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Len(t, m.Keys(), 10)
}

func TestRevokeOneEvictsHandle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.mem.Set(ctx, "a.png", []byte("a")))
	m := env.build(t)

	first, err := m.CacheURL(ctx, "a.png")
	require.NoError(t, err)

	m.RevokeOne("a.png")
	_, ok := env.handles.Resolve(first)
	assert.False(t, ok)

	second, err := m.CacheURL(ctx, "a.png")
	require.NoError(t, err)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
	assert.True(t, m.Has("a.png"))

	m.RevokeOne("never-seen.png")
}

func TestRevokeOneThenDestroy(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.mem.Set(ctx, "a.png", []byte("a")))
	require.NoError(t, env.mem.Set(ctx, "b.png", []byte("b")))
	m := env.build(t)

	_, err := m.CacheURL(ctx, "a.png")
	require.NoError(t, err)
	_, err = m.CacheURL(ctx, "b.png")
	require.NoError(t, err)
	require.Equal(t, 2, env.handles.Len())

	assert.NotPanics(t, func() {
		m.RevokeOne("a.png")
		m.Destroy()
		m.Destroy()
	})
	assert.Zero(t, env.handles.Len())
	assert.Equal(t, []string{"a.png", "b.png"}, m.Keys())
}

func TestScenarioEmptyStore(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	m := env.build(t)
	assert.Empty(t, m.Keys())

	h, err := m.CacheURL(ctx, "a.png")
	require.NoError(t, err)
	assert.Equal(t, "", h)

	require.NoError(t, m.ManualCache(ctx, []string{"a.png"}))
	assert.Equal(t, []string{"a.png"}, m.Keys())

	h, err = m.CacheURL(ctx, "a.png")
	require.NoError(t, err)
	require.NotEmpty(t, h)
	_, ok := env.handles.Resolve(h)
	require.True(t, ok)

	m.Destroy()
	_, ok = env.handles.Resolve(h)
	assert.False(t, ok)
}

func TestSharedStoreAcrossManagers(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	first := env.build(t)
	second := env.build(t)

	require.NoError(t, first.ManualCache(ctx, []string{"a.png"}))

	// second's index is a snapshot from its own build.
	h, err := second.CacheURL(ctx, "a.png")
	require.NoError(t, err)
	assert.Empty(t, h)

	third := env.build(t)
	h, err = third.CacheURL(ctx, "a.png")
	require.NoError(t, err)
	assert.NotEmpty(t, h)
}

func TestBoltStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	handles := NewHandles()
	fetcher := &fakeFetcher{fail: map[string]bool{}}

	s, err := OpenStore(dir, DefaultDBName, DefaultStoreName, StoreOptions{Compression: true})
	require.NoError(t, err)

	m, err := Build(ctx, WithStore(s), WithFetcher(fetcher), WithHandles(handles))
	require.NoError(t, err)
	require.NoError(t, m.ManualCache(ctx, []string{"https://example.com/a.png"}))
	m.Destroy()
	require.NoError(t, s.Close())

	s, err = OpenStore(dir, DefaultDBName, DefaultStoreName, StoreOptions{Compression: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m, err = Build(ctx, WithStore(s), WithFetcher(fetcher), WithHandles(handles))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a.png"}, m.Keys())

	h, err := m.CacheURL(ctx, "https://example.com/a.png")
	require.NoError(t, err)
	data, ok := handles.Resolve(h)
	require.True(t, ok)
	assert.Equal(t, []byte("body of https://example.com/a.png"), data)
	assert.Equal(t, 1, fetcher.count())
}
