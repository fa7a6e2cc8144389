package assetcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aweris/assetcache/internal/fetch"
	"github.com/aweris/assetcache/internal/handle"
)

// Manager coordinates the persistent store, the known-key index and the
// handle cache.
type Manager struct {
	store       Store
	fetcher     Fetcher
	handles     *handle.Registry
	concurrency int
	logger      *zap.Logger

	mu    sync.RWMutex
	keys  []string            // known-key index, in insertion order
	known map[string]struct{} // membership for keys
	cache map[string]string   // key -> live handle

	inflight singleflight.Group
}

// Build reads the store's key list once and returns a Manager bound to it.
func Build(ctx context.Context, opts ...BuildOption) (*Manager, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	s := options.Store
	if s == nil {
		var err error
		if s, err = DefaultStore(); err != nil {
			return nil, fmt.Errorf("open default store: %w", err)
		}
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	m := &Manager{
		store:       s,
		fetcher:     options.Fetcher,
		handles:     options.Handles,
		concurrency: options.Concurrency,
		logger:      options.Logger,
		keys:        make([]string, 0, len(keys)),
		known:       make(map[string]struct{}, len(keys)),
		cache:       make(map[string]string),
	}
	if m.fetcher == nil {
		m.fetcher = fetch.NewDefault()
	}
	if m.handles == nil {
		m.handles = handle.Default()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.addKeys(keys)

	m.logger.Debug("manager built", zap.Int("keys", len(m.keys)))
	return m, nil
}

// CacheURL returns a handle for key, or "" if the key is unknown or its
// stored value is missing or unreadable. It never touches the network.
//
// Concurrent calls for the same key share one store read and one handle.
// Canceling ctx abandons only this caller's wait; the shared read and the
// handle it creates still complete for the others.
func (m *Manager) CacheURL(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	h, cached := m.cache[key]
	_, known := m.known[key]
	m.mu.RUnlock()

	if cached {
		return h, nil
	}
	if !known {
		return "", nil
	}

	// The shared read ignores caller cancellation; each caller only abandons
	// its own wait.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.inflight.DoChan(key, func() (any, error) {
		return m.createHandle(flightCtx, key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) createHandle(ctx context.Context, key string) (string, error) {
	// A previous flight may have finished between the caller's check and now.
	m.mu.RLock()
	h, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return h, nil
	}

	entry, err := m.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if entry.State != Present {
		m.logger.Debug("stored value unavailable", zap.String("key", key), zap.Stringer("state", entry.State))
		return "", nil
	}

	h = m.handles.Create(entry.Data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.cache[key]; ok {
		m.handles.Revoke(h)
		return existing, nil
	}
	m.cache[key] = h
	return h, nil
}

// ManualCache downloads every url not yet in the known-key index and stores
// it. The batch is all-or-nothing: if any download or write fails, the
// index is left unchanged and the first error is returned. Download
// failures match ErrDownloadFailed; store errors are wrapped as-is.
func (m *Manager) ManualCache(ctx context.Context, urls []string) error {
	candidates := m.unknown(urls)
	if len(candidates) == 0 {
		m.logger.Debug("nothing to cache", zap.Int("requested", len(urls)))
		return nil
	}

	m.logger.Debug("caching assets",
		zap.Int("requested", len(urls)),
		zap.Int("candidates", len(candidates)))

	blobs := make([][]byte, len(candidates))

	fetches := m.newPool(ctx)
	for i, url := range candidates {
		fetches.Go(func(ctx context.Context) error {
			data, err := m.fetcher.Fetch(ctx, url)
			if err != nil {
				if errors.Is(err, ErrDownloadFailed) {
					return err
				}
				return fmt.Errorf("%w: %s: %w", ErrDownloadFailed, url, err)
			}
			blobs[i] = data
			return nil
		})
	}
	if err := fetches.Wait(); err != nil {
		return err
	}

	writes := m.newPool(ctx)
	for i, url := range candidates {
		writes.Go(func(ctx context.Context) error {
			if err := m.store.Set(ctx, url, blobs[i]); err != nil {
				return fmt.Errorf("write %s: %w", url, err)
			}
			return nil
		})
	}
	if err := writes.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	m.addKeys(candidates)
	m.mu.Unlock()

	m.logger.Info("assets cached", zap.Int("count", len(candidates)))
	return nil
}

func (m *Manager) newPool(ctx context.Context) *pool.ContextPool {
	return pool.New().
		WithMaxGoroutines(m.concurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
}

// unknown returns urls missing from the index, deduplicated, in input order.
func (m *Manager) unknown(urls []string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{}, len(urls))
	var out []string
	for _, url := range urls {
		if _, ok := m.known[url]; ok {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	return out
}

// addKeys appends keys not already indexed. Callers hold mu, except Build.
func (m *Manager) addKeys(keys []string) {
	for _, k := range keys {
		if _, ok := m.known[k]; ok {
			continue
		}
		m.known[k] = struct{}{}
		m.keys = append(m.keys, k)
	}
}

// RevokeOne releases the handle for key, if any, and forgets it so the next
// CacheURL creates a fresh one.
func (m *Manager) RevokeOne(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.cache[key]; ok {
		m.handles.Revoke(h)
		delete(m.cache, key)
	}
}

// Destroy releases every live handle. The index and the store are left
// alone, so the Manager stays usable.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range m.cache {
		m.handles.Revoke(h)
	}
	clear(m.cache)
}

// Keys returns a copy of the known-key index.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.keys...)
}

// Has reports whether key is in the known-key index.
func (m *Manager) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.known[key]
	return ok
}
