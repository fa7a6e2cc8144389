package assetcache

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/aweris/assetcache/internal/fetch"
	"github.com/aweris/assetcache/internal/handle"
	"github.com/aweris/assetcache/internal/store"
)

// Store is the persistent layer a Manager reads from and writes to.
// Re-exported from internal/store for convenience.
type Store = store.Store

// BoltStore is the durable Store backed by a bbolt file.
type BoltStore = store.Bolt

// MemoryStore is a Store that lives only in process memory.
type MemoryStore = store.Memory

// Entry is the tagged result of a store read.
type Entry = store.Entry

// Entry states.
const (
	Absent  = store.Absent
	Present = store.Present
	Corrupt = store.Corrupt
)

// Fetcher retrieves asset bytes for ManualCache.
// Re-exported from internal/fetch for convenience.
type Fetcher = fetch.Fetcher

// FetchFunc adapts a function to Fetcher.
type FetchFunc = fetch.Func

// Handles tracks live handle strings and the bytes behind them.
type Handles = handle.Registry

// Names of the store used when Build is given none.
const (
	DefaultDBName    = "asset-db"
	DefaultStoreName = "asset-store"
)

var defaultStore = sync.OnceValues(func() (*store.Bolt, error) {
	return store.OpenBolt(DefaultDataDir(), DefaultDBName, DefaultStoreName, store.BoltOptions{
		Compression: true,
	})
})

// DefaultStore returns the process-wide store, opening it on first use.
// It lives until the process exits. A failed open is not retried.
func DefaultStore() (Store, error) {
	s, err := defaultStore()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// StoreOptions tunes compression and file locking for OpenStore.
type StoreOptions = store.BoltOptions

// OpenStore opens a bbolt-backed store named dbName/storeName under dir.
func OpenStore(dir, dbName, storeName string, opts StoreOptions) (*BoltStore, error) {
	return store.OpenBolt(dir, dbName, storeName, opts)
}

// NewMemoryStore returns a Store that lives only in process memory.
func NewMemoryStore() *MemoryStore {
	return store.NewMemory()
}

// NewHandles returns an empty handle registry, separate from the default one.
func NewHandles() *Handles {
	return handle.NewRegistry()
}

// Resolve returns the bytes behind a live handle from the default registry.
func Resolve(h string) ([]byte, bool) {
	return handle.Resolve(h)
}

// DefaultDataDir is where the default store keeps its database.
func DefaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "assetcache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "assetcache")
	}
	return ".assetcache"
}
