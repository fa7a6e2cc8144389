// Package handle hands out revocable string references to in-memory blobs.
//
// A handle is a string like "blob:assetcache/1b4e28ba-2fa1-11d2-883f-0016d3cca427".
// It resolves to its bytes until revoked; after that it resolves to nothing.
package handle

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Prefix starts every handle string.
const Prefix = "blob:assetcache/"

// Registry tracks live handles.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string][]byte)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Create registers data and returns a new handle for it. The registry keeps
// a reference to data; callers must not modify it afterwards.
func (r *Registry) Create(data []byte) string {
	h := Prefix + uuid.NewString()

	r.mu.Lock()
	r.blobs[h] = data
	r.mu.Unlock()
	return h
}

// Resolve returns the bytes behind a live handle.
func (r *Registry) Resolve(h string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.blobs[h]
	return data, ok
}

// Revoke releases h. It reports whether h was live; revoking twice is a no-op.
func (r *Registry) Revoke(h string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[h]; !ok {
		return false
	}
	delete(r.blobs, h)
	return true
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// IsHandle reports whether s has the shape of a handle.
func IsHandle(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// Resolve looks h up in the default registry.
func Resolve(h string) ([]byte, bool) {
	return Default().Resolve(h)
}
