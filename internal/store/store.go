// Package store implements the persistent layer behind the asset cache.
//
// A Store is a durable key/value table: keys are asset URLs, values are
// whole blobs. Stores are namespaced by a database name and a store name,
// mirroring how a browser scopes object stores inside a database.
package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// State tags the outcome of a store read.
type State int

const (
	// Absent means no value exists under the key.
	Absent State = iota
	// Present means Data holds the stored blob.
	Present
	// Corrupt means a value exists but could not be decoded as a blob.
	Corrupt
)

func (s State) String() string {
	switch s {
	case Present:
		return "present"
	case Corrupt:
		return "corrupt"
	default:
		return "absent"
	}
}

// Entry is the tagged result of Store.Get.
type Entry struct {
	State State
	Data  []byte
}

// Store handles persistent blob storage.
type Store interface {
	// Get reads the value under key. A missing or unreadable value is
	// reported through Entry.State, not as an error.
	Get(ctx context.Context, key string) (Entry, error)

	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Keys lists every stored key in ascending order.
	Keys(ctx context.Context) ([]string, error)
}
