package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/aweris/assetcache/internal/compression"
)

// BoltOptions configures a Bolt store.
type BoltOptions struct {
	// CompressionLevel is passed to the zstd compressor (1 fastest, 3 best).
	CompressionLevel int
	// Compression toggles zstd for new writes. Existing values are always
	// readable.
	Compression bool
	// Timeout bounds how long Open waits for the database file lock.
	Timeout time.Duration
}

// Bolt implements Store on a BoltDB file.
//
// Storage layout:
//
//	dir/
//	  <dbName>.db        (one bbolt file per database name)
//	    bucket <storeName>
//	      <url> -> [tag][payload]
type Bolt struct {
	db         *bbolt.DB
	path       string
	bucket     []byte
	compressor *compression.Compressor
}

// OpenBolt opens (creating if needed) the database dbName under dir and
// ensures the bucket storeName exists.
func OpenBolt(dir, dbName, storeName string, opts BoltOptions) (*Bolt, error) {
	if strings.TrimSpace(dbName) == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if strings.TrimSpace(storeName) == "" {
		return nil, fmt.Errorf("store name is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}

	path := filepath.Join(dir, dbName+".db")
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	compressor, err := compression.NewCompressor(opts.CompressionLevel, opts.Compression)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	b := &Bolt{
		db:         db,
		path:       path,
		bucket:     []byte(storeName),
		compressor: compressor,
	}
	if err := b.ensureBucket(); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// Path returns the database file backing the store.
func (b *Bolt) Path() string { return b.path }

// Get reads and decodes the value under key.
func (b *Bolt) Get(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	var framed []byte
	err := b.view(func(bucket *bbolt.Bucket) error {
		if v := bucket.Get([]byte(key)); v != nil {
			// bbolt values are only valid inside the transaction.
			framed = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if framed == nil {
		return Entry{State: Absent}, nil
	}

	data, err := b.compressor.Decode(framed)
	if err != nil {
		return Entry{State: Corrupt}, nil
	}
	return Entry{State: Present, Data: data}, nil
}

// Set stores value under key, replacing any previous value.
func (b *Bolt) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}

	framed := b.compressor.Encode(value)
	return b.update(func(bucket *bbolt.Bucket) error {
		return bucket.Put([]byte(key), framed)
	})
}

// Keys lists all keys in byte order.
func (b *Bolt) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := []string{}
	err := b.view(func(bucket *bbolt.Bucket) error {
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close releases the database file.
func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	_ = b.compressor.Close()
	return b.db.Close()
}

func (b *Bolt) view(fn func(*bbolt.Bucket) error) error {
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return fmt.Errorf("bucket %q is missing", b.bucket)
		}
		return fn(bucket)
	})
	return closedErr(err)
}

func (b *Bolt) update(fn func(*bbolt.Bucket) error) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return fmt.Errorf("bucket %q is missing", b.bucket)
		}
		return fn(bucket)
	})
	return closedErr(err)
}

func (b *Bolt) ensureBucket() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(b.bucket); err != nil {
			return fmt.Errorf("create bucket %q: %w", b.bucket, err)
		}
		return nil
	})
}

func closedErr(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
