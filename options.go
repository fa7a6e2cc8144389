package assetcache

import (
	"go.uber.org/zap"
)

// DefaultConcurrency bounds parallel fetches and writes in ManualCache.
const DefaultConcurrency = 4

// BuildOptions configures a Manager.
type BuildOptions struct {
	Store       Store
	Fetcher     Fetcher
	Handles     *Handles
	Concurrency int
	Logger      *zap.Logger
}

// BuildOption is a functional option for configuring Build.
type BuildOption func(*BuildOptions)

func defaultOptions() *BuildOptions {
	return &BuildOptions{
		Concurrency: DefaultConcurrency,
	}
}

// WithStore sets the persistent store. Without it Build uses DefaultStore.
func WithStore(s Store) BuildOption {
	return func(o *BuildOptions) { o.Store = s }
}

// WithFetcher sets how ManualCache downloads assets.
func WithFetcher(f Fetcher) BuildOption {
	return func(o *BuildOptions) { o.Fetcher = f }
}

// WithHandles sets the registry handles are created in. Defaults to the
// process-wide registry that Resolve reads.
func WithHandles(h *Handles) BuildOption {
	return func(o *BuildOptions) { o.Handles = h }
}

// WithConcurrency sets the number of parallel fetches and writes.
func WithConcurrency(n int) BuildOption {
	return func(o *BuildOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) BuildOption {
	return func(o *BuildOptions) { o.Logger = l }
}
