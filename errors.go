package assetcache

import (
	"github.com/aweris/assetcache/internal/fetch"
	"github.com/aweris/assetcache/internal/store"
)

var (
	// ErrDownloadFailed wraps every fetch failure surfaced by ManualCache.
	ErrDownloadFailed = fetch.ErrDownloadFailed
	// ErrClosed is returned when the underlying store has been closed.
	ErrClosed = store.ErrClosed
)
