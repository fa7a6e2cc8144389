// Package fetch retrieves asset bytes over the network.
//
// HTTP(S) URLs are fetched with a plain GET; oci:// URLs name a single blob
// in an OCI registry ("oci://ghcr.io/org/assets@sha256:...").
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDownloadFailed is returned for any fetch that does not produce the
// asset's bytes.
var ErrDownloadFailed = errors.New("download failed")

// Fetcher retrieves the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, url string) ([]byte, error)

func (f Func) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// Mux routes a URL to a Fetcher by scheme.
type Mux struct {
	schemes  map[string]Fetcher
	fallback Fetcher
}

// NewMux returns a Mux that sends unregistered schemes to fallback.
func NewMux(fallback Fetcher) *Mux {
	return &Mux{schemes: make(map[string]Fetcher), fallback: fallback}
}

// Handle registers f for scheme (without "://").
func (m *Mux) Handle(scheme string, f Fetcher) *Mux {
	m.schemes[strings.ToLower(scheme)] = f
	return m
}

func (m *Mux) Fetch(ctx context.Context, url string) ([]byte, error) {
	if scheme, _, ok := strings.Cut(url, "://"); ok {
		if f, ok := m.schemes[strings.ToLower(scheme)]; ok {
			return f.Fetch(ctx, url)
		}
	}
	if m.fallback == nil {
		return nil, fmt.Errorf("%w: no fetcher for %s", ErrDownloadFailed, url)
	}
	return m.fallback.Fetch(ctx, url)
}

// NewDefault returns the fetcher used when none is configured: HTTP(S) for
// ordinary URLs and registry blobs for oci://.
func NewDefault() *Mux {
	return NewMux(NewHTTP(nil)).Handle(OCIScheme, NewOCI(NewDefaultAuthenticator()))
}
