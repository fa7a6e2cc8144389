package fetch

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// OCIScheme prefixes registry blob URLs.
const OCIScheme = "oci"

// OCI fetches single blobs from an OCI registry. The URL names the blob by
// repository and digest: oci://registry/repo@sha256:<hex>.
type OCI struct {
	auth Authenticator
}

func NewOCI(auth Authenticator) *OCI {
	return &OCI{auth: auth}
}

func (o *OCI) Fetch(ctx context.Context, url string) ([]byte, error) {
	ref, err := ParseOCI(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	opts := append(o.remoteOptions(ref.Context().RegistryStr()), remote.WithContext(ctx))
	layer, err := remote.Layer(ref, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}

	// Compressed is the blob exactly as the registry stores it.
	rc, err := layer.Compressed()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	data, err := io.ReadAll(rc)
	if cerr := rc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	return data, nil
}

// ParseOCI turns an oci:// URL into a digest reference.
func ParseOCI(url string) (name.Digest, error) {
	rest, ok := strings.CutPrefix(url, OCIScheme+"://")
	if !ok {
		return name.Digest{}, fmt.Errorf("not an %s:// url: %q", OCIScheme, url)
	}
	ref, err := name.NewDigest(rest)
	if err != nil {
		return name.Digest{}, fmt.Errorf("invalid blob ref %q: %w", rest, err)
	}
	return ref, nil
}

func (o *OCI) remoteOptions(registry string) []remote.Option {
	if o.auth != nil {
		username, password, err := o.auth.Authenticate(registry)
		if err == nil && username != "" {
			return []remote.Option{remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			})}
		}
	}
	return []remote.Option{remote.WithAuthFromKeychain(authn.DefaultKeychain)}
}
