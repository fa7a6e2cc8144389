package fetch

// Authenticator provides credentials for registry-hosted assets.
type Authenticator interface {
	// Authenticate returns credentials for the given registry. An empty
	// username defers to the docker keychain.
	Authenticate(registry string) (username, password string, err error)
}

// DefaultAuthenticator defers every registry to the docker keychain.
type DefaultAuthenticator struct{}

// NewDefaultAuthenticator creates a default authenticator.
func NewDefaultAuthenticator() *DefaultAuthenticator {
	return &DefaultAuthenticator{}
}

func (a *DefaultAuthenticator) Authenticate(registry string) (string, string, error) {
	return "", "", nil
}

// StaticAuthenticator returns the same basic credentials for every registry.
type StaticAuthenticator struct {
	Username string
	Password string
}

func (a StaticAuthenticator) Authenticate(string) (string, string, error) {
	return a.Username, a.Password, nil
}
