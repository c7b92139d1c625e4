package auth

// Identity is the authenticated principal of a request.
type Identity struct {
	// Subject identifies the caller: "local" for the static token, the
	// JWT sub claim otherwise.
	Subject string
}

// TokenVerifier defines the interface for bearer token verification.
// This abstraction keeps the middleware agnostic to whether the server
// runs with its local static token or against a remote identity
// provider.
type TokenVerifier interface {
	// Verify validates a bearer token and returns the caller identity.
	// Returns domain.ErrUnauthorized for any invalid token.
	Verify(token string) (*Identity, error)

	// Close releases any resources held by the verifier (e.g. HTTP
	// connections for JWKS refresh).
	Close() error
}
