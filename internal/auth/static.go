package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"tandem/internal/domain"
)

// StaticVerifier checks bearer tokens against one shared secret. This
// is the default mode: the server generates (or is configured with) a
// token and every client presents it.
type StaticVerifier struct {
	token []byte
}

// NewStaticVerifier creates a verifier for the given token.
func NewStaticVerifier(token string) (*StaticVerifier, error) {
	if token == "" {
		return nil, errors.New("auth token cannot be empty")
	}
	return &StaticVerifier{token: []byte(token)}, nil
}

// Verify compares in constant time.
func (v *StaticVerifier) Verify(token string) (*Identity, error) {
	if subtle.ConstantTimeCompare([]byte(token), v.token) != 1 {
		return nil, domain.ErrUnauthorized
	}
	return &Identity{Subject: "local"}, nil
}

func (v *StaticVerifier) Close() error { return nil }

// GenerateToken returns a fresh 256-bit hex token.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
