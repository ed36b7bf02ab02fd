// Package auth implements the shared-secret gate in front of nurse lookups.
package auth

import (
	"crypto/subtle"
	"errors"
)

// HeaderName is the request header carrying the caller's token.
const HeaderName = "x-api-key"

// ErrForbidden is returned for a missing or mismatched token.
var ErrForbidden = errors.New("invalid or missing API key")

// Gate compares caller tokens against the configured secret.
type Gate struct {
	secret []byte
}

// NewGate returns a Gate for secret. An empty secret rejects every token.
func NewGate(secret string) *Gate {
	return &Gate{secret: []byte(secret)}
}

// Check returns nil only when token equals the secret byte-for-byte.
func (g *Gate) Check(token string) error {
	if len(g.secret) == 0 || token == "" {
		return ErrForbidden
	}
	if subtle.ConstantTimeCompare([]byte(token), g.secret) != 1 {
		return ErrForbidden
	}
	return nil
}
