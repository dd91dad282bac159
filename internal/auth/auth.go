// Package auth validates the bearer tokens stream clients present before a
// connection is upgraded or history is served.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// Credential names one accepted token by its SHA-256 hash. Raw tokens are
// never stored.
type Credential struct {
	Name    string
	KeyHash string
}

// Authenticator validates bearer tokens against configured credentials.
type Authenticator struct {
	credentials map[string]Credential // keyhash -> credential
}

// NewAuthenticator creates an authenticator from credential mappings.
func NewAuthenticator(credentials []Credential) *Authenticator {
	auth := &Authenticator{
		credentials: make(map[string]Credential, len(credentials)),
	}
	for _, c := range credentials {
		auth.credentials[c.KeyHash] = c
	}
	return auth
}

// ValidateToken validates a token and returns the credential name it maps to.
func (a *Authenticator) ValidateToken(token string) (string, error) {
	hash := sha256.Sum256([]byte(token))
	keyHash := hex.EncodeToString(hash[:])

	c, ok := a.credentials[keyHash]
	if !ok {
		return "", fmt.Errorf("invalid token")
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(c.KeyHash)) != 1 {
		return "", fmt.Errorf("invalid token")
	}
	return c.Name, nil
}

// ExtractToken pulls the bearer token from a request. Browser WebSocket
// clients cannot set arbitrary headers, so a token query parameter is
// accepted as a fallback.
func ExtractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", fmt.Errorf("invalid Authorization header format")
		}
		return parts[1], nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("missing credentials")
}

// HashToken creates the SHA-256 hash of a token for configuration storage.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
