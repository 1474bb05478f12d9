// Package token generates and digests the opaque bearer tokens issued at
// registration and login.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// rawLen is the number of random bytes per token; hex-encoded to 64 chars.
const rawLen = 32

// New returns a fresh opaque token and its digest. The token goes to the
// client, the digest to storage.
func New() (raw string, digest string, err error) {
	buf := make([]byte, rawLen)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, Digest(raw), nil
}

// Digest returns the hex-encoded SHA-256 of a raw token.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
