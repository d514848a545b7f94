package store

import (
	"crypto/rand"
	"encoding/base64"
)

// NewCode returns the unguessable capability token embedded in remote links.
// 32 random bytes, base64url without padding.
func NewCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
