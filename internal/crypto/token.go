package crypto

import (
	"crypto/rand"
	"encoding/base64"
)

// NewInviteToken returns 32 random bytes encoded for use in a URL.
func NewInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
