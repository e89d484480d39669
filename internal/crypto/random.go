package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// StateBytes is the entropy of an OAuth state value
const StateBytes = 32

// GenerateSecureToken creates a cryptographically secure random token.
// Returns a base64 URL-encoded string suitable for OAuth state parameters.
func GenerateSecureToken() (string, error) {
	b := make([]byte, StateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
