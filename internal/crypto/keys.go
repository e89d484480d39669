package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes. Each one yields an independent key from the same secret, so a
// token signed for one purpose never verifies for another.
const (
	PurposeSession    = "throwapin-auth session v1"
	PurposeOAuthState = "throwapin-auth oauth state v1"
)

const derivedKeyLength = 32

// DeriveKey expands the configured secret into a 32-byte key bound to purpose
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret is empty")
	}
	key := make([]byte, derivedKeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("deriving %q key: %w", purpose, err)
	}
	return key, nil
}
