package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	session, err := DeriveKey(secret, PurposeSession)
	require.NoError(t, err)
	assert.Len(t, session, 32)

	again, err := DeriveKey(secret, PurposeSession)
	require.NoError(t, err)
	assert.Equal(t, session, again, "derivation must be deterministic across restarts")

	state, err := DeriveKey(secret, PurposeOAuthState)
	require.NoError(t, err)
	assert.NotEqual(t, session, state)

	other, err := DeriveKey([]byte("another-secret-value-0123456789"), PurposeSession)
	require.NoError(t, err)
	assert.NotEqual(t, session, other)
}

func TestDeriveKey_EmptySecret(t *testing.T) {
	_, err := DeriveKey(nil, PurposeSession)
	assert.Error(t, err)
}
