package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	for _, size := range []int{TokenSize128, TokenSize256, 24} {
		token, err := GenerateToken(size)
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		require.Len(t, raw, size)

		other, err := GenerateToken(size)
		require.NoError(t, err)
		require.NotEqual(t, token, other)
	}
}

func TestGenerateTokenRejectsBadSizes(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := GenerateToken(size)
		require.Error(t, err)
	}
}

func TestFingerprintToken(t *testing.T) {
	token, err := GenerateToken(TokenSize256)
	require.NoError(t, err)

	fp := FingerprintToken(token)
	require.Equal(t, fp, FingerprintToken(token), "fingerprints must be deterministic")
	require.NotEqual(t, fp, FingerprintToken(token+"x"))
	require.NotEqual(t, token, fp)

	// SHA-256 digest, base64url without padding.
	raw, err := base64.RawURLEncoding.DecodeString(fp)
	require.NoError(t, err)
	require.Len(t, raw, 32)
}
