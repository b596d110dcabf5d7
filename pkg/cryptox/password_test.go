package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "pepper")
	if err != nil {
		os.Exit(1)
	}
	SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func TestHashAndVerifyPassword(t *testing.T) {
	for _, password := range []string{
		"correct-horse-battery",
		"",
		"   leading and trailing   ",
		strings.Repeat("x", 128),
		"пароль🔒",
	} {
		hash, err := HashPassword(password)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"), "not PHC encoded: %s", hash)

		require.NoError(t, VerifyPassword(password, hash))
		require.ErrorIs(t, VerifyPassword(password+"!", hash), ErrPasswordMismatch)
	}
}

func TestHashPasswordSaltsEveryCall(t *testing.T) {
	a, err := HashPassword("correct-horse-battery")
	require.NoError(t, err)
	b, err := HashPassword("correct-horse-battery")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	for _, hash := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=19456,t=2,p=1$not!base64$aGFzaA",
		"$argon2id$v=19$m=19456,t=2,p=1$c2FsdA",
	} {
		require.Error(t, VerifyPassword("whatever", hash), "hash: %q", hash)
	}
}

func TestPepperChangesTheHash(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery")
	require.NoError(t, err)

	// Swap in a different pepper; old hashes must stop verifying.
	oldPepper := pepper
	pepper = "another-pepper-value"
	defer func() { pepper = oldPepper }()

	require.ErrorIs(t, VerifyPassword("correct-horse-battery", hash), ErrPasswordMismatch)
}

func TestPepperPersistsAcrossLoads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pepper")

	oldPepper, oldFile := pepper, pepperFile
	defer func() { pepper, pepperFile = oldPepper, oldFile }()

	pepper = ""
	SetPepperPath(path)
	first := GetPepper()
	require.NotEmpty(t, first)

	pepper = ""
	SetPepperPath(path)
	require.Equal(t, first, GetPepper())
}
