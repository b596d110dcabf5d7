package service

import (
	"context"
	"strings"
	"testing"

	"github.com/cairnhealth/cairn/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &UserService{Store: st}

	u, err := svc.Register(ctx, "Alice", "Alice@Example.Test", "correct-horse-battery")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, "alice@example.test", u.Email)
	require.NoError(t, cryptox.VerifyPassword("correct-horse-battery", u.PasswordHash))

	stored, err := st.Users().GetUserByIdentifier(ctx, "ALICE")
	require.NoError(t, err)
	require.Equal(t, u.ID, stored.ID)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &UserService{Store: st}

	cases := []struct {
		name     string
		username string
		email    string
		password string
		want     error
	}{
		{"username too short", "ab", "ab@example.test", "correct-horse-battery", ErrInvalidUsername},
		{"username bad chars", "al ice", "alice@example.test", "correct-horse-battery", ErrInvalidUsername},
		{"username leading dot", ".alice", "alice@example.test", "correct-horse-battery", ErrInvalidUsername},
		{"username too long", strings.Repeat("a", 33), "alice@example.test", "correct-horse-battery", ErrInvalidUsername},
		{"email missing at", "alice", "not-an-address", "correct-horse-battery", ErrInvalidEmail},
		{"password too short", "alice", "alice@example.test", "short", ErrWeakPassword},
		{"password too long", "alice", "alice@example.test", strings.Repeat("x", 129), ErrWeakPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.username, tc.email, tc.password)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &UserService{Store: st}

	_, err := svc.Register(ctx, "alice", "alice@example.test", "correct-horse-battery")
	require.NoError(t, err)

	// Same username, different email.
	_, err = svc.Register(ctx, "alice", "other@example.test", "correct-horse-battery")
	require.ErrorIs(t, err, ErrUserExists)

	// Same email regardless of case, different username.
	_, err = svc.Register(ctx, "bob", "ALICE@example.test", "correct-horse-battery")
	require.ErrorIs(t, err, ErrUserExists)
}
