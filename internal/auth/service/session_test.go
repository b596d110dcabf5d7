package service

import (
	"context"
	"testing"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/cairnhealth/cairn/pkg/cryptox"
	"github.com/cairnhealth/cairn/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestSessionIssueProducesVerifiableAccessToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	signer := newTestSigner(t)
	svc := newTestSessionService(st, signer)
	u := newTestUser(t, st, "alice", "correct-horse-battery")

	pair, err := svc.Issue(ctx, st, u, []string{jwtx.AMRPassword}, false, "cli", time.Now().UTC())
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, int64(jwtx.DefaultAccessTokenTTL/time.Second), pair.ExpiresIn)

	claims, err := signer.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.Equal(t, pair.SessionID, claims.SID)
	require.Equal(t, []string{jwtx.AMRPassword}, claims.AMR)
	require.Equal(t, "alice", claims.Username)
}

func TestSessionRefreshRotation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestSessionService(st, newTestSigner(t))
	u := newTestUser(t, st, "alice", "correct-horse-battery")

	pair, err := svc.Issue(ctx, st, u, []string{jwtx.AMRPassword}, false, "", time.Now().UTC())
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	require.Equal(t, pair.SessionID, next.SessionID)

	// The rotated-in token works.
	_, err = svc.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestSessionRefreshReplayRevokesFamily(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestSessionService(st, newTestSigner(t))
	u := newTestUser(t, st, "alice", "correct-horse-battery")

	pair, err := svc.Issue(ctx, st, u, []string{jwtx.AMRPassword}, false, "", time.Now().UTC())
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Replaying the superseded token kills the whole family.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	_, err = svc.Refresh(ctx, next.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestSessionRefreshExpiredTokenIsNotReplay(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestSessionService(st, newTestSigner(t))
	svc.RefreshTTL = time.Nanosecond
	u := newTestUser(t, st, "alice", "correct-horse-battery")

	pair, err := svc.Issue(ctx, st, u, []string{jwtx.AMRPassword}, false, "", time.Now().UTC())
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	// Expiry alone is not replay; the row keeps its active status instead
	// of triggering a family revocation.
	sess, err := st.Sessions().GetSessionByTokenHash(ctx, cryptox.FingerprintToken(pair.RefreshToken))
	require.NoError(t, err)
	require.Equal(t, domain.SessionActive, sess.Status)
	require.False(t, sess.Usable(time.Now().UTC()))
}

func TestSessionRefreshUnknownToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestSessionService(st, newTestSigner(t))

	_, err := svc.Refresh(ctx, "never-issued")
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestSessionLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestSessionService(st, newTestSigner(t))
	u := newTestUser(t, st, "alice", "correct-horse-battery")

	pair, err := svc.Issue(ctx, st, u, []string{jwtx.AMRPassword}, false, "", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "never-issued"))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestSessionRememberMeExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestSessionService(st, newTestSigner(t))
	u := newTestUser(t, st, "alice", "correct-horse-battery")
	now := time.Now().UTC()

	short, err := svc.Issue(ctx, st, u, []string{jwtx.AMRPassword}, false, "", now)
	require.NoError(t, err)
	long, err := svc.Issue(ctx, st, u, []string{jwtx.AMRPassword}, true, "", now)
	require.NoError(t, err)

	shortRow, err := st.Sessions().GetSessionByTokenHash(ctx, fingerprint(short.RefreshToken))
	require.NoError(t, err)
	longRow, err := st.Sessions().GetSessionByTokenHash(ctx, fingerprint(long.RefreshToken))
	require.NoError(t, err)

	require.True(t, longRow.ExpiresAt.After(shortRow.ExpiresAt))
	require.True(t, longRow.RememberMe)
}

func TestSessionCountActive(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestSessionService(st, newTestSigner(t))
	u := newTestUser(t, st, "alice", "correct-horse-battery")
	now := time.Now().UTC()

	n, err := svc.CountActive(ctx, u.ID, now)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = svc.Issue(ctx, st, u, []string{jwtx.AMRPassword}, false, "", now)
	require.NoError(t, err)
	pair, err := svc.Issue(ctx, st, u, []string{jwtx.AMRPassword}, false, "", now)
	require.NoError(t, err)

	n, err = svc.CountActive(ctx, u.ID, now)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Rotation keeps the family count stable.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	n, err = svc.CountActive(ctx, u.ID, now)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func fingerprint(opaque string) string {
	return cryptox.FingerprintToken(opaque)
}
