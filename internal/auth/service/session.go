package service

import (
	"context"
	"errors"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/pkg/cryptox"
	"github.com/cairnhealth/cairn/pkg/idx"
	"github.com/cairnhealth/cairn/pkg/jwtx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

const (
	// DefaultRefreshTTL applies when the user did not ask to be remembered.
	DefaultRefreshTTL = 12 * time.Hour

	// DefaultRememberTTL applies when remember_me was set at login.
	DefaultRememberTTL = 30 * 24 * time.Hour
)

// SessionService issues access/refresh token pairs, rotates refresh tokens,
// and revokes sessions. Refresh tokens are opaque values stored only as
// fingerprints; rotation supersedes the old row so a replay of a rotated
// token is distinguishable from a token that never existed.
type SessionService struct {
	Store       store.Store
	Signer      jwtx.Signer
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	RememberTTL time.Duration
}

func (s *SessionService) accessTTL() time.Duration {
	if s.AccessTTL <= 0 {
		return jwtx.DefaultAccessTokenTTL
	}
	return s.AccessTTL
}

func (s *SessionService) refreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		if s.RememberTTL <= 0 {
			return DefaultRememberTTL
		}
		return s.RememberTTL
	}
	if s.RefreshTTL <= 0 {
		return DefaultRefreshTTL
	}
	return s.RefreshTTL
}

// Issue creates a brand new session for the user and returns the token pair.
// Runs against st so callers can fold it into a wider transaction.
func (s *SessionService) Issue(ctx context.Context, st store.Store, u domain.User, amr []string, rememberMe bool, device string, now time.Time) (*domain.TokenPair, error) {
	sessionID := idx.New().String()

	accessToken, err := s.signAccess(u, sessionID, amr, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	sess := domain.Session{
		ID:         idx.New().String(),
		SessionID:  sessionID,
		UserID:     u.ID,
		TokenHash:  cryptox.FingerprintToken(refreshOpaque),
		Status:     domain.SessionActive,
		RememberMe: rememberMe,
		Device:     device,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL(rememberMe)),
		LastSeenAt: now,
	}

	if err := st.Sessions().CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		ExpiresIn:    int64(s.accessTTL() / time.Second),
		SessionID:    sessionID,
	}, nil
}

// Refresh rotates a refresh token. Presenting a superseded or revoked token
// is treated as replay: the whole session family is revoked and the caller
// gets ErrInvalidRefresh either way, so the response does not leak whether
// the token was ever valid.
func (s *SessionService) Refresh(ctx context.Context, refreshOpaque string) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	fp := cryptox.FingerprintToken(refreshOpaque)
	sess, err := s.Store.Sessions().GetSessionByTokenHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	if !sess.Usable(now) {
		// A non-active record means the opaque token was already rotated or
		// revoked; presenting it again is replay. An expired but still
		// active record is just a stale session.
		if sess.Status != domain.SessionActive {
			l.Warn("refresh token replay detected, revoking session family",
				"session_id", sess.SessionID, "user_id", sess.UserID, "status", sess.Status)
			if err := s.Store.Sessions().RevokeSessionFamily(ctx, sess.SessionID, now); err != nil {
				return nil, err
			}
		}
		return nil, ErrInvalidRefresh
	}

	u, err := s.Store.Users().GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.signAccess(u, sess.SessionID, []string{jwtx.AMRRefresh}, now)
	if err != nil {
		return nil, err
	}

	newOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	next := domain.Session{
		ID:         idx.New().String(),
		SessionID:  sess.SessionID,
		UserID:     sess.UserID,
		TokenHash:  cryptox.FingerprintToken(newOpaque),
		Status:     domain.SessionActive,
		RememberMe: sess.RememberMe,
		Device:     sess.Device,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL(sess.RememberMe)),
		LastSeenAt: now,
	}

	// Atomically: supersede old row and insert the replacement. A concurrent
	// rotation of the same token loses on the status guard.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Sessions().SupersedeSession(ctx, sess.ID, next.ID, now); err != nil {
			if errors.Is(err, store.ErrStale) {
				return ErrInvalidRefresh
			}
			return err
		}
		return tx.Sessions().CreateSession(ctx, next)
	})
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newOpaque,
		ExpiresIn:    int64(s.accessTTL() / time.Second),
		SessionID:    sess.SessionID,
	}, nil
}

// Logout revokes the session holding the given refresh token. Idempotent:
// unknown and already revoked tokens both succeed.
func (s *SessionService) Logout(ctx context.Context, refreshOpaque string) error {
	now := time.Now().UTC()

	fp := cryptox.FingerprintToken(refreshOpaque)
	sess, err := s.Store.Sessions().GetSessionByTokenHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := s.Store.Sessions().RevokeSessionFamily(ctx, sess.SessionID, now); err != nil {
		return err
	}
	return nil
}

// RevokeAllForUser revokes every session for a user (password reset).
func (s *SessionService) RevokeAllForUser(ctx context.Context, st store.Store, userID string, now time.Time) error {
	return st.Sessions().RevokeAllUserSessions(ctx, userID, now)
}

// CountActive reports how many distinct session families a user holds.
func (s *SessionService) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	return s.Store.Sessions().CountActiveSessions(ctx, userID, now)
}

func (s *SessionService) signAccess(u domain.User, sessionID string, amr []string, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(
		u.ID,          // subject
		sessionID,     // session ID
		amr,           // authentication methods
		s.accessTTL(), // token lifetime
		s.Issuer,      // issuer
		u.Username,    // username
		now,           // current time
	)
	return s.Signer.Sign(claims)
}
