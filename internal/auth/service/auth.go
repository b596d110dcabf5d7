package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/cairnhealth/cairn/internal/auth/notify"
	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/pkg/cryptox"
	"github.com/cairnhealth/cairn/pkg/idx"
	"github.com/cairnhealth/cairn/pkg/jwtx"
	"github.com/cairnhealth/cairn/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultPreAuthTTL bounds the window between password success and
	// second-factor completion.
	DefaultPreAuthTTL = 5 * time.Minute

	// MaxPreAuthAttempts is the number of failed code submissions allowed
	// before the pre-auth token is discarded.
	MaxPreAuthAttempts = 5
)

// Second-factor method names accepted on the wire.
const (
	MethodEmail = "email"
	MethodTOTP  = "totp"
)

// LoginResult is the outcome of a credential check: either a token pair or a
// pending second-factor challenge, never both.
type LoginResult struct {
	Pair      *domain.TokenPair
	Challenge *TwoFactorChallenge
	Warnings  []string
}

// TwoFactorChallenge is handed back when the account requires a second
// factor. Delivery reports whether the emailed code was queued.
type TwoFactorChallenge struct {
	PreAuthToken string
	Methods      []string
	Delivered    bool
}

// LoginInput carries everything the login endpoint collected.
type LoginInput struct {
	Identifier       string
	Password         string
	CaptchaSessionID string
	CaptchaInput     string
	RememberMe       bool
	Device           string
}

// WarningMultipleSessions is attached to a successful login when the account
// already holds other active sessions.
const WarningMultipleSessions = "multiple_active_sessions"

// AuthService drives the login flow: captcha, lockout, credential check,
// optional second factor, session issue. It owns the pre-auth token that
// bridges the two-step flow.
type AuthService struct {
	Store    store.Store
	Sessions *SessionService
	Captcha  *CaptchaService
	Lockout  *LockoutService
	OTP      *OTPService
	Notify   *notify.Dispatcher

	PreAuthTTL time.Duration
}

func (s *AuthService) preAuthTTL() time.Duration {
	if s.PreAuthTTL <= 0 {
		return DefaultPreAuthTTL
	}
	return s.PreAuthTTL
}

// Login validates a credential submission end to end. The ordering is fixed:
// captcha first, then lockout, then the password. A failed captcha does not
// count against the lockout window, a failed password does.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	identifier := strings.ToLower(strings.TrimSpace(in.Identifier))
	if identifier == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	if err := s.Captcha.Redeem(ctx, s.Store, in.CaptchaSessionID, in.CaptchaInput); err != nil {
		return nil, err
	}

	if err := s.Lockout.Check(ctx, s.Store, identifier, now); err != nil {
		return nil, err
	}

	u, err := s.Store.Users().GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Unknown identifiers burn lockout budget the same as bad
			// passwords so the counter cannot be used as an account oracle.
			if rerr := s.Lockout.RecordFailure(ctx, s.Store, identifier, now); rerr != nil {
				return nil, rerr
			}
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(in.Password, u.PasswordHash); err != nil {
		l.Info("password verification failed", "user_id", u.ID)
		if rerr := s.Lockout.RecordFailure(ctx, s.Store, identifier, now); rerr != nil {
			return nil, rerr
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.Lockout.Reset(ctx, s.Store, identifier); err != nil {
		return nil, err
	}

	if u.RequiresTwoFactor() {
		return s.beginTwoFactor(ctx, u, identifier, in, now)
	}

	return s.completeLogin(ctx, u, []string{jwtx.AMRPassword}, in.RememberMe, in.Device, now)
}

// beginTwoFactor mints a pre-auth token, issues an email code and reports
// which methods the account can complete with.
func (s *AuthService) beginTwoFactor(ctx context.Context, u domain.User, identifier string, in LoginInput, now time.Time) (*LoginResult, error) {
	l := slogx.FromContext(ctx)

	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	rec := domain.PreAuthToken{
		ID:         idx.New().String(),
		TokenHash:  cryptox.FingerprintToken(opaque),
		UserID:     u.ID,
		Identifier: identifier,
		RememberMe: in.RememberMe,
		Device:     in.Device,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.preAuthTTL()),
	}
	if err := s.Store.PreAuthTokens().CreatePreAuthToken(ctx, rec); err != nil {
		return nil, err
	}

	methods := []string{MethodEmail}
	if u.HasTOTP() {
		methods = append(methods, MethodTOTP)
	}

	delivered, err := s.sendLoginCode(ctx, u, identifier)
	if err != nil {
		var rl *RateLimitedError
		if !errors.As(err, &rl) {
			return nil, err
		}
		// A code from a moments-ago login attempt is still live; the user
		// can submit it or ask for a resend once the cooldown lapses.
		delivered = true
	}

	l.Info("second factor required", "user_id", u.ID, "methods", methods)
	return &LoginResult{
		Challenge: &TwoFactorChallenge{
			PreAuthToken: opaque,
			Methods:      methods,
			Delivered:    delivered,
		},
	}, nil
}

// CompleteTwoFactor redeems a pre-auth token with a code from one of the
// offered methods and issues the session.
func (s *AuthService) CompleteTwoFactor(ctx context.Context, preAuthOpaque, method, code string) (*LoginResult, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	rec, err := s.Store.PreAuthTokens().GetPreAuthTokenByHash(ctx, cryptox.FingerprintToken(preAuthOpaque))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidPreAuth
		}
		return nil, err
	}
	if !rec.Redeemable(now) {
		return nil, ErrInvalidPreAuth
	}
	if rec.Attempts >= MaxPreAuthAttempts {
		_ = s.Store.PreAuthTokens().DeletePreAuthToken(ctx, rec.ID)
		l.Warn("pre-auth token exceeded max attempts", "user_id", rec.UserID, "attempts", rec.Attempts)
		return nil, ErrTooManyAttempts
	}

	u, err := s.Store.Users().GetUserByID(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}

	var (
		amr       []string
		otpID     string
		verifyErr error
	)

	switch method {
	case MethodEmail:
		otpID, verifyErr = s.OTP.Verify(ctx, s.Store, rec.Identifier, domain.PurposeLogin2FA, code, now)
		amr = []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA}

	case MethodTOTP:
		if !u.HasTOTP() {
			verifyErr = ErrInvalidOTP
		} else if !totp.Validate(code, *u.TOTPSecret) {
			verifyErr = ErrInvalidOTP
		}
		amr = []string{jwtx.AMRPassword, jwtx.AMRTOTP, jwtx.AMRMFA}

	default:
		return nil, ErrInvalidOTP
	}

	if verifyErr != nil {
		updated, ierr := s.Store.PreAuthTokens().IncrementPreAuthAttempts(ctx, rec.ID)
		if ierr != nil && !errors.Is(ierr, store.ErrNotFound) {
			return nil, ierr
		}
		l.Warn("second factor verification failed",
			"user_id", rec.UserID, "method", method, "attempts", updated.Attempts)
		return nil, verifyErr
	}

	var result *LoginResult
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.PreAuthTokens().ConsumePreAuthToken(ctx, rec.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidPreAuth
			}
			return err
		}
		if otpID != "" {
			if err := tx.OTPCodes().ConsumeOTP(ctx, otpID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		r, err := s.issueWithin(ctx, tx, u, amr, rec.RememberMe, rec.Device, now)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.attachSessionWarnings(ctx, result, u.ID, now)
	return result, nil
}

// ResendTwoFactor issues a replacement email code for a live pre-auth token.
// The per-code cooldown still applies.
func (s *AuthService) ResendTwoFactor(ctx context.Context, preAuthOpaque string) (bool, error) {
	now := time.Now().UTC()

	rec, err := s.Store.PreAuthTokens().GetPreAuthTokenByHash(ctx, cryptox.FingerprintToken(preAuthOpaque))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrInvalidPreAuth
		}
		return false, err
	}
	if !rec.Redeemable(now) {
		return false, ErrInvalidPreAuth
	}

	u, err := s.Store.Users().GetUserByID(ctx, rec.UserID)
	if err != nil {
		return false, err
	}

	return s.sendLoginCode(ctx, u, rec.Identifier)
}

// completeLogin issues a session for a fully authenticated user and stamps
// last login.
func (s *AuthService) completeLogin(ctx context.Context, u domain.User, amr []string, rememberMe bool, device string, now time.Time) (*LoginResult, error) {
	var result *LoginResult
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		r, err := s.issueWithin(ctx, tx, u, amr, rememberMe, device, now)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.attachSessionWarnings(ctx, result, u.ID, now)
	return result, nil
}

func (s *AuthService) issueWithin(ctx context.Context, tx store.Tx, u domain.User, amr []string, rememberMe bool, device string, now time.Time) (*LoginResult, error) {
	pair, err := s.Sessions.Issue(ctx, tx, u, amr, rememberMe, device, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Users().UpdateLastLogin(ctx, u.ID, now); err != nil {
		return nil, err
	}
	return &LoginResult{Pair: pair}, nil
}

// attachSessionWarnings flags logins into accounts that already hold other
// active sessions. Advisory only; concurrent sessions are allowed.
func (s *AuthService) attachSessionWarnings(ctx context.Context, result *LoginResult, userID string, now time.Time) {
	l := slogx.FromContext(ctx)

	n, err := s.Sessions.CountActive(ctx, userID, now)
	if err != nil {
		l.Error("failed to count active sessions", "user_id", userID, "error", err)
		return
	}
	if n > 1 {
		l.Warn("login into account with existing active sessions", "user_id", userID, "active_sessions", n)
		result.Warnings = append(result.Warnings, WarningMultipleSessions)
	}
}

func (s *AuthService) sendLoginCode(ctx context.Context, u domain.User, identifier string) (bool, error) {
	code, err := s.OTP.Issue(ctx, identifier, domain.PurposeLogin2FA)
	if err != nil {
		return false, err
	}

	queued := s.Notify.Enqueue(notify.Message{
		To:      u.Email,
		Subject: "Your sign-in code",
		Body:    fmt.Sprintf("Your one-time sign-in code is %s. It expires in %d minutes.", code, int(s.OTP.ttl()/time.Minute)),
	})
	return queued, nil
}
