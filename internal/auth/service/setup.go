package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/cairnhealth/cairn/internal/auth/notify"
	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/pkg/cryptox"
	"github.com/cairnhealth/cairn/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPEnrollment is handed back from EnrollTOTP for the user to load into
// their authenticator app.
type TOTPEnrollment struct {
	Secret  string
	URL     string
	Issuer  string
	Account string
}

// SetupService manages a user's second-factor configuration: turning email
// codes on and off, and enrolling an authenticator app.
type SetupService struct {
	Store  store.Store
	OTP    *OTPService
	Notify *notify.Dispatcher
	Issuer string
}

// StartEmailTwoFactor sends a confirmation code to the account's email.
// Two-factor is not enabled until the code comes back through
// ConfirmEmailTwoFactor.
func (s *SetupService) StartEmailTwoFactor(ctx context.Context, userID string) (bool, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.RequiresTwoFactor() {
		return false, ErrTwoFactorState
	}

	code, err := s.OTP.Issue(ctx, u.Email, domain.PurposeSetup2FA)
	if err != nil {
		return false, err
	}

	queued := s.Notify.Enqueue(notify.Message{
		To:      u.Email,
		Subject: "Confirm two-factor authentication",
		Body:    fmt.Sprintf("Your confirmation code is %s. It expires in %d minutes.", code, int(s.OTP.ttl()/time.Minute)),
	})
	return queued, nil
}

// ConfirmEmailTwoFactor redeems the confirmation code and enables two-factor
// for the account.
func (s *SetupService) ConfirmEmailTwoFactor(ctx context.Context, userID, code string) error {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.RequiresTwoFactor() {
		return ErrTwoFactorState
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.OTP.Redeem(ctx, tx, u.Email, domain.PurposeSetup2FA, code, now); err != nil {
			return err
		}
		return tx.Users().EnableTwoFactor(ctx, userID)
	})
	if err != nil {
		return err
	}

	l.Info("two-factor enabled", "user_id", userID)
	return nil
}

// DisableTwoFactor turns two-factor off after re-verifying the password.
// Clears any enrolled authenticator secret as well.
func (s *SetupService) DisableTwoFactor(ctx context.Context, userID, password string) error {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.RequiresTwoFactor() {
		return ErrTwoFactorState
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		l.Info("two-factor disable rejected, password mismatch", "user_id", userID)
		return ErrInvalidCredentials
	}

	if err := s.Store.Users().DisableTwoFactor(ctx, userID); err != nil {
		return err
	}

	l.Info("two-factor disabled", "user_id", userID)
	return nil
}

// EnrollTOTP generates an authenticator secret for the user. The secret is
// stored immediately but only counts as a login method once ConfirmTOTP has
// seen a valid code from the app.
func (s *SetupService) EnrollTOTP(ctx context.Context, userID string) (TOTPEnrollment, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return TOTPEnrollment{}, err
	}
	if u.HasTOTP() {
		return TOTPEnrollment{}, ErrTwoFactorState
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	if err := s.Store.Users().UpdateTOTPSecret(ctx, userID, key.Secret()); err != nil {
		return TOTPEnrollment{}, err
	}

	return TOTPEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: u.Username,
	}, nil
}

// ConfirmTOTP verifies a code from the enrolled authenticator and marks the
// secret as confirmed. Also flips two-factor on if it was not already.
func (s *SetupService) ConfirmTOTP(ctx context.Context, userID, code string) error {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TOTPSecret == nil || *u.TOTPSecret == "" {
		return ErrTwoFactorState
	}
	if u.HasTOTP() {
		return ErrTwoFactorState
	}

	if !totp.Validate(code, *u.TOTPSecret) {
		return ErrInvalidOTP
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().ConfirmTOTP(ctx, userID); err != nil {
			return err
		}
		if u.TwoFactorEnabled == nil {
			return tx.Users().EnableTwoFactor(ctx, userID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.Info("authenticator app confirmed", "user_id", userID)
	return nil
}
