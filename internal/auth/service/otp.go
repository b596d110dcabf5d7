package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/pkg/cryptox"
	"github.com/cairnhealth/cairn/pkg/idx"
)

const (
	// DefaultOTPTTL bounds how long an emailed code stays redeemable.
	DefaultOTPTTL = 5 * time.Minute

	// DefaultOTPCooldown is the minimum gap between issuing codes for the
	// same identifier and purpose.
	DefaultOTPCooldown = 60 * time.Second

	otpDigits = 6
)

// OTPService issues and verifies short-lived numeric codes delivered out of
// band. Codes are stored only as fingerprints. Issuing a new code retires any
// still-active ones for the same identifier and purpose, so exactly one code
// can win at a time.
type OTPService struct {
	Store    store.Store
	TTL      time.Duration
	Cooldown time.Duration
}

func (s *OTPService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultOTPTTL
	}
	return s.TTL
}

func (s *OTPService) cooldown() time.Duration {
	if s.Cooldown <= 0 {
		return DefaultOTPCooldown
	}
	return s.Cooldown
}

// Issue mints a new code for identifier+purpose and returns the plaintext for
// delivery. A RateLimitedError is returned when the previous code is younger
// than the cooldown. The cooldown is anchored on the most recently generated
// record even when it was already redeemed or has expired, so redeeming a
// code does not open the door to immediate re-issue.
func (s *OTPService) Issue(ctx context.Context, identifier string, purpose domain.OTPPurpose) (string, error) {
	now := time.Now().UTC()

	if wait, err := s.CooldownRemaining(ctx, identifier, purpose, now); err != nil {
		return "", err
	} else if wait > 0 {
		return "", &RateLimitedError{Wait: wait}
	}

	code, err := generateOTPCode()
	if err != nil {
		return "", err
	}

	rec := domain.OTPCode{
		ID:          idx.New().String(),
		Identifier:  identifier,
		Purpose:     purpose,
		CodeHash:    cryptox.FingerprintToken(code),
		GeneratedAt: now,
		ExpiresAt:   now.Add(s.ttl()),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.OTPCodes().ConsumeAllOTPs(ctx, identifier, purpose); err != nil {
			return err
		}
		return tx.OTPCodes().CreateOTP(ctx, rec)
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// CooldownRemaining reports how long until Issue will accept a new code for
// identifier+purpose. The clock runs from the most recent record whatever its
// consumed or expiry state, and the result is clamped at zero.
func (s *OTPService) CooldownRemaining(ctx context.Context, identifier string, purpose domain.OTPPurpose, now time.Time) (time.Duration, error) {
	prev, err := s.Store.OTPCodes().GetLatestOTP(ctx, identifier, purpose)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	remaining := s.cooldown() - now.Sub(prev.GeneratedAt)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Verify checks code against the newest active record without consuming it.
// Returns ErrNoActiveCode when nothing is outstanding and ErrInvalidOTP on a
// mismatch. The returned id is consumed by the caller once the surrounding
// operation commits.
func (s *OTPService) Verify(ctx context.Context, st store.Store, identifier string, purpose domain.OTPPurpose, code string, now time.Time) (string, error) {
	rec, err := st.OTPCodes().GetActiveOTP(ctx, identifier, purpose, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoActiveCode
		}
		return "", err
	}

	fp := cryptox.FingerprintToken(code)
	if subtle.ConstantTimeCompare([]byte(rec.CodeHash), []byte(fp)) != 1 {
		return "", ErrInvalidOTP
	}
	return rec.ID, nil
}

// Redeem verifies and consumes a code in one transaction. Used where no wider
// transaction exists (password reset completion wraps its own).
func (s *OTPService) Redeem(ctx context.Context, st store.Store, identifier string, purpose domain.OTPPurpose, code string, now time.Time) error {
	id, err := s.Verify(ctx, st, identifier, purpose, code, now)
	if err != nil {
		return err
	}
	if err := st.OTPCodes().ConsumeOTP(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Consumed by a concurrent request between verify and consume.
			return ErrNoActiveCode
		}
		return err
	}
	return nil
}

func generateOTPCode() (string, error) {
	max := big.NewInt(10)
	b := make([]byte, otpDigits)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = byte('0' + n.Int64())
	}
	return string(b), nil
}
