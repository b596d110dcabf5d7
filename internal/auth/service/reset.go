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
	"github.com/cairnhealth/cairn/pkg/slogx"
)

// ResetService handles the forgot-password flow: an emailed code proves
// control of the mailbox, then the new password replaces the hash and every
// session is revoked.
type ResetService struct {
	Store    store.Store
	OTP      *OTPService
	Sessions *SessionService
	Notify   *notify.Dispatcher
}

// Initiate issues a reset code for the identifier. Unknown identifiers get
// the same (true, nil) answer as known ones so the response never confirms
// which accounts exist; only a genuine delivery-queue overflow reports
// false. The per-code cooldown surfaces as a RateLimitedError.
func (s *ResetService) Initiate(ctx context.Context, identifier string) (bool, error) {
	l := slogx.FromContext(ctx)
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	u, err := s.Store.Users().GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("password reset requested for unknown identifier")
			return true, nil
		}
		return false, err
	}

	code, err := s.OTP.Issue(ctx, identifier, domain.PurposePasswordReset)
	if err != nil {
		return false, err
	}

	queued := s.Notify.Enqueue(notify.Message{
		To:      u.Email,
		Subject: "Your password reset code",
		Body:    fmt.Sprintf("Your password reset code is %s. It expires in %d minutes. If you did not request this, you can ignore it.", code, int(s.OTP.ttl()/time.Minute)),
	})
	return queued, nil
}

// Complete redeems the reset code, replaces the password hash and revokes
// every session the user holds, in one transaction.
func (s *ResetService) Complete(ctx context.Context, identifier, code, newPassword string) error {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	// Password policy runs before the account lookup so a weak password gets
	// the same answer whether or not the identifier exists.
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	u, err := s.Store.Users().GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same shape as a wrong code, for the same enumeration reason.
			return ErrNoActiveCode
		}
		return err
	}

	newHash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.OTP.Redeem(ctx, tx, identifier, domain.PurposePasswordReset, code, now); err != nil {
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, newHash); err != nil {
			return err
		}
		return s.Sessions.RevokeAllForUser(ctx, tx, u.ID, now)
	})
	if err != nil {
		return err
	}

	l.Info("password reset completed, all sessions revoked", "user_id", u.ID)
	return nil
}
