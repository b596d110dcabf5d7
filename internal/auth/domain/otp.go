package domain

import "time"

// OTPPurpose scopes one-time codes so that cooldowns and active-code state
// for one flow never interfere with another.
type OTPPurpose string

const (
	PurposeLogin2FA      OTPPurpose = "LOGIN_2FA"
	PurposePasswordReset OTPPurpose = "PASSWORD_RESET"
	PurposeSetup2FA      OTPPurpose = "SETUP_2FA"
)

// Valid reports whether p is one of the known purposes.
func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeLogin2FA, PurposePasswordReset, PurposeSetup2FA:
		return true
	}
	return false
}

// OTPCode is a stored one-time code. Only the SHA-256 fingerprint of the
// code is persisted. At most one unconsumed, unexpired record per
// (identifier, purpose) is active: generating a new code supersedes the
// previous one, but the cooldown always runs from the most recently
// generated record regardless of its consumed state.
type OTPCode struct {
	ID          string
	Identifier  string
	Purpose     OTPPurpose
	CodeHash    string
	GeneratedAt time.Time
	ExpiresAt   time.Time
	Consumed    bool
}

// Active reports whether the code can still be redeemed at the given instant.
func (c OTPCode) Active(now time.Time) bool {
	return !c.Consumed && now.Before(c.ExpiresAt)
}
