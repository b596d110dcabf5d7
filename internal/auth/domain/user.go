package domain

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // argon2id encoded
	// TwoFactorEnabled is the timestamp email-code 2FA was enabled (nullable).
	TwoFactorEnabled *time.Time
	// TOTPSecret is set once an authenticator app is enrolled (nullable,
	// base32 encoded). Enrollment alone does not enable it; see
	// TOTPConfirmed.
	TOTPSecret    *string
	TOTPConfirmed *time.Time
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RequiresTwoFactor reports whether login must go through an OTP challenge.
func (u User) RequiresTwoFactor() bool {
	return u.TwoFactorEnabled != nil || u.HasTOTP()
}

// HasTOTP reports whether a confirmed authenticator app is available as a
// challenge method.
func (u User) HasTOTP() bool {
	return u.TOTPSecret != nil && *u.TOTPSecret != "" && u.TOTPConfirmed != nil
}
