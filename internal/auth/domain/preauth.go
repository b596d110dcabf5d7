package domain

import "time"

// PreAuthToken bridges "password verified" to "OTP verified" during a
// two-factor login. Single use: consumed on successful redemption, dropped
// on expiry or after too many failed code submissions. The opaque value is
// stored only as a fingerprint.
type PreAuthToken struct {
	ID         string
	TokenHash  string
	UserID     string
	Identifier string
	RememberMe bool
	Device     string
	Attempts   int
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Redeemable reports whether the token can still be exchanged at the given
// instant, ignoring the attempt budget.
func (t PreAuthToken) Redeemable(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}
