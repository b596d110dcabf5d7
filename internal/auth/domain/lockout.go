package domain

import "time"

// LoginAttempt tracks consecutive failed logins for one identifier within
// a rolling window. While LockedUntil is in the future, every login attempt
// for the identifier is rejected before the password is even compared.
type LoginAttempt struct {
	Identifier   string
	FailureCount int
	WindowStart  time.Time
	LockedUntil  *time.Time
	UpdatedAt    time.Time
}

// LockRemaining returns how long the identifier stays locked at the given
// instant, or 0 when not locked.
func (a LoginAttempt) LockRemaining(now time.Time) time.Duration {
	if a.LockedUntil == nil || !now.Before(*a.LockedUntil) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}
