package service

import (
	"context"
	"errors"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/store"
)

const (
	// DefaultLockoutThreshold is the failed-attempt count that triggers a lock.
	DefaultLockoutThreshold = 5

	// DefaultLockoutWindow is how far back failures are counted.
	DefaultLockoutWindow = 15 * time.Minute

	// DefaultLockBase is the first lock duration; it doubles per further
	// failure past the threshold.
	DefaultLockBase = 60 * time.Second

	// DefaultLockMax caps the exponential backoff.
	DefaultLockMax = 15 * time.Minute
)

// LockoutService tracks consecutive credential failures per identifier and
// applies an exponentially growing lock once the threshold is crossed. The
// counter is keyed by the submitted identifier, so failures against unknown
// accounts are throttled the same as failures against real ones.
type LockoutService struct {
	Threshold int
	Window    time.Duration
	LockBase  time.Duration
	LockMax   time.Duration
}

func (s *LockoutService) threshold() int {
	if s.Threshold <= 0 {
		return DefaultLockoutThreshold
	}
	return s.Threshold
}

func (s *LockoutService) window() time.Duration {
	if s.Window <= 0 {
		return DefaultLockoutWindow
	}
	return s.Window
}

func (s *LockoutService) lockBase() time.Duration {
	if s.LockBase <= 0 {
		return DefaultLockBase
	}
	return s.LockBase
}

func (s *LockoutService) lockMax() time.Duration {
	if s.LockMax <= 0 {
		return DefaultLockMax
	}
	return s.LockMax
}

// Check returns a RateLimitedError when the identifier is currently locked.
func (s *LockoutService) Check(ctx context.Context, st store.Store, identifier string, now time.Time) error {
	a, err := st.LoginAttempts().GetLoginAttempt(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if wait := a.LockRemaining(now); wait > 0 {
		return &RateLimitedError{Wait: wait}
	}
	return nil
}

// RecordFailure bumps the failure counter and extends the lock when the
// threshold is crossed. Failures outside the window restart the count. The
// increment happens in a single store statement, so concurrent failures for
// the same identifier each count.
func (s *LockoutService) RecordFailure(ctx context.Context, st store.Store, identifier string, now time.Time) error {
	a, err := st.LoginAttempts().IncrementLoginAttempt(ctx, identifier, now.Add(-s.window()), now)
	if err != nil {
		return err
	}

	if a.FailureCount >= s.threshold() {
		until := now.Add(s.lockFor(a.FailureCount))
		return st.LoginAttempts().SetLockout(ctx, identifier, until, now)
	}
	return nil
}

// Reset clears the counter after a successful credential check.
func (s *LockoutService) Reset(ctx context.Context, st store.Store, identifier string) error {
	return st.LoginAttempts().DeleteLoginAttempt(ctx, identifier)
}

// lockFor doubles the lock duration for every failure past the threshold,
// capped at LockMax.
func (s *LockoutService) lockFor(failures int) time.Duration {
	lock := s.lockBase()
	max := s.lockMax()
	for i := s.threshold(); i < failures; i++ {
		lock *= 2
		if lock >= max {
			return max
		}
	}
	if lock > max {
		return max
	}
	return lock
}
