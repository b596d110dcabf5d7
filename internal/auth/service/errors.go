package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrCaptchaInvalid     = errors.New("captcha_invalid")
	ErrNoActiveCode       = errors.New("no_active_code")
	ErrInvalidOTP         = errors.New("invalid_otp")
	ErrInvalidPreAuth     = errors.New("invalid_pre_auth_token")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrTooManyAttempts    = errors.New("too_many_attempts")
	ErrUserExists         = errors.New("user_already_exists")
	ErrTwoFactorState     = errors.New("two_factor_state_conflict")
)

// RateLimitedError carries the remaining wait so handlers can surface it as
// wait_seconds in the response body.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate_limited: retry in %s", e.Wait)
}

// WaitSeconds rounds the remaining wait up to whole seconds, never below 1.
func (e *RateLimitedError) WaitSeconds() int {
	secs := int((e.Wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
