package authapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes surfaced to clients. These are the stable machine-readable
// values; descriptions may change.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeCaptchaInvalid       = "CAPTCHA_INVALID"
	CodeRateLimited          = "RATE_LIMITED"
	CodeNoActiveCode         = "NO_ACTIVE_CODE"
	CodeInvalidOTP           = "INVALID_OTP"
	CodeInvalidPreAuthToken  = "INVALID_PRE_AUTH_TOKEN"
	CodeInvalidRefreshToken  = "INVALID_OR_REUSED_REFRESH_TOKEN"
	CodeConflict             = "CONFLICT"
	CodeServerError          = "SERVER_ERROR"
)

// Error is the wire-level error envelope. Policy errors additionally carry
// WaitSeconds so clients can render countdowns without polling.
type Error struct {
	StatusCode int `json:"-"`

	Code        string `json:"error"`
	Description string `json:"error_description"`

	// WaitSeconds is set for RATE_LIMITED responses: seconds until the
	// caller may retry.
	WaitSeconds int `json:"wait_seconds,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes the error to an HTTP response writer.
func (e *Error) WriteError(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}

var (
	// ErrInvalidRequest is returned for malformed or incomplete request
	// bodies. Input errors never touch lockout or OTP state.
	ErrInvalidRequest = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        CodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidCredentials deliberately does not distinguish an unknown
	// identifier from a wrong password.
	ErrInvalidCredentials = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        CodeInvalidCredentials,
		Description: "incorrect username or password",
	}

	ErrCaptchaInvalid = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        CodeCaptchaInvalid,
		Description: "captcha verification failed",
	}

	ErrNoActiveCode = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        CodeNoActiveCode,
		Description: "no active verification code; request a new one",
	}

	ErrInvalidOTP = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        CodeInvalidOTP,
		Description: "incorrect verification code",
	}

	// ErrInvalidPreAuthToken is terminal for the token: the client must
	// restart from the credential step.
	ErrInvalidPreAuthToken = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        CodeInvalidPreAuthToken,
		Description: "two-factor challenge expired or invalid; sign in again",
	}

	// ErrInvalidRefreshToken covers unknown, expired, revoked, and
	// rotated-away refresh tokens alike.
	ErrInvalidRefreshToken = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        CodeInvalidRefreshToken,
		Description: "refresh token is invalid, expired, or already used",
	}

	ErrConflict = &Error{
		StatusCode:  http.StatusConflict,
		Code:        CodeConflict,
		Description: "the request conflicts with existing state",
	}

	ErrServerError = &Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        CodeServerError,
		Description: "internal server error",
	}
)

// NewRateLimited builds a RATE_LIMITED error carrying the wait duration.
func NewRateLimited(waitSeconds int) *Error {
	if waitSeconds < 1 {
		waitSeconds = 1
	}
	return &Error{
		StatusCode:  http.StatusTooManyRequests,
		Code:        CodeRateLimited,
		Description: "too many attempts; try again later",
		WaitSeconds: waitSeconds,
	}
}
