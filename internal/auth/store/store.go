package store

import (
	"context"
	"errors"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrStale is returned by compare-and-set style updates when the row was
	// concurrently modified out from under the caller (e.g. two refresh
	// rotations racing on the same session row).
	ErrStale = errors.New("store: stale update")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and to stop callers from accidentally nesting transactions.
type Store interface {
	Users() Users
	Captchas() Captchas
	LoginAttempts() LoginAttempts
	OTPCodes() OTPCodes
	PreAuthTokens() PreAuthTokens
	Sessions() Sessions

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction. If fn returns an
	// error, the transaction is rolled back, otherwise committed. This is
	// the recommended way to handle multi-step atomic operations
	// (refresh rotation, OTP consume + session issue).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByIdentifier resolves a user by username or email,
	// case-insensitively. Used during login and password reset.
	GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateLastLogin stamps last_login_at after a fully completed login.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// UpdateTOTPSecret stores a pending authenticator secret for a user.
	UpdateTOTPSecret(ctx context.Context, userID string, secret string) error

	// ConfirmTOTP marks the stored authenticator secret as verified.
	ConfirmTOTP(ctx context.Context, userID string) error

	// EnableTwoFactor marks two-factor as required for a user.
	EnableTwoFactor(ctx context.Context, userID string) error

	// DisableTwoFactor clears two_factor_enabled, totp_secret and
	// totp_confirmed for a user.
	DisableTwoFactor(ctx context.Context, userID string) error
}

type Captchas interface {
	// CreateCaptcha stores a freshly minted challenge keyed by session id.
	CreateCaptcha(ctx context.Context, c domain.Captcha) error

	// ConsumeCaptcha atomically marks an unconsumed, unexpired challenge as
	// consumed and returns it. A second call for the same session id returns
	// ErrNotFound regardless of the stored code.
	ConsumeCaptcha(ctx context.Context, sessionID string, now time.Time) (domain.Captcha, error)

	// DeleteExpiredCaptchas is housekeeping.
	DeleteExpiredCaptchas(ctx context.Context, now time.Time) error
}

type LoginAttempts interface {
	// GetLoginAttempt returns the failure counter row for an identifier.
	GetLoginAttempt(ctx context.Context, identifier string) (domain.LoginAttempt, error)

	// IncrementLoginAttempt atomically bumps the failure counter and returns
	// the updated row. A window that started at or before windowCutoff is
	// restarted at now with a count of 1 and the lock cleared. Safe to call
	// from concurrent requests; every call is counted exactly once.
	IncrementLoginAttempt(ctx context.Context, identifier string, windowCutoff, now time.Time) (domain.LoginAttempt, error)

	// SetLockout extends the lock on an identifier. An existing lock that
	// already reaches past until is left alone, so concurrent writers keep
	// the longest lock.
	SetLockout(ctx context.Context, identifier string, until, now time.Time) error

	// DeleteLoginAttempt clears the counter after a successful login.
	DeleteLoginAttempt(ctx context.Context, identifier string) error

	// DeleteStaleLoginAttempts removes rows whose window and lock have both
	// lapsed (housekeeping).
	DeleteStaleLoginAttempts(ctx context.Context, before time.Time) error
}

type OTPCodes interface {
	// CreateOTP stores a new code for an identifier+purpose pair.
	CreateOTP(ctx context.Context, c domain.OTPCode) error

	// GetActiveOTP returns the newest unconsumed, unexpired code for an
	// identifier+purpose pair.
	GetActiveOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose, now time.Time) (domain.OTPCode, error)

	// GetLatestOTP returns the newest code for an identifier+purpose pair
	// regardless of consumed or expiry state. The issue cooldown is anchored
	// on this record.
	GetLatestOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose) (domain.OTPCode, error)

	// ConsumeOTP atomically marks a code consumed. Returns ErrNotFound if it
	// was already consumed by a concurrent request.
	ConsumeOTP(ctx context.Context, id string) error

	// ConsumeAllOTPs marks every active code for an identifier+purpose as
	// consumed. Used when issuing a replacement code.
	ConsumeAllOTPs(ctx context.Context, identifier string, purpose domain.OTPPurpose) error

	// DeleteExpiredOTPs is housekeeping.
	DeleteExpiredOTPs(ctx context.Context, before time.Time) error
}

type PreAuthTokens interface {
	// CreatePreAuthToken stores a new pre-auth token record.
	CreatePreAuthToken(ctx context.Context, t domain.PreAuthToken) error

	// GetPreAuthTokenByHash returns an unconsumed token by its fingerprint.
	GetPreAuthTokenByHash(ctx context.Context, hash string) (domain.PreAuthToken, error)

	// IncrementPreAuthAttempts bumps the failed-code counter and returns the
	// updated record.
	IncrementPreAuthAttempts(ctx context.Context, id string) (domain.PreAuthToken, error)

	// ConsumePreAuthToken atomically marks the token consumed. Returns
	// ErrNotFound if it was already consumed.
	ConsumePreAuthToken(ctx context.Context, id string, at time.Time) error

	// DeletePreAuthToken drops a token outright (attempt budget exhausted).
	DeletePreAuthToken(ctx context.Context, id string) error

	// DeleteExpiredPreAuthTokens is housekeeping.
	DeleteExpiredPreAuthTokens(ctx context.Context, before time.Time) error
}

type Sessions interface {
	// CreateSession stores a new session row keyed by refresh token hash.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByTokenHash returns the session row holding a refresh token
	// fingerprint, in any status. Callers inspect Status to distinguish an
	// active token from a replayed superseded one.
	GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error)

	// SupersedeSession flips status active -> superseded and records the row
	// that replaced it. Returns ErrStale if the row was not active, which is
	// how a racing double-rotation loses.
	SupersedeSession(ctx context.Context, id string, replacedBy string, at time.Time) error

	// RevokeSession flips status to revoked for one row (logout).
	RevokeSession(ctx context.Context, id string, at time.Time) error

	// RevokeSessionFamily revokes every non-revoked row sharing a session id.
	// Used on refresh replay detection.
	RevokeSessionFamily(ctx context.Context, sessionID string, at time.Time) error

	// RevokeAllUserSessions revokes every non-revoked row for a user
	// (password reset).
	RevokeAllUserSessions(ctx context.Context, userID string, at time.Time) error

	// CountActiveSessions returns the number of distinct active session
	// families for a user.
	CountActiveSessions(ctx context.Context, userID string, now time.Time) (int, error)

	// TouchSession bumps last_seen_at on an active row.
	TouchSession(ctx context.Context, id string, at time.Time) error

	// DeleteExpiredSessions removes rows past expiry plus revoked/superseded
	// rows older than the retention cutoff (housekeeping).
	DeleteExpiredSessions(ctx context.Context, before time.Time) error
}
