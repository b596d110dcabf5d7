package domain

import "time"

// Session status values.
const (
	SessionActive     = "active"
	SessionSuperseded = "superseded"
	SessionRevoked    = "revoked"
)

// Session is an authenticated login session keyed by its current refresh
// token fingerprint. Rotation supersedes the row and inserts a new one under
// the same SessionID; superseded rows are kept until housekeeping prunes them
// so a replayed old token can be told apart from a token we never issued.
type Session struct {
	ID          string
	SessionID   string
	UserID      string
	TokenHash   string
	Status      string
	RememberMe  bool
	Device      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	LastSeenAt  time.Time
	RevokedAt   *time.Time
	ReplacedBy  *string
}

// Usable reports whether the refresh token backing this row may still be
// exchanged at the given instant.
func (s Session) Usable(now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.ExpiresAt)
}

// TokenPair is the credential set handed back after a successful login,
// two-factor completion, or refresh rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	SessionID    string
}
