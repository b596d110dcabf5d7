package domain

import "time"

// Captcha is a single-use human-verification challenge. SessionID is the
// opaque handle given to the client; Code is the text the client must echo
// back. Comparison is case-insensitive.
type Captcha struct {
	SessionID string
	Code      string
	ExpiresAt time.Time
	Consumed  bool
	CreatedAt time.Time
}
