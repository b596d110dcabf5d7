package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Short access tokens, opaque refresh tokens
// carry the long-lived state so these only cover the JWT side.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute
)

// AMR (Authentication Method Reference) values recorded in access tokens.
const (
	AMRPassword = "pwd"  // password-based authentication
	AMROTP      = "otp"  // one-time code (email)
	AMRTOTP     = "totp" // authenticator app
	AMRMFA      = "mfa"  // a second factor was completed
	AMRRefresh  = "refresh"
)

// Claims are the access-token claims used across the platform. Keep changes
// additive to preserve compatibility with downstream services.
type Claims struct {
	jwt.RegisteredClaims

	// SID is the session ID, stable across refresh-token rotation.
	SID string `json:"sid,omitempty"`

	// AMR records how the subject authenticated, e.g. ["pwd","mfa"].
	// Mainly for audit, but lets sensitive endpoints require MFA.
	AMR []string `json:"amr,omitempty"`

	// Username for the authenticated user.
	Username string `json:"username,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an access token.
func NewAccessClaims(
	subject, sid string,
	amr []string,
	ttl time.Duration,
	issuer string,
	username string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID:      sid,
		AMR:      amr,
		Username: username,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the issuer matches the expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't used
// before it is valid (nbf).
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
