package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrWeakSecret  = errors.New("jwtx: signing secret too short")
)

// Signer signs access-token claims.
type Signer interface {
	Sign(Claims) (string, error)
}

// Verifier validates a JWT and returns the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

const minSecretBytes = 32

// HS256 signs and verifies tokens with a shared HMAC-SHA256 secret. The
// auth service is the only issuer and the only verifier, so a symmetric
// key keeps the deployment to a single secret file.
type HS256 struct {
	secret []byte
	issuer string
}

// NewHS256 builds a combined signer/verifier. Secrets shorter than 32
// bytes are rejected outright.
func NewHS256(secret []byte, issuer string) (*HS256, error) {
	if len(secret) < minSecretBytes {
		return nil, ErrWeakSecret
	}
	return &HS256{secret: secret, issuer: issuer}, nil
}

func (h *HS256) Sign(c Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(h.secret)
}

func (h *HS256) Verify(raw string) (Claims, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAlgMismatch
		}
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return Claims{}, ErrNotYetValid
		default:
			return Claims{}, err
		}
	}
	if !token.Valid {
		return Claims{}, ErrInvalidSig
	}

	if err := claims.ValidateIssuer(h.issuer); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
