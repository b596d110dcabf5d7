package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/pkg/cryptox"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

const (
	// DefaultCaptchaTTL bounds how long a challenge stays redeemable.
	DefaultCaptchaTTL = 5 * time.Minute

	captchaCodeLength = 6

	// captchaAlphabet excludes glyphs that render ambiguously (0/O, 1/I/L).
	captchaAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// CaptchaService mints and redeems single-use human verification challenges.
// A challenge is consumed on its first redemption attempt whether or not the
// supplied code matched, so a bot cannot grind one session id offline.
type CaptchaService struct {
	Store store.Store
	TTL   time.Duration
}

func (s *CaptchaService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultCaptchaTTL
	}
	return s.TTL
}

// NewChallenge mints a fresh challenge and persists it keyed by an opaque
// session id.
func (s *CaptchaService) NewChallenge(ctx context.Context) (domain.Captcha, error) {
	code, err := generateCaptchaCode()
	if err != nil {
		return domain.Captcha{}, err
	}

	sessionID, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.Captcha{}, err
	}

	now := time.Now().UTC()
	c := domain.Captcha{
		SessionID: sessionID,
		Code:      code,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}

	if err := s.Store.Captchas().CreateCaptcha(ctx, c); err != nil {
		return domain.Captcha{}, err
	}
	return c, nil
}

// Redeem consumes the challenge for sessionID and checks input against the
// stored code, case-insensitively. Unknown, expired, and already consumed
// session ids all collapse into ErrCaptchaInvalid.
func (s *CaptchaService) Redeem(ctx context.Context, st store.Store, sessionID, input string) error {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	c, err := st.Captchas().ConsumeCaptcha(ctx, sessionID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCaptchaInvalid
		}
		return err
	}

	input = strings.ToUpper(strings.TrimSpace(input))
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(input)) != 1 {
		l.Info("captcha code mismatch", "captcha_session", sessionID)
		return ErrCaptchaInvalid
	}
	return nil
}

func generateCaptchaCode() (string, error) {
	max := big.NewInt(int64(len(captchaAlphabet)))
	b := make([]byte, captchaCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = captchaAlphabet[n.Int64()]
	}
	return string(b), nil
}
