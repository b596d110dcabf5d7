package sqlite

import (
	"context"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
)

type captchasRepo struct {
	q dbtx
}

func (r *captchasRepo) CreateCaptcha(ctx context.Context, c domain.Captcha) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO captchas (session_id, code, consumed, expires_at, created_at)
		VALUES (?, ?, 0, ?, ?)`,
		c.SessionID, c.Code, c.ExpiresAt, c.CreatedAt)
	return err
}

// ConsumeCaptcha flips consumed in the same statement that reads the row, so
// two concurrent logins presenting the same session id cannot both win.
func (r *captchasRepo) ConsumeCaptcha(ctx context.Context, sessionID string, now time.Time) (domain.Captcha, error) {
	row := r.q.QueryRowContext(ctx,
		`UPDATE captchas SET consumed = 1
		WHERE session_id = ? AND consumed = 0 AND expires_at > ?
		RETURNING session_id, code, consumed, expires_at, created_at`,
		sessionID, now)

	var c domain.Captcha
	if err := row.Scan(&c.SessionID, &c.Code, &c.Consumed, &c.ExpiresAt, &c.CreatedAt); err != nil {
		return domain.Captcha{}, mapNotFound(err)
	}
	return c, nil
}

func (r *captchasRepo) DeleteExpiredCaptchas(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM captchas WHERE expires_at <= ? OR consumed = 1`, now)
	return err
}
