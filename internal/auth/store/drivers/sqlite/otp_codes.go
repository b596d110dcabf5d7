package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
)

type otpCodesRepo struct {
	q dbtx
}

func (r *otpCodesRepo) CreateOTP(ctx context.Context, c domain.OTPCode) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO otp_codes (id, identifier, purpose, code_hash, generated_at, expires_at, consumed)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		c.ID, c.Identifier, string(c.Purpose), c.CodeHash, c.GeneratedAt, c.ExpiresAt)
	return err
}

func (r *otpCodesRepo) GetActiveOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose, now time.Time) (domain.OTPCode, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, identifier, purpose, code_hash, generated_at, expires_at, consumed
		FROM otp_codes
		WHERE identifier = ? AND purpose = ? AND consumed = 0 AND expires_at > ?
		ORDER BY generated_at DESC
		LIMIT 1`,
		identifier, string(purpose), now)
	return scanOTPCode(row)
}

func (r *otpCodesRepo) GetLatestOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose) (domain.OTPCode, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, identifier, purpose, code_hash, generated_at, expires_at, consumed
		FROM otp_codes
		WHERE identifier = ? AND purpose = ?
		ORDER BY generated_at DESC
		LIMIT 1`,
		identifier, string(purpose))
	return scanOTPCode(row)
}

func scanOTPCode(row *sql.Row) (domain.OTPCode, error) {
	var c domain.OTPCode
	if err := row.Scan(&c.ID, &c.Identifier, &c.Purpose, &c.CodeHash,
		&c.GeneratedAt, &c.ExpiresAt, &c.Consumed); err != nil {
		return domain.OTPCode{}, mapNotFound(err)
	}
	return c, nil
}

func (r *otpCodesRepo) ConsumeOTP(ctx context.Context, id string) error {
	return affectedOrNotFound(r.q.ExecContext(ctx,
		`UPDATE otp_codes SET consumed = 1 WHERE id = ? AND consumed = 0`, id))
}

func (r *otpCodesRepo) ConsumeAllOTPs(ctx context.Context, identifier string, purpose domain.OTPPurpose) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE otp_codes SET consumed = 1
		WHERE identifier = ? AND purpose = ? AND consumed = 0`,
		identifier, string(purpose))
	return err
}

// DeleteExpiredOTPs removes codes whose expiry lies at or before the cutoff.
// Consumed rows are kept until then because the newest row anchors the issue
// cooldown whatever its state.
func (r *otpCodesRepo) DeleteExpiredOTPs(ctx context.Context, before time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM otp_codes WHERE expires_at <= ?`, before)
	return err
}
