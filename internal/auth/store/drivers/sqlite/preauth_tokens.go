package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
)

type preAuthTokensRepo struct {
	q dbtx
}

const preAuthColumns = `id, token_hash, user_id, identifier, remember_me,
	device, attempts, issued_at, expires_at, consumed_at`

func scanPreAuthToken(row *sql.Row) (domain.PreAuthToken, error) {
	var (
		t          domain.PreAuthToken
		consumedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.TokenHash, &t.UserID, &t.Identifier, &t.RememberMe,
		&t.Device, &t.Attempts, &t.IssuedAt, &t.ExpiresAt, &consumedAt)
	if err != nil {
		return domain.PreAuthToken{}, mapNotFound(err)
	}
	t.ConsumedAt = mapNullTimePtr(consumedAt)
	return t, nil
}

func (r *preAuthTokensRepo) CreatePreAuthToken(ctx context.Context, t domain.PreAuthToken) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO pre_auth_tokens (id, token_hash, user_id, identifier, remember_me,
			device, attempts, issued_at, expires_at, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.UserID, t.Identifier, t.RememberMe,
		t.Device, t.Attempts, t.IssuedAt, t.ExpiresAt, mapOptionalTime(t.ConsumedAt))
	return err
}

func (r *preAuthTokensRepo) GetPreAuthTokenByHash(ctx context.Context, hash string) (domain.PreAuthToken, error) {
	return scanPreAuthToken(r.q.QueryRowContext(ctx,
		`SELECT `+preAuthColumns+` FROM pre_auth_tokens
		WHERE token_hash = ? AND consumed_at IS NULL`, hash))
}

func (r *preAuthTokensRepo) IncrementPreAuthAttempts(ctx context.Context, id string) (domain.PreAuthToken, error) {
	return scanPreAuthToken(r.q.QueryRowContext(ctx,
		`UPDATE pre_auth_tokens SET attempts = attempts + 1
		WHERE id = ?
		RETURNING `+preAuthColumns, id))
}

func (r *preAuthTokensRepo) ConsumePreAuthToken(ctx context.Context, id string, at time.Time) error {
	return affectedOrNotFound(r.q.ExecContext(ctx,
		`UPDATE pre_auth_tokens SET consumed_at = ?
		WHERE id = ? AND consumed_at IS NULL`, at, id))
}

func (r *preAuthTokensRepo) DeletePreAuthToken(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM pre_auth_tokens WHERE id = ?`, id)
	return err
}

func (r *preAuthTokensRepo) DeleteExpiredPreAuthTokens(ctx context.Context, before time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM pre_auth_tokens WHERE expires_at <= ? OR consumed_at IS NOT NULL`, before)
	return err
}
