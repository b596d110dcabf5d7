package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/cairnhealth/cairn/internal/auth/store"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, username, email, password_hash, two_factor_enabled,
	totp_secret, totp_confirmed, last_login_at, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                domain.User
		twoFactorEnabled sql.NullTime
		totpSecret       sql.NullString
		totpConfirmed    sql.NullTime
		lastLoginAt      sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&twoFactorEnabled, &totpSecret, &totpConfirmed, &lastLoginAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.TwoFactorEnabled = mapNullTimePtr(twoFactorEnabled)
	u.TOTPSecret = mapNullStringPtr(totpSecret)
	u.TOTPConfirmed = mapNullTimePtr(totpConfirmed)
	u.LastLoginAt = mapNullTimePtr(lastLoginAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	// username and email are COLLATE NOCASE so a plain equality match is
	// already case-insensitive.
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ?`,
		identifier, identifier))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, two_factor_enabled,
			totp_secret, totp_confirmed, last_login_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash,
		mapOptionalTime(u.TwoFactorEnabled), mapOptionalString(u.TOTPSecret),
		mapOptionalTime(u.TOTPConfirmed), mapOptionalTime(u.LastLoginAt),
		u.CreatedAt, u.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return affectedOrNotFound(r.q.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID))
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return affectedOrNotFound(r.q.ExecContext(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		at, at, userID))
}

func (r *usersRepo) UpdateTOTPSecret(ctx context.Context, userID string, secret string) error {
	return affectedOrNotFound(r.q.ExecContext(ctx,
		`UPDATE users SET totp_secret = ?, totp_confirmed = NULL, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), userID))
}

func (r *usersRepo) ConfirmTOTP(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	return affectedOrNotFound(r.q.ExecContext(ctx,
		`UPDATE users SET totp_confirmed = ?, updated_at = ?
		WHERE id = ? AND totp_secret IS NOT NULL`,
		now, now, userID))
}

func (r *usersRepo) EnableTwoFactor(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	return affectedOrNotFound(r.q.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = ?, updated_at = ? WHERE id = ?`,
		now, now, userID))
}

func (r *usersRepo) DisableTwoFactor(ctx context.Context, userID string) error {
	return affectedOrNotFound(r.q.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = NULL, totp_secret = NULL,
			totp_confirmed = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), userID))
}
