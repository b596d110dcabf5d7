package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
	"github.com/cairnhealth/cairn/internal/auth/store"
)

type sessionsRepo struct {
	q dbtx
}

const sessionColumns = `id, session_id, user_id, token_hash, status, remember_me,
	device, issued_at, expires_at, last_seen_at, revoked_at, replaced_by`

func scanSession(row *sql.Row) (domain.Session, error) {
	var (
		s          domain.Session
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	err := row.Scan(&s.ID, &s.SessionID, &s.UserID, &s.TokenHash, &s.Status,
		&s.RememberMe, &s.Device, &s.IssuedAt, &s.ExpiresAt, &s.LastSeenAt,
		&revokedAt, &replacedBy)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.RevokedAt = mapNullTimePtr(revokedAt)
	s.ReplacedBy = mapNullStringPtr(replacedBy)
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sessions (id, session_id, user_id, token_hash, status, remember_me,
			device, issued_at, expires_at, last_seen_at, revoked_at, replaced_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SessionID, s.UserID, s.TokenHash, s.Status, s.RememberMe,
		s.Device, s.IssuedAt, s.ExpiresAt, s.LastSeenAt,
		mapOptionalTime(s.RevokedAt), mapOptionalString(s.ReplacedBy))
	return err
}

func (r *sessionsRepo) GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token_hash = ?`, hash))
}

// SupersedeSession guards on status = 'active' so a racing double-rotation
// loses with ErrStale instead of both callers minting fresh tokens.
func (r *sessionsRepo) SupersedeSession(ctx context.Context, id string, replacedBy string, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET status = ?, replaced_by = ?, last_seen_at = ?
		WHERE id = ? AND status = ?`,
		domain.SessionSuperseded, replacedBy, at, id, domain.SessionActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrStale
	}
	return nil
}

func (r *sessionsRepo) RevokeSession(ctx context.Context, id string, at time.Time) error {
	return affectedOrNotFound(r.q.ExecContext(ctx,
		`UPDATE sessions SET status = ?, revoked_at = ?
		WHERE id = ? AND status != ?`,
		domain.SessionRevoked, at, id, domain.SessionRevoked))
}

func (r *sessionsRepo) RevokeSessionFamily(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET status = ?, revoked_at = ?
		WHERE session_id = ? AND status != ?`,
		domain.SessionRevoked, at, sessionID, domain.SessionRevoked)
	return err
}

func (r *sessionsRepo) RevokeAllUserSessions(ctx context.Context, userID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET status = ?, revoked_at = ?
		WHERE user_id = ? AND status != ?`,
		domain.SessionRevoked, at, userID, domain.SessionRevoked)
	return err
}

func (r *sessionsRepo) CountActiveSessions(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT session_id) FROM sessions
		WHERE user_id = ? AND status = ? AND expires_at > ?`,
		userID, domain.SessionActive, now).Scan(&n)
	return n, err
}

func (r *sessionsRepo) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = ? WHERE id = ? AND status = ?`,
		at, id, domain.SessionActive)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM sessions
		WHERE expires_at <= ? OR (status != ? AND last_seen_at <= ?)`,
		before, domain.SessionActive, before)
	return err
}
