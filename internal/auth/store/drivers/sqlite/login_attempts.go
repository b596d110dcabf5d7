package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/domain"
)

type loginAttemptsRepo struct {
	q dbtx
}

func (r *loginAttemptsRepo) GetLoginAttempt(ctx context.Context, identifier string) (domain.LoginAttempt, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT identifier, failure_count, window_start, locked_until, updated_at
		FROM login_attempts WHERE identifier = ?`, identifier)

	var (
		a           domain.LoginAttempt
		lockedUntil sql.NullTime
	)
	if err := row.Scan(&a.Identifier, &a.FailureCount, &a.WindowStart, &lockedUntil, &a.UpdatedAt); err != nil {
		return domain.LoginAttempt{}, mapNotFound(err)
	}
	a.LockedUntil = mapNullTimePtr(lockedUntil)
	return a, nil
}

// IncrementLoginAttempt bumps the counter in a single upsert so concurrent
// failures never lose an increment to a read-modify-write race. A window
// whose start lies at or before windowCutoff restarts at now with the lock
// cleared.
func (r *loginAttemptsRepo) IncrementLoginAttempt(ctx context.Context, identifier string, windowCutoff, now time.Time) (domain.LoginAttempt, error) {
	row := r.q.QueryRowContext(ctx,
		`INSERT INTO login_attempts (identifier, failure_count, window_start, locked_until, updated_at)
		VALUES (?, 1, ?, NULL, ?)
		ON CONFLICT (identifier) DO UPDATE SET
			failure_count = CASE WHEN login_attempts.window_start <= ? THEN 1 ELSE login_attempts.failure_count + 1 END,
			locked_until = CASE WHEN login_attempts.window_start <= ? THEN NULL ELSE login_attempts.locked_until END,
			window_start = CASE WHEN login_attempts.window_start <= ? THEN excluded.window_start ELSE login_attempts.window_start END,
			updated_at = excluded.updated_at
		RETURNING identifier, failure_count, window_start, locked_until, updated_at`,
		identifier, now, now, windowCutoff, windowCutoff, windowCutoff)

	var (
		a           domain.LoginAttempt
		lockedUntil sql.NullTime
	)
	if err := row.Scan(&a.Identifier, &a.FailureCount, &a.WindowStart, &lockedUntil, &a.UpdatedAt); err != nil {
		return domain.LoginAttempt{}, err
	}
	a.LockedUntil = mapNullTimePtr(lockedUntil)
	return a, nil
}

// SetLockout extends the lock, leaving a longer existing one in place so
// concurrent writers converge on the furthest expiry.
func (r *loginAttemptsRepo) SetLockout(ctx context.Context, identifier string, until, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE login_attempts SET locked_until = ?, updated_at = ?
		WHERE identifier = ? AND (locked_until IS NULL OR locked_until < ?)`,
		until, now, identifier, until)
	return err
}

func (r *loginAttemptsRepo) DeleteLoginAttempt(ctx context.Context, identifier string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE identifier = ?`, identifier)
	return err
}

func (r *loginAttemptsRepo) DeleteStaleLoginAttempts(ctx context.Context, before time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM login_attempts
		WHERE updated_at <= ? AND (locked_until IS NULL OR locked_until <= ?)`,
		before, before)
	return err
}
