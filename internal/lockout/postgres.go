package lockout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps one login_attempts row per identifier. Every mutation
// is a single atomic statement, so concurrent failures for the same
// identifier serialize on the row and no increment is ever lost.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) IsLocked(ctx context.Context, identifier string) (bool, error) {
	var failures int
	var lastAttemptAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT failed_attempts, last_attempt_at
		FROM login_attempts
		WHERE username = $1
	`, identifier).Scan(&failures, &lastAttemptAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query login attempts: %w", err)
	}

	if failures < Threshold {
		return false, nil
	}

	now := s.now().UTC()
	if now.Before(lastAttemptAt.UTC().Add(Window)) {
		return true, nil
	}

	// Window elapsed: zero the stale counter. The predicate repeats the
	// staleness check inside the UPDATE so a failure recorded between our
	// SELECT and this statement survives untouched.
	if _, err := s.db.ExecContext(ctx, `
		UPDATE login_attempts
		SET failed_attempts = 0
		WHERE username = $1
		  AND failed_attempts >= $2
		  AND last_attempt_at <= $3
	`, identifier, Threshold, now.Add(-Window)); err != nil {
		return false, fmt.Errorf("reset stale login attempts: %w", err)
	}

	return false, nil
}

func (s *PostgresStore) RecordFailure(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_attempts (username, failed_attempts, last_attempt_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (username)
		DO UPDATE SET
			failed_attempts = login_attempts.failed_attempts + 1,
			last_attempt_at = EXCLUDED.last_attempt_at
	`, identifier, s.now().UTC())
	if err != nil {
		return fmt.Errorf("record failed login attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordSuccess(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE login_attempts
		SET failed_attempts = 0, last_attempt_at = $2
		WHERE username = $1
	`, identifier, s.now().UTC())
	if err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

func (s *PostgresStore) Unlock(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE login_attempts
		SET failed_attempts = 0
		WHERE username = $1
	`, identifier)
	if err != nil {
		return fmt.Errorf("unlock login attempts: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM login_attempts
		WHERE last_attempt_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete stale login attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login attempts rows affected: %w", err)
	}
	return affected, nil
}
