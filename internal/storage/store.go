// Package storage persists dispatch records and consumed status tokens.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/extpr/internal/core"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrTokenConsumed is returned when a status token has already been used
	// for a terminal update.
	ErrTokenConsumed = errors.New("status token already consumed")
)

// Store defines the interface for all database operations.
type Store interface {
	SaveDispatches(ctx context.Context, records []*core.DispatchRecord) error
	// ListDispatches returns the newest records first. An empty repoFullName
	// lists every repository.
	ListDispatches(ctx context.Context, repoFullName string, limit int) ([]*core.DispatchRecord, error)

	// ConsumeToken marks a token id as used, or returns ErrTokenConsumed.
	ConsumeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	// TokenConsumed reports whether a token id has already been consumed.
	TokenConsumed(ctx context.Context, tokenID string) (bool, error)
	// ReleaseToken undoes ConsumeToken after the update it guarded failed.
	ReleaseToken(ctx context.Context, tokenID string) error
	// PurgeExpiredTokens forgets consumed tokens that can no longer verify.
	PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

type sqlStore struct {
	db *sqlx.DB
}

// NewStore creates a new Store. The queries use $N placeholders, which both
// lib/pq and modernc sqlite accept.
func NewStore(db *sqlx.DB) Store {
	return &sqlStore{db: db}
}

// SaveDispatches inserts dispatch records in one transaction.
func (s *sqlStore) SaveDispatches(ctx context.Context, records []*core.DispatchRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO dispatches (event_id, repo_full_name, pr_number, head_sha, context, job, outcome, token_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query,
			r.EventID, r.RepoFullName, r.PRNumber, r.HeadSHA, r.Context, r.Job,
			string(r.Outcome), r.TokenID, r.Error, createdAt,
		); err != nil {
			return fmt.Errorf("failed to insert dispatch for %s: %w", r.Context, err)
		}
	}
	return tx.Commit()
}

// ListDispatches retrieves the most recent dispatch records.
func (s *sqlStore) ListDispatches(ctx context.Context, repoFullName string, limit int) ([]*core.DispatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []*core.DispatchRecord
	var err error
	if repoFullName == "" {
		err = s.db.SelectContext(ctx, &records, `
			SELECT id, event_id, repo_full_name, pr_number, head_sha, context, job, outcome, token_id, error, created_at
			FROM dispatches
			ORDER BY created_at DESC, id DESC
			LIMIT $1`, limit)
	} else {
		err = s.db.SelectContext(ctx, &records, `
			SELECT id, event_id, repo_full_name, pr_number, head_sha, context, job, outcome, token_id, error, created_at
			FROM dispatches
			WHERE repo_full_name = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, repoFullName, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	return records, nil
}

// ConsumeToken records a token id; a second insert of the same id is a replay.
func (s *sqlStore) ConsumeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO consumed_tokens (token_id, expires_at, consumed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_id) DO NOTHING`, tokenID, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	if n == 0 {
		return ErrTokenConsumed
	}
	return nil
}

// TokenConsumed looks up a consumed token id.
func (s *sqlStore) TokenConsumed(ctx context.Context, tokenID string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM consumed_tokens WHERE token_id = $1`, tokenID); err != nil {
		return false, fmt.Errorf("failed to look up token: %w", err)
	}
	return n > 0, nil
}

// ReleaseToken deletes a consumed token id.
func (s *sqlStore) ReleaseToken(ctx context.Context, tokenID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM consumed_tokens WHERE token_id = $1`, tokenID); err != nil {
		return fmt.Errorf("failed to release token: %w", err)
	}
	return nil
}

// PurgeExpiredTokens deletes consumed tokens that expired before the given time.
func (s *sqlStore) PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM consumed_tokens WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	return res.RowsAffected()
}
