package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"reviewsync/internal/domain"
	"reviewsync/internal/store"
)

type RetryStore struct {
	db *pgxpool.Pool
}

const retryColumns = `id, business_id, team_id, platform, identifier, attempt_count,
        next_attempt_at, last_run_id, last_error, status, created_at, updated_at`

func scanRetry(row interface{ Scan(...any) error }) (*domain.RetryEntry, error) {
	var e domain.RetryEntry
	if err := row.Scan(
		&e.ID, &e.BusinessID, &e.TeamID, &e.Platform, &e.Identifier, &e.AttemptCount,
		&e.NextAttemptAt, &e.LastRunID, &e.LastError, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *RetryStore) Upsert(ctx context.Context, e *domain.RetryEntry) error {
	// A repeat failure for a business that already has a pending entry only
	// refreshes the error; backoff progress is owned by the sweep.
	_, err := r.db.Exec(ctx, `
		INSERT INTO retry_entries
            (id, business_id, team_id, platform, identifier, attempt_count,
             next_attempt_at, last_run_id, last_error, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
        ON CONFLICT (business_id, platform)
        DO UPDATE SET last_error=EXCLUDED.last_error, identifier=EXCLUDED.identifier, updated_at=NOW()
	`, e.ID, e.BusinessID, e.TeamID, e.Platform, e.Identifier, e.AttemptCount,
		e.NextAttemptAt, e.LastRunID, e.LastError, e.Status)
	return err
}

func (r *RetryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.RetryEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+retryColumns+` FROM retry_entries WHERE id=$1
	`, id)
	e, err := scanRetry(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return e, nil
}

func (r *RetryStore) GetByBusiness(ctx context.Context, businessID, platform string) (*domain.RetryEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+retryColumns+` FROM retry_entries WHERE business_id=$1 AND platform=$2
	`, businessID, platform)
	e, err := scanRetry(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return e, nil
}

func (r *RetryStore) GetByRunID(ctx context.Context, runID string) (*domain.RetryEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+retryColumns+` FROM retry_entries WHERE last_run_id=$1
	`, runID)
	e, err := scanRetry(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return e, nil
}

func (r *RetryStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+retryColumns+`
        FROM retry_entries
        WHERE status=$1 AND next_attempt_at <= $2
        ORDER BY next_attempt_at, id
        LIMIT $3
	`, domain.RetryPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.RetryEntry
	for rows.Next() {
		e, err := scanRetry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *e)
	}
	return res, rows.Err()
}

func (r *RetryStore) ListByStatus(ctx context.Context, status string) ([]domain.RetryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+retryColumns+`
        FROM retry_entries
        WHERE status=$1
        ORDER BY updated_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.RetryEntry
	for rows.Next() {
		e, err := scanRetry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *e)
	}
	return res, rows.Err()
}

func (r *RetryStore) Update(ctx context.Context, e *domain.RetryEntry) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE retry_entries
        SET attempt_count=$2, next_attempt_at=$3, last_run_id=$4, last_error=$5, status=$6, updated_at=NOW()
        WHERE id=$1
	`, e.ID, e.AttemptCount, e.NextAttemptAt, e.LastRunID, e.LastError, e.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *RetryStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM retry_entries WHERE id=$1`, id)
	return err
}

func (r *RetryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM retry_entries WHERE updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
