package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"reviewsync/internal/store"
)

type RunStore struct {
	db *pgxpool.Pool
}

// MarkProcessed is the callback dedup gate: first delivery of a run id wins,
// every replay gets ErrAlreadyProcessed.
func (r *RunStore) MarkProcessed(ctx context.Context, runID string) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO processed_runs (run_id, processed_at)
        VALUES ($1, NOW())
        ON CONFLICT (run_id) DO NOTHING
	`, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAlreadyProcessed
	}
	return nil
}
