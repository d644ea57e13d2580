package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"reviewsync/internal/domain"
)

type OverrideStore struct {
	db *pgxpool.Pool
}

func (r *OverrideStore) Upsert(ctx context.Context, o *domain.IntervalOverride) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO interval_overrides (team_id, platform, interval_hours, expires_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        ON CONFLICT (team_id, platform)
        DO UPDATE SET interval_hours=EXCLUDED.interval_hours, expires_at=EXCLUDED.expires_at, updated_at=NOW()
	`, o.TeamID, o.Platform, o.IntervalHours, o.ExpiresAt)
	return err
}

func (r *OverrideStore) Get(ctx context.Context, teamID, platform string) (*domain.IntervalOverride, error) {
	row := r.db.QueryRow(ctx, `
		SELECT team_id, platform, interval_hours, expires_at, created_at, updated_at
        FROM interval_overrides
        WHERE team_id=$1 AND platform=$2
	`, teamID, platform)
	var o domain.IntervalOverride
	if err := row.Scan(&o.TeamID, &o.Platform, &o.IntervalHours, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &o, nil
}

func (r *OverrideStore) Delete(ctx context.Context, teamID, platform string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM interval_overrides WHERE team_id=$1 AND platform=$2
	`, teamID, platform)
	return err
}
