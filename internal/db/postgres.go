package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Init(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return pool, nil
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS global_schedules (
            id UUID PRIMARY KEY,
            platform TEXT NOT NULL,
            schedule_type TEXT NOT NULL,
            interval_hours INT NOT NULL,
            batch_index INT NOT NULL,
            external_schedule_id TEXT NOT NULL DEFAULT '',
            cron_expr TEXT NOT NULL,
            max_capacity INT NOT NULL,
            business_count INT NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            last_run_at TIMESTAMPTZ,
            next_run_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (platform, schedule_type, interval_hours, batch_index)
        );`,
		`CREATE TABLE IF NOT EXISTS schedule_mappings (
            id UUID PRIMARY KEY,
            team_id TEXT NOT NULL,
            business_id TEXT NOT NULL,
            platform TEXT NOT NULL,
            schedule_id UUID NOT NULL REFERENCES global_schedules(id),
            identifier TEXT NOT NULL,
            interval_hours INT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (business_id, platform)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_mappings_schedule ON schedule_mappings(schedule_id);`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_mappings_team ON schedule_mappings(team_id);`,
		`CREATE TABLE IF NOT EXISTS interval_overrides (
            team_id TEXT NOT NULL,
            platform TEXT NOT NULL,
            interval_hours INT NOT NULL,
            expires_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (team_id, platform)
        );`,
		`CREATE TABLE IF NOT EXISTS retry_entries (
            id UUID PRIMARY KEY,
            business_id TEXT NOT NULL,
            team_id TEXT NOT NULL,
            platform TEXT NOT NULL,
            identifier TEXT NOT NULL,
            attempt_count INT NOT NULL DEFAULT 0,
            next_attempt_at TIMESTAMPTZ NOT NULL,
            last_run_id TEXT NOT NULL DEFAULT '',
            last_error TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (business_id, platform)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_retry_entries_due ON retry_entries(status, next_attempt_at);`,
		`CREATE TABLE IF NOT EXISTS processed_runs (
            run_id TEXT PRIMARY KEY,
            processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	}
	for _, q := range ddl {
		if _, err := pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
