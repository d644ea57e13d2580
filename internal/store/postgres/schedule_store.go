package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"reviewsync/internal/domain"
	"reviewsync/internal/store"
)

type ScheduleStore struct {
	db *pgxpool.Pool
}

const scheduleColumns = `id, platform, schedule_type, interval_hours, batch_index,
        external_schedule_id, cron_expr, max_capacity, business_count, is_active,
        last_run_at, next_run_at, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (*domain.Schedule, error) {
	var s domain.Schedule
	if err := row.Scan(
		&s.ID, &s.Platform, &s.ScheduleType, &s.IntervalHours, &s.BatchIndex,
		&s.ExternalScheduleID, &s.CronExpr, &s.MaxCapacity, &s.BusinessCount, &s.IsActive,
		&s.LastRunAt, &s.NextRunAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ScheduleStore) Create(ctx context.Context, s *domain.Schedule) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO global_schedules
            (id, platform, schedule_type, interval_hours, batch_index, external_schedule_id,
             cron_expr, max_capacity, business_count, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, s.ID, s.Platform, s.ScheduleType, s.IntervalHours, s.BatchIndex, s.ExternalScheduleID,
		s.CronExpr, s.MaxCapacity, s.BusinessCount, s.IsActive)
	return err
}

func (r *ScheduleStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
        FROM global_schedules
        WHERE id = $1
	`, id)
	s, err := scanSchedule(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return s, nil
}

func (r *ScheduleStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Schedule, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
        FROM global_schedules
        WHERE external_schedule_id = $1
	`, externalID)
	s, err := scanSchedule(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return s, nil
}

func (r *ScheduleStore) ListByKey(ctx context.Context, platform, scheduleType string, intervalHours int) ([]domain.Schedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+scheduleColumns+`
        FROM global_schedules
        WHERE platform=$1 AND schedule_type=$2 AND interval_hours=$3
        ORDER BY batch_index
	`, platform, scheduleType, intervalHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

func (r *ScheduleStore) ListAll(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+scheduleColumns+`
        FROM global_schedules
        ORDER BY platform, schedule_type, interval_hours, batch_index
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

func (r *ScheduleStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE global_schedules
        SET is_active=$2, updated_at=NOW()
        WHERE id=$1
	`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ScheduleStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM global_schedules WHERE id=$1 AND business_count=0
	`, id)
	return err
}

func (r *ScheduleStore) SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE global_schedules
        SET external_schedule_id=$2, updated_at=NOW()
        WHERE id=$1
	`, id, externalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ScheduleStore) MarkRun(ctx context.Context, id uuid.UUID, lastRun time.Time, nextRun *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE global_schedules
        SET last_run_at=$2, next_run_at=$3, updated_at=NOW()
        WHERE id=$1
	`, id, lastRun, nextRun)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Reconcile corrects business_count drift from the mapping table. The cached
// count is only ever a derived value; mappings stay the source of truth.
func (r *ScheduleStore) Reconcile(ctx context.Context) ([]store.CountDrift, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE global_schedules gs
        SET business_count = actual.n, updated_at = NOW()
        FROM (
            SELECT gs2.id, COALESCE(COUNT(sm.id), 0) AS n, gs2.business_count AS cached
            FROM global_schedules gs2
            LEFT JOIN schedule_mappings sm ON sm.schedule_id = gs2.id
            GROUP BY gs2.id, gs2.business_count
        ) actual
        WHERE gs.id = actual.id AND gs.business_count <> actual.n
        RETURNING gs.id, actual.cached, actual.n
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []store.CountDrift
	for rows.Next() {
		var d store.CountDrift
		if err := rows.Scan(&d.ScheduleID, &d.Cached, &d.Actual); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}
