package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reviewsync/internal/domain"
	"reviewsync/internal/store"
)

type MappingStore struct {
	db *pgxpool.Pool
}

const mappingColumns = `id, team_id, business_id, platform, schedule_id, identifier,
        interval_hours, created_at, updated_at`

func scanMapping(row interface{ Scan(...any) error }) (*domain.Mapping, error) {
	var m domain.Mapping
	if err := row.Scan(
		&m.ID, &m.TeamID, &m.BusinessID, &m.Platform, &m.ScheduleID, &m.Identifier,
		&m.IntervalHours, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// claimSlot bumps business_count iff the batch still has room. Conditional
// update inside the caller's transaction keeps concurrent adds from
// overshooting max_capacity.
func claimSlot(ctx context.Context, tx pgx.Tx, scheduleID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE global_schedules
        SET business_count = business_count + 1, updated_at = NOW()
        WHERE id = $1 AND business_count < max_capacity
	`, scheduleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNoCapacity
	}
	return nil
}

func releaseSlot(ctx context.Context, tx pgx.Tx, scheduleID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE global_schedules
        SET business_count = GREATEST(business_count - 1, 0), updated_at = NOW()
        WHERE id = $1
	`, scheduleID)
	return err
}

func (r *MappingStore) CreateInSchedule(ctx context.Context, m *domain.Mapping) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := claimSlot(ctx, tx, m.ScheduleID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO schedule_mappings
            (id, team_id, business_id, platform, schedule_id, identifier, interval_hours, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, m.ID, m.TeamID, m.BusinessID, m.Platform, m.ScheduleID, m.Identifier, m.IntervalHours)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateMapping
		}
		return err
	}
	return tx.Commit(ctx)
}

func (r *MappingStore) Get(ctx context.Context, businessID, platform string) (*domain.Mapping, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+mappingColumns+`
        FROM schedule_mappings
        WHERE business_id=$1 AND platform=$2
	`, businessID, platform)
	m, err := scanMapping(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return m, nil
}

func (r *MappingStore) GetByIdentifier(ctx context.Context, platform, identifier string) (*domain.Mapping, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+mappingColumns+`
        FROM schedule_mappings
        WHERE platform=$1 AND identifier=$2
	`, platform, identifier)
	m, err := scanMapping(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return m, nil
}

func (r *MappingStore) ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]domain.Mapping, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+mappingColumns+`
        FROM schedule_mappings
        WHERE schedule_id=$1
        ORDER BY created_at, id
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}

func (r *MappingStore) ListByTeam(ctx context.Context, teamID string) ([]domain.Mapping, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+mappingColumns+`
        FROM schedule_mappings
        WHERE team_id=$1
        ORDER BY platform, business_id
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}

func (r *MappingStore) Move(ctx context.Context, id uuid.UUID, toSchedule uuid.UUID, intervalHours int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var from uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT schedule_id FROM schedule_mappings WHERE id=$1 FOR UPDATE
	`, id).Scan(&from); err != nil {
		return mapNoRows(err)
	}
	if err := claimSlot(ctx, tx, toSchedule); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE schedule_mappings
        SET schedule_id=$2, interval_hours=$3, updated_at=NOW()
        WHERE id=$1
	`, id, toSchedule, intervalHours); err != nil {
		return err
	}
	if err := releaseSlot(ctx, tx, from); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *MappingStore) Remove(ctx context.Context, businessID, platform string) (*domain.Mapping, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		DELETE FROM schedule_mappings
        WHERE business_id=$1 AND platform=$2
        RETURNING `+mappingColumns+`
	`, businessID, platform)
	m, err := scanMapping(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if err := releaseSlot(ctx, tx, m.ScheduleID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MappingStore) Reassign(ctx context.Context, ids []uuid.UUID, from, to uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Claim all target slots at once; bail out rather than overshoot.
	tag, err := tx.Exec(ctx, `
		UPDATE global_schedules
        SET business_count = business_count + $2, updated_at = NOW()
        WHERE id = $1 AND business_count + $2 <= max_capacity
	`, to, len(ids))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNoCapacity
	}

	tag, err = tx.Exec(ctx, `
		UPDATE schedule_mappings
        SET schedule_id=$2, updated_at=NOW()
        WHERE id = ANY($3) AND schedule_id=$1
	`, from, to, ids)
	if err != nil {
		return err
	}
	moved := tag.RowsAffected()
	if moved != int64(len(ids)) {
		return fmt.Errorf("reassign: expected %d mappings on schedule %s, moved %d", len(ids), from, moved)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE global_schedules
        SET business_count = GREATEST(business_count - $2, 0), updated_at = NOW()
        WHERE id = $1
	`, from, moved); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *MappingStore) CountBySchedule(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM schedule_mappings WHERE schedule_id=$1
	`, scheduleID).Scan(&n)
	return n, err
}
