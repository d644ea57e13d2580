// Package postgres implements the store interfaces on pgx. Methods that touch
// a schedule's cached business_count do the mapping write and the count
// adjustment in one transaction, so concurrent callers cannot overshoot
// capacity or observe an unmapped business mid-move.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"reviewsync/internal/store"
)

// New wires the pgx-backed stores over one pool.
func New(pool *pgxpool.Pool) store.Stores {
	return store.Stores{
		Schedules: &ScheduleStore{db: pool},
		Mappings:  &MappingStore{db: pool},
		Overrides: &OverrideStore{db: pool},
		Retries:   &RetryStore{db: pool},
		Runs:      &RunStore{db: pool},
	}
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
