// Package store defines the persistence contracts for schedules, mappings,
// interval overrides, retry entries and processed callback runs. The postgres
// implementation enforces the count/capacity invariants transactionally; the
// memory implementation mirrors the same semantics for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"reviewsync/internal/domain"
)

var (
	ErrNotFound         = errors.New("store: not found")
	ErrDuplicateMapping = errors.New("store: mapping already exists")
	ErrNoCapacity       = errors.New("store: schedule at capacity")
	ErrAlreadyProcessed = errors.New("store: run already processed")
)

// CountDrift reports a schedule whose cached business_count disagreed with
// the mapping table during reconciliation.
type CountDrift struct {
	ScheduleID uuid.UUID
	Cached     int
	Actual     int
}

type ScheduleStore interface {
	Create(ctx context.Context, s *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Schedule, error)
	// ListByKey returns all batches for (platform, scheduleType, intervalHours)
	// ordered by batch_index.
	ListByKey(ctx context.Context, platform, scheduleType string, intervalHours int) ([]domain.Schedule, error)
	ListAll(ctx context.Context) ([]domain.Schedule, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// Delete removes an empty schedule row (rollback of a batch whose external
	// registration never succeeded).
	Delete(ctx context.Context, id uuid.UUID) error
	SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	MarkRun(ctx context.Context, id uuid.UUID, lastRun time.Time, nextRun *time.Time) error
	// Reconcile recounts mappings per schedule, corrects any drifted
	// business_count and reports what it fixed.
	Reconcile(ctx context.Context) ([]CountDrift, error)
}

type MappingStore interface {
	// CreateInSchedule inserts the mapping and claims a capacity slot on its
	// schedule in one transaction. ErrNoCapacity if the batch is full,
	// ErrDuplicateMapping if (business_id, platform) is already mapped.
	CreateInSchedule(ctx context.Context, m *domain.Mapping) error
	Get(ctx context.Context, businessID, platform string) (*domain.Mapping, error)
	GetByIdentifier(ctx context.Context, platform, identifier string) (*domain.Mapping, error)
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]domain.Mapping, error)
	ListByTeam(ctx context.Context, teamID string) ([]domain.Mapping, error)
	// Move repoints one mapping to another schedule: claims a slot on the
	// target, updates the row, releases the old slot, all in one transaction.
	// The business is never unmapped in between.
	Move(ctx context.Context, id uuid.UUID, toSchedule uuid.UUID, intervalHours int) error
	// Remove deletes the mapping and releases its slot in one transaction,
	// returning the deleted row.
	Remove(ctx context.Context, businessID, platform string) (*domain.Mapping, error)
	// Reassign bulk-moves the given mappings from one schedule to another
	// (split/consolidate). Fails with ErrNoCapacity rather than overshooting
	// the target. Total count across the two batches is preserved.
	Reassign(ctx context.Context, ids []uuid.UUID, from, to uuid.UUID) error
	CountBySchedule(ctx context.Context, scheduleID uuid.UUID) (int, error)
}

type OverrideStore interface {
	Upsert(ctx context.Context, o *domain.IntervalOverride) error
	Get(ctx context.Context, teamID, platform string) (*domain.IntervalOverride, error)
	Delete(ctx context.Context, teamID, platform string) error
}

type RetryStore interface {
	// Upsert creates the entry, or refreshes an existing pending entry for the
	// same (business_id, platform) without touching its attempt count.
	Upsert(ctx context.Context, e *domain.RetryEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RetryEntry, error)
	GetByBusiness(ctx context.Context, businessID, platform string) (*domain.RetryEntry, error)
	GetByRunID(ctx context.Context, runID string) (*domain.RetryEntry, error)
	// ListDue returns pending entries with next_attempt_at <= now, oldest due
	// first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryEntry, error)
	ListByStatus(ctx context.Context, status string) ([]domain.RetryEntry, error)
	Update(ctx context.Context, e *domain.RetryEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type RunStore interface {
	// MarkProcessed records a callback run id, ErrAlreadyProcessed on a
	// duplicate delivery.
	MarkProcessed(ctx context.Context, runID string) error
}

// Stores bundles every store a component might need.
type Stores struct {
	Schedules ScheduleStore
	Mappings  MappingStore
	Overrides OverrideStore
	Retries   RetryStore
	Runs      RunStore
}
