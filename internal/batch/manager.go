// Package batch places businesses into capacity-bounded schedule batches for
// a (platform, scheduleType, interval) key: best-fit lookup, lazy batch
// creation, overflow splitting and underfill consolidation.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reviewsync/internal/domain"
	"reviewsync/internal/provider"
	"reviewsync/internal/store"
)

type Manager struct {
	schedules store.ScheduleStore
	mappings  store.MappingStore
	scheduler provider.SchedulerProvider

	maxCapacity   int
	fillThreshold float64 // batches below this ratio are consolidation candidates
	log           zerolog.Logger
}

func NewManager(schedules store.ScheduleStore, mappings store.MappingStore, scheduler provider.SchedulerProvider, maxCapacity int, fillThreshold float64, log zerolog.Logger) *Manager {
	return &Manager{
		schedules:     schedules,
		mappings:      mappings,
		scheduler:     scheduler,
		maxCapacity:   maxCapacity,
		fillThreshold: fillThreshold,
		log:           log.With().Str("component", "batch").Logger(),
	}
}

// FindBestSchedule returns the fullest batch that still has room, ties broken
// by lowest batch index, or nil when every batch is full or none exists.
// Preferring the fullest batch keeps total batch count minimal.
func (m *Manager) FindBestSchedule(ctx context.Context, platform, scheduleType string, intervalHours int) (*domain.Schedule, error) {
	batches, err := m.schedules.ListByKey(ctx, platform, scheduleType, intervalHours)
	if err != nil {
		return nil, err
	}
	var best *domain.Schedule
	for i := range batches {
		b := &batches[i]
		if !b.HasRoom() {
			continue
		}
		if best == nil || b.BusinessCount > best.BusinessCount ||
			(b.BusinessCount == best.BusinessCount && b.BatchIndex < best.BatchIndex) {
			best = b
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// CreateBatch registers a new batch at the next free batch index, both as a
// durable row and with the external scheduler. The row is removed again when
// external registration fails, so no schedule ever exists locally that the
// provider does not have.
func (m *Manager) CreateBatch(ctx context.Context, platform, scheduleType string, intervalHours int) (*domain.Schedule, error) {
	existing, err := m.schedules.ListByKey(ctx, platform, scheduleType, intervalHours)
	if err != nil {
		return nil, err
	}
	nextIndex := 0
	for _, b := range existing {
		if b.BatchIndex >= nextIndex {
			nextIndex = b.BatchIndex + 1
		}
	}

	cronExpr, err := CronForInterval(intervalHours)
	if err != nil {
		return nil, err
	}
	sch := &domain.Schedule{
		ID:            uuid.New(),
		Platform:      platform,
		ScheduleType:  scheduleType,
		IntervalHours: intervalHours,
		BatchIndex:    nextIndex,
		CronExpr:      cronExpr,
		MaxCapacity:   m.maxCapacity,
		IsActive:      true,
	}
	if err := m.schedules.Create(ctx, sch); err != nil {
		return nil, err
	}

	externalID, err := m.scheduler.CreateSchedule(ctx, cronExpr, provider.ScheduleInput{
		Platform:     platform,
		ScheduleType: scheduleType,
	})
	if err != nil {
		if derr := m.schedules.Delete(ctx, sch.ID); derr != nil {
			m.log.Error().Err(derr).Str("schedule_id", sch.ID.String()).Msg("rollback of unregistered batch failed")
		}
		return nil, err
	}
	if err := m.schedules.SetExternalID(ctx, sch.ID, externalID); err != nil {
		return nil, err
	}
	sch.ExternalScheduleID = externalID

	m.log.Info().Str("schedule_id", sch.ID.String()).Str("platform", platform).
		Int("interval_hours", intervalHours).Int("batch_index", nextIndex).
		Msg("batch created")
	return sch, nil
}

// RebuildInput pushes the schedule's full identifier list to the external
// provider, always recomputed from the mapping table. Never patch
// incrementally: a fresh rebuild converges even after races or partial
// failures.
func (m *Manager) RebuildInput(ctx context.Context, scheduleID uuid.UUID) error {
	sch, err := m.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if sch.ExternalScheduleID == "" {
		return fmt.Errorf("schedule %s has no external schedule", scheduleID)
	}
	maps, err := m.mappings.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	identifiers := make([]string, 0, len(maps))
	for _, mp := range maps {
		identifiers = append(identifiers, mp.Identifier)
	}
	return m.scheduler.UpdateScheduleInput(ctx, sch.ExternalScheduleID, provider.ScheduleInput{
		Platform:     sch.Platform,
		ScheduleType: sch.ScheduleType,
		Identifiers:  identifiers,
	})
}

// SplitIfOverCapacity moves a race-induced excess into a fresh batch at the
// next index, oldest-assigned mappings first, preserving the total count for
// the key. No-op for batches at or under capacity.
func (m *Manager) SplitIfOverCapacity(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	sch, err := m.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	maps, err := m.mappings.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	excess := len(maps) - sch.MaxCapacity
	if excess <= 0 {
		return 0, nil
	}

	// ListBySchedule orders oldest-assigned first; overflow takes the oldest
	// so the selection is stable across retries.
	overflow := make([]uuid.UUID, 0, excess)
	for _, mp := range maps[:excess] {
		overflow = append(overflow, mp.ID)
	}

	target, err := m.CreateBatch(ctx, sch.Platform, sch.ScheduleType, sch.IntervalHours)
	if err != nil {
		return 0, err
	}
	if err := m.mappings.Reassign(ctx, overflow, sch.ID, target.ID); err != nil {
		return 0, err
	}
	if err := m.RebuildInput(ctx, sch.ID); err != nil {
		return excess, err
	}
	if err := m.RebuildInput(ctx, target.ID); err != nil {
		return excess, err
	}

	m.log.Warn().Str("schedule_id", sch.ID.String()).Str("target_id", target.ID.String()).
		Int("moved", excess).Msg("over-capacity batch split")
	return excess, nil
}

// Consolidate merges businesses out of under-threshold batches into fuller
// ones for a key, then pauses any batch it empties. Capacity and the
// one-mapping-per-business invariant are never violated; a mid-flight
// capacity race simply leaves that donor for the next pass.
func (m *Manager) Consolidate(ctx context.Context, platform, scheduleType string, intervalHours int) (int, error) {
	batches, err := m.schedules.ListByKey(ctx, platform, scheduleType, intervalHours)
	if err != nil {
		return 0, err
	}
	if len(batches) < 2 {
		return 0, nil
	}

	moved := 0
	for i := len(batches) - 1; i >= 1; i-- {
		donor := batches[i]
		if donor.BusinessCount == 0 || donor.FillRatio() >= m.fillThreshold {
			continue
		}
		maps, err := m.mappings.ListBySchedule(ctx, donor.ID)
		if err != nil {
			return moved, err
		}
		remaining := maps

		for j := 0; j < i && len(remaining) > 0; j++ {
			recv, err := m.schedules.GetByID(ctx, batches[j].ID)
			if err != nil {
				return moved, err
			}
			room := recv.MaxCapacity - recv.BusinessCount
			if room <= 0 {
				continue
			}
			n := min(room, len(remaining))
			ids := make([]uuid.UUID, 0, n)
			for _, mp := range remaining[:n] {
				ids = append(ids, mp.ID)
			}
			if err := m.mappings.Reassign(ctx, ids, donor.ID, recv.ID); err != nil {
				if errors.Is(err, store.ErrNoCapacity) {
					continue
				}
				return moved, err
			}
			remaining = remaining[n:]
			moved += n
			// A paused batch that just received businesses must run again.
			if !recv.IsActive {
				if recv.ExternalScheduleID != "" {
					if err := m.scheduler.ResumeSchedule(ctx, recv.ExternalScheduleID); err != nil {
						return moved, err
					}
				}
				if err := m.schedules.SetActive(ctx, recv.ID, true); err != nil {
					return moved, err
				}
			}
			if err := m.RebuildInput(ctx, recv.ID); err != nil {
				return moved, err
			}
		}

		if err := m.RebuildInput(ctx, donor.ID); err != nil {
			return moved, err
		}
		if len(remaining) == 0 {
			if err := m.retireEmpty(ctx, donor.ID); err != nil {
				return moved, err
			}
		}
	}

	if moved > 0 {
		m.log.Info().Str("platform", platform).Int("interval_hours", intervalHours).
			Int("moved", moved).Msg("batches consolidated")
	}
	return moved, nil
}

// retireEmpty pauses an emptied batch. The row stays around for reuse so the
// external schedule id remains stable.
func (m *Manager) retireEmpty(ctx context.Context, scheduleID uuid.UUID) error {
	sch, err := m.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if sch.BusinessCount != 0 {
		return nil
	}
	if sch.ExternalScheduleID != "" {
		if err := m.scheduler.PauseSchedule(ctx, sch.ExternalScheduleID); err != nil {
			return err
		}
	}
	return m.schedules.SetActive(ctx, scheduleID, false)
}
