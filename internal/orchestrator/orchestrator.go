// Package orchestrator owns the set of global schedules and every mutation of
// the business-to-batch mapping: add, move between intervals, remove, input
// rebuilds and the processing of asynchronous run callbacks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reviewsync/internal/batch"
	"reviewsync/internal/domain"
	"reviewsync/internal/interval"
	"reviewsync/internal/provider"
	"reviewsync/internal/retryqueue"
	"reviewsync/internal/store"
)

// placementRetries bounds the find-claim loop when concurrent adds race for
// the last slots of a batch.
const placementRetries = 3

type Orchestrator struct {
	stores    store.Stores
	batch     *batch.Manager
	resolver  *interval.Resolver
	scheduler provider.SchedulerProvider
	runner    provider.TaskRunner
	retry     *retryqueue.Queue

	scheduleType string
	log          zerolog.Logger
}

func New(stores store.Stores, bm *batch.Manager, resolver *interval.Resolver, scheduler provider.SchedulerProvider, runner provider.TaskRunner, retry *retryqueue.Queue, scheduleType string, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		stores:       stores,
		batch:        bm,
		resolver:     resolver,
		scheduler:    scheduler,
		runner:       runner,
		retry:        retry,
		scheduleType: scheduleType,
		log:          log.With().Str("component", "orchestrator").Logger(),
	}
}

// AddBusiness places a business into a batch for its effective interval,
// creating or resuming a batch when needed. Idempotent: an existing
// (businessID, platform) mapping is returned as-is.
func (o *Orchestrator) AddBusiness(ctx context.Context, teamID, platform, businessID, identifier string) (*domain.Mapping, error) {
	if err := o.resolver.ValidatePlatform(platform); err != nil {
		return nil, err
	}
	if businessID == "" || identifier == "" {
		return nil, domain.Validation("business", "business_id and identifier are required")
	}

	if existing, err := o.stores.Mappings.Get(ctx, businessID, platform); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hours, err := o.resolver.EffectiveInterval(ctx, teamID, platform)
	if err != nil {
		return nil, err
	}

	m := &domain.Mapping{
		ID:            uuid.New(),
		TeamID:        teamID,
		BusinessID:    businessID,
		Platform:      platform,
		Identifier:    identifier,
		IntervalHours: hours,
	}
	sch, err := o.placeMapping(ctx, m, platform, hours)
	if err != nil {
		return nil, err
	}

	if err := o.activateAndRebuild(ctx, sch); err != nil {
		// Provider retries exhausted: roll the mapping back so no mapping
		// points at a schedule the provider does not actually run, then
		// re-push the input so the provider converges with the mapping table.
		if _, rerr := o.stores.Mappings.Remove(ctx, businessID, platform); rerr != nil {
			o.log.Error().Err(rerr).Str("business_id", businessID).Msg("mapping rollback failed")
		} else if rerr := o.batch.RebuildInput(ctx, sch.ID); rerr != nil {
			o.log.Error().Err(rerr).Str("schedule_id", sch.ID.String()).Msg("input rollback failed")
		}
		return nil, err
	}

	o.log.Info().Str("business_id", businessID).Str("platform", platform).
		Str("schedule_id", sch.ID.String()).Int("interval_hours", hours).Msg("business added to schedule")
	return m, nil
}

// placeMapping finds (or creates) a batch with room and claims a slot by
// inserting the mapping. A concurrent add filling the batch first surfaces as
// ErrNoCapacity and triggers another find.
func (o *Orchestrator) placeMapping(ctx context.Context, m *domain.Mapping, platform string, hours int) (*domain.Schedule, error) {
	for range placementRetries {
		sch, err := o.batch.FindBestSchedule(ctx, platform, o.scheduleType, hours)
		if err != nil {
			return nil, err
		}
		if sch == nil {
			sch, err = o.batch.CreateBatch(ctx, platform, o.scheduleType, hours)
			if err != nil {
				return nil, err
			}
		}
		m.ScheduleID = sch.ID
		err = o.stores.Mappings.CreateInSchedule(ctx, m)
		switch {
		case err == nil:
			return sch, nil
		case errors.Is(err, store.ErrDuplicateMapping):
			// Lost an idempotency race; hand the winner's mapping back.
			existing, gerr := o.stores.Mappings.Get(ctx, m.BusinessID, m.Platform)
			if gerr != nil {
				return nil, gerr
			}
			*m = *existing
			return o.stores.Schedules.GetByID(ctx, existing.ScheduleID)
		case errors.Is(err, store.ErrNoCapacity):
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("could not place business %s on %s/%dh after %d attempts", m.BusinessID, platform, hours, placementRetries)
}

// activateAndRebuild resumes a paused batch if needed and pushes its input.
func (o *Orchestrator) activateAndRebuild(ctx context.Context, sch *domain.Schedule) error {
	if !sch.IsActive {
		if sch.ExternalScheduleID != "" {
			if err := o.scheduler.ResumeSchedule(ctx, sch.ExternalScheduleID); err != nil {
				return err
			}
		}
		if err := o.stores.Schedules.SetActive(ctx, sch.ID, true); err != nil {
			return err
		}
		sch.IsActive = true
	}
	return o.batch.RebuildInput(ctx, sch.ID)
}

// MoveBusiness re-points a business to a batch of a different interval. The
// mapping row is updated in one transaction, so the business is never
// unmapped or double-mapped mid-move. An unchanged interval is a strict
// no-op: zero mutations, zero external calls.
func (o *Orchestrator) MoveBusiness(ctx context.Context, teamID, platform, businessID string, newHours int) (*domain.Mapping, error) {
	if err := o.resolver.ValidatePlatform(platform); err != nil {
		return nil, err
	}
	if err := o.resolver.ValidateInterval(newHours); err != nil {
		return nil, err
	}

	m, err := o.stores.Mappings.Get(ctx, businessID, platform)
	if err != nil {
		return nil, err
	}
	if m.TeamID != teamID {
		return nil, domain.Validation("team_id", "business belongs to a different team")
	}
	if m.IntervalHours == newHours {
		return m, nil
	}

	oldScheduleID := m.ScheduleID
	oldHours := m.IntervalHours

	target, err := o.placeMove(ctx, m, platform, newHours)
	if err != nil {
		return nil, err
	}

	if err := o.finishMove(ctx, oldScheduleID, target); err != nil {
		// Roll the move back so local state matches what the provider runs.
		// The old schedule may already be paused with the business dropped
		// from its input, so it must be resumed and re-pushed too.
		if rerr := o.stores.Mappings.Move(ctx, m.ID, oldScheduleID, oldHours); rerr != nil {
			o.log.Error().Err(rerr).Str("business_id", businessID).Msg("move rollback failed")
		} else {
			o.restoreSchedule(ctx, oldScheduleID)
		}
		return nil, err
	}

	m.ScheduleID = target.ID
	m.IntervalHours = newHours
	o.log.Info().Str("business_id", businessID).Str("platform", platform).
		Int("from_hours", oldHours).Int("to_hours", newHours).Msg("business moved between schedules")
	return m, nil
}

func (o *Orchestrator) placeMove(ctx context.Context, m *domain.Mapping, platform string, newHours int) (*domain.Schedule, error) {
	for range placementRetries {
		target, err := o.batch.FindBestSchedule(ctx, platform, o.scheduleType, newHours)
		if err != nil {
			return nil, err
		}
		if target == nil {
			target, err = o.batch.CreateBatch(ctx, platform, o.scheduleType, newHours)
			if err != nil {
				return nil, err
			}
		}
		err = o.stores.Mappings.Move(ctx, m.ID, target.ID, newHours)
		switch {
		case err == nil:
			return target, nil
		case errors.Is(err, store.ErrNoCapacity):
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("could not re-place business %s on %s/%dh after %d attempts", m.BusinessID, platform, newHours, placementRetries)
}

// finishMove rebuilds both sides and retires the old batch if it emptied.
func (o *Orchestrator) finishMove(ctx context.Context, oldScheduleID uuid.UUID, target *domain.Schedule) error {
	if err := o.batch.RebuildInput(ctx, oldScheduleID); err != nil {
		return err
	}
	if err := o.retireIfEmpty(ctx, oldScheduleID); err != nil {
		return err
	}
	return o.activateAndRebuild(ctx, target)
}

// RemoveBusiness deletes the mapping, rebuilds the remaining input and pauses
// the batch when it reaches zero.
func (o *Orchestrator) RemoveBusiness(ctx context.Context, teamID, platform, businessID string) error {
	if err := o.resolver.ValidatePlatform(platform); err != nil {
		return err
	}
	m, err := o.stores.Mappings.Get(ctx, businessID, platform)
	if err != nil {
		return err
	}
	if m.TeamID != teamID {
		return domain.Validation("team_id", "business belongs to a different team")
	}

	removed, err := o.stores.Mappings.Remove(ctx, businessID, platform)
	if err != nil {
		return err
	}

	err = o.batch.RebuildInput(ctx, removed.ScheduleID)
	if err == nil {
		err = o.retireIfEmpty(ctx, removed.ScheduleID)
	}
	if err != nil {
		// Put the mapping back, then resume and re-push the schedule: the
		// provider input may already have been rebuilt without the business,
		// and the schedule may already be marked inactive.
		if rerr := o.stores.Mappings.CreateInSchedule(ctx, removed); rerr != nil {
			o.log.Error().Err(rerr).Str("business_id", businessID).Msg("remove rollback failed")
		} else {
			o.restoreSchedule(ctx, removed.ScheduleID)
		}
		return err
	}

	o.log.Info().Str("business_id", businessID).Str("platform", platform).Msg("business removed from schedule")
	return nil
}

func (o *Orchestrator) retireIfEmpty(ctx context.Context, scheduleID uuid.UUID) error {
	sch, err := o.stores.Schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if sch.BusinessCount > 0 || !sch.IsActive {
		return nil
	}
	// Deactivate locally before the provider pause: a failed pause then
	// leaves the row inactive, which restoreSchedule knows to resume.
	if err := o.stores.Schedules.SetActive(ctx, scheduleID, false); err != nil {
		return err
	}
	if sch.ExternalScheduleID != "" {
		if err := o.scheduler.PauseSchedule(ctx, sch.ExternalScheduleID); err != nil {
			return err
		}
	}
	o.log.Info().Str("schedule_id", scheduleID.String()).Msg("empty batch paused")
	return nil
}

// restoreSchedule resumes and re-pushes a schedule after a rolled-back
// mutation, so provider state converges back to the mapping table.
func (o *Orchestrator) restoreSchedule(ctx context.Context, scheduleID uuid.UUID) {
	sch, err := o.stores.Schedules.GetByID(ctx, scheduleID)
	if err == nil {
		err = o.activateAndRebuild(ctx, sch)
	}
	if err != nil {
		o.log.Error().Err(err).Str("schedule_id", scheduleID.String()).Msg("schedule restore failed")
	}
}

// RebuildScheduleInput recomputes one schedule's identifier list from the
// mapping table and pushes it to the provider.
func (o *Orchestrator) RebuildScheduleInput(ctx context.Context, scheduleID uuid.UUID) error {
	return o.batch.RebuildInput(ctx, scheduleID)
}

// TriggerManualRun dispatches a one-off run for every business in a batch.
func (o *Orchestrator) TriggerManualRun(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	sch, err := o.stores.Schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	maps, err := o.stores.Mappings.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, m := range maps {
		if _, err := o.runner.RunTask(ctx, sch.Platform, m.Identifier); err != nil {
			o.log.Error().Err(err).Str("business_id", m.BusinessID).Msg("manual run dispatch failed")
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// ListSchedules returns every batch.
func (o *Orchestrator) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	return o.stores.Schedules.ListAll(ctx)
}

// BusinessesInSchedule returns the mappings of one batch, oldest first.
func (o *Orchestrator) BusinessesInSchedule(ctx context.Context, scheduleID uuid.UUID) ([]domain.Mapping, error) {
	if _, err := o.stores.Schedules.GetByID(ctx, scheduleID); err != nil {
		return nil, err
	}
	return o.stores.Mappings.ListBySchedule(ctx, scheduleID)
}

// TeamAssignments returns every mapping a team owns.
func (o *Orchestrator) TeamAssignments(ctx context.Context, teamID string) ([]domain.Mapping, error) {
	return o.stores.Mappings.ListByTeam(ctx, teamID)
}

// ForceRetryBusiness arms an immediate retry for a business that has a retry
// entry; a business without one gets a fresh due-now entry.
func (o *Orchestrator) ForceRetryBusiness(ctx context.Context, businessID, platform string) (*domain.RetryEntry, error) {
	if err := o.resolver.ValidatePlatform(platform); err != nil {
		return nil, err
	}
	e, err := o.retry.ForceRetry(ctx, businessID, platform)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	m, err := o.stores.Mappings.Get(ctx, businessID, platform)
	if err != nil {
		return nil, err
	}
	if err := o.retry.Enqueue(ctx, m.BusinessID, m.TeamID, m.Platform, m.Identifier, "manual retry"); err != nil {
		return nil, err
	}
	return o.retry.ForceRetry(ctx, businessID, platform)
}
