// Package retryqueue retries individual failed collections on an isolated
// backoff cadence, decoupled from the shared batch schedule. An entry gets
// three attempts (5m, 15m, 45m after the previous failure); after the third
// failure it freezes as permanently_failed and stays visible to operators.
package retryqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reviewsync/internal/domain"
	"reviewsync/internal/provider"
	"reviewsync/internal/store"
)

var backoffSchedule = []time.Duration{5 * time.Minute, 15 * time.Minute, 45 * time.Minute}

// dispatchRetryDelay spaces out re-dispatch after a runner API error. The
// attempt never ran, so it does not consume one of the entry's three tries.
const dispatchRetryDelay = 5 * time.Minute

type Queue struct {
	retries store.RetryStore
	runner  provider.TaskRunner
	log     zerolog.Logger
}

func New(retries store.RetryStore, runner provider.TaskRunner, log zerolog.Logger) *Queue {
	return &Queue{
		retries: retries,
		runner:  runner,
		log:     log.With().Str("component", "retryqueue").Logger(),
	}
}

// backoffFor returns the wait before the attempt after attemptCount failures.
func backoffFor(attemptCount int) time.Duration {
	if attemptCount >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attemptCount]
}

// Enqueue records a failed collection for isolated retry. A business that
// already has a pending entry only gets its error refreshed; backoff progress
// is not reset by repeat batch failures.
func (q *Queue) Enqueue(ctx context.Context, businessID, teamID, platform, identifier, cause string) error {
	e := &domain.RetryEntry{
		ID:            uuid.New(),
		BusinessID:    businessID,
		TeamID:        teamID,
		Platform:      platform,
		Identifier:    identifier,
		AttemptCount:  0,
		NextAttemptAt: time.Now().Add(backoffFor(0)),
		LastError:     cause,
		Status:        domain.RetryPending,
	}
	if err := q.retries.Upsert(ctx, e); err != nil {
		return err
	}
	q.log.Info().Str("business_id", businessID).Str("platform", platform).Str("cause", cause).
		Msg("collection failure queued for retry")
	return nil
}

// SweepStats summarizes one ProcessQueue pass.
type SweepStats struct {
	Due        int
	Dispatched int
	Failed     int // dispatch errors (no attempt consumed)
	Frozen     int
}

// ProcessQueue dispatches a one-off, single-business run for every due
// pending entry. Entries are isolated: one entry's failure never stops the
// rest of the sweep. Each dispatch consumes an attempt and pre-arms the next
// attempt time, so a callback that never arrives still leads to a bounded
// number of retries.
func (q *Queue) ProcessQueue(ctx context.Context, now time.Time) (SweepStats, error) {
	var stats SweepStats
	due, err := q.retries.ListDue(ctx, now, 500)
	if err != nil {
		return stats, err
	}
	stats.Due = len(due)

	for i := range due {
		e := due[i]
		if err := q.processEntry(ctx, &e, now, &stats); err != nil {
			stats.Failed++
			q.log.Error().Err(err).Str("business_id", e.BusinessID).Str("platform", e.Platform).
				Msg("retry entry processing failed")
		}
	}
	return stats, nil
}

func (q *Queue) processEntry(ctx context.Context, e *domain.RetryEntry, now time.Time, stats *SweepStats) error {
	if e.AttemptCount >= domain.MaxRetryAttempts {
		// All attempts dispatched and no successful callback ever arrived.
		e.Status = domain.RetryPermanentlyFailed
		if e.LastError == "" {
			e.LastError = "no run outcome received"
		}
		stats.Frozen++
		q.log.Warn().Str("business_id", e.BusinessID).Str("platform", e.Platform).
			Msg("retry entry frozen, attempts exhausted")
		return q.retries.Update(ctx, e)
	}

	runID, err := q.runner.RunTask(ctx, e.Platform, e.Identifier)
	if err != nil {
		// Runner API failure, not a collection failure: keep the attempt.
		e.NextAttemptAt = now.Add(dispatchRetryDelay)
		if uerr := q.retries.Update(ctx, e); uerr != nil {
			return uerr
		}
		return err
	}

	e.AttemptCount++
	e.LastRunID = runID
	e.NextAttemptAt = now.Add(backoffFor(e.AttemptCount))
	if err := q.retries.Update(ctx, e); err != nil {
		return err
	}
	stats.Dispatched++
	q.log.Info().Str("business_id", e.BusinessID).Str("platform", e.Platform).
		Str("run_id", runID).Int("attempt", e.AttemptCount).Msg("retry dispatched")
	return nil
}

// ResolveRun applies the asynchronous outcome of a retry run. Success removes
// the entry; failure either schedules the next backoff step or freezes the
// entry once attempts are exhausted. Unknown run ids are fine: the run was a
// batch run or the entry already resolved.
func (q *Queue) ResolveRun(ctx context.Context, runID string, success bool, errMsg string) error {
	e, err := q.retries.GetByRunID(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if e.Status != domain.RetryPending {
		return nil
	}

	if success {
		q.log.Info().Str("business_id", e.BusinessID).Str("platform", e.Platform).
			Int("attempts", e.AttemptCount).Msg("retry succeeded")
		return q.retries.Delete(ctx, e.ID)
	}

	e.LastError = errMsg
	if e.AttemptCount >= domain.MaxRetryAttempts {
		e.Status = domain.RetryPermanentlyFailed
		q.log.Warn().Str("business_id", e.BusinessID).Str("platform", e.Platform).
			Str("last_error", errMsg).Msg("retry entry frozen, attempts exhausted")
	} else {
		e.NextAttemptAt = time.Now().Add(backoffFor(e.AttemptCount))
	}
	return q.retries.Update(ctx, e)
}

// ResolveBusiness clears a pending entry after the business succeeded through
// its regular shared batch.
func (q *Queue) ResolveBusiness(ctx context.Context, businessID, platform string) error {
	e, err := q.retries.GetByBusiness(ctx, businessID, platform)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if e.Status != domain.RetryPending {
		return nil
	}
	return q.retries.Delete(ctx, e.ID)
}

// ForceRetry resets an entry (pending or frozen) to a fresh, immediately due
// state. Operator escape hatch.
func (q *Queue) ForceRetry(ctx context.Context, businessID, platform string) (*domain.RetryEntry, error) {
	e, err := q.retries.GetByBusiness(ctx, businessID, platform)
	if err != nil {
		return nil, err
	}
	e.Status = domain.RetryPending
	e.AttemptCount = 0
	e.NextAttemptAt = time.Now()
	e.LastRunID = ""
	if err := q.retries.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Frozen lists permanently failed entries for operator visibility.
func (q *Queue) Frozen(ctx context.Context) ([]domain.RetryEntry, error) {
	return q.retries.ListByStatus(ctx, domain.RetryPermanentlyFailed)
}

// Cleanup purges entries untouched for longer than maxAge.
func (q *Queue) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	n, err := q.retries.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.log.Info().Int("purged", n).Msg("retry entries cleaned up")
	}
	return n, nil
}
