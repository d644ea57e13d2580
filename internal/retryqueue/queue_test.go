package retryqueue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewsync/internal/domain"
	"reviewsync/internal/store"
	"reviewsync/internal/store/memory"
)

type fakeRunner struct {
	runs    []string // identifiers in dispatch order
	nextID  int
	failFor map[string]bool // identifiers whose dispatch errors
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{failFor: make(map[string]bool)}
}

func (f *fakeRunner) RunTask(_ context.Context, _, identifier string) (string, error) {
	if f.failFor[identifier] {
		return "", errors.New("runner unavailable")
	}
	f.runs = append(f.runs, identifier)
	f.nextID++
	return fmt.Sprintf("run-%d", f.nextID), nil
}

func newTestQueue(t *testing.T) (*Queue, store.Stores, *fakeRunner) {
	t.Helper()
	stores := memory.New().Stores()
	runner := newFakeRunner()
	return New(stores.Retries, runner, zerolog.Nop()), stores, runner
}

func enqueue(t *testing.T, q *Queue, businessID string) {
	t.Helper()
	require.NoError(t, q.Enqueue(context.Background(), businessID, "team-1", "google_reviews", "place-"+businessID, "timeout"))
}

func TestEnqueueArmsFirstBackoffStep(t *testing.T) {
	q, stores, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")

	e, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryPending, e.Status)
	assert.Zero(t, e.AttemptCount)
	assert.Equal(t, "timeout", e.LastError)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), e.NextAttemptAt, 10*time.Second)
}

func TestRepeatEnqueueKeepsBackoffProgress(t *testing.T) {
	q, stores, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	_, err := q.ProcessQueue(ctx, time.Now().Add(6*time.Minute))
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, "b1", "team-1", "google_reviews", "place-b1", "timeout again"))

	e, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, 1, e.AttemptCount, "repeat batch failure must not reset attempts")
	assert.Equal(t, "timeout again", e.LastError)
}

func TestProcessQueueDispatchesDueEntries(t *testing.T) {
	q, stores, runner := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	enqueue(t, q, "b2")

	// Nothing is due yet.
	stats, err := q.ProcessQueue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, stats.Due)

	now := time.Now().Add(6 * time.Minute)
	stats, err = q.ProcessQueue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Due)
	assert.Equal(t, 2, stats.Dispatched)
	assert.ElementsMatch(t, []string{"place-b1", "place-b2"}, runner.runs)

	e, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, 1, e.AttemptCount)
	assert.NotEmpty(t, e.LastRunID)
	assert.WithinDuration(t, now.Add(15*time.Minute), e.NextAttemptAt, time.Second)
}

func TestDispatchErrorKeepsAttempt(t *testing.T) {
	q, stores, runner := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	runner.failFor["place-b1"] = true

	now := time.Now().Add(6 * time.Minute)
	stats, err := q.ProcessQueue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Dispatched)

	e, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	require.NoError(t, err)
	assert.Zero(t, e.AttemptCount, "runner outage must not consume an attempt")
	assert.WithinDuration(t, now.Add(dispatchRetryDelay), e.NextAttemptAt, time.Second)
}

func TestEntryIsolation(t *testing.T) {
	q, _, runner := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	enqueue(t, q, "b2")
	runner.failFor["place-b1"] = true

	stats, err := q.ProcessQueue(ctx, time.Now().Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Contains(t, runner.runs, "place-b2", "one bad entry must not stop the sweep")
}

func TestBackoffProgressionAndFreeze(t *testing.T) {
	q, stores, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	now := time.Now()

	waits := []time.Duration{15 * time.Minute, 45 * time.Minute, 45 * time.Minute}
	for attempt := 1; attempt <= domain.MaxRetryAttempts; attempt++ {
		now = now.Add(time.Hour)
		_, err := q.ProcessQueue(ctx, now)
		require.NoError(t, err)

		e, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
		require.NoError(t, err)
		assert.Equal(t, attempt, e.AttemptCount)
		assert.WithinDuration(t, now.Add(waits[attempt-1]), e.NextAttemptAt, time.Second)

		require.NoError(t, q.ResolveRun(ctx, e.LastRunID, false, fmt.Sprintf("fail %d", attempt)))
	}

	e, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryPermanentlyFailed, e.Status)
	assert.Equal(t, "fail 3", e.LastError)

	// A frozen entry is never selected again.
	stats, err := q.ProcessQueue(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.Due)

	frozen, err := q.Frozen(ctx)
	require.NoError(t, err)
	require.Len(t, frozen, 1)
	assert.Equal(t, "b1", frozen[0].BusinessID)
}

func TestExhaustedEntryFreezesWithoutDispatch(t *testing.T) {
	q, stores, runner := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	now := time.Now()
	for range domain.MaxRetryAttempts {
		now = now.Add(time.Hour)
		_, err := q.ProcessQueue(ctx, now)
		require.NoError(t, err)
	}
	dispatched := len(runner.runs)
	require.Equal(t, domain.MaxRetryAttempts, dispatched)

	// No callback ever arrived; the next sweep freezes instead of dispatching.
	stats, err := q.ProcessQueue(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Frozen)
	assert.Len(t, runner.runs, dispatched)

	e, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryPermanentlyFailed, e.Status)
}

func TestResolveRunSuccessRemovesEntry(t *testing.T) {
	q, stores, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	_, err := q.ProcessQueue(ctx, time.Now().Add(6*time.Minute))
	require.NoError(t, err)

	e, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	require.NoError(t, err)
	require.NoError(t, q.ResolveRun(ctx, e.LastRunID, true, ""))

	_, err = stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveRunUnknownIDIsNoOp(t *testing.T) {
	q, _, _ := newTestQueue(t)
	assert.NoError(t, q.ResolveRun(context.Background(), "batch-run-123", true, ""))
}

func TestResolveBusinessClearsPendingEntry(t *testing.T) {
	q, stores, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	require.NoError(t, q.ResolveBusiness(ctx, "b1", "google_reviews"))

	_, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A business with no entry resolves silently.
	assert.NoError(t, q.ResolveBusiness(ctx, "b2", "google_reviews"))
}

func TestForceRetryResetsFrozenEntry(t *testing.T) {
	q, stores, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	now := time.Now()
	for range domain.MaxRetryAttempts + 1 {
		now = now.Add(time.Hour)
		_, err := q.ProcessQueue(ctx, now)
		require.NoError(t, err)
	}
	e, err := stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	require.NoError(t, err)
	require.Equal(t, domain.RetryPermanentlyFailed, e.Status)

	reset, err := q.ForceRetry(ctx, "b1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryPending, reset.Status)
	assert.Zero(t, reset.AttemptCount)
	assert.False(t, reset.NextAttemptAt.After(time.Now()))

	stats, err := q.ProcessQueue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dispatched)
}

func TestCleanupPurgesOldEntries(t *testing.T) {
	q, stores, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, "b1")
	n, err := q.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = stores.Retries.GetByBusiness(ctx, "b1", "google_reviews")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
