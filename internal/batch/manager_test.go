package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewsync/internal/domain"
	"reviewsync/internal/provider"
	"reviewsync/internal/store"
	"reviewsync/internal/store/memory"
)

type fakeScheduler struct {
	created    int
	updated    map[string]provider.ScheduleInput
	paused     []string
	resumed    []string
	failCreate bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{updated: make(map[string]provider.ScheduleInput)}
}

func (f *fakeScheduler) CreateSchedule(_ context.Context, _ string, _ provider.ScheduleInput) (string, error) {
	if f.failCreate {
		return "", &provider.Error{Op: "create schedule", Err: errors.New("boom")}
	}
	f.created++
	return fmt.Sprintf("ext-%d", f.created), nil
}

func (f *fakeScheduler) UpdateScheduleInput(_ context.Context, externalID string, input provider.ScheduleInput) error {
	f.updated[externalID] = input
	return nil
}

func (f *fakeScheduler) PauseSchedule(_ context.Context, externalID string) error {
	f.paused = append(f.paused, externalID)
	return nil
}

func (f *fakeScheduler) ResumeSchedule(_ context.Context, externalID string) error {
	f.resumed = append(f.resumed, externalID)
	return nil
}

func (f *fakeScheduler) DeleteSchedule(_ context.Context, _ string) error { return nil }

func newTestManager(t *testing.T, maxCapacity int, threshold float64) (*Manager, store.Stores, *fakeScheduler) {
	t.Helper()
	stores := memory.New().Stores()
	sched := newFakeScheduler()
	m := NewManager(stores.Schedules, stores.Mappings, sched, maxCapacity, threshold, zerolog.Nop())
	return m, stores, sched
}

func addMapping(t *testing.T, stores store.Stores, scheduleID uuid.UUID, businessID string) *domain.Mapping {
	t.Helper()
	m := &domain.Mapping{
		ID:            uuid.New(),
		TeamID:        "team-1",
		BusinessID:    businessID,
		Platform:      "google_reviews",
		ScheduleID:    scheduleID,
		Identifier:    "place-" + businessID,
		IntervalHours: 24,
	}
	require.NoError(t, stores.Mappings.CreateInSchedule(context.Background(), m))
	return m
}

func TestFindBestSchedulePrefersFullestWithRoom(t *testing.T) {
	ctx := context.Background()
	m, stores, _ := newTestManager(t, 5, 0.5)

	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	b, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)

	addMapping(t, stores, a.ID, "b1")
	addMapping(t, stores, b.ID, "b2")
	addMapping(t, stores, b.ID, "b3")

	best, err := m.FindBestSchedule(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, b.ID, best.ID)
}

func TestFindBestScheduleTieBreaksOnLowestIndex(t *testing.T) {
	ctx := context.Background()
	m, stores, _ := newTestManager(t, 5, 0.5)

	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	b, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)

	addMapping(t, stores, a.ID, "b1")
	addMapping(t, stores, b.ID, "b2")

	best, err := m.FindBestSchedule(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, a.ID, best.ID)
}

func TestFindBestScheduleNilWhenAllFull(t *testing.T) {
	ctx := context.Background()
	m, stores, _ := newTestManager(t, 2, 0.5)

	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	addMapping(t, stores, a.ID, "b1")
	addMapping(t, stores, a.ID, "b2")

	best, err := m.FindBestSchedule(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	assert.Nil(t, best)
}

func TestCreateBatchAssignsNextIndexAndRegistersExternally(t *testing.T) {
	ctx := context.Background()
	m, stores, sched := newTestManager(t, 5, 0.5)

	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 6)
	require.NoError(t, err)
	b, err := m.CreateBatch(ctx, "google_reviews", "reviews", 6)
	require.NoError(t, err)

	assert.Equal(t, 0, a.BatchIndex)
	assert.Equal(t, 1, b.BatchIndex)
	assert.Equal(t, "0 */6 * * *", a.CronExpr)
	assert.NotEmpty(t, a.ExternalScheduleID)
	assert.NotEmpty(t, b.ExternalScheduleID)
	assert.Equal(t, 2, sched.created)

	// Distinct interval keys index independently.
	c, err := m.CreateBatch(ctx, "google_reviews", "reviews", 12)
	require.NoError(t, err)
	assert.Equal(t, 0, c.BatchIndex)

	got, err := stores.Schedules.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestCreateBatchRollsBackOnRegistrationFailure(t *testing.T) {
	ctx := context.Background()
	m, stores, sched := newTestManager(t, 5, 0.5)
	sched.failCreate = true

	_, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.Error(t, err)

	all, err := stores.Schedules.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "unregistered batch row must not survive")
}

func TestRebuildInputSendsFullIdentifierList(t *testing.T) {
	ctx := context.Background()
	m, stores, sched := newTestManager(t, 5, 0.5)

	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	addMapping(t, stores, a.ID, "b1")
	addMapping(t, stores, a.ID, "b2")

	require.NoError(t, m.RebuildInput(ctx, a.ID))

	input := sched.updated[a.ExternalScheduleID]
	assert.Equal(t, "google_reviews", input.Platform)
	assert.ElementsMatch(t, []string{"place-b1", "place-b2"}, input.Identifiers)
}

func TestSplitIfOverCapacityMovesOldestOverflow(t *testing.T) {
	ctx := context.Background()
	m, stores, sched := newTestManager(t, 3, 0.5)

	// Build a drifted batch: five mappings in a batch whose capacity is 3.
	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	a.MaxCapacity = 100
	require.NoError(t, stores.Schedules.Create(ctx, a))
	var oldest []uuid.UUID
	for i := range 5 {
		mp := addMapping(t, stores, a.ID, fmt.Sprintf("b%d", i))
		if i < 2 {
			oldest = append(oldest, mp.ID)
		}
		time.Sleep(time.Millisecond)
	}
	a.MaxCapacity = 3
	a.BusinessCount = 5
	require.NoError(t, stores.Schedules.Create(ctx, a))

	moved, err := m.SplitIfOverCapacity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	batches, err := stores.Schedules.ListByKey(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 3, batches[0].BusinessCount)
	assert.Equal(t, 2, batches[1].BusinessCount)

	fresh, err := stores.Mappings.ListBySchedule(ctx, batches[1].ID)
	require.NoError(t, err)
	var movedIDs []uuid.UUID
	for _, mp := range fresh {
		movedIDs = append(movedIDs, mp.ID)
	}
	assert.ElementsMatch(t, oldest, movedIDs, "overflow takes the oldest-assigned mappings")

	// Both sides were pushed to the provider.
	assert.Len(t, sched.updated[batches[0].ExternalScheduleID].Identifiers, 3)
	assert.Len(t, sched.updated[batches[1].ExternalScheduleID].Identifiers, 2)
}

func TestSplitNoOpAtOrUnderCapacity(t *testing.T) {
	ctx := context.Background()
	m, stores, _ := newTestManager(t, 3, 0.5)

	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	addMapping(t, stores, a.ID, "b1")

	moved, err := m.SplitIfOverCapacity(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestConsolidateMergesUnderfilledAndPausesEmptied(t *testing.T) {
	ctx := context.Background()
	m, stores, sched := newTestManager(t, 5, 0.5)

	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	b, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)

	for i := range 3 {
		addMapping(t, stores, a.ID, fmt.Sprintf("a%d", i))
	}
	for i := range 2 {
		addMapping(t, stores, b.ID, fmt.Sprintf("b%d", i))
	}

	moved, err := m.Consolidate(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	gotA, err := stores.Schedules.GetByID(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := stores.Schedules.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, gotA.BusinessCount)
	assert.Equal(t, 0, gotB.BusinessCount)
	assert.False(t, gotB.IsActive, "emptied donor is paused, not deleted")
	assert.Contains(t, sched.paused, b.ExternalScheduleID)
}

func TestConsolidateResumesPausedReceiver(t *testing.T) {
	ctx := context.Background()
	m, stores, sched := newTestManager(t, 5, 0.5)

	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	b, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	require.NoError(t, stores.Schedules.SetActive(ctx, a.ID, false))

	addMapping(t, stores, b.ID, "b0")
	addMapping(t, stores, b.ID, "b1")

	moved, err := m.Consolidate(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	gotA, err := stores.Schedules.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, gotA.IsActive, "receiver must be resumed before it collects again")
	assert.Contains(t, sched.resumed, a.ExternalScheduleID)
}

func TestConsolidateLeavesHealthyBatchesAlone(t *testing.T) {
	ctx := context.Background()
	m, stores, _ := newTestManager(t, 4, 0.5)

	a, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	b, err := m.CreateBatch(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)

	for i := range 3 {
		addMapping(t, stores, a.ID, fmt.Sprintf("a%d", i))
	}
	// 50% fill is at the threshold, not below it.
	addMapping(t, stores, b.ID, "b0")
	addMapping(t, stores, b.ID, "b1")

	moved, err := m.Consolidate(ctx, "google_reviews", "reviews", 24)
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestHealthClassification(t *testing.T) {
	ctx := context.Background()
	m, stores, _ := newTestManager(t, 20, 0.5)

	mk := func(count int, lastRun *time.Time) uuid.UUID {
		sch := &domain.Schedule{
			ID:            uuid.New(),
			Platform:      "google_reviews",
			ScheduleType:  "reviews",
			IntervalHours: 6,
			MaxCapacity:   20,
			BusinessCount: count,
			IsActive:      true,
			LastRunAt:     lastRun,
		}
		require.NoError(t, stores.Schedules.Create(ctx, sch))
		return sch.ID
	}

	stale := time.Now().Add(-13 * time.Hour)
	fresh := time.Now().Add(-1 * time.Hour)
	healthyID := mk(10, &fresh)
	warningID := mk(16, &fresh)
	criticalID := mk(20, &stale)

	report, err := m.Health(ctx)
	require.NoError(t, err)
	byID := make(map[uuid.UUID]BatchHealth)
	for _, h := range report {
		byID[h.ScheduleID] = h
	}

	assert.Equal(t, HealthHealthy, byID[healthyID].Status)
	assert.False(t, byID[healthyID].Stalled)
	assert.Equal(t, HealthWarning, byID[warningID].Status)
	assert.Equal(t, HealthCritical, byID[criticalID].Status)
	assert.True(t, byID[criticalID].Stalled, "last run beyond twice the interval")
}
