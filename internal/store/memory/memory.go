// Package memory implements the store interfaces in process memory with the
// same semantics as the postgres implementation: capacity claims, duplicate
// mapping detection and run-id dedup all behave identically under one mutex.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reviewsync/internal/domain"
	"reviewsync/internal/store"
)

type Store struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*domain.Schedule
	mappings  map[uuid.UUID]*domain.Mapping
	overrides map[string]*domain.IntervalOverride // key teamID|platform
	retries   map[uuid.UUID]*domain.RetryEntry
	runs      map[string]time.Time
}

func New() *Store {
	return &Store{
		schedules: make(map[uuid.UUID]*domain.Schedule),
		mappings:  make(map[uuid.UUID]*domain.Mapping),
		overrides: make(map[string]*domain.IntervalOverride),
		retries:   make(map[uuid.UUID]*domain.RetryEntry),
		runs:      make(map[string]time.Time),
	}
}

// Stores exposes the one in-memory state through every store interface.
func (s *Store) Stores() store.Stores {
	return store.Stores{
		Schedules: (*scheduleStore)(s),
		Mappings:  (*mappingStore)(s),
		Overrides: (*overrideStore)(s),
		Retries:   (*retryStore)(s),
		Runs:      (*runStore)(s),
	}
}

func overrideKey(teamID, platform string) string {
	return teamID + "|" + platform
}

type scheduleStore Store

func (s *scheduleStore) Create(_ context.Context, sch *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sch
	now := time.Now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.schedules[sch.ID] = &cp
	return nil
}

func (s *scheduleStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sch
	return &cp, nil
}

func (s *scheduleStore) GetByExternalID(_ context.Context, externalID string) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sch := range s.schedules {
		if sch.ExternalScheduleID == externalID && externalID != "" {
			cp := *sch
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *scheduleStore) ListByKey(_ context.Context, platform, scheduleType string, intervalHours int) ([]domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Schedule
	for _, sch := range s.schedules {
		if sch.Platform == platform && sch.ScheduleType == scheduleType && sch.IntervalHours == intervalHours {
			res = append(res, *sch)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].BatchIndex < res[j].BatchIndex })
	return res, nil
}

func (s *scheduleStore) ListAll(_ context.Context) ([]domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Schedule
	for _, sch := range s.schedules {
		res = append(res, *sch)
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		if a.ScheduleType != b.ScheduleType {
			return a.ScheduleType < b.ScheduleType
		}
		if a.IntervalHours != b.IntervalHours {
			return a.IntervalHours < b.IntervalHours
		}
		return a.BatchIndex < b.BatchIndex
	})
	return res, nil
}

func (s *scheduleStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return store.ErrNotFound
	}
	sch.IsActive = active
	sch.UpdatedAt = time.Now()
	return nil
}

func (s *scheduleStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sch, ok := s.schedules[id]; ok && sch.BusinessCount == 0 {
		delete(s.schedules, id)
	}
	return nil
}

func (s *scheduleStore) SetExternalID(_ context.Context, id uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return store.ErrNotFound
	}
	sch.ExternalScheduleID = externalID
	sch.UpdatedAt = time.Now()
	return nil
}

func (s *scheduleStore) MarkRun(_ context.Context, id uuid.UUID, lastRun time.Time, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return store.ErrNotFound
	}
	lr := lastRun
	sch.LastRunAt = &lr
	sch.NextRunAt = nextRun
	sch.UpdatedAt = time.Now()
	return nil
}

func (s *scheduleStore) Reconcile(_ context.Context) ([]store.CountDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, m := range s.mappings {
		counts[m.ScheduleID]++
	}
	var drifts []store.CountDrift
	for id, sch := range s.schedules {
		actual := counts[id]
		if sch.BusinessCount != actual {
			drifts = append(drifts, store.CountDrift{ScheduleID: id, Cached: sch.BusinessCount, Actual: actual})
			sch.BusinessCount = actual
			sch.UpdatedAt = time.Now()
		}
	}
	return drifts, nil
}

type mappingStore Store

func (s *mappingStore) CreateInSchedule(_ context.Context, m *domain.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[m.ScheduleID]
	if !ok {
		return store.ErrNotFound
	}
	if sch.BusinessCount >= sch.MaxCapacity {
		return store.ErrNoCapacity
	}
	for _, existing := range s.mappings {
		if existing.BusinessID == m.BusinessID && existing.Platform == m.Platform {
			return store.ErrDuplicateMapping
		}
	}
	cp := *m
	now := time.Now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.mappings[m.ID] = &cp
	sch.BusinessCount++
	sch.UpdatedAt = now
	return nil
}

func (s *mappingStore) Get(_ context.Context, businessID, platform string) (*domain.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.BusinessID == businessID && m.Platform == platform {
			cp := *m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *mappingStore) GetByIdentifier(_ context.Context, platform, identifier string) (*domain.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.Platform == platform && m.Identifier == identifier {
			cp := *m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *mappingStore) ListBySchedule(_ context.Context, scheduleID uuid.UUID) ([]domain.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Mapping
	for _, m := range s.mappings {
		if m.ScheduleID == scheduleID {
			res = append(res, *m)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return strings.Compare(res[i].ID.String(), res[j].ID.String()) < 0
	})
	return res, nil
}

func (s *mappingStore) ListByTeam(_ context.Context, teamID string) ([]domain.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Mapping
	for _, m := range s.mappings {
		if m.TeamID == teamID {
			res = append(res, *m)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Platform != res[j].Platform {
			return res[i].Platform < res[j].Platform
		}
		return res[i].BusinessID < res[j].BusinessID
	})
	return res, nil
}

func (s *mappingStore) Move(_ context.Context, id uuid.UUID, toSchedule uuid.UUID, intervalHours int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[id]
	if !ok {
		return store.ErrNotFound
	}
	to, ok := s.schedules[toSchedule]
	if !ok {
		return store.ErrNotFound
	}
	if to.BusinessCount >= to.MaxCapacity {
		return store.ErrNoCapacity
	}
	from := s.schedules[m.ScheduleID]
	to.BusinessCount++
	if from != nil && from.BusinessCount > 0 {
		from.BusinessCount--
	}
	m.ScheduleID = toSchedule
	m.IntervalHours = intervalHours
	m.UpdatedAt = time.Now()
	return nil
}

func (s *mappingStore) Remove(_ context.Context, businessID, platform string) (*domain.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.mappings {
		if m.BusinessID == businessID && m.Platform == platform {
			delete(s.mappings, id)
			if sch := s.schedules[m.ScheduleID]; sch != nil && sch.BusinessCount > 0 {
				sch.BusinessCount--
				sch.UpdatedAt = time.Now()
			}
			cp := *m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *mappingStore) Reassign(_ context.Context, ids []uuid.UUID, from, to uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	toSch, ok := s.schedules[to]
	if !ok {
		return store.ErrNotFound
	}
	if toSch.BusinessCount+len(ids) > toSch.MaxCapacity {
		return store.ErrNoCapacity
	}
	fromSch := s.schedules[from]
	for _, id := range ids {
		m, ok := s.mappings[id]
		if !ok || m.ScheduleID != from {
			return store.ErrNotFound
		}
	}
	now := time.Now()
	for _, id := range ids {
		m := s.mappings[id]
		m.ScheduleID = to
		m.UpdatedAt = now
	}
	toSch.BusinessCount += len(ids)
	if fromSch != nil {
		fromSch.BusinessCount -= len(ids)
		if fromSch.BusinessCount < 0 {
			fromSch.BusinessCount = 0
		}
	}
	return nil
}

func (s *mappingStore) CountBySchedule(_ context.Context, scheduleID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.mappings {
		if m.ScheduleID == scheduleID {
			n++
		}
	}
	return n, nil
}

type overrideStore Store

func (s *overrideStore) Upsert(_ context.Context, o *domain.IntervalOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	now := time.Now()
	if existing, ok := s.overrides[overrideKey(o.TeamID, o.Platform)]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.overrides[overrideKey(o.TeamID, o.Platform)] = &cp
	return nil
}

func (s *overrideStore) Get(_ context.Context, teamID, platform string) (*domain.IntervalOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.overrides[overrideKey(teamID, platform)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *overrideStore) Delete(_ context.Context, teamID, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, overrideKey(teamID, platform))
	return nil
}

type retryStore Store

func (s *retryStore) Upsert(_ context.Context, e *domain.RetryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.retries {
		if existing.BusinessID == e.BusinessID && existing.Platform == e.Platform {
			existing.LastError = e.LastError
			existing.Identifier = e.Identifier
			existing.UpdatedAt = time.Now()
			return nil
		}
	}
	cp := *e
	now := time.Now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.retries[e.ID] = &cp
	return nil
}

func (s *retryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.RetryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.retries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *retryStore) GetByBusiness(_ context.Context, businessID, platform string) (*domain.RetryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.retries {
		if e.BusinessID == businessID && e.Platform == platform {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *retryStore) GetByRunID(_ context.Context, runID string) (*domain.RetryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.retries {
		if e.LastRunID == runID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *retryStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.RetryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.RetryEntry
	for _, e := range s.retries {
		if e.Status == domain.RetryPending && !e.NextAttemptAt.After(now) {
			res = append(res, *e)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].NextAttemptAt.Equal(res[j].NextAttemptAt) {
			return res[i].NextAttemptAt.Before(res[j].NextAttemptAt)
		}
		return strings.Compare(res[i].ID.String(), res[j].ID.String()) < 0
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *retryStore) ListByStatus(_ context.Context, status string) ([]domain.RetryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.RetryEntry
	for _, e := range s.retries {
		if e.Status == status {
			res = append(res, *e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	return res, nil
}

func (s *retryStore) Update(_ context.Context, e *domain.RetryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.retries[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.AttemptCount = e.AttemptCount
	existing.NextAttemptAt = e.NextAttemptAt
	existing.LastRunID = e.LastRunID
	existing.LastError = e.LastError
	existing.Status = e.Status
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *retryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retries, id)
	return nil
}

func (s *retryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.retries {
		if e.UpdatedAt.Before(cutoff) {
			delete(s.retries, id)
			n++
		}
	}
	return n, nil
}

type runStore Store

func (s *runStore) MarkProcessed(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return store.ErrAlreadyProcessed
	}
	s.runs[runID] = time.Now()
	return nil
}
