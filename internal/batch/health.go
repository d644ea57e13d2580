package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Health statuses by fill ratio; a batch is additionally flagged stalled when
// its last run lags more than twice its interval.
const (
	HealthHealthy  = "healthy"  // <80% full
	HealthWarning  = "warning"  // 80-95%
	HealthCritical = "critical" // >95%
)

type BatchHealth struct {
	ScheduleID    uuid.UUID `json:"schedule_id"`
	Platform      string    `json:"platform"`
	ScheduleType  string    `json:"schedule_type"`
	IntervalHours int       `json:"interval_hours"`
	BatchIndex    int       `json:"batch_index"`
	BusinessCount int       `json:"business_count"`
	MaxCapacity   int       `json:"max_capacity"`
	FillRatio     float64   `json:"fill_ratio"`
	Status        string    `json:"status"`
	Stalled       bool      `json:"stalled"`
	IsActive      bool      `json:"is_active"`
}

// Health classifies every batch. Paused empty batches report healthy and
// never stalled.
func (m *Manager) Health(ctx context.Context) ([]BatchHealth, error) {
	all, err := m.schedules.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	res := make([]BatchHealth, 0, len(all))
	for _, s := range all {
		h := BatchHealth{
			ScheduleID:    s.ID,
			Platform:      s.Platform,
			ScheduleType:  s.ScheduleType,
			IntervalHours: s.IntervalHours,
			BatchIndex:    s.BatchIndex,
			BusinessCount: s.BusinessCount,
			MaxCapacity:   s.MaxCapacity,
			FillRatio:     s.FillRatio(),
			IsActive:      s.IsActive,
		}
		switch {
		case h.FillRatio > 0.95:
			h.Status = HealthCritical
		case h.FillRatio >= 0.80:
			h.Status = HealthWarning
		default:
			h.Status = HealthHealthy
		}
		if s.IsActive && s.LastRunAt != nil {
			lag := now.Sub(*s.LastRunAt)
			h.Stalled = lag > 2*time.Duration(s.IntervalHours)*time.Hour
		}
		res = append(res, h)
	}
	return res, nil
}
