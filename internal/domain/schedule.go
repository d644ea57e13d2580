package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is one externally-registered recurring collection batch. Several
// batches may share (platform, schedule_type, interval_hours) once one fills
// up; batch_index tells them apart.
type Schedule struct {
	ID                 uuid.UUID  `json:"id"`
	Platform           string     `json:"platform"`
	ScheduleType       string     `json:"schedule_type"` // "reviews" or "overview"
	IntervalHours      int        `json:"interval_hours"`
	BatchIndex         int        `json:"batch_index"`
	ExternalScheduleID string     `json:"external_schedule_id"`
	CronExpr           string     `json:"cron_expr"`
	MaxCapacity        int        `json:"max_capacity"`
	BusinessCount      int        `json:"business_count"` // cached; reconciled against mappings
	IsActive           bool       `json:"is_active"`
	LastRunAt          *time.Time `json:"last_run_at"`
	NextRunAt          *time.Time `json:"next_run_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// FillRatio is BusinessCount over MaxCapacity, 0 for a zero-capacity batch.
func (s *Schedule) FillRatio() float64 {
	if s.MaxCapacity <= 0 {
		return 0
	}
	return float64(s.BusinessCount) / float64(s.MaxCapacity)
}

// HasRoom reports whether one more business fits.
func (s *Schedule) HasRoom() bool {
	return s.BusinessCount < s.MaxCapacity
}
