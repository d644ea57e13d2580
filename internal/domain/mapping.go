package domain

import (
	"time"

	"github.com/google/uuid"
)

// Mapping links one business to its current batch. It is the source of truth
// for schedule membership; a schedule's job input is always rebuilt from
// mappings, never patched. Unique on (business_id, platform).
type Mapping struct {
	ID            uuid.UUID `json:"id"`
	TeamID        string    `json:"team_id"`
	BusinessID    string    `json:"business_id"`
	Platform      string    `json:"platform"`
	ScheduleID    uuid.UUID `json:"schedule_id"`
	Identifier    string    `json:"identifier"` // opaque external reference the collection job needs
	IntervalHours int       `json:"interval_hours"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
