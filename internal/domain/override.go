package domain

import "time"

// IntervalOverride is a per-team interval exception for one platform. An
// unexpired override wins over the tier default during resolution; setting or
// removing one never moves existing mappings by itself.
type IntervalOverride struct {
	TeamID        string     `json:"team_id"`
	Platform      string     `json:"platform"`
	IntervalHours int        `json:"interval_hours"`
	ExpiresAt     *time.Time `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Expired reports whether the override has lapsed at now. A nil ExpiresAt
// never expires.
func (o *IntervalOverride) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}
