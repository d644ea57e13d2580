package domain

import (
	"time"

	"github.com/google/uuid"
)

// Retry entry statuses. A pending entry either succeeds (row deleted) or,
// after exhausting attempts, freezes as permanently_failed and is retained
// for operator visibility.
const (
	RetryPending           = "pending"
	RetryPermanentlyFailed = "permanently_failed"
)

// MaxRetryAttempts caps attempt_count.
const MaxRetryAttempts = 3

// RetryEntry is one business's pending retry after a failed collection. It
// runs on its own backoff cadence, independent of the shared batch.
type RetryEntry struct {
	ID            uuid.UUID `json:"id"`
	BusinessID    string    `json:"business_id"`
	TeamID        string    `json:"team_id"`
	Platform      string    `json:"platform"`
	Identifier    string    `json:"identifier"`
	AttemptCount  int       `json:"attempt_count"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastRunID     string    `json:"last_run_id"` // run id of the most recent one-off dispatch
	LastError     string    `json:"last_error"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
