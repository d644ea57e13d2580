// Package provider declares the external capabilities this core depends on:
// the recurring-job scheduler, the single-run task runner and the read-only
// billing/feature source. Any concrete provider can be plugged in; the core's
// invariants never depend on which one.
package provider

import (
	"context"
	"fmt"
)

// ScheduleInput is the full identifier list an external schedule runs over.
// It is always derived fresh from the mapping table.
type ScheduleInput struct {
	Platform     string   `json:"platform"`
	ScheduleType string   `json:"schedule_type"`
	Identifiers  []string `json:"identifiers"`
}

// SchedulerProvider manages external recurring schedules.
type SchedulerProvider interface {
	CreateSchedule(ctx context.Context, cronExpr string, input ScheduleInput) (externalID string, err error)
	UpdateScheduleInput(ctx context.Context, externalID string, input ScheduleInput) error
	PauseSchedule(ctx context.Context, externalID string) error
	ResumeSchedule(ctx context.Context, externalID string) error
	DeleteSchedule(ctx context.Context, externalID string) error
}

// TaskRunner triggers a one-off collection for a single identifier. The
// outcome arrives later through the inbound run callback.
type TaskRunner interface {
	RunTask(ctx context.Context, platform, identifier string) (runID string, err error)
}

// BillingSource resolves team tiers and tier default intervals.
type BillingSource interface {
	GetTeamTier(ctx context.Context, teamID string) (string, error)
	GetTierDefaultInterval(ctx context.Context, tier string) (int, error)
}

// Error wraps a failed external provider call. Call sites retry a bounded
// number of times before surfacing it; local state is rolled back on
// exhaustion.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
