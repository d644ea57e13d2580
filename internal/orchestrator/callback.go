package orchestrator

import (
	"context"
	"errors"
	"time"

	"reviewsync/internal/store"
)

// Run statuses reported by the external runner.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// BusinessOutcome is one business's result within a run.
type BusinessOutcome struct {
	Identifier string `json:"identifier"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// RunResult is the payload of an inbound run callback. ExternalScheduleID is
// set for shared batch runs and empty for one-off (retry or manual) runs.
type RunResult struct {
	EventType          string            `json:"event_type"`
	RunID              string            `json:"run_id"`
	ExternalScheduleID string            `json:"external_schedule_id,omitempty"`
	Platform           string            `json:"platform"`
	Status             string            `json:"status"`
	DatasetLocation    string            `json:"dataset_location,omitempty"`
	Outcomes           []BusinessOutcome `json:"outcomes"`
}

// HandleRunResult applies one run callback. Idempotent per run id: a
// duplicate delivery is acknowledged without re-applying anything. Outcomes
// that cannot be attributed to a mapping are logged and skipped; they never
// fail the whole callback.
func (o *Orchestrator) HandleRunResult(ctx context.Context, res RunResult) error {
	if res.RunID == "" {
		return errors.New("run result without run id")
	}
	// Marking first makes processing at-most-once per run id: outcomes are
	// never double-applied, at the cost of losing a run whose application
	// hits a transient store error. Failed businesses resurface on the
	// batch's next scheduled run, so the loss is bounded by one interval.
	if err := o.stores.Runs.MarkProcessed(ctx, res.RunID); err != nil {
		if errors.Is(err, store.ErrAlreadyProcessed) {
			o.log.Debug().Str("run_id", res.RunID).Msg("duplicate run callback ignored")
			return nil
		}
		return err
	}

	// One-off retry runs resolve through their recorded run id.
	if err := o.retry.ResolveRun(ctx, res.RunID, res.Status == RunSucceeded, runError(res)); err != nil {
		o.log.Error().Err(err).Str("run_id", res.RunID).Msg("retry resolution failed")
	}

	for _, out := range res.Outcomes {
		o.applyOutcome(ctx, res.Platform, out)
	}

	if res.ExternalScheduleID != "" {
		o.markScheduleRun(ctx, res.ExternalScheduleID)
	}
	return nil
}

func (o *Orchestrator) applyOutcome(ctx context.Context, platform string, out BusinessOutcome) {
	m, err := o.stores.Mappings.GetByIdentifier(ctx, platform, out.Identifier)
	if err != nil {
		// Stale or unknown mapping: the business may have been removed since
		// the run started. Discard, never crash the handler.
		o.log.Warn().Str("platform", platform).Str("identifier", out.Identifier).
			Msg("run outcome could not be attributed, discarded")
		return
	}
	if out.Status == RunSucceeded {
		if err := o.retry.ResolveBusiness(ctx, m.BusinessID, m.Platform); err != nil {
			o.log.Error().Err(err).Str("business_id", m.BusinessID).Msg("retry cleanup failed")
		}
		return
	}
	// A single business's failed collection is routed to the retry queue,
	// not treated as a system fault.
	if err := o.retry.Enqueue(ctx, m.BusinessID, m.TeamID, m.Platform, m.Identifier, out.Error); err != nil {
		o.log.Error().Err(err).Str("business_id", m.BusinessID).Msg("retry enqueue failed")
	}
}

func (o *Orchestrator) markScheduleRun(ctx context.Context, externalScheduleID string) {
	sch, err := o.stores.Schedules.GetByExternalID(ctx, externalScheduleID)
	if err != nil {
		o.log.Warn().Str("external_schedule_id", externalScheduleID).
			Msg("run callback for unknown schedule")
		return
	}
	now := time.Now()
	next := now.Add(time.Duration(sch.IntervalHours) * time.Hour)
	if err := o.stores.Schedules.MarkRun(ctx, sch.ID, now, &next); err != nil {
		o.log.Error().Err(err).Str("schedule_id", sch.ID.String()).Msg("mark run failed")
	}
}

func runError(res RunResult) string {
	if res.Status == RunSucceeded {
		return ""
	}
	for _, out := range res.Outcomes {
		if out.Error != "" {
			return out.Error
		}
	}
	return "collection failed"
}
