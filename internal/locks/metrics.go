package locks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sweep metrics live in Redis like the rest of the coordination state and are
// surfaced by the metrics handler.

type SweepSummary struct {
	Time       time.Time
	Due        int
	Dispatched int
	Failed     int
	Frozen     int
	Reconciled int
	CleanedUp  int
}

type Metrics struct {
	rdb *redis.Client
}

func NewMetrics(rdb *redis.Client) *Metrics {
	return &Metrics{rdb: rdb}
}

func (m *Metrics) RecordSweep(ctx context.Context, s SweepSummary) {
	_ = m.rdb.Incr(ctx, "metrics:sweeper:sweeps").Err()
	_ = m.rdb.IncrBy(ctx, "metrics:sweeper:dispatched", int64(s.Dispatched)).Err()
	_ = m.rdb.IncrBy(ctx, "metrics:sweeper:failed", int64(s.Failed)).Err()
	_ = m.rdb.IncrBy(ctx, "metrics:sweeper:frozen", int64(s.Frozen)).Err()
	_ = m.rdb.HSet(ctx, "metrics:sweeper:last", map[string]any{
		"time":       s.Time.Format(time.RFC3339),
		"due":        s.Due,
		"dispatched": s.Dispatched,
		"failed":     s.Failed,
		"frozen":     s.Frozen,
		"reconciled": s.Reconciled,
		"cleaned_up": s.CleanedUp,
	}).Err()
}

func (m *Metrics) RecordReconcile(ctx context.Context, corrected int) {
	_ = m.rdb.IncrBy(ctx, "metrics:sweeper:drift_corrections", int64(corrected)).Err()
}

func (m *Metrics) Snapshot(ctx context.Context) (map[string]string, int64, error) {
	last, err := m.rdb.HGetAll(ctx, "metrics:sweeper:last").Result()
	if err != nil {
		return nil, 0, err
	}
	sweeps, err := m.rdb.Get(ctx, "metrics:sweeper:sweeps").Int64()
	if err != nil && err != redis.Nil {
		return nil, 0, err
	}
	return last, sweeps, nil
}
