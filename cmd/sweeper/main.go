package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reviewsync/internal/batch"
	"reviewsync/internal/config"
	"reviewsync/internal/db"
	"reviewsync/internal/locks"
	"reviewsync/internal/provider/httpapi"
	"reviewsync/internal/retryqueue"
	"reviewsync/internal/store"
	storepg "reviewsync/internal/store/postgres"
)

const (
	sweepLockTTL      = 2 * time.Minute
	heartbeatTTL      = 90 * time.Second
	heartbeatInterval = 30 * time.Second
	cleanupInterval   = 24 * time.Hour
)

type sweeper struct {
	stores     store.Stores
	queue      *retryqueue.Queue
	bm         *batch.Manager
	lm         *locks.Manager
	metrics    *locks.Metrics
	instanceID string
	retention  time.Duration
	log        zerolog.Logger
}

func main() {
	cfg := config.Load()
	instanceID := uuid.New().String()
	log := zerolog.New(os.Stderr).With().Timestamp().
		Str("service", "sweeper").Str("instance_id", instanceID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.Init(initCtx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres init failed")
	}
	defer pool.Close()

	if err := db.EnsureSchema(initCtx, pool); err != nil {
		log.Fatal().Err(err).Msg("ensure schema failed")
	}

	rdb, err := locks.Connect(initCtx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	defer rdb.Close()

	stores := storepg.New(pool)
	runner := httpapi.NewRunner(cfg.RunnerAPIURL, cfg.RunnerAPIToken)
	scheduler := httpapi.NewScheduler(cfg.SchedulerAPIURL, cfg.SchedulerAPIToken)

	s := &sweeper{
		stores:     stores,
		queue:      retryqueue.New(stores.Retries, runner, log),
		bm:         batch.NewManager(stores.Schedules, stores.Mappings, scheduler, cfg.MaxBatchCapacity, cfg.FillThreshold, log),
		lm:         locks.NewManager(rdb),
		metrics:    locks.NewMetrics(rdb),
		instanceID: instanceID,
		retention:  time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		log:        log,
	}

	go s.lm.StartHeartbeat(ctx, instanceID, heartbeatTTL, heartbeatInterval)
	go s.runLoop(ctx, cfg.ReconcileInterval, s.reconcile)
	go s.runLoop(ctx, cfg.RebalanceInterval, s.rebalance)
	go s.runLoop(ctx, cleanupInterval, s.cleanup)

	log.Info().Dur("sweep_interval", cfg.SweepInterval).Msg("sweeper started")
	s.runLoop(ctx, cfg.SweepInterval, s.sweep)
	log.Info().Msg("sweeper stopped")
}

func (s *sweeper) runLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	tkr := time.NewTicker(interval)
	defer tkr.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tkr.C:
			fn(ctx)
		}
	}
}

// sweep dispatches due retries under the shared sweep lock, so several
// sweeper instances never double-dispatch the same entries.
func (s *sweeper) sweep(ctx context.Context) {
	ok, err := s.lm.Acquire(ctx, locks.SweepLockKey(), s.instanceID, sweepLockTTL)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep lock acquire failed")
		return
	}
	if !ok {
		s.log.Debug().Msg("sweep lock held elsewhere, skipping")
		return
	}
	defer func() {
		if _, err := s.lm.Release(ctx, locks.SweepLockKey(), s.instanceID); err != nil {
			s.log.Error().Err(err).Msg("sweep lock release failed")
		}
	}()

	now := time.Now()
	stats, err := s.queue.ProcessQueue(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("retry sweep failed")
		return
	}
	s.metrics.RecordSweep(ctx, locks.SweepSummary{
		Time:       now,
		Due:        stats.Due,
		Dispatched: stats.Dispatched,
		Failed:     stats.Failed,
		Frozen:     stats.Frozen,
	})
	if stats.Due > 0 {
		s.log.Info().Int("due", stats.Due).Int("dispatched", stats.Dispatched).
			Int("failed", stats.Failed).Int("frozen", stats.Frozen).Msg("retry sweep complete")
	}
}

// reconcile recounts each schedule's mappings and corrects drifted counters.
func (s *sweeper) reconcile(ctx context.Context) {
	drifts, err := s.stores.Schedules.Reconcile(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("count reconciliation failed")
		return
	}
	for _, d := range drifts {
		s.log.Warn().Str("schedule_id", d.ScheduleID.String()).
			Int("cached", d.Cached).Int("actual", d.Actual).Msg("business count drift corrected")
	}
	s.metrics.RecordReconcile(ctx, len(drifts))
}

// rebalance walks every (platform, schedule_type, interval) key, splits any
// batch that drifted over capacity and consolidates underfilled ones. Each
// key is worked under its own lock so two sweepers never rebalance the same
// batches at once.
func (s *sweeper) rebalance(ctx context.Context) {
	all, err := s.stores.Schedules.ListAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("rebalance listing failed")
		return
	}

	type key struct {
		platform     string
		scheduleType string
		hours        int
	}
	seen := make(map[key]bool)
	for _, sch := range all {
		k := key{sch.Platform, sch.ScheduleType, sch.IntervalHours}
		if seen[k] {
			continue
		}
		seen[k] = true

		lockKey := locks.ConsolidateLockKey(k.platform, k.hours)
		ok, err := s.lm.Acquire(ctx, lockKey, s.instanceID, sweepLockTTL)
		if err != nil || !ok {
			continue
		}

		batches, err := s.stores.Schedules.ListByKey(ctx, k.platform, k.scheduleType, k.hours)
		if err == nil {
			for _, b := range batches {
				if _, serr := s.bm.SplitIfOverCapacity(ctx, b.ID); serr != nil {
					s.log.Error().Err(serr).Str("schedule_id", b.ID.String()).Msg("split failed")
				}
			}
			// Splits make provider calls per batch; push the TTL out again
			// before the consolidation pass.
			if _, rerr := s.lm.Renew(ctx, lockKey, s.instanceID, sweepLockTTL); rerr != nil {
				s.log.Error().Err(rerr).Msg("rebalance lock renew failed")
			}
			if _, cerr := s.bm.Consolidate(ctx, k.platform, k.scheduleType, k.hours); cerr != nil {
				s.log.Error().Err(cerr).Str("platform", k.platform).Int("interval_hours", k.hours).
					Msg("consolidation failed")
			}
		}

		if _, rerr := s.lm.Release(ctx, lockKey, s.instanceID); rerr != nil {
			s.log.Error().Err(rerr).Msg("rebalance lock release failed")
		}
	}
}

func (s *sweeper) cleanup(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	if _, err := s.queue.Cleanup(ctx, s.retention); err != nil {
		s.log.Error().Err(err).Msg("retry cleanup failed")
	}
}
