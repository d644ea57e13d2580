package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"reviewsync/internal/batch"
	"reviewsync/internal/config"
	"reviewsync/internal/db"
	"reviewsync/internal/http/handler"
	"reviewsync/internal/interval"
	"reviewsync/internal/locks"
	"reviewsync/internal/orchestrator"
	"reviewsync/internal/provider/httpapi"
	"reviewsync/internal/retryqueue"
	storepg "reviewsync/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "api").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Init(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres init failed")
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("ensure schema failed")
	}

	rdb, err := locks.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	defer rdb.Close()

	stores := storepg.New(pool)
	scheduler := httpapi.NewScheduler(cfg.SchedulerAPIURL, cfg.SchedulerAPIToken)
	runner := httpapi.NewRunner(cfg.RunnerAPIURL, cfg.RunnerAPIToken)
	billing := httpapi.NewBilling(cfg.BillingAPIURL, cfg.BillingAPIToken)

	resolver := interval.NewResolver(stores.Overrides, billing, cfg.Platforms, cfg.FallbackHours, log)
	bm := batch.NewManager(stores.Schedules, stores.Mappings, scheduler, cfg.MaxBatchCapacity, cfg.FillThreshold, log)
	queue := retryqueue.New(stores.Retries, runner, log)
	orc := orchestrator.New(stores, bm, resolver, scheduler, runner, queue, cfg.ScheduleType, log)

	engine := gin.Default()

	healthH := handler.NewHealthHandler(pool, rdb)
	businessH := handler.NewBusinessHandler(orc)
	scheduleH := handler.NewScheduleHandler(orc, bm)
	teamH := handler.NewTeamHandler(orc, resolver)
	retryH := handler.NewRetryHandler(orc, queue)
	callbackH := handler.NewCallbackHandler(orc, cfg.CallbackToken)
	metricsH := handler.NewMetricsHandler(locks.NewMetrics(rdb), locks.NewManager(rdb))

	engine.GET("/healthz", healthH.Healthz)
	engine.GET("/readyz", healthH.Readyz)
	engine.POST("/callbacks/runs", callbackH.RunResult)

	api := engine.Group("/api/v1")
	{
		api.POST("/businesses", businessH.AddBusiness)
		api.POST("/businesses/move", businessH.MoveBusiness)
		api.DELETE("/businesses/:businessId", businessH.RemoveBusiness)

		api.GET("/schedules", scheduleH.ListSchedules)
		api.GET("/schedules/:id/businesses", scheduleH.ListBusinesses)
		api.POST("/schedules/:id/run", scheduleH.TriggerRun)
		api.GET("/health", scheduleH.BatchHealth)

		api.GET("/teams/:teamId/assignments", teamH.ListAssignments)
		api.PUT("/teams/:teamId/intervals/:platform", teamH.SetInterval)
		api.DELETE("/teams/:teamId/intervals/:platform", teamH.RemoveInterval)

		api.POST("/retries/:businessId/force", retryH.ForceRetry)
		api.GET("/retries", retryH.ListFrozen)

		api.GET("/metrics/sweeper", metricsH.GetSweeperMetrics)
	}

	log.Info().Str("port", cfg.HTTPPort).Msg("starting api server")
	if err := engine.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
