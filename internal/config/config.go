package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPPort    string
	PostgresDSN string
	RedisURL    string

	SchedulerAPIURL   string
	SchedulerAPIToken string
	RunnerAPIURL      string
	RunnerAPIToken    string
	BillingAPIURL     string
	BillingAPIToken   string
	CallbackToken     string

	Platforms        []string
	ScheduleType     string
	MaxBatchCapacity int
	FillThreshold    float64
	FallbackHours    int

	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	RebalanceInterval time.Duration
	RetentionDays     int
}

func Load() AppConfig {
	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=reviewsync dbname=reviewsync sslmode=disable"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	platformsEnv := os.Getenv("PLATFORMS")
	var platforms []string
	if platformsEnv == "" {
		platforms = []string{"google_reviews", "facebook_reviews", "tripadvisor_reviews", "booking_reviews"}
	} else {
		for _, p := range strings.Split(platformsEnv, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				platforms = append(platforms, trimmed)
			}
		}
	}

	scheduleType := os.Getenv("SCHEDULE_TYPE")
	if scheduleType == "" {
		scheduleType = "reviews"
	}

	return AppConfig{
		HTTPPort:    port,
		PostgresDSN: dsn,
		RedisURL:    redisURL,

		SchedulerAPIURL:   os.Getenv("SCHEDULER_API_URL"),
		SchedulerAPIToken: os.Getenv("SCHEDULER_API_TOKEN"),
		RunnerAPIURL:      os.Getenv("RUNNER_API_URL"),
		RunnerAPIToken:    os.Getenv("RUNNER_API_TOKEN"),
		BillingAPIURL:     os.Getenv("BILLING_API_URL"),
		BillingAPIToken:   os.Getenv("BILLING_API_TOKEN"),
		CallbackToken:     os.Getenv("CALLBACK_TOKEN"),

		Platforms:        platforms,
		ScheduleType:     scheduleType,
		MaxBatchCapacity: envInt("MAX_BATCH_CAPACITY", 50),
		FillThreshold:    envFloat("CONSOLIDATE_FILL_THRESHOLD", 0.5),
		FallbackHours:    envInt("DEFAULT_INTERVAL_HOURS", 24),

		SweepInterval:     envDuration("RETRY_SWEEP_INTERVAL", 5*time.Minute),
		ReconcileInterval: envDuration("RECONCILE_INTERVAL", 15*time.Minute),
		RebalanceInterval: envDuration("REBALANCE_INTERVAL", time.Hour),
		RetentionDays:     envInt("RETRY_RETENTION_DAYS", 30),
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 && parsed <= 1 {
			return parsed
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
