package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/api"
	"github.com/depointe/govforecast/internal/cache"
	"github.com/depointe/govforecast/internal/db"
	"github.com/depointe/govforecast/internal/forecast"
	"github.com/depointe/govforecast/internal/scan"
	"github.com/depointe/govforecast/internal/scheduler"
	"github.com/depointe/govforecast/internal/usaspending"
)

func main() {
	_ = godotenv.Load()

	logger := newLogger()
	ctx := context.Background()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	pool, err := db.Connect(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("Migration failed")
	}
	store := db.NewStore(pool)

	registry, err := scan.LoadRegistry(os.Getenv("SOURCES_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load source registry")
	}

	scanner := scan.NewScanner(logger)
	aggregator := forecast.NewAggregator(registry, scanner, store, logger)

	var reportCache api.ReportCache
	var redisCache *cache.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisCache, err = cache.New(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, running without report cache")
		} else {
			defer redisCache.Close()
			reportCache = redisCache
		}
	}

	awardClient := usaspending.NewClient(logger)
	var provider forecast.AwardProvider = awardClient
	if redisCache != nil {
		provider = usaspending.NewCachedProvider(awardClient, redisCache, 6*time.Hour, logger)
	}
	analyzer := forecast.NewAnalyzer(provider, store, logger)

	if spec := os.Getenv("SCAN_CRON"); spec != "" {
		sched := scheduler.New(logger)
		job := &scheduler.ForecastJob{
			Aggregator: aggregator,
			Analyzer:   analyzer,
			ScanType:   os.Getenv("SCAN_TYPE"),
			Log:        logger.With().Str("component", "forecast-job").Logger(),
		}
		if err := sched.AddJob(spec, job); err != nil {
			logger.Fatal().Err(err).Str("schedule", spec).Msg("Invalid SCAN_CRON")
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := api.NewServer(scanner, aggregator, analyzer, store, reportCache, logger)
	logger.Info().Str("port", port).Msg("Server starting")
	if err := srv.Start(port); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped")
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if os.Getenv("LOG_PRETTY") == "true" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}
