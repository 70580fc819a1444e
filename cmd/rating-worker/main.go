// Command rating-worker consumes rating-run jobs from RabbitMQ and drains
// them through the RatingEngine, one rating system per consumer goroutine
// (spec §4.5, §6).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mc-bench/scoring-core/internal/config"
	"github.com/mc-bench/scoring-core/internal/gate"
	"github.com/mc-bench/scoring-core/internal/model"
	"github.com/mc-bench/scoring-core/internal/queue"
	"github.com/mc-bench/scoring-core/internal/rating"
	"github.com/mc-bench/scoring-core/internal/storage"
	"github.com/mc-bench/scoring-core/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("SCORING_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("scoring-worker starting", "version", version)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()
	meter := telemetry.Meter("scoring-worker")

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	amqpQueue, err := queue.Connect(cfg.AMQPURL, logger)
	if err != nil {
		return fmt.Errorf("amqp: %w", err)
	}
	defer func() { _ = amqpQueue.Close() }()

	ratingGate := gate.NewSingleFlightGate(redisClient, amqpQueue)

	engine, err := rating.NewEngine(db, ratingGate, logger, meter)
	if err != nil {
		return fmt.Errorf("rating engine: %w", err)
	}

	done := make(chan struct{}, 2)
	go consumeSystem(ctx, amqpQueue, engine, logger, model.RatingSystemElo, done)
	go consumeSystem(ctx, amqpQueue, engine, logger, model.RatingSystemGlicko, done)

	<-ctx.Done()
	slog.Info("scoring-worker shutting down")
	<-done
	<-done
	slog.Info("scoring-worker stopped")
	return nil
}

// consumeSystem drains the RabbitMQ queue for one rating system, running
// the engine to exhaustion on every job so that jobs coalesced by
// SingleFlightGate during a run are absorbed by this same pass rather than
// queuing a redundant follow-up.
func consumeSystem(ctx context.Context, q *queue.RabbitQueue, engine *rating.Engine, logger *slog.Logger, system model.RatingSystem, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	target := queueTargetFor(system)
	deliveries, err := q.Consume(ctx, target)
	if err != nil {
		logger.Error("worker: consume failed", "target", target, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			runToExhaustion(ctx, engine, logger, system)
			_ = d.Ack(false)
		}
	}
}

// runToExhaustion calls Engine.Run repeatedly until a batch returns zero
// processed comparisons, since one job may represent many comparisons
// coalesced within the gate's TTL window (spec §4.5, §6).
func runToExhaustion(ctx context.Context, engine *rating.Engine, logger *slog.Logger, system model.RatingSystem) {
	for {
		processed, err := engine.Run(ctx, system)
		if err != nil {
			logger.Error("rating engine run failed", "system", system, "error", err)
			return
		}
		if processed == 0 {
			return
		}
		logger.Info("rating engine batch processed", "system", system, "processed", processed)
	}
}

func queueTargetFor(system model.RatingSystem) string {
	if system == model.RatingSystemElo {
		return "elo_calculation"
	}
	return "glicko_calculation"
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
