// Command scoring-api serves the comparison-and-rating HTTP API: pair
// selection, vote recording, and leaderboard reads.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mc-bench/scoring-core/internal/config"
	"github.com/mc-bench/scoring-core/internal/gate"
	"github.com/mc-bench/scoring-core/internal/identity"
	"github.com/mc-bench/scoring-core/internal/leaderboard"
	"github.com/mc-bench/scoring-core/internal/queue"
	"github.com/mc-bench/scoring-core/internal/ratelimit"
	"github.com/mc-bench/scoring-core/internal/selector"
	"github.com/mc-bench/scoring-core/internal/server"
	"github.com/mc-bench/scoring-core/internal/storage"
	"github.com/mc-bench/scoring-core/internal/telemetry"
	"github.com/mc-bench/scoring-core/internal/vote"
	"github.com/mc-bench/scoring-core/migrations"
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
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("scoring-api starting", "version", version, "port", cfg.Port, "selector_mode", cfg.SelectorMode)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

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

	tokens := gate.NewTokenStore(redisClient)
	ratingGate := gate.NewSingleFlightGate(redisClient, amqpQueue)

	jwtMgr, err := identity.NewJWTManager(cfg.JWTPublicKeyPath)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	var selectorMode selector.Mode
	if cfg.SelectorMode == config.SelectionModeUniform {
		selectorMode = selector.ModeUniform
	} else {
		selectorMode = selector.ModePriority
	}

	sel := selector.New(db, tokens, selectorMode)
	recorder := vote.New(db, tokens, ratingGate, logger)
	leaderboardSvc := leaderboard.New(db)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.New(redisClient, logger, false)
		logger.Info("rate limiting: redis sliding window", "per_min", cfg.RateLimitPerMin)
	} else {
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		DB:                 db,
		Selector:           sel,
		Recorder:           recorder,
		Leaderboard:        leaderboardSvc,
		JWTMgr:             jwtMgr,
		RateLimiter:        limiter,
		Logger:             logger,
		Port:               cfg.Port,
		ReadTimeout:        cfg.ReadTimeout,
		WriteTimeout:       cfg.WriteTimeout,
		Version:            version,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("scoring-api shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("scoring-api stopped")
	return nil
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
