package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mc-bench/scoring-core/internal/identity"
	"github.com/mc-bench/scoring-core/internal/leaderboard"
	"github.com/mc-bench/scoring-core/internal/ratelimit"
	"github.com/mc-bench/scoring-core/internal/selector"
	"github.com/mc-bench/scoring-core/internal/storage"
	"github.com/mc-bench/scoring-core/internal/vote"
)

// Server is the comparison-and-rating HTTP API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	DB          *storage.DB
	Selector    *selector.Selector
	Recorder    *vote.Recorder
	Leaderboard *leaderboard.Service
	JWTMgr      *identity.JWTManager
	RateLimiter *ratelimit.Limiter
	Logger      *slog.Logger

	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	Version            string
	CORSAllowedOrigins []string
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Selector:    cfg.Selector,
		Recorder:    cfg.Recorder,
		Leaderboard: cfg.Leaderboard,
		DB:          cfg.DB,
		Logger:      cfg.Logger,
		Version:     cfg.Version,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("POST /comparison/batch", h.HandlePairBatch)
	mux.HandleFunc("POST /comparison/result", h.HandleVote)
	mux.HandleFunc("GET /leaderboard/{system}", h.HandleLeaderboard)

	var handler http.Handler = mux
	if cfg.RateLimiter != nil {
		rule := ratelimit.Rule{Prefix: "comparison", Limit: 60, Window: time.Minute}
		handler = ratelimit.MiddlewareWithRequestID(cfg.RateLimiter, rule, sessionOrIPKeyFunc, RequestIDFromContext)(handler)
	}
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * cfg.ReadTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
