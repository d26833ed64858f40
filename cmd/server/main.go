// Campaign co-pilot generation pipeline server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/api"
	"github.com/copilotlabs/campaign-copilot/internal/config"
	"github.com/copilotlabs/campaign-copilot/internal/domain"
	"github.com/copilotlabs/campaign-copilot/internal/generation"
	"github.com/copilotlabs/campaign-copilot/internal/learning"
	"github.com/copilotlabs/campaign-copilot/internal/middleware"
	"github.com/copilotlabs/campaign-copilot/internal/pipeline"
	"github.com/copilotlabs/campaign-copilot/internal/ratelimit"
	"github.com/copilotlabs/campaign-copilot/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "provider", cfg.Generation.Provider, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Generation client: real provider when configured, deterministic mock
	// otherwise so the pipeline runs end-to-end without credentials.
	var genClient generation.Client
	switch cfg.Generation.Provider {
	case "openai":
		genClient, err = generation.NewOpenAIClient(generation.Settings{
			Model:          cfg.Generation.Model,
			APIKey:         cfg.Generation.APIKey,
			BaseURL:        cfg.Generation.BaseURL,
			RequestTimeout: cfg.Generation.RequestTimeout,
		})
		if err != nil {
			slog.Error("Failed to initialize generation client", "error", err)
			os.Exit(1)
		}
	default:
		genClient = generation.MockClient{}
		slog.Info("Using mock generation client")
	}

	// Learning layer.
	patterns := learning.NewPatternStore(repo)
	if err := patterns.Seed(context.Background()); err != nil {
		slog.Error("Failed to seed baseline patterns", "error", err)
		os.Exit(1)
	}
	recorder := learning.NewRecorder(repo, patterns, logger)
	defer recorder.Close()

	// The limiter instance is owned here and passed by reference; its
	// per-category state is shared across every session and stage agent.
	limiter := ratelimit.New()
	limitCfg := ratelimit.Config{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimit.Window,
		RetryAfter:  cfg.RateLimit.RetryAfter,
	}

	agentCfg := pipeline.AgentConfig{
		MaxRetries:   cfg.Agent.MaxRetries,
		RetryBackoff: cfg.Agent.RetryBackoff,
		PatternLimit: cfg.Agent.PatternLimit,
		RateLimit:    limitCfg,
	}
	var agents []*pipeline.StageAgent
	for _, stage := range domain.StageOrder() {
		agents = append(agents, pipeline.NewStageAgent(stage, genClient, patterns, limiter, agentCfg, logger))
	}

	orch, err := pipeline.NewOrchestrator(repo, agents, logger)
	if err != nil {
		slog.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(allowedOrigins))

	api.NewCampaignHandler(orch).RegisterRoutes(r)
	api.NewFeedbackHandler(recorder).RegisterRoutes(r)
	api.NewLimitHandler(limiter, limitCfg).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
		// Stage runs hold the connection through the generation call, so
		// the write timeout must exceed the per-request generation timeout
		// plus the retry budget.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
