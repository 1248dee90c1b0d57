// Package main is the entrypoint for the cellseek API server.
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

	"github.com/bwmarrin/snowflake"

	"github.com/tyvekbio/cellseek/internal/api"
	"github.com/tyvekbio/cellseek/internal/api/handler"
	mw "github.com/tyvekbio/cellseek/internal/api/middleware"
	"github.com/tyvekbio/cellseek/internal/api/response"
	"github.com/tyvekbio/cellseek/internal/cache"
	"github.com/tyvekbio/cellseek/internal/config"
	"github.com/tyvekbio/cellseek/internal/embed"
	"github.com/tyvekbio/cellseek/internal/engine"
	"github.com/tyvekbio/cellseek/internal/job"
	"github.com/tyvekbio/cellseek/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "engine", cfg.Engine.BaseURL, "env", cfg.Server.Env)

	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("ensure storage dirs: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Embedding engine client. A cold engine is not fatal: jobs submitted
	// before it comes up fail individually.
	eng := engine.NewHTTPClient(cfg.Engine.BaseURL, cfg.Engine.Timeout)
	if err := eng.Ready(ctx); err != nil {
		slog.Warn("engine not ready, continuing", "error", err)
	} else {
		slog.Info("engine ready")
	}

	// 6. Vocabulary for the transformer backend. Missing model files only
	// disable model 1; similarity jobs keep working.
	vocab, err := embed.LoadVocabulary(cfg.Storage.ModelDir)
	if err != nil {
		slog.Warn("vocabulary unavailable, transformer jobs disabled", "error", err)
		vocab = nil
	}

	// 7. Create store and id generator
	pgStore := store.NewPostgresStore(pool)

	node, err := snowflake.NewNode(cfg.Server.SnowflakeID)
	if err != nil {
		return fmt.Errorf("create snowflake node: %w", err)
	}

	// 8. Job service running the embed+search pipeline
	jobSvc := job.NewService(pgStore, redisCache, eng, vocab, *cfg, node)

	// 9. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		SubmitJobHandler:  handler.NewSubmitJobHandler(jobSvc),
		GetJobHandler:     handler.NewGetJobHandler(pgStore),
		ListJobsHandler:   handler.NewListJobsHandler(pgStore),
		JobResultHandler:  handler.NewJobResultHandler(jobSvc),
		ModifyJobHandler:  handler.NewModifyJobHandler(pgStore),
		DeleteJobHandler:  handler.NewDeleteJobHandler(pgStore),
		DeleteJobsHandler: handler.NewDeleteJobsHandler(pgStore),

		UploadFileHandler: handler.NewUploadFileHandler(pgStore, node, cfg.Storage.UploadDir),
		GetFileHandler:    handler.NewGetFileHandler(pgStore),
		ListFilesHandler:  handler.NewListFilesHandler(pgStore),
		DeleteFileHandler: handler.NewDeleteFileHandler(pgStore, cfg.Storage.UploadDir),

		CreateSampleHandler: handler.NewCreateSampleHandler(pgStore, node),
		GetSampleHandler:    handler.NewGetSampleHandler(pgStore),
		ListSamplesHandler:  handler.NewListSamplesHandler(pgStore),

		GetCellHandler:   handler.NewGetCellMetadataHandler(pgStore),
		ListCellsHandler: handler.NewListCellMetadataHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
