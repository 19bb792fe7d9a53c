// Command server starts the PitchPractice HTTP server.
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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchpractice/pitchpractice/internal/adapter/ai/openai"
	"github.com/pitchpractice/pitchpractice/internal/adapter/ai/stub"
	billingstripe "github.com/pitchpractice/pitchpractice/internal/adapter/billing/stripe"
	httpserver "github.com/pitchpractice/pitchpractice/internal/adapter/httpserver"
	"github.com/pitchpractice/pitchpractice/internal/adapter/observability"
	"github.com/pitchpractice/pitchpractice/internal/adapter/repo/postgres"
	"github.com/pitchpractice/pitchpractice/internal/adapter/storage/gcs"
	"github.com/pitchpractice/pitchpractice/internal/app"
	"github.com/pitchpractice/pitchpractice/internal/config"
	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, AI, run, and billing instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pools. The admin pool carries elevated credentials for
	// cross-tenant aggregates; it falls back to the main DSN in dev.
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	var adminPool *pgxpool.Pool
	if cfg.DBAdminURL != cfg.DBURL {
		adminPool, err = postgres.NewPool(ctx, cfg.DBAdminURL)
		if err != nil {
			slog.Error("admin db connect failed", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		adminPool = pool
	}

	// Repositories
	rubricRepo := postgres.NewRubricRepo(pool)
	runRepo := postgres.NewRunRepo(pool)
	chunkRepo := postgres.NewChunkRepo(pool)
	entRepo := postgres.NewEntitlementRepo(adminPool)

	// Object storage
	blobs, err := gcs.New(ctx, cfg.GCSBucket)
	if err != nil {
		slog.Error("gcs connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = blobs.Close() }()

	// AI client: the stub keeps local dev usable without an API key.
	var aicl domain.AIClient
	var aiChecker app.Checker
	if cfg.AIAPIKey == "" && !cfg.IsProd() {
		slog.Warn("AI_API_KEY not set; using stub AI client")
		st := stub.New()
		aicl, aiChecker = st, st
	} else {
		real := openai.New(cfg)
		aicl, aiChecker = real, real
	}

	// Payments
	checkout := billingstripe.New(cfg)

	// Usecases
	rubricSvc := usecase.NewRubricService(rubricRepo, aicl, cfg.MaxCompletionToks)
	runSvc := usecase.NewRunService(runRepo, rubricRepo, chunkRepo, blobs, aicl, cfg.SignedURLTTL)
	analyzeSvc := usecase.NewAnalyzeService(runRepo, rubricRepo, aicl, cfg.PromptTokenBudget, cfg.MaxCompletionToks)
	billingSvc := usecase.NewBillingService(entRepo, checkout)

	// Template rubrics (idempotent)
	if err := seedTemplates(ctx, cfg.TemplateSeedPath, rubricRepo); err != nil {
		slog.Warn("template seed skipped", slog.Any("error", err))
	}

	// Readiness checks
	dbCheck, storageCheck, aiCheck := app.BuildReadinessChecks(pool, blobs, aiChecker)

	// HTTP server
	srv := httpserver.NewServer(cfg, rubricSvc, runSvc, analyzeSvc, billingSvc, checkout, dbCheck, storageCheck, aiCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
