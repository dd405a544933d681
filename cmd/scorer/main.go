package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/credit-features-bfa-go/internal/config"
	"github.com/boddenberg/credit-features-bfa-go/internal/handler"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/cache"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/client"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/model"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/observability"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/sqlstore"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/credit-features-bfa-go/internal/port"
	"github.com/boddenberg/credit-features-bfa-go/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("timezone", cfg.TimezoneName),
		zap.String("model_backend", cfg.ModelBackend),
		zap.String("snapshot_backend", cfg.SnapshotBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("prediction_cache_ttl", cfg.PredictionCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("service_token_required", cfg.APIJWTSecret != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(context.Background(), "credit-feature-scorer", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Scorer ---
	var scorer port.Scorer
	switch cfg.ModelBackend {
	case config.ModelHTTP:
		logger.Info("using remote model", zap.String("model_api_url", cfg.ModelAPIURL))
		scorer = client.NewModelClient(httpClient, cfg.ModelAPIURL, resilience.NewCircuitBreaker("model-api"), resilienceCfg)
	default:
		card, err := model.Load(cfg.ModelPath)
		if err != nil {
			logger.Fatal("failed to load scorecard", zap.String("path", cfg.ModelPath), zap.Error(err))
		}
		logger.Info("using local scorecard", zap.String("model", card.Name()))
		scorer = card
	}

	// --- Snapshot source ---
	var (
		accounts     port.AccountFetcher
		transactions port.TransactionsFetcher
		source       port.SnapshotSource
		writer       port.SnapshotWriter
	)

	switch cfg.SnapshotBackend {
	case config.SnapshotHTTP:
		logger.Info("using HTTP API clients as snapshot source",
			zap.String("account_api_url", cfg.AccountAPIURL),
			zap.String("transactions_api_url", cfg.TransactionsAPIURL),
		)
		cb := resilience.NewCircuitBreaker("snapshot-apis")
		accounts = client.NewAccountClient(httpClient, cfg.AccountAPIURL, cb, resilienceCfg)
		transactions = client.NewTransactionsClient(httpClient, cfg.TransactionsAPIURL, cb, resilienceCfg)

	case config.SnapshotSupabase:
		logger.Info("using Supabase as snapshot source", zap.String("supabase_url", cfg.SupabaseURL))
		source = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)

	case config.SnapshotSQL:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.Fatal("failed to open snapshot store", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
		}
		defer store.Close()
		logger.Info("using SQL snapshot store", zap.String("driver", cfg.DatabaseDriver))
		source, writer = store, store

	default:
		logger.Warn("no snapshot source configured, customer scoring unavailable")
	}
	if source != nil {
		accounts, transactions = source, source
	}

	// --- Cache ---
	var predictionCache port.Cache[string]
	if cfg.PredictionCacheTTL > 0 {
		c := cache.New[string](cfg.PredictionCacheTTL)
		defer c.Close()
		predictionCache = c
	}

	// --- Services ---
	scoringSvc := service.NewScoring(
		scorer,
		accounts,
		transactions,
		writer,
		predictionCache,
		metrics,
		logger,
		service.Options{
			Location:       cfg.Location,
			MaxConcurrency: cfg.MaxConcurrency,
			Backend:        cfg.SnapshotBackend,
		},
	)

	// --- Router ---
	router := handler.NewRouter(scoringSvc, metrics, logger, handler.Options{
		JWTSecret:      cfg.APIJWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
