package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/quorum-engine/internal/alert"
	"github.com/af-corp/quorum-engine/internal/auth"
	"github.com/af-corp/quorum-engine/internal/availability"
	"github.com/af-corp/quorum-engine/internal/band"
	"github.com/af-corp/quorum-engine/internal/catalog"
	"github.com/af-corp/quorum-engine/internal/config"
	"github.com/af-corp/quorum-engine/internal/consensus"
	"github.com/af-corp/quorum-engine/internal/failover"
	"github.com/af-corp/quorum-engine/internal/httpapi"
	"github.com/af-corp/quorum-engine/internal/ledger"
	"github.com/af-corp/quorum-engine/internal/modelclient"
	"github.com/af-corp/quorum-engine/internal/policy"
	"github.com/af-corp/quorum-engine/internal/ratelimit"
	"github.com/af-corp/quorum-engine/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(bootLogger)

	// Load configuration
	loader := config.NewLoader(*configDir, bootLogger)
	if err := loader.Load(); err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		bootLogger.Warn("failed to start config watcher", "error", err)
	}
	cfg := loader.Config()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Telemetry.LogLevel),
	}))
	slog.SetDefault(logger)

	// Load the model catalog and band criteria
	catalogSrc := catalog.NewSource(cfg.Catalog.Path, logger)
	if err := catalogSrc.Load(); err != nil {
		logger.Error("failed to load model catalog", "error", err)
		os.Exit(1)
	}
	if err := catalogSrc.Watch(); err != nil {
		logger.Warn("failed to start catalog watcher", "error", err)
	}

	criteriaSrc := band.NewCriteriaSource(cfg.Catalog.CriteriaPath, logger)
	if err := criteriaSrc.Load(); err != nil {
		logger.Error("failed to load band criteria", "error", err)
		os.Exit(1)
	}
	if err := criteriaSrc.Watch(); err != nil {
		logger.Warn("failed to start criteria watcher", "error", err)
	}

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (engine will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (falling back to in-process caches)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// Availability cache: shared via Redis when present, per-process otherwise
	var availCache availability.Cache
	if rdb != nil {
		availCache = availability.NewRedisCache(rdb, cfg.Failover.AvailabilityTTL)
	} else {
		availCache = availability.NewMemoryCache(cfg.Failover.AvailabilityTTL)
	}

	// Build provider clients
	prices := func(modelID string) (float64, float64, bool) {
		rec, ok := catalogSrc.Snapshot().Get(modelID)
		if !ok {
			return 0, 0, false
		}
		return rec.InputCostPerMillion, rec.OutputCostPerMillion, true
	}
	registry := modelclient.BuildFromConfig(loader.Providers(), prices)
	loader.OnReload(func() {
		registry.ReplaceFrom(modelclient.BuildFromConfig(loader.Providers(), prices))
		logger.Info("provider registry reloaded")
	})
	mux := modelclient.NewMux(registry)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	var alerts alert.Sink
	if cfg.Failover.AlertWebhookURL != "" {
		alerts = alert.NewWebhookSink(cfg.Failover.AlertWebhookURL, logger)
	} else {
		alerts = &alert.LogSink{Logger: logger}
	}
	alerts = &alert.MeteredSink{Next: alerts, Meter: metrics}

	engine := failover.New(availCache, mux, alerts,
		func(modelID string) (catalog.ModelRecord, bool) {
			return catalogSrc.Snapshot().Get(modelID)
		},
		failover.PolicyFromConfig(cfg.Failover), logger)

	sink := ledger.NewStore(dbPool, logger)
	orch := consensus.NewOrchestrator(
		catalogSrc.Snapshot, criteriaSrc.Criteria,
		engine, metrics, sink, consensus.OptionsFromConfig(cfg), logger)

	// Admission policy (fail closed when enabled)
	gate := policy.NewGate(func() config.PolicyConfig { return loader.Config().Policy })
	if cfg.Policy.Enabled {
		if err := gate.Load(); err != nil {
			logger.Error("failed to load admission policies", "error", err)
			os.Exit(1)
		}
	}

	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	limiter := ratelimit.NewLimiter(rdb, logger)
	handler := httpapi.NewHandler(orch, gate, catalogSrc.Snapshot, criteriaSrc.Criteria, logger)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/quorum/v1/health", healthHandler)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Use(ratelimit.Middleware(limiter))
		r.Post("/v1/consensus", handler.HandleConsensus)
		r.Get("/v1/models", handler.HandleModels)
	})

	// Metrics listener
	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listener starting", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Warn("metrics listener stopped", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("quorum engine starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("quorum engine stopped")
}

func logLevel(s string) slog.Level {
	switch s {
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

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
