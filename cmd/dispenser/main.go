// Package main provides the entry point for the dispenser service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/algorithm"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/command"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/config"
	dserrors "github.com/Dominus-Proxius/Dominum-Dispenser/internal/errors"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/handler"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/health"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/metrics"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/server"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/service"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting dispenser",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("reset_period", cfg.Quota.ResetPeriod))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// A shared client serves both the redis store and the idempotency store
	var redisClient *redis.Client
	if cfg.Storage.Backend == config.BackendRedis || (cfg.Idempotency.Enabled && cfg.Idempotency.Backend == config.BackendRedis) {
		redisClient, err = store.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		logger.Info("Redis client initialized",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port))
	}

	dataStore, err := openStore(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer dataStore.Close()
	logger.Info("Store initialized", zap.String("backend", cfg.Storage.Backend))

	authCache := store.NewInMemoryCache(cfg.Auth.CacheMaxSize, logger)
	defer authCache.Close()

	var (
		idempotencyService *service.IdempotencyService
		// untyped nil keeps the health check from pinging a disabled store
		idempotencyPinger health.Pinger
	)
	if cfg.Idempotency.Enabled {
		var idempotencyStore store.IdempotencyStore
		if cfg.Idempotency.Backend == config.BackendRedis {
			idempotencyStore = store.NewRedisIdempotencyStore(redisClient, cfg.Redis.KeyPrefix, logger)
		} else {
			idempotencyStore = store.NewCacheIdempotencyStore(store.NewInMemoryCache(cfg.Auth.CacheMaxSize, logger))
		}
		defer idempotencyStore.Close()
		idempotencyService = service.NewIdempotencyService(idempotencyStore, cfg.Idempotency.TTL, logger)
		idempotencyPinger = idempotencyStore
		logger.Info("Idempotency store initialized", zap.String("backend", cfg.Idempotency.Backend))
	}

	// Services
	tiers := algorithm.NewTierResolver(cfg.Quota.Tiers)
	selector := algorithm.NewSelector(model.ReportThreshold, nil)
	ledger := service.NewUsageLedger(dataStore, logger)
	items := service.NewItemService(dataStore, selector, cfg.Items.MaxPayloadLength, m, logger)
	gate := service.NewAuthGate(dataStore, authCache, cfg.Auth.CacheTTL, m, logger)
	engine := service.NewEngine(tiers, ledger, items, gate, idempotencyService, m, logger)

	if cfg.Items.SeedFile != "" {
		payloads, err := config.LoadSeedFile(cfg.Items.SeedFile)
		if err != nil {
			logger.Fatal("Failed to read seed file", zap.Error(err))
		}
		n, err := items.Seed(ctx, payloads)
		if err != nil {
			logger.Fatal("Failed to seed item pool", zap.Error(err))
		}
		logger.Info("Item pool seeded",
			zap.String("file", cfg.Items.SeedFile),
			zap.Int("items", n))
	}

	scheduler := service.NewResetScheduler(ledger, cfg.Quota.ResetPeriod, cfg.Quota.ResetConcurrency, m, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logger.Info("All services initialized")

	// Servers
	errorHandler := dserrors.NewHandler(logger)
	handlers := handler.NewHandlers(engine, command.NewExecutor(engine, logger), errorHandler, logger)
	healthChecker := health.NewHealthChecker(dataStore, idempotencyPinger, logger)

	httpServer := server.NewServer(cfg, handlers, healthChecker, errorHandler, m, logger)
	httpServer.SetupRoutes()

	healthServer := health.NewHealthServer(healthChecker, cfg.Health.Port, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)

	g.Go(func() error {
		logger.Info("Starting health check server", zap.String("address", healthServer.Addr))
		return listen(healthServer)
	})

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("Starting metrics server", zap.String("address", metricsServer.Addr))
			return listen(metricsServer)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		errs = append(errs, httpServer.Shutdown(shutdownCtx))
		errs = append(errs, healthServer.Shutdown(shutdownCtx))
		if metricsServer != nil {
			errs = append(errs, metricsServer.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", zap.Error(err))
	}

	logger.Info("Dispenser shutdown complete")
}

// openStore builds the configured persistence backend
func openStore(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (store.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(logger), nil

	case config.BackendSQLite:
		db, err := store.OpenSQLite(cfg.SQLite.Path, cfg.SQLite.BusyTimeout)
		if err != nil {
			return nil, err
		}
		s, err := store.NewSQLiteStore(db, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil

	case config.BackendPostgres:
		s, err := store.NewPostgresStore(
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Database,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
			logger,
		)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendRedis:
		return store.NewRedisStore(redisClient, cfg.Redis.KeyPrefix, logger), nil
	}

	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", srv.Addr, err)
	}
	return nil
}

// initLogger builds the zap logger from the logging section
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	return zcfg.Build()
}
