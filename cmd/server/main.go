package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/lars-symptom-tracker/internal/api"
	"github.com/lars-symptom-tracker/internal/assistant"
	"github.com/lars-symptom-tracker/internal/config"
	"github.com/lars-symptom-tracker/internal/database"
	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/entries"
	"github.com/lars-symptom-tracker/internal/logging"
	"github.com/lars-symptom-tracker/internal/repository"
	"github.com/lars-symptom-tracker/internal/service"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	healthChecks := map[string]domain.HealthChecker{}

	store, closeStore, err := openStore(ctx, cfg, logger, healthChecks)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := service.NewScoreEngine(logger, nil)
	if err != nil {
		return fmt.Errorf("failed to create score engine: %w", err)
	}

	var helper assistant.Assistant
	if cfg.Assistant.Enabled() {
		client, err := assistant.NewHTTPClient(cfg.Assistant, logger)
		if err != nil {
			return fmt.Errorf("failed to create assistant client: %w", err)
		}
		helper = client
	} else {
		logger.Info("No assistant configured, assistant routes will answer 503")
	}

	server, err := api.NewServer(api.Options{
		Config:       cfg,
		Engine:       engine,
		Entries:      service.NewEntryService(store, engine, logger),
		Assistant:    helper,
		HealthChecks: healthChecks,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"storage": cfg.Storage.Driver,
		"cache":   cfg.Cache.Backend,
	}).Info("Starting LARS symptom tracker API")

	return server.Start(ctx)
}

// openStore builds the configured entry store and its read cache.
func openStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, checks map[string]domain.HealthChecker) (entries.Store, func(), error) {
	var store entries.Store
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage.Driver {
	case domain.StoragePostgres:
		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, db.Close)
		checks["database"] = db

		if cfg.Database.MigrateOnStart {
			if err := migrate(ctx, cfg.Database, logger); err != nil {
				closeAll()
				return nil, nil, err
			}
		}
		store = repository.NewEntryRepository(db.Pool, logger)

	default:
		sqlite, err := entries.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open entry store: %w", err)
		}
		store = sqlite
	}

	if !cfg.Cache.Enabled {
		if hc, ok := store.(domain.HealthChecker); ok {
			checks["entry_store"] = hc
		}
		closers = append(closers, func() { store.Close() })
		return store, closeAll, nil
	}

	cacheConfig := entries.CacheConfig{
		MaxUsers: cfg.Cache.MaxItems,
		TTL:      cfg.Cache.TTL,
	}
	if cfg.Cache.Backend == domain.CacheRedis {
		redisCache, err := entries.NewRedisCache(cfg.Cache)
		if err != nil {
			store.Close()
			closeAll()
			return nil, nil, fmt.Errorf("failed to create Redis entry cache: %w", err)
		}
		cacheConfig.Redis = redisCache
	}

	cached, err := entries.NewCachedStore(store, cacheConfig, logger)
	if err != nil {
		if cacheConfig.Redis != nil {
			cacheConfig.Redis.Close()
		}
		store.Close()
		closeAll()
		return nil, nil, fmt.Errorf("failed to create entry cache: %w", err)
	}
	checks["entry_store"] = cached
	closers = append(closers, func() {
		if err := cached.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close entry store")
		}
	})

	return cached, closeAll, nil
}

func migrate(ctx context.Context, config domain.DatabaseConfig, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(database.URL(config), logger)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
