package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesops_backend/internal/copywriter"
	"salesops_backend/internal/crm"
	"salesops_backend/internal/events"
	"salesops_backend/internal/freight"
	apphttp "salesops_backend/internal/http"
	"salesops_backend/internal/http/router"
	"salesops_backend/internal/notification"
	"salesops_backend/internal/orders"
	"salesops_backend/internal/saga"
	"salesops_backend/internal/scheduler"
	"salesops_backend/internal/storage"
	"salesops_backend/platform/config"
	"salesops_backend/platform/db"
	"salesops_backend/platform/locker"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const quoteLockTTL = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// External System Clients
	// ========================================================================

	crmClient := crm.NewClient(cfg)
	ordersClient := orders.NewClient(cfg)
	freightClient := freight.NewClient(cfg)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	sagaModule := saga.NewModule(crmClient, ordersClient, freightClient, val, log)
	sagaModule.SetEventBus(eventBus)
	sagaModule.SetRunStore(pool)

	if cfg.GetGenAIAPIKey() != "" {
		gen, err := copywriter.NewGenerator(ctx, cfg)
		if err != nil {
			log.Error("failed to initialize copy generator", "error", err)
			panic("failed to initialize copy generator: " + err.Error())
		}
		sagaModule.SetCopywriter(gen)
	} else {
		log.Warn("GENAI_API_KEY not configured; marketing copy generation disabled")
	}

	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure schematic bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucketExists(ctx, cfg.GetSchematicBucket())
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetSchematicBucket())
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		sagaModule.SetAssetStore(storageSvc, cfg.GetSchematicBucket())
	} else {
		log.Warn("MinIO not configured; schematic assets disabled")
	}

	if cfg.GetRedisURL() != "" {
		quoteLocker, err := locker.New(cfg, quoteLockTTL)
		if err != nil {
			log.Error("failed to initialize quote locker", "error", err)
			panic("failed to initialize quote locker: " + err.Error())
		}
		defer quoteLocker.Close()
		sagaModule.SetLocker(quoteLocker)

		invalidator, err := notification.NewInvalidator(cfg, log)
		if err != nil {
			log.Error("failed to initialize view cache invalidator", "error", err)
			panic("failed to initialize view cache invalidator: " + err.Error())
		}
		defer invalidator.Close()
		invalidator.Register(eventBus)

		cleanupClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		defer cleanupClient.Close()
		runCleanup := scheduler.NewRunCleanup(cleanupClient, log, cfg.GetRunCleanupInterval(), cfg.GetRunRetention())
		go runCleanup.Run(ctx)
	} else {
		log.Warn("REDIS_URL not configured; quote locking, cache invalidation and run cleanup disabled")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			sagaModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s: %w", name, lastErr)
}
