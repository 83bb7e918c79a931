package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/portal-api/internal/config"
	"github.com/jwalitptl/portal-api/internal/repository/postgres"
	medicationService "github.com/jwalitptl/portal-api/internal/service/medication"
	"github.com/jwalitptl/portal-api/internal/service/notification"
	internalworker "github.com/jwalitptl/portal-api/internal/worker"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/messaging/redis"
	"github.com/jwalitptl/portal-api/pkg/metrics"
	"github.com/jwalitptl/portal-api/pkg/worker"
)

// Env overrides how the worker binary is deployed; everything else comes
// from the shared config file.
type Env struct {
	HealthPort         string        `envconfig:"HEALTH_PORT" default:"8081"`
	RedisRetryBackoff  time.Duration `envconfig:"REDIS_RETRY_BACKOFF" default:"100ms"`
	DisableMedication  bool          `envconfig:"DISABLE_MEDICATION_WORKER"`
	DisableOutbox      bool          `envconfig:"DISABLE_OUTBOX_WORKER"`
	OutboxCleanupOnRun bool          `envconfig:"OUTBOX_CLEANUP_ON_RUN" default:"true"`
}

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	var env Env
	if err := envconfig.Process("portal_worker", &env); err != nil {
		log.Fatal().Err(err).Msg("Failed to load worker environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: env.RedisRetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis broker")
	}
	defer broker.Close()

	medicationRepo := postgres.NewMedicationRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	appMetrics := metrics.NewMetrics("portal", "worker")

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval(),
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay(),
		},
		appLogger,
		appMetrics,
	)

	// The worker only generates logs; it never resolves them, so it does
	// not need a dispatcher of its own.
	medicationSvc := medicationService.NewService(medicationRepo, notification.NopDispatcher{}, log.Logger)
	medicationWorker := internalworker.NewMedicationLogWorker(
		medicationSvc,
		cfg.Medication.GenerationInterval(),
		appLogger,
		appMetrics,
	)

	setupHealthCheck(env.HealthPort, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup

	if !env.DisableOutbox {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Start(ctx)
		}()

		if env.OutboxCleanupOnRun {
			wg.Add(1)
			go func() {
				defer wg.Done()
				runCleanupLoop(ctx, processor, cfg.Outbox, appLogger)
			}()
		}
	}

	if !env.DisableMedication {
		wg.Add(1)
		go func() {
			defer wg.Done()
			medicationWorker.Start(ctx)
		}()
	}

	wg.Wait()
	appLogger.Info("Worker exited")
}

func runCleanupLoop(ctx context.Context, processor *worker.OutboxProcessor, cfg config.OutboxConfig, appLogger *logger.Logger) {
	ticker := time.NewTicker(cfg.CleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := processor.CleanupProcessed(ctx, cfg.Retention()); err != nil {
				appLogger.Error(err, "Failed to clean up outbox events")
			}
		}
	}
}

func setupHealthCheck(port string, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			appLogger.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
}
