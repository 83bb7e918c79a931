package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/portal-api/internal/config"
	"github.com/jwalitptl/portal-api/internal/handler"
	appointmentHandler "github.com/jwalitptl/portal-api/internal/handler/appointment"
	medicationHandler "github.com/jwalitptl/portal-api/internal/handler/medication"
	"github.com/jwalitptl/portal-api/internal/middleware"
	"github.com/jwalitptl/portal-api/internal/repository/postgres"
	"github.com/jwalitptl/portal-api/internal/router"
	appointmentService "github.com/jwalitptl/portal-api/internal/service/appointment"
	medicationService "github.com/jwalitptl/portal-api/internal/service/medication"
	"github.com/jwalitptl/portal-api/internal/service/notification"
)

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	appointmentRepo := postgres.NewAppointmentRepository(db)
	medicationRepo := postgres.NewMedicationRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// Notifications go through the outbox; the worker binary drains it.
	dispatcher := notification.NewOutboxDispatcher(outboxRepo, log.Logger)

	// Services
	slotResolver := appointmentService.NewSlotResolver(appointmentRepo)
	appointmentSvc := appointmentService.NewService(appointmentRepo, slotResolver, dispatcher, log.Logger)
	medicationSvc := medicationService.NewService(medicationRepo, dispatcher, log.Logger)

	// Handlers
	h := handler.NewHandler(db)
	aptHandler := appointmentHandler.NewHandler(appointmentSvc)
	medHandler := medicationHandler.NewHandler(medicationSvc)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	r := router.NewRouter(authMiddleware, aptHandler, medHandler, h, router.Config{
		RateLimit:     rate.Limit(100),
		RateBurst:     200,
		Timeout:       time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		CORSConfig:    middleware.DefaultCORSConfig(),
		MetricsPrefix: "portal_api",
	})
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
