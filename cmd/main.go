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

	"github.com/Dosada05/competition-engine/brackets"
	"github.com/Dosada05/competition-engine/config"
	"github.com/Dosada05/competition-engine/db"
	"github.com/Dosada05/competition-engine/handlers"
	"github.com/Dosada05/competition-engine/repositories"
	api "github.com/Dosada05/competition-engine/routes"
	"github.com/Dosada05/competition-engine/scheduler"
	"github.com/Dosada05/competition-engine/services"
	"github.com/Dosada05/competition-engine/storage"
	_ "github.com/lib/pq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	// Evidence storage is optional: without it dispute evidence uploads are
	// rejected but everything else runs.
	var uploader storage.EvidenceStore
	if cfg.EvidenceStoreConfigured() {
		uploader, err = storage.NewCloudflareR2Store(storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize evidence store", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("evidence store initialized")
	} else {
		logger.Warn("evidence store not configured, dispute evidence uploads disabled")
	}

	hub := brackets.NewHub(logger)
	go hub.Run()

	sched := scheduler.New(scheduler.RealClock(), cfg.SchedulerInterval, logger)
	go sched.Run()

	runner := services.NewRunner(logger)

	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	graphRepo := repositories.NewPostgresGraphRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	disputeRepo := repositories.NewPostgresDisputeRepository(dbConn)
	standingRepo := repositories.NewPostgresStandingRepository(dbConn)
	auditRepo := repositories.NewPostgresAuditRepository(dbConn)

	standingService := services.NewStandingService(standingRepo, logger)
	bracketService := services.NewBracketService(
		dbConn,
		tournamentRepo,
		graphRepo,
		matchRepo,
		disputeRepo,
		standingService,
		runner,
		sched,
		hub,
		logger,
		services.Windows{
			CheckIn:     cfg.CheckInWindow,
			AutoConfirm: cfg.AutoConfirmWindow,
		},
	)
	matchService := services.NewMatchService(
		tournamentRepo,
		matchRepo,
		disputeRepo,
		auditRepo,
		bracketService,
		runner,
		sched,
		scheduler.RealClock(),
		hub,
		logger,
		cfg.AutoConfirmWindow,
	)
	lifecycleService := services.NewLifecycleService(
		tournamentRepo,
		bracketService,
		runner,
		sched,
		scheduler.RealClock(),
		hub,
		logger,
	)
	logger.Info("services initialized")

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		lifecycleService.SweepStatuses(sweepCtx, time.Now())
		for {
			select {
			case <-ticker.C:
				lifecycleService.SweepStatuses(sweepCtx, time.Now())
			case <-sweepCtx.Done():
				return
			}
		}
	}()
	logger.Info("status sweeper started", slog.Duration("interval", cfg.SweepInterval))

	tournamentHandler := handlers.NewTournamentHandler(lifecycleService, bracketService, standingService)
	matchHandler := handlers.NewMatchHandler(matchService, uploader)
	wsHandler := handlers.NewWebSocketHandler(hub, logger)

	router := api.SetupRoutes(tournamentHandler, matchHandler, wsHandler, cfg.JWTSecretKey)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		}
	}

	stopSweep()
	sched.Stop()
	runner.Shutdown()
	logger.Info("application exited")
}
