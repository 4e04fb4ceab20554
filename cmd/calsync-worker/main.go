package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/planora/calsync-worker/internal/config"
	"github.com/planora/calsync-worker/internal/database"
	"github.com/planora/calsync-worker/internal/provider"
	"github.com/planora/calsync-worker/internal/repository"
	"github.com/planora/calsync-worker/internal/scheduler"
	"github.com/planora/calsync-worker/internal/sync"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	connectionRepo := repository.NewConnectionRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	eventRepo := repository.NewCalendarEventRepository(db)
	syncLogRepo := repository.NewSyncLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize provider adapters
	adapters := []provider.Adapter{
		provider.NewGoogleAdapter(cfg.GoogleClientID, cfg.GoogleClientSecret),
		provider.NewOutlookAdapter(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret),
		provider.NewICSFeedAdapter(),
	}
	caldavAdapter, err := provider.NewCalDAVAdapter(cfg.CalDAVEndpoint, cfg.CalDAVUsername, cfg.CalDAVPassword)
	if err != nil {
		log.Printf("Warning: CalDAV adapter unavailable: %v", err)
	} else {
		adapters = append(adapters, caldavAdapter)
	}
	registry := provider.NewRegistry(adapters...)

	// Initialize sync engine
	providerTimeout := time.Duration(cfg.ProviderTimeoutSeconds) * time.Second
	reconciler := sync.NewReconciler(eventRepo)
	orchestrator := sync.NewOrchestrator(connectionRepo, calendarRepo, syncLogRepo, reconciler, registry, providerTimeout)

	// Initialize scheduler
	sched := scheduler.New(scheduler.Options{
		SyncInterval:    time.Duration(cfg.SyncIntervalMinutes) * time.Minute,
		RefreshInterval: time.Duration(cfg.TokenRefreshIntervalMinutes) * time.Minute,
	}, connectionRepo, orchestrator, registry, syncLogRepo, notificationRepo)

	if err := sched.Start(); err != nil {
		return err
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	sched.Stop(shutdownCtx)

	log.Println("Application stopped")
	return nil
}
