package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"esign-portal/esign-backend/internal/app"
	"esign-portal/esign-backend/internal/config"
	"esign-portal/esign-backend/internal/reminders"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.Bool("once", false, "run a single reminder pass and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := cfg.Logging.NewLogger(cfg.Server.Mode == "debug")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Database.Driver == "memory" {
		logger.Warn("Reminder worker is using the in-memory repository; it will not see API workflows")
	}

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stack, err := app.New(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("Failed to release resources", zap.Error(err))
		}
	}()

	scheduler, err := reminders.NewScheduler(stack.Documents, logger, reminders.Config{
		Schedule: cfg.Reminders.Schedule,
		Interval: time.Duration(cfg.Reminders.IntervalHours) * time.Hour,
	})
	if err != nil {
		logger.Fatal("Failed to create reminder scheduler", zap.Error(err))
	}

	if *once {
		scheduler.RunOnce(ctx)
		return
	}

	logger.Info("Reminder worker starting")
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start reminder scheduler", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	scheduler.Stop()
	logger.Info("Reminder worker stopped")
}
