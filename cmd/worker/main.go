package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/story-core/internal/config"
	"github.com/jwebster45206/story-core/internal/logger"
	"github.com/jwebster45206/story-core/internal/services/queue"
	"github.com/jwebster45206/story-core/internal/storage"
	"github.com/jwebster45206/story-core/internal/worker"
	"github.com/jwebster45206/story-core/pkg/profile"
	"github.com/jwebster45206/story-core/pkg/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Story Core Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL)

	// Load the NPC profile
	prof := profile.Default()
	if cfg.ProfilePath != "" {
		prof, err = profile.Load(cfg.ProfilePath)
		if err != nil {
			log.Error("Failed to load profile", "error", err, "path", cfg.ProfilePath)
			os.Exit(1)
		}
	}
	log.Info("Profile loaded", "name", prof.Name, "actions", len(prof.Actions))

	// Initialize queue service
	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	turnQueue := queue.NewTurnQueue(queueClient)
	log.Info("Queue service initialized successfully")

	// Initialize storage service
	storageService, err := storage.NewRedisStorage(cfg.RedisURL, cfg.SessionTTL, log)
	if err != nil {
		log.Error("Failed to create storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storageService.Close(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := storageService.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage service initialized successfully")

	opts := []session.Option{
		session.WithDecayRate(cfg.DecayRate),
		session.WithHistoryLimit(cfg.HistoryLimit),
	}
	if cfg.Seed != 0 {
		opts = append(opts, session.WithSeed(cfg.Seed))
	}

	// The queue client doubles as the lock and pub/sub connection
	w := worker.New(turnQueue, storageService, queueClient.GetRedisClient(), prof, log, cfg.WorkerID, opts...)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for requests...", "worker_id", w.ID())

	<-quit
	log.Info("Worker shutdown signal received")

	w.Stop()

	// Give worker time to finish current request
	time.Sleep(2 * time.Second)

	log.Info("Worker exited")
}
