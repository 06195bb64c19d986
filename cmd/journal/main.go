package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fieldattend/internal/config"
	"fieldattend/internal/journal"
	"fieldattend/internal/queue"
	"fieldattend/internal/store"
)

// The journal worker drains capture events from redis into Postgres.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required for the journal worker")
	}
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := journal.NewRepository(db.Client)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	redisClient := store.NewRedis(cfg.Redis())
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis not reachable yet, consumer will keep retrying", "error", err)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, logger)
	recorder := journal.NewRecorder(repo, logger)

	logger.Info("journal worker started", "queue", queue.DefaultKey)
	if err := recorder.Run(ctx, q); err != nil && ctx.Err() == nil {
		log.Printf("recorder stopped: %v", err)
	}
	logger.Info("journal worker exited")
}
