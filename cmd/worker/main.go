// Package main is the entry point for the Mercatus background worker. It
// drives sync jobs to completion and requeues jobs whose heartbeat went
// silent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mercatus/internal/domain/rates"
	syncjob "mercatus/internal/domain/sync"
	"mercatus/internal/infrastructure/storage/postgres"
	"mercatus/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting mercatus worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	rateService := rates.NewService(postgres.NewRateRepo(txManager), rates.NewCache())
	syncService := syncjob.NewService(
		postgres.NewSyncJobRepo(txManager),
		postgres.NewProductRepo(txManager),
		rateService,
	)

	worker := NewWorker(syncService, WorkerConfig{
		PollInterval: getEnvDuration("SYNC_POLL_INTERVAL", 15*time.Second),
		StuckAfter:   getEnvDuration("SYNC_STUCK_AFTER", 10*time.Minute),
	}, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// WorkerConfig tunes the polling loop.
type WorkerConfig struct {
	// PollInterval is how often the worker looks for a pending job.
	PollInterval time.Duration

	// StuckAfter is the heartbeat lease: running jobs silent for longer
	// are requeued for pickup.
	StuckAfter time.Duration
}

// Worker picks up pending sync jobs and runs them to completion.
type Worker struct {
	syncService *syncjob.Service
	cfg         WorkerConfig
	log         *logger.Logger
}

// NewWorker creates a worker.
func NewWorker(syncService *syncjob.Service, cfg WorkerConfig, log *logger.Logger) *Worker {
	return &Worker{
		syncService: syncService,
		cfg:         cfg,
		log:         log.WithComponent("worker"),
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	watchdog := time.NewTicker(w.cfg.StuckAfter / 2)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.processPending(ctx)

		case <-watchdog.C:
			if _, err := w.syncService.RequeueStuck(ctx, w.cfg.StuckAfter); err != nil {
				w.log.Warnw("watchdog pass failed", "error", err)
			}
		}
	}
}

func (w *Worker) processPending(ctx context.Context) {
	job, err := w.syncService.ActiveJob(ctx)
	if err != nil {
		w.log.Warnw("failed to look up active job", "error", err)
		return
	}
	if job == nil || job.Status != syncjob.StatusPending {
		return
	}

	w.log.Infow("picking up sync job", "job_id", job.ID, "reason", job.Reason)
	if err := w.syncService.Run(ctx, job.ID); err != nil {
		w.log.Errorw("sync job run failed", "job_id", job.ID, "error", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
