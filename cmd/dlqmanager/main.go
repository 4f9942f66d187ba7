package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/config"
	"github.com/ojsys/goodfitapp-backend/internal/logger"
	"github.com/ojsys/goodfitapp-backend/internal/outbox"
	"github.com/ojsys/goodfitapp-backend/internal/persistence/postgres"
	httptransport "github.com/ojsys/goodfitapp-backend/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("dlq manager exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("goodfit-dlqmanager", cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL, 30*time.Second, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, log)

	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		if err := httptransport.Serve(ctx, httptransport.NewMetricsServer(cfg.MetricsAddress), 10*time.Second, log); err != nil {
			log.Error("metrics server error", slog.Any("error", err))
		}
	}()

	log.Info("dlq manager started",
		slog.Duration("interval", cfg.DLQPollInterval),
		slog.Int("max_retries", cfg.DLQMaxRetries),
		slog.Int("batch_size", cfg.DLQBatchSize),
	)

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("dlq manager received shutdown signal")
			<-metricsDone
			return nil
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				log.Error("dlq manager error", slog.Any("error", err))
			} else if processed > 0 {
				log.Info("dlq manager processed entries", slog.Int("count", processed))
			}
		}
	}
}
