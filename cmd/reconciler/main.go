package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/aggregation"
	"github.com/ojsys/goodfitapp-backend/internal/config"
	"github.com/ojsys/goodfitapp-backend/internal/logger"
	"github.com/ojsys/goodfitapp-backend/internal/persistence/postgres"
	httptransport "github.com/ojsys/goodfitapp-backend/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("reconciler exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("goodfit-reconciler", cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL, 30*time.Second, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	engine := aggregation.NewEngine(postgres.NewAggregateStore(pool), aggregation.WithLogger(log))
	revocations := postgres.NewRevocationStore(pool)

	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		if err := httptransport.Serve(ctx, httptransport.NewMetricsServer(cfg.MetricsAddress), 10*time.Second, log); err != nil {
			log.Error("metrics server error", slog.Any("error", err))
		}
	}()

	pass := func() {
		started := time.Now()
		users, err := engine.ReconcileAll(ctx)
		if err != nil {
			log.Error("reconcile pass incomplete", slog.Int("users", users), slog.Any("error", err))
		} else {
			log.Info("reconcile pass finished", slog.Int("users", users), slog.Duration("elapsed", time.Since(started)))
		}
		if cfg.RevocationBackend == config.RevocationPostgres {
			pruned, err := revocations.DeleteExpired(ctx)
			if err != nil {
				log.Error("prune revocations", slog.Any("error", err))
			} else if pruned > 0 {
				log.Info("pruned expired revocations", slog.Int64("count", pruned))
			}
		}
	}

	log.Info("reconciler started", slog.Duration("interval", cfg.ReconcileInterval))
	pass()

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-metricsDone
			return nil
		case <-ticker.C:
			pass()
		}
	}
}
