package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ojsys/goodfitapp-backend/internal/aggregation"
	"github.com/ojsys/goodfitapp-backend/internal/config"
	"github.com/ojsys/goodfitapp-backend/internal/consumer"
	"github.com/ojsys/goodfitapp-backend/internal/logger"
	"github.com/ojsys/goodfitapp-backend/internal/persistence/postgres"
	httptransport "github.com/ojsys/goodfitapp-backend/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("consumer exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("goodfit-consumer", cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL, 30*time.Second, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	engine := aggregation.NewEngine(postgres.NewAggregateStore(pool), aggregation.WithLogger(log))
	handler := consumer.Chain(
		consumer.NewPersistenceHandler(pool),
		consumer.NewRecomputeHandler(engine, log),
	)

	var wg sync.WaitGroup

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httptransport.Serve(ctx, metricsSrv, 10*time.Second, log); err != nil {
			log.Error("metrics server error", slog.Any("error", err))
		}
	}()

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroup,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(log.With(slog.String("topic", topic))))

		wg.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			log.Info("consumer started", slog.String("topic", topic), slog.String("group", cfg.ConsumerGroup))
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("consumer stopped with error", slog.String("topic", topic), slog.Any("error", err))
			}
		}(topic, reader)
	}

	<-ctx.Done()
	log.Info("consumer shutdown requested")
	wg.Wait()
	return nil
}
