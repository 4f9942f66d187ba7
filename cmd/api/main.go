package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ojsys/goodfitapp-backend/internal/aggregation"
	"github.com/ojsys/goodfitapp-backend/internal/api"
	"github.com/ojsys/goodfitapp-backend/internal/auth"
	"github.com/ojsys/goodfitapp-backend/internal/config"
	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/logger"
	"github.com/ojsys/goodfitapp-backend/internal/outbox"
	"github.com/ojsys/goodfitapp-backend/internal/persistence/memory"
	"github.com/ojsys/goodfitapp-backend/internal/persistence/postgres"
	"github.com/ojsys/goodfitapp-backend/internal/session"
	httptransport "github.com/ojsys/goodfitapp-backend/internal/transport/http"
)

const kafkaWriteTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// stores groups the persistence ports for one storage driver.
type stores struct {
	activities  domain.ActivityRepository
	live        domain.LiveActivityStore
	users       domain.UserRepository
	aggregates  aggregation.Store
	presence    session.Store
	revocations auth.RevocationStore
	db          postgres.DBTX
	close       []func()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("goodfit-api", cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.shutdown()

	tokens, err := auth.NewTokenService(auth.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	}, st.revocations)
	if err != nil {
		return err
	}

	engine := aggregation.NewEngine(st.aggregates, aggregation.WithLogger(log))
	tracker := session.NewTracker(st.presence)
	activities := domain.NewService(st.activities, domain.WithNotifier(engine), domain.WithLogger(log))
	accounts := domain.NewAccountService(st.users, tokens, tracker, cfg.BcryptCost)
	live := domain.NewLiveService(st.live, activities, domain.WithLogger(log))

	if st.db != nil && cfg.OutboxEnabled {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, kafkaWriteTimeout)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL, outbox.DefaultBreakerConfig(), log)
		dispatcher := outbox.NewDispatcher(st.db, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, log)
		go dispatcher.Start(ctx)
		defer dispatcher.Wait()
		log.Info("outbox dispatcher started",
			slog.Duration("poll_interval", cfg.OutboxPollInterval),
			slog.Int("batch_size", cfg.OutboxBatchSize),
		)
	}

	handler := api.NewHandler(activities, accounts, live, engine, tracker, log)
	router := api.NewRouter(handler, tokens, cfg.CORSAllowedOrigin)

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, router)
	log.Info("goodfit api starting",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageDriver),
		slog.String("revocation", cfg.RevocationBackend),
	)
	err = httptransport.Serve(ctx, server, serverCfg.ShutdownTimeout, log)
	stop()
	return err
}

// shutdown releases connections in reverse order of opening.
func (s *stores) shutdown() {
	for i := len(s.close) - 1; i >= 0; i-- {
		s.close[i]()
	}
	s.close = nil
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{}

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresURL, 30*time.Second, log)
		if err != nil {
			return nil, err
		}
		st.close = append(st.close, pool.Close)
		if err := postgres.RunMigrations(ctx, pool, postgres.Migrations(), log); err != nil {
			st.shutdown()
			return nil, err
		}
		users := postgres.NewUserRepository(pool)
		st.activities = postgres.NewRepository(pool)
		st.live = postgres.NewLiveStore(pool)
		st.users = users
		st.presence = users
		st.aggregates = postgres.NewAggregateStore(pool)
		st.db = pool
	case config.StorageMemory:
		store := memory.NewStore()
		st.activities = store
		st.live = store
		st.users = store
		st.presence = store
		st.aggregates = store
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	switch cfg.RevocationBackend {
	case config.RevocationMemory:
		st.revocations = auth.NewMemoryRevocationStore()
	case config.RevocationRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			st.shutdown()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		st.close = append(st.close, func() { _ = client.Close() })
		st.revocations = auth.NewRedisRevocationStore(client)
	case config.RevocationPostgres:
		if st.db == nil {
			st.shutdown()
			return nil, fmt.Errorf("revocation backend %q requires postgres storage", cfg.RevocationBackend)
		}
		st.revocations = postgres.NewRevocationStore(st.db)
	default:
		st.shutdown()
		return nil, fmt.Errorf("unknown revocation backend %q", cfg.RevocationBackend)
	}

	return st, nil
}
