//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ojsys/goodfitapp-backend/internal/aggregation"
	"github.com/ojsys/goodfitapp-backend/internal/domain"
)

func TestActivityLifecycleKeepsAggregatesConsistent(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)

	users := NewUserRepository(pool)
	repo := NewRepository(pool)
	engine := aggregation.NewEngine(NewAggregateStore(pool))
	service := domain.NewService(repo, domain.WithNotifier(engine))

	userID := uuid.NewString()
	require.NoError(t, users.CreateUser(ctx,
		domain.User{ID: userID, Email: userID + "@example.com", PasswordHash: "x", DisplayName: "Rider", IsActive: true, OnlineStatus: domain.StatusOffline, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()},
		domain.DefaultGoals(userID), domain.UserStats{UserID: userID}, domain.DefaultPreferences(userID)))

	start := time.Date(2024, time.January, 2, 7, 0, 0, 0, time.UTC)
	distance := 15000.0
	activity, err := service.CreateActivity(ctx, userID, domain.ActivityDraft{
		Type: domain.ActivityTypeCycle, Title: "Ride", StartTime: start, DurationMin: 40, DistanceM: &distance,
	})
	require.NoError(t, err)

	summary, err := engine.DailySummary(ctx, userID, start)
	require.NoError(t, err)
	assert.Equal(t, 15000.0, summary.TotalDistanceM)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1`, activity.ID).Scan(&outboxRows))
	assert.Equal(t, 1, outboxRows)

	require.NoError(t, service.DeleteActivity(ctx, userID, activity.ID))
	summary, err = engine.DailySummary(ctx, userID, start)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalDistanceM)

	stats, err := engine.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalWorkouts)
}

func TestConcurrentCreatesSumExactly(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)

	users := NewUserRepository(pool)
	engine := aggregation.NewEngine(NewAggregateStore(pool))
	service := domain.NewService(NewRepository(pool), domain.WithNotifier(engine))

	userID := uuid.NewString()
	require.NoError(t, users.CreateUser(ctx,
		domain.User{ID: userID, Email: userID + "@example.com", PasswordHash: "x", DisplayName: "Runner", IsActive: true, OnlineStatus: domain.StatusOffline},
		domain.DefaultGoals(userID), domain.UserStats{UserID: userID}, domain.DefaultPreferences(userID)))

	start := time.Date(2024, time.March, 5, 6, 0, 0, 0, time.UTC)
	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := 1000.0
			_, err := service.CreateActivity(ctx, userID, domain.ActivityDraft{
				Type: domain.ActivityTypeRun, Title: "Interval", StartTime: start.Add(time.Duration(i) * time.Minute), DurationMin: 5, DistanceM: &d,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	summary, err := engine.DailySummary(ctx, userID, start)
	require.NoError(t, err)
	assert.Equal(t, float64(n*1000), summary.TotalDistanceM)
	assert.Equal(t, n, summary.TotalWorkouts)
}

func TestRevocationStoreConsumeIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewRevocationStore(setupDatabase(t, ctx))
	exp := time.Now().Add(time.Hour)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := store.Consume(ctx, "jti-shared", exp)
			assert.NoError(t, err)
			if first {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	revoked, err := store.IsRevoked(ctx, "jti-shared", "")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func setupDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("goodfit"),
		postgrescontainer.WithUsername("goodfit"),
		postgrescontainer.WithPassword("goodfit"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool, Migrations(), discardLogger()))
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
