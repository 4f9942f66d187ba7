// Package aggregation keeps daily summaries and user stats consistent with the activity store.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/observability"
)

// Retry policy for serialization conflicts.
const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 10 * time.Millisecond
)

// SummaryBuilder derives a summary from the day's activities and the user's goals.
type SummaryBuilder func(activities []domain.Activity, goals domain.Goals) domain.DailySummary

// StatsBuilder derives stats from a user's complete activity set.
type StatsBuilder func(activities []domain.Activity) domain.UserStats

// Store is the persistence the engine drives. Each write method is one atomic unit:
// a failure leaves the previously stored row untouched. Incremental stats deltas
// are not applied here; they commit with the activity write itself.
type Store interface {
	// RecomputeDailySummary loads the user's activities starting on date and their goals,
	// builds the summary and upserts it. Serialization failures are reported as
	// domain.ErrAggregationConflict.
	RecomputeDailySummary(ctx context.Context, userID string, date time.Time, build SummaryBuilder) (domain.DailySummary, error)
	// ReplaceStats rebuilds the stats row from all activities and returns the old and
	// new rows. It serializes with activity writes on the stats row.
	ReplaceStats(ctx context.Context, userID string, build StatsBuilder, at time.Time) (before, after domain.UserStats, err error)
	GetDailySummary(ctx context.Context, userID string, date time.Time) (*domain.DailySummary, error)
	ListDailySummaries(ctx context.Context, userID string, from, to time.Time) ([]domain.DailySummary, error)
	GetStats(ctx context.Context, userID string) (*domain.UserStats, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Engine recomputes derived state on activity changes.
type Engine struct {
	store       Store
	locks       *keyedMutex
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
	backoff     time.Duration
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetry overrides the conflict retry policy.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		e.backoff = backoff
	}
}

// NewEngine constructs an Engine.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		locks:       newKeyedMutex(),
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ domain.ChangeNotifier = (*Engine)(nil)

// ActivityChanged recomputes every day the change touched.
func (e *Engine) ActivityChanged(ctx context.Context, event domain.ChangeEvent) error {
	var errs []error
	for _, date := range event.AffectedDates() {
		if _, err := e.Recompute(ctx, event.UserID, date); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recompute rebuilds the user's summary for date from scratch.
func (e *Engine) Recompute(ctx context.Context, userID string, date time.Time) (domain.DailySummary, error) {
	day := domain.DayOf(date)
	started := time.Now()
	build := func(activities []domain.Activity, goals domain.Goals) domain.DailySummary {
		s := domain.BuildDailySummary(userID, day, activities, goals)
		s.UpdatedAt = e.now()
		return s
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		summary, err := e.recomputeOnce(ctx, userID, day, build)
		if err == nil {
			observability.RecordRecompute("ok", time.Since(started))
			return summary, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrAggregationConflict) {
			break
		}
		observability.RecordAggregationConflict()
		if attempt == e.maxAttempts {
			break
		}
		if err := sleep(ctx, e.backoff*time.Duration(attempt)); err != nil {
			lastErr = err
			break
		}
	}
	observability.RecordRecompute("error", time.Since(started))
	return domain.DailySummary{}, fmt.Errorf("recompute %s %s: %w", userID, day.Format(time.DateOnly), lastErr)
}

func (e *Engine) recomputeOnce(ctx context.Context, userID string, day time.Time, build SummaryBuilder) (domain.DailySummary, error) {
	unlock := e.locks.Lock(userID + "|" + day.Format(time.DateOnly))
	defer unlock()
	return e.store.RecomputeDailySummary(ctx, userID, day, build)
}

// Reconcile rebuilds the user's stats from the full activity set.
func (e *Engine) Reconcile(ctx context.Context, userID string) (domain.UserStats, error) {
	build := func(activities []domain.Activity) domain.UserStats {
		return domain.BuildUserStats(userID, activities)
	}
	before, after, err := e.store.ReplaceStats(ctx, userID, build, e.now())
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("reconcile %s: %w", userID, err)
	}
	if drifted(before, after) {
		observability.RecordReconcileCorrection()
		e.logger.WarnContext(ctx, "user stats drift corrected",
			slog.String("user_id", userID),
			slog.Int("workouts_before", before.TotalWorkouts),
			slog.Int("workouts_after", after.TotalWorkouts),
			slog.Float64("distance_before", before.TotalDistanceM),
			slog.Float64("distance_after", after.TotalDistanceM),
		)
	}
	return after, nil
}

// ReconcileAll reconciles every known user and returns the number processed.
func (e *Engine) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := e.store.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	var errs []error
	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := e.Reconcile(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// DailySummary returns the stored summary for date, computing it when absent.
func (e *Engine) DailySummary(ctx context.Context, userID string, date time.Time) (domain.DailySummary, error) {
	day := domain.DayOf(date)
	summary, err := e.store.GetDailySummary(ctx, userID, day)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if summary != nil {
		return *summary, nil
	}
	return e.Recompute(ctx, userID, day)
}

// DailySummaries lists stored summaries with dates in [from, to], newest first.
func (e *Engine) DailySummaries(ctx context.Context, userID string, from, to time.Time) ([]domain.DailySummary, error) {
	from, to = domain.DayOf(from), domain.DayOf(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", domain.ErrInvalidInput)
	}
	return e.store.ListDailySummaries(ctx, userID, from, to)
}

// Stats returns the user's lifetime stats.
func (e *Engine) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	stats, err := e.store.GetStats(ctx, userID)
	if err != nil {
		return domain.UserStats{}, err
	}
	if stats == nil {
		return domain.UserStats{}, domain.ErrUserNotFound
	}
	return *stats, nil
}

func drifted(before, after domain.UserStats) bool {
	if before.TotalWorkouts != after.TotalWorkouts ||
		before.TotalMinutes != after.TotalMinutes ||
		before.TotalCalories != after.TotalCalories ||
		before.CurrentStreak != after.CurrentStreak ||
		before.LongestStreak != after.LongestStreak {
		return true
	}
	diff := before.TotalDistanceM - after.TotalDistanceM
	return diff > 1e-6 || diff < -1e-6
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
