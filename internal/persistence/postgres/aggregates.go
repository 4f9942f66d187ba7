package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ojsys/goodfitapp-backend/internal/aggregation"
	"github.com/ojsys/goodfitapp-backend/internal/domain"
)

// AggregateStore persists daily summaries and user stats.
type AggregateStore struct {
	db DBTX
}

// NewAggregateStore constructs an AggregateStore.
func NewAggregateStore(db DBTX) *AggregateStore {
	return &AggregateStore{db: db}
}

var _ aggregation.Store = (*AggregateStore)(nil)

const summaryColumns = `user_id, summary_date, total_steps, total_distance_m, total_calories, total_active_minutes,
        total_workouts, step_goal_progress, calorie_goal_progress, workout_goal_progress, updated_at`

const statsColumns = `user_id, total_workouts, total_minutes, total_calories, total_distance_m,
        current_streak, longest_streak, last_activity_date, updated_at`

// RecomputeDailySummary rebuilds one (user, date) summary under a transaction-scoped
// advisory lock so concurrent recomputes across instances serialize.
func (s *AggregateStore) RecomputeDailySummary(ctx context.Context, userID string, date time.Time, build aggregation.SummaryBuilder) (domain.DailySummary, error) {
	day := domain.DayOf(date)
	next := day.AddDate(0, 0, 1)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("begin transaction: %w", conflictErr(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID+"|"+day.Format(time.DateOnly)); err != nil {
		return domain.DailySummary{}, fmt.Errorf("lock summary: %w", conflictErr(err))
	}

	activities, err := queryActivities(ctx, tx, userID, domain.ActivityFilter{From: &day, To: &next}, nil, 0)
	if err != nil {
		return domain.DailySummary{}, conflictErr(err)
	}

	goals, err := loadGoals(ctx, tx, userID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.DailySummary{}, fmt.Errorf("load goals: %w", conflictErr(err))
		}
		goals = domain.DefaultGoals(userID)
	}

	summary := build(activities, goals)
	if _, err := tx.Exec(ctx, `INSERT INTO daily_summaries (`+summaryColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (user_id, summary_date) DO UPDATE SET
            total_steps=EXCLUDED.total_steps,
            total_distance_m=EXCLUDED.total_distance_m,
            total_calories=EXCLUDED.total_calories,
            total_active_minutes=EXCLUDED.total_active_minutes,
            total_workouts=EXCLUDED.total_workouts,
            step_goal_progress=EXCLUDED.step_goal_progress,
            calorie_goal_progress=EXCLUDED.calorie_goal_progress,
            workout_goal_progress=EXCLUDED.workout_goal_progress,
            updated_at=EXCLUDED.updated_at`,
		summary.UserID,
		summary.Date,
		summary.TotalSteps,
		summary.TotalDistanceM,
		summary.TotalCalories,
		summary.TotalActiveMinutes,
		summary.TotalWorkouts,
		summary.StepGoalProgress,
		summary.CalorieGoalProgress,
		summary.WorkoutGoalProgress,
		summary.UpdatedAt,
	); err != nil {
		return domain.DailySummary{}, fmt.Errorf("upsert summary: %w", conflictErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.DailySummary{}, fmt.Errorf("commit summary: %w", conflictErr(err))
	}
	return summary, nil
}

// ReplaceStats rebuilds the stats row from every stored activity of the user. The
// activities are read after the stats row lock is held, so a concurrent activity
// write is either fully counted by the rebuild or applies its delta afterwards.
func (s *AggregateStore) ReplaceStats(ctx context.Context, userID string, build aggregation.StatsBuilder, at time.Time) (domain.UserStats, domain.UserStats, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.UserStats{}, domain.UserStats{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	before, err := lockStats(ctx, tx, userID)
	if err != nil {
		return domain.UserStats{}, domain.UserStats{}, conflictErr(err)
	}
	activities, err := queryActivities(ctx, tx, userID, domain.ActivityFilter{}, nil, 0)
	if err != nil {
		return domain.UserStats{}, domain.UserStats{}, conflictErr(err)
	}
	after := build(activities)
	after.UserID = userID
	after.UpdatedAt = at
	if err := upsertStats(ctx, tx, after); err != nil {
		return domain.UserStats{}, domain.UserStats{}, conflictErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.UserStats{}, domain.UserStats{}, fmt.Errorf("commit stats: %w", conflictErr(err))
	}
	return before, after, nil
}

// GetDailySummary returns nil, nil when no summary is stored for the day.
func (s *AggregateStore) GetDailySummary(ctx context.Context, userID string, date time.Time) (*domain.DailySummary, error) {
	row := s.db.QueryRow(ctx, `SELECT `+summaryColumns+` FROM daily_summaries WHERE user_id=$1 AND summary_date=$2`,
		userID, domain.DayOf(date))
	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &summary, nil
}

// ListDailySummaries returns stored summaries dated within [from, to], newest first.
func (s *AggregateStore) ListDailySummaries(ctx context.Context, userID string, from, to time.Time) ([]domain.DailySummary, error) {
	rows, err := s.db.Query(ctx, `SELECT `+summaryColumns+` FROM daily_summaries
        WHERE user_id=$1 AND summary_date >= $2 AND summary_date <= $3
        ORDER BY summary_date DESC`, userID, domain.DayOf(from), domain.DayOf(to))
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// GetStats returns nil, nil when the user has no stats row.
func (s *AggregateStore) GetStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	stats, err := scanStats(s.db.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id=$1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &stats, nil
}

// ListUserIDs returns every user id in ascending order.
func (s *AggregateStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// lockStats reads the stats row FOR UPDATE. A missing row yields zeroed stats.
func lockStats(ctx context.Context, tx pgx.Tx, userID string) (domain.UserStats, error) {
	stats, err := scanStats(tx.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id=$1 FOR UPDATE`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserStats{UserID: userID}, nil
		}
		return domain.UserStats{}, fmt.Errorf("lock stats: %w", err)
	}
	return stats, nil
}

func upsertStats(ctx context.Context, tx pgx.Tx, stats domain.UserStats) error {
	var lastDate any
	if stats.LastActivityDate != nil {
		lastDate = domain.DayOf(*stats.LastActivityDate)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO user_stats (`+statsColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (user_id) DO UPDATE SET
            total_workouts=EXCLUDED.total_workouts,
            total_minutes=EXCLUDED.total_minutes,
            total_calories=EXCLUDED.total_calories,
            total_distance_m=EXCLUDED.total_distance_m,
            current_streak=EXCLUDED.current_streak,
            longest_streak=EXCLUDED.longest_streak,
            last_activity_date=EXCLUDED.last_activity_date,
            updated_at=EXCLUDED.updated_at`,
		stats.UserID,
		stats.TotalWorkouts,
		stats.TotalMinutes,
		stats.TotalCalories,
		stats.TotalDistanceM,
		stats.CurrentStreak,
		stats.LongestStreak,
		lastDate,
		stats.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

func scanSummary(row pgx.Row) (domain.DailySummary, error) {
	var s domain.DailySummary
	err := row.Scan(
		&s.UserID,
		&s.Date,
		&s.TotalSteps,
		&s.TotalDistanceM,
		&s.TotalCalories,
		&s.TotalActiveMinutes,
		&s.TotalWorkouts,
		&s.StepGoalProgress,
		&s.CalorieGoalProgress,
		&s.WorkoutGoalProgress,
		&s.UpdatedAt,
	)
	s.Date = domain.DayOf(s.Date)
	return s, err
}

func scanStats(row pgx.Row) (domain.UserStats, error) {
	var s domain.UserStats
	err := row.Scan(
		&s.UserID,
		&s.TotalWorkouts,
		&s.TotalMinutes,
		&s.TotalCalories,
		&s.TotalDistanceM,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.LastActivityDate,
		&s.UpdatedAt,
	)
	return s, err
}
