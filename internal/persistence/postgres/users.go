package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/session"
)

// UserRepository stores accounts, goals, preferences and presence.
type UserRepository struct {
	db DBTX
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

var (
	_ domain.UserRepository = (*UserRepository)(nil)
	_ session.Store         = (*UserRepository)(nil)
)

const userColumns = `id, email, password_hash, display_name, first_name, last_name, avatar_url, bio,
        online_status, last_login_at, last_seen_at, is_active, created_at, updated_at`

// CreateUser inserts the user with its goals, stats and preferences rows in one transaction.
func (r *UserRepository) CreateUser(ctx context.Context, user domain.User, goals domain.Goals, stats domain.UserStats, prefs domain.Preferences) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		user.ID,
		domain.NormalizeEmail(user.Email),
		user.PasswordHash,
		user.DisplayName,
		user.FirstName,
		user.LastName,
		user.AvatarURL,
		user.Bio,
		string(user.OnlineStatus),
		user.LastLoginAt,
		user.LastSeenAt,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO user_goals (user_id, selected_goals, daily_step_goal, weekly_workout_goal, daily_calorie_goal, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)`,
		user.ID, selectedGoals(goals.SelectedGoals), goals.DailyStepGoal, goals.WeeklyWorkoutGoal, goals.DailyCalorieGoal, goals.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert goals: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO user_stats (user_id, total_workouts, total_minutes, total_calories, total_distance_m, current_streak, longest_streak, last_activity_date, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		user.ID, stats.TotalWorkouts, stats.TotalMinutes, stats.TotalCalories, stats.TotalDistanceM,
		stats.CurrentStreak, stats.LongestStreak, stats.LastActivityDate, stats.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert stats: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO user_preferences (user_id, email_notifications, push_notifications, activity_reminders, profile_visibility, show_stats_publicly, theme, units, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		user.ID, prefs.EmailNotifications, prefs.PushNotifications, prefs.ActivityReminders,
		prefs.ProfileVisibility, prefs.ShowStatsPublicly, prefs.Theme, prefs.Units, prefs.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert preferences: %w", err)
	}

	return tx.Commit(ctx)
}

// GetUserByID returns nil, nil when the user does not exist.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetUserByEmail matches case-insensitively and returns nil, nil on a miss.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=$1`, domain.NormalizeEmail(email))
}

func (r *UserRepository) getUser(ctx context.Context, query string, arg string) (*domain.User, error) {
	var (
		u      domain.User
		status string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.FirstName,
		&u.LastName,
		&u.AvatarURL,
		&u.Bio,
		&status,
		&u.LastLoginAt,
		&u.LastSeenAt,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.OnlineStatus = domain.OnlineStatus(status)
	return &u, nil
}

// UpdateProfile writes the editable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, user domain.User) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET display_name=$2, first_name=$3, last_name=$4, avatar_url=$5, bio=$6, updated_at=$7 WHERE id=$1`,
		user.ID, user.DisplayName, user.FirstName, user.LastName, user.AvatarURL, user.Bio, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, hash string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash=$2, updated_at=$3 WHERE id=$1`, userID, hash, at)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// GetGoals returns nil, nil when the user has no goals row.
func (r *UserRepository) GetGoals(ctx context.Context, userID string) (*domain.Goals, error) {
	g, err := loadGoals(ctx, r.db, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get goals: %w", err)
	}
	return &g, nil
}

func loadGoals(ctx context.Context, db interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, userID string) (domain.Goals, error) {
	g := domain.Goals{UserID: userID}
	err := db.QueryRow(ctx, `SELECT selected_goals, daily_step_goal, weekly_workout_goal, daily_calorie_goal, updated_at
        FROM user_goals WHERE user_id=$1`, userID).Scan(
		&g.SelectedGoals, &g.DailyStepGoal, &g.WeeklyWorkoutGoal, &g.DailyCalorieGoal, &g.UpdatedAt,
	)
	return g, err
}

// UpdateGoals overwrites the goals row.
func (r *UserRepository) UpdateGoals(ctx context.Context, goals domain.Goals) error {
	tag, err := r.db.Exec(ctx, `UPDATE user_goals SET selected_goals=$2, daily_step_goal=$3, weekly_workout_goal=$4, daily_calorie_goal=$5, updated_at=$6 WHERE user_id=$1`,
		goals.UserID, selectedGoals(goals.SelectedGoals), goals.DailyStepGoal, goals.WeeklyWorkoutGoal, goals.DailyCalorieGoal, goals.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update goals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// GetPreferences returns nil, nil when the user has no preferences row.
func (r *UserRepository) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	p := domain.Preferences{UserID: userID}
	err := r.db.QueryRow(ctx, `SELECT email_notifications, push_notifications, activity_reminders, profile_visibility, show_stats_publicly, theme, units, updated_at
        FROM user_preferences WHERE user_id=$1`, userID).Scan(
		&p.EmailNotifications, &p.PushNotifications, &p.ActivityReminders, &p.ProfileVisibility,
		&p.ShowStatsPublicly, &p.Theme, &p.Units, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return &p, nil
}

// UpdatePreferences overwrites the preferences row.
func (r *UserRepository) UpdatePreferences(ctx context.Context, prefs domain.Preferences) error {
	tag, err := r.db.Exec(ctx, `UPDATE user_preferences SET email_notifications=$2, push_notifications=$3, activity_reminders=$4,
            profile_visibility=$5, show_stats_publicly=$6, theme=$7, units=$8, updated_at=$9 WHERE user_id=$1`,
		prefs.UserID, prefs.EmailNotifications, prefs.PushNotifications, prefs.ActivityReminders,
		prefs.ProfileVisibility, prefs.ShowStatsPublicly, prefs.Theme, prefs.Units, prefs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SetStatus records a presence change. A nil LastLoginAt keeps the stored value.
func (r *UserRepository) SetStatus(ctx context.Context, userID string, change session.StatusChange) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET online_status=$2, last_login_at=COALESCE($3::timestamptz, last_login_at), last_seen_at=$4 WHERE id=$1`,
		userID, string(change.Status), change.LastLoginAt, change.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// GetState returns nil, nil for unknown users.
func (r *UserRepository) GetState(ctx context.Context, userID string) (*session.State, error) {
	var (
		state  = session.State{UserID: userID}
		status string
	)
	err := r.db.QueryRow(ctx, `SELECT online_status, last_login_at, last_seen_at FROM users WHERE id=$1`, userID).
		Scan(&status, &state.LastLoginAt, &state.LastSeenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get status: %w", err)
	}
	state.Status = domain.OnlineStatus(status)
	return &state, nil
}

func selectedGoals(goals []string) []string {
	if goals == nil {
		return []string{}
	}
	return goals
}
