package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
)

// LiveStore persists live tracking sessions.
type LiveStore struct {
	db DBTX
}

// NewLiveStore constructs a LiveStore.
func NewLiveStore(db DBTX) *LiveStore {
	return &LiveStore{db: db}
}

var _ domain.LiveActivityStore = (*LiveStore)(nil)

const liveColumns = `id, user_id, activity_type, title, status, start_time, paused_at, stopped_at, paused_seconds,
        distance_m, calories, pace_min_per_km, speed_kmh, route, last_latitude, last_longitude, last_update,
        final_activity_id, created_at, updated_at`

// CreateLive inserts the session. The partial unique index on open sessions
// reports a second open session as domain.ErrLiveActivityOpen.
func (s *LiveStore) CreateLive(ctx context.Context, live domain.LiveActivity) error {
	args, err := liveArgs(live)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `INSERT INTO live_activities (`+liveColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrLiveActivityOpen
		}
		return fmt.Errorf("insert live activity: %w", err)
	}
	return nil
}

// GetLive returns nil, nil for unknown sessions.
func (s *LiveStore) GetLive(ctx context.Context, id string) (*domain.LiveActivity, error) {
	live, err := scanLive(s.db.QueryRow(ctx, `SELECT `+liveColumns+` FROM live_activities WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get live activity: %w", err)
	}
	return &live, nil
}

// OpenLive returns the user's active or paused session, or nil.
func (s *LiveStore) OpenLive(ctx context.Context, userID string) (*domain.LiveActivity, error) {
	live, err := scanLive(s.db.QueryRow(ctx, `SELECT `+liveColumns+` FROM live_activities
        WHERE user_id=$1 AND status IN ('active', 'paused')`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open live activity: %w", err)
	}
	return &live, nil
}

// ListLive returns the user's sessions, newest first.
func (s *LiveStore) ListLive(ctx context.Context, userID string) ([]domain.LiveActivity, error) {
	rows, err := s.db.Query(ctx, `SELECT `+liveColumns+` FROM live_activities
        WHERE user_id=$1 ORDER BY start_time DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list live activities: %w", err)
	}
	defer rows.Close()

	var out []domain.LiveActivity
	for rows.Next() {
		live, err := scanLive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan live activity: %w", err)
		}
		out = append(out, live)
	}
	return out, rows.Err()
}

// UpdateLive locks the row, applies mutate and writes the result back.
func (s *LiveStore) UpdateLive(ctx context.Context, id string, mutate domain.LiveMutation) (domain.LiveActivity, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.LiveActivity{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	live, err := scanLive(tx.QueryRow(ctx, `SELECT `+liveColumns+` FROM live_activities WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LiveActivity{}, domain.ErrLiveActivityNotFound
		}
		return domain.LiveActivity{}, fmt.Errorf("lock live activity: %w", err)
	}
	if err := mutate(&live); err != nil {
		return domain.LiveActivity{}, err
	}
	live.ID = id

	args, err := liveArgs(live)
	if err != nil {
		return domain.LiveActivity{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE live_activities SET user_id=$2, activity_type=$3, title=$4, status=$5,
            start_time=$6, paused_at=$7, stopped_at=$8, paused_seconds=$9, distance_m=$10, calories=$11,
            pace_min_per_km=$12, speed_kmh=$13, route=$14, last_latitude=$15, last_longitude=$16,
            last_update=$17, final_activity_id=$18, created_at=$19, updated_at=$20
        WHERE id=$1`, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.LiveActivity{}, domain.ErrLiveActivityOpen
		}
		return domain.LiveActivity{}, fmt.Errorf("update live activity: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.LiveActivity{}, fmt.Errorf("commit live activity: %w", err)
	}
	return live, nil
}

// DeleteLive removes the session.
func (s *LiveStore) DeleteLive(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM live_activities WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete live activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLiveActivityNotFound
	}
	return nil
}

func liveArgs(l domain.LiveActivity) ([]any, error) {
	route, err := json.Marshal(routeOrEmpty(l.Route))
	if err != nil {
		return nil, fmt.Errorf("marshal route: %w", err)
	}
	return []any{
		l.ID,
		l.UserID,
		string(l.Type),
		l.Title,
		string(l.Status),
		l.StartTime,
		l.PausedAt,
		l.StoppedAt,
		int(l.PausedFor / time.Second),
		l.DistanceM,
		l.Calories,
		l.PaceMinPerKm,
		l.SpeedKmh,
		route,
		l.LastLatitude,
		l.LastLongitude,
		l.LastUpdate,
		l.FinalActivityID,
		l.CreatedAt,
		l.UpdatedAt,
	}, nil
}

func scanLive(row pgx.Row) (domain.LiveActivity, error) {
	var (
		l             domain.LiveActivity
		activityType  string
		status        string
		pausedSeconds int
		route         []byte
	)
	if err := row.Scan(
		&l.ID,
		&l.UserID,
		&activityType,
		&l.Title,
		&status,
		&l.StartTime,
		&l.PausedAt,
		&l.StoppedAt,
		&pausedSeconds,
		&l.DistanceM,
		&l.Calories,
		&l.PaceMinPerKm,
		&l.SpeedKmh,
		&route,
		&l.LastLatitude,
		&l.LastLongitude,
		&l.LastUpdate,
		&l.FinalActivityID,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return domain.LiveActivity{}, err
	}
	l.Type = domain.ActivityType(activityType)
	l.Status = domain.LiveStatus(status)
	l.PausedFor = time.Duration(pausedSeconds) * time.Second
	l.StartTime = l.StartTime.UTC()
	if len(route) > 0 {
		if err := json.Unmarshal(route, &l.Route); err != nil {
			return domain.LiveActivity{}, fmt.Errorf("decode route: %w", err)
		}
	}
	if len(l.Route) == 0 {
		l.Route = nil
	}
	return l, nil
}
