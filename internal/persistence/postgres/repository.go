package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/events"
)

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	db DBTX
}

// NewRepository constructs a Repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

var _ domain.ActivityRepository = (*Repository)(nil)

const activityColumns = `id, user_id, activity_type, title, notes, start_time, end_time, duration_min,
        distance_m, calories_burned, average_speed_kmh, pace_min_per_km, elevation_gain_m,
        heart_rate_avg, heart_rate_max, start_latitude, start_longitude, start_address, route,
        created_at, updated_at`

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Create persists the activity, folds its contribution into the owner's stats and
// records its outbox event inside a single transaction.
func (r *Repository) Create(ctx context.Context, activity domain.Activity, event domain.ChangeEvent) error {
	route, err := json.Marshal(routeOrEmpty(activity.Route))
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const stmt = `INSERT INTO activities (` + activityColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`

	if _, err := tx.Exec(ctx, stmt,
		activity.ID,
		activity.UserID,
		string(activity.Type),
		activity.Title,
		activity.Notes,
		activity.StartTime,
		activity.EndTime,
		activity.DurationMin,
		activity.DistanceM,
		activity.CaloriesBurned,
		activity.AverageSpeedKmh,
		activity.PaceMinPerKm,
		activity.ElevationGainM,
		activity.HeartRateAvg,
		activity.HeartRateMax,
		activity.StartLatitude,
		activity.StartLongitude,
		activity.StartAddress,
		route,
		activity.CreatedAt,
		activity.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	if err := foldStats(ctx, tx, event); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, event, activity.Type); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Update locks the stored row, lets mutate derive the replacement from it and
// writes the row, the stats delta and the outbox event in one transaction.
func (r *Repository) Update(ctx context.Context, activityID string, mutate domain.ActivityMutation) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := lockActivity(ctx, tx, activityID)
	if err != nil {
		return err
	}
	activity, event, err := mutate(current)
	if err != nil {
		return err
	}
	route, err := json.Marshal(routeOrEmpty(activity.Route))
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}

	const stmt = `UPDATE activities SET activity_type=$2, title=$3, notes=$4, start_time=$5, end_time=$6,
            duration_min=$7, distance_m=$8, calories_burned=$9, average_speed_kmh=$10, pace_min_per_km=$11,
            elevation_gain_m=$12, heart_rate_avg=$13, heart_rate_max=$14, start_latitude=$15,
            start_longitude=$16, start_address=$17, route=$18, updated_at=$19
        WHERE id=$1`

	if _, err := tx.Exec(ctx, stmt,
		activityID,
		string(activity.Type),
		activity.Title,
		activity.Notes,
		activity.StartTime,
		activity.EndTime,
		activity.DurationMin,
		activity.DistanceM,
		activity.CaloriesBurned,
		activity.AverageSpeedKmh,
		activity.PaceMinPerKm,
		activity.ElevationGainM,
		activity.HeartRateAvg,
		activity.HeartRateMax,
		activity.StartLatitude,
		activity.StartLongitude,
		activity.StartAddress,
		route,
		activity.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update activity: %w", err)
	}

	if err := foldStats(ctx, tx, event); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, event, activity.Type); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete locks the stored row, lets remove derive the change from it and deletes
// the row with its stats delta and outbox event in one transaction.
func (r *Repository) Delete(ctx context.Context, activityID string, remove domain.ActivityRemoval) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := lockActivity(ctx, tx, activityID)
	if err != nil {
		return err
	}
	event, err := remove(current)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE id=$1`, activityID); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}

	if err := foldStats(ctx, tx, event); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, event, current.Type); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lockActivity reads the row FOR UPDATE so concurrent writers replace it one at a time.
func lockActivity(ctx context.Context, tx pgx.Tx, activityID string) (domain.Activity, error) {
	current, err := scanActivity(tx.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=$1 FOR UPDATE`, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Activity{}, domain.ErrActivityNotFound
		}
		return domain.Activity{}, fmt.Errorf("lock activity: %w", err)
	}
	return current, nil
}

// foldStats applies the change's delta to the owner's stats row under its row lock.
// ReplaceStats takes the same lock, so a rebuild never interleaves with a delta.
func foldStats(ctx context.Context, tx pgx.Tx, event domain.ChangeEvent) error {
	delta := event.Delta()
	if delta.IsZero() {
		return nil
	}
	stats, err := lockStats(ctx, tx, event.UserID)
	if err != nil {
		return err
	}
	stats.Apply(delta)
	stats.UpdatedAt = event.OccurredAt
	return upsertStats(ctx, tx, stats)
}

// Get retrieves an activity by ID. A missing row yields nil, nil.
func (r *Repository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=$1`, activityID)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return &activity, nil
}

// List returns a page of the user's activities ordered newest first.
func (r *Repository) List(ctx context.Context, userID string, filter domain.ActivityFilter, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	results, err := queryActivities(ctx, r.db, userID, filter, cursor, limit)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartTime, ID: last.ID}
	}
	return results, nextCursor, nil
}

// ListAll returns every activity of the user passing filter.
func (r *Repository) ListAll(ctx context.Context, userID string, filter domain.ActivityFilter) ([]domain.Activity, error) {
	return queryActivities(ctx, r.db, userID, filter, nil, 0)
}

// queryActivities selects the user's activities in (start_time, id) DESC order.
// A zero limit returns all matches.
func queryActivities(ctx context.Context, q queryer, userID string, filter domain.ActivityFilter, cursor *domain.Cursor, limit int) ([]domain.Activity, error) {
	var sb strings.Builder
	args := []any{userID}
	sb.WriteString(`SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1`)

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Type != nil {
		sb.WriteString(` AND activity_type=` + next(string(*filter.Type)))
	}
	if filter.From != nil {
		sb.WriteString(` AND start_time >= ` + next(*filter.From))
	}
	if filter.To != nil {
		sb.WriteString(` AND start_time < ` + next(*filter.To))
	}
	if cursor != nil {
		sb.WriteString(` AND (start_time, id) < (` + next(cursor.StartedAt) + `, ` + next(cursor.ID) + `)`)
	}
	sb.WriteString(` ORDER BY start_time DESC, id DESC`)
	if limit > 0 {
		sb.WriteString(` LIMIT ` + next(limit))
	}

	rows, err := q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		results = append(results, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return results, nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a            domain.Activity
		activityType string
		route        []byte
	)
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&activityType,
		&a.Title,
		&a.Notes,
		&a.StartTime,
		&a.EndTime,
		&a.DurationMin,
		&a.DistanceM,
		&a.CaloriesBurned,
		&a.AverageSpeedKmh,
		&a.PaceMinPerKm,
		&a.ElevationGainM,
		&a.HeartRateAvg,
		&a.HeartRateMax,
		&a.StartLatitude,
		&a.StartLongitude,
		&a.StartAddress,
		&route,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return domain.Activity{}, err
	}
	a.Type = domain.ActivityType(activityType)
	a.StartTime = a.StartTime.UTC()
	if len(route) > 0 {
		if err := json.Unmarshal(route, &a.Route); err != nil {
			return domain.Activity{}, fmt.Errorf("decode route: %w", err)
		}
	}
	if len(a.Route) == 0 {
		a.Route = nil
	}
	return a, nil
}

func routeOrEmpty(route []domain.RoutePoint) []domain.RoutePoint {
	if route == nil {
		return []domain.RoutePoint{}
	}
	return route
}

func insertOutbox(ctx context.Context, tx pgx.Tx, event domain.ChangeEvent, activityType domain.ActivityType) error {
	eventType, err := events.TypeFor(event.Kind)
	if err != nil {
		return err
	}
	payload := events.FromChange(event, activityType)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	dedupeKey := fmt.Sprintf("%s:%s:%d", event.ActivityID, eventType, event.OccurredAt.UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	if _, err := tx.Exec(ctx, stmt,
		"activity",
		event.ActivityID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(payload),
		body,
		dedupeKey,
	); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(events.ActivityChanged) string
}

func byUser(e events.ActivityChanged) string { return e.UserID }

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityCreated: {
		Topic:          events.TopicActivityEvents,
		SchemaSubject:  events.TopicActivityEvents + "-value",
		PartitionKeyFn: byUser,
	},
	events.TypeActivityUpdated: {
		Topic:          events.TopicActivityEvents,
		SchemaSubject:  events.TopicActivityEvents + "-value",
		PartitionKeyFn: byUser,
	},
	events.TypeActivityDeleted: {
		Topic:          events.TopicActivityEvents,
		SchemaSubject:  events.TopicActivityEvents + "-value",
		PartitionKeyFn: byUser,
	},
}
