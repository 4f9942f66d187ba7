package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LiveStatus is the lifecycle state of a live tracking session.
type LiveStatus string

// Live session states. Active and paused sessions are open; stopped is terminal.
const (
	LiveActive  LiveStatus = "active"
	LivePaused  LiveStatus = "paused"
	LiveStopped LiveStatus = "stopped"
)

// Open reports whether the session still accepts transitions.
func (s LiveStatus) Open() bool {
	return s == LiveActive || s == LivePaused
}

// LiveActivity is an in-progress workout recorded point by point from a device.
// A user has at most one open session.
type LiveActivity struct {
	ID              string
	UserID          string
	Type            ActivityType
	Title           string
	Status          LiveStatus
	StartTime       time.Time
	PausedAt        *time.Time
	StoppedAt       *time.Time
	PausedFor       time.Duration
	DistanceM       float64
	Calories        int
	PaceMinPerKm    *float64
	SpeedKmh        *float64
	Route           []RoutePoint
	LastLatitude    *float64
	LastLongitude   *float64
	LastUpdate      *time.Time
	FinalActivityID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GPSFix is one location reported by the device.
type GPSFix struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
	Speed     *float64
	Accuracy  *float64
}

// LiveMetrics carries device-computed readings; nil fields are left unchanged.
type LiveMetrics struct {
	Calories     *int
	PaceMinPerKm *float64
	SpeedKmh     *float64
}

// ActiveDuration is the elapsed time at now minus every pause, including one in progress.
func (l LiveActivity) ActiveDuration(now time.Time) time.Duration {
	end := now
	switch {
	case l.StoppedAt != nil:
		end = *l.StoppedAt
	case l.PausedAt != nil:
		end = *l.PausedAt
	}
	d := end.Sub(l.StartTime) - l.PausedFor
	if d < 0 {
		return 0
	}
	return d
}

// AddPoint appends a fix to the route and recomputes the distance. Only active
// sessions accept points.
func (l *LiveActivity) AddPoint(fix GPSFix, at time.Time) error {
	if l.Status != LiveActive {
		return fmt.Errorf("%w: session is %s", ErrLiveActivityState, l.Status)
	}
	point := RoutePoint{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Altitude:  fix.Altitude,
		Speed:     fix.Speed,
		Accuracy:  fix.Accuracy,
		Timestamp: at,
	}
	if problems := validateRoute([]RoutePoint{point}); len(problems) > 0 {
		return newValidationError(ErrInvalidInput, problems)
	}
	if fix.Accuracy != nil && (*fix.Accuracy < 0 || !finite(*fix.Accuracy)) {
		return newValidationError(ErrInvalidInput, []string{"accuracy must be a finite value >= 0"})
	}
	if n := len(l.Route); n > 0 && at.Before(l.Route[n-1].Timestamp) {
		at = l.Route[n-1].Timestamp
		point.Timestamp = at
	}

	l.Route = append(l.Route, point)
	l.LastLatitude = &point.Latitude
	l.LastLongitude = &point.Longitude
	l.LastUpdate = &at
	if len(l.Route) >= 2 {
		l.DistanceM = RouteDistance(l.Route)
	}
	return nil
}

// Pause stops the clock. Pausing a paused session is a no-op.
func (l *LiveActivity) Pause(at time.Time) error {
	switch l.Status {
	case LivePaused:
		return nil
	case LiveActive:
		l.Status = LivePaused
		l.PausedAt = &at
		return nil
	default:
		return fmt.Errorf("%w: session is %s", ErrLiveActivityState, l.Status)
	}
}

// Resume restarts the clock and banks the paused interval. Resuming an active
// session is a no-op.
func (l *LiveActivity) Resume(at time.Time) error {
	switch l.Status {
	case LiveActive:
		return nil
	case LivePaused:
		l.closePause(at)
		l.Status = LiveActive
		return nil
	default:
		return fmt.Errorf("%w: session is %s", ErrLiveActivityState, l.Status)
	}
}

// UpdateMetrics overwrites the device readings on an open session.
func (l *LiveActivity) UpdateMetrics(m LiveMetrics) error {
	if !l.Status.Open() {
		return fmt.Errorf("%w: session is %s", ErrLiveActivityState, l.Status)
	}
	var problems []string
	if m.Calories != nil && *m.Calories < 0 {
		problems = append(problems, "current_calories must be >= 0")
	}
	if m.PaceMinPerKm != nil && (*m.PaceMinPerKm < 0 || !finite(*m.PaceMinPerKm)) {
		problems = append(problems, "current_pace must be a finite value >= 0")
	}
	if m.SpeedKmh != nil && (*m.SpeedKmh < 0 || !finite(*m.SpeedKmh)) {
		problems = append(problems, "current_speed must be a finite value >= 0")
	}
	if err := newValidationError(ErrInvalidInput, problems); err != nil {
		return err
	}
	if m.Calories != nil {
		l.Calories = *m.Calories
	}
	if m.PaceMinPerKm != nil {
		l.PaceMinPerKm = m.PaceMinPerKm
	}
	if m.SpeedKmh != nil {
		l.SpeedKmh = m.SpeedKmh
	}
	return nil
}

// Stop closes the session and returns the draft of the activity it becomes.
func (l *LiveActivity) Stop(at time.Time) (ActivityDraft, error) {
	if !l.Status.Open() {
		return ActivityDraft{}, fmt.Errorf("%w: session is %s", ErrLiveActivityState, l.Status)
	}
	if l.Status == LivePaused {
		l.closePause(at)
	}
	l.Status = LiveStopped
	l.StoppedAt = &at

	distance := l.DistanceM
	calories := l.Calories
	draft := ActivityDraft{
		Type:            l.Type,
		Title:           l.Title,
		StartTime:       l.StartTime,
		EndTime:         &at,
		DurationMin:     int(l.ActiveDuration(at) / time.Minute),
		DistanceM:       &distance,
		CaloriesBurned:  &calories,
		AverageSpeedKmh: l.SpeedKmh,
		Route:           append([]RoutePoint(nil), l.Route...),
	}
	return draft, nil
}

func (l *LiveActivity) closePause(at time.Time) {
	if l.PausedAt != nil && at.After(*l.PausedAt) {
		l.PausedFor += at.Sub(*l.PausedAt).Truncate(time.Second)
	}
	l.PausedAt = nil
}

// LiveMutation edits the stored session, locked until the write commits.
type LiveMutation func(current *LiveActivity) error

// LiveActivityStore persists live sessions. CreateLive returns ErrLiveActivityOpen
// when the user already has an open session; UpdateLive returns
// ErrLiveActivityNotFound for a missing row and stores nothing when mutate fails.
type LiveActivityStore interface {
	CreateLive(ctx context.Context, live LiveActivity) error
	GetLive(ctx context.Context, id string) (*LiveActivity, error)
	OpenLive(ctx context.Context, userID string) (*LiveActivity, error)
	ListLive(ctx context.Context, userID string) ([]LiveActivity, error)
	UpdateLive(ctx context.Context, id string, mutate LiveMutation) (LiveActivity, error)
	DeleteLive(ctx context.Context, id string) error
}

// LiveService runs live tracking sessions and turns stopped ones into activities.
type LiveService struct {
	store      LiveActivityStore
	activities *Service
	logger     *slog.Logger
	now        func() time.Time
}

// NewLiveService constructs a LiveService. Stopped sessions are recorded through
// activities so the usual aggregation follows. Only WithLogger and WithClock apply.
func NewLiveService(store LiveActivityStore, activities *Service, opts ...ServiceOption) *LiveService {
	cfg := Service{logger: slog.Default(), now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LiveService{store: store, activities: activities, logger: cfg.logger, now: cfg.now}
}

// Start opens a session for userID.
func (s *LiveService) Start(ctx context.Context, userID string, activityType ActivityType, title string) (*LiveActivity, error) {
	title = strings.TrimSpace(title)
	var problems []string
	if !activityType.Valid() {
		problems = append(problems, fmt.Sprintf("type %q is not supported", activityType))
	}
	if title == "" {
		problems = append(problems, "title is required")
	}
	if err := newValidationError(ErrInvalidInput, problems); err != nil {
		return nil, err
	}

	now := s.now()
	live := LiveActivity{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      activityType,
		Title:     title,
		Status:    LiveActive,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateLive(ctx, live); err != nil {
		return nil, liveErr("start live activity", err)
	}
	return &live, nil
}

// Active returns the user's open session, or nil when there is none.
func (s *LiveService) Active(ctx context.Context, userID string) (*LiveActivity, error) {
	live, err := s.store.OpenLive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load open live activity: %w", err)
	}
	return live, nil
}

// List returns the user's sessions, newest first.
func (s *LiveService) List(ctx context.Context, userID string) ([]LiveActivity, error) {
	items, err := s.store.ListLive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list live activities: %w", err)
	}
	return items, nil
}

// Get fetches a session owned by userID.
func (s *LiveService) Get(ctx context.Context, userID, id string) (*LiveActivity, error) {
	live, err := s.store.GetLive(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get live activity: %w", err)
	}
	if live == nil {
		return nil, ErrLiveActivityNotFound
	}
	if live.UserID != userID {
		return nil, ErrForbidden
	}
	return live, nil
}

// AddPoint records a GPS fix on an active session.
func (s *LiveService) AddPoint(ctx context.Context, userID, id string, fix GPSFix) (*LiveActivity, error) {
	return s.mutate(ctx, "add gps point", userID, id, func(l *LiveActivity) error {
		return l.AddPoint(fix, s.now())
	})
}

// Pause pauses an active session.
func (s *LiveService) Pause(ctx context.Context, userID, id string) (*LiveActivity, error) {
	return s.mutate(ctx, "pause live activity", userID, id, func(l *LiveActivity) error {
		return l.Pause(s.now())
	})
}

// Resume resumes a paused session.
func (s *LiveService) Resume(ctx context.Context, userID, id string) (*LiveActivity, error) {
	return s.mutate(ctx, "resume live activity", userID, id, func(l *LiveActivity) error {
		return l.Resume(s.now())
	})
}

// UpdateMetrics stores device readings on an open session.
func (s *LiveService) UpdateMetrics(ctx context.Context, userID, id string, m LiveMetrics) (*LiveActivity, error) {
	return s.mutate(ctx, "update live metrics", userID, id, func(l *LiveActivity) error {
		return l.UpdateMetrics(m)
	})
}

// Stop closes the session and records it as an activity. When the activity cannot
// be created the session is reopened in its previous state.
func (s *LiveService) Stop(ctx context.Context, userID, id string) (*Activity, *LiveActivity, error) {
	var (
		draft ActivityDraft
		prior LiveActivity
	)
	if _, err := s.mutate(ctx, "stop live activity", userID, id, func(l *LiveActivity) error {
		prior = cloneLive(*l)
		d, err := l.Stop(s.now())
		draft = d
		return err
	}); err != nil {
		return nil, nil, err
	}

	activity, err := s.activities.CreateActivity(ctx, userID, draft)
	if err != nil {
		if _, restoreErr := s.store.UpdateLive(ctx, id, func(l *LiveActivity) error {
			*l = prior
			return nil
		}); restoreErr != nil {
			s.logger.ErrorContext(ctx, "reopen live activity failed",
				slog.String("live_activity_id", id),
				slog.Any("error", restoreErr),
			)
		}
		return nil, nil, err
	}

	stopped, err := s.store.UpdateLive(ctx, id, func(l *LiveActivity) error {
		l.FinalActivityID = &activity.ID
		l.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("link final activity: %w", err)
	}
	return activity, &stopped, nil
}

// Discard deletes a session without recording an activity.
func (s *LiveService) Discard(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteLive(ctx, id); err != nil {
		return liveErr("discard live activity", err)
	}
	return nil
}

func (s *LiveService) mutate(ctx context.Context, op, userID, id string, fn LiveMutation) (*LiveActivity, error) {
	updated, err := s.store.UpdateLive(ctx, id, func(l *LiveActivity) error {
		if l.UserID != userID {
			return ErrForbidden
		}
		if err := fn(l); err != nil {
			return err
		}
		l.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, liveErr(op, err)
	}
	return &updated, nil
}

func liveErr(op string, err error) error {
	if errors.Is(err, ErrLiveActivityNotFound) || errors.Is(err, ErrLiveActivityOpen) ||
		errors.Is(err, ErrLiveActivityState) || errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func cloneLive(l LiveActivity) LiveActivity {
	l.Route = append([]RoutePoint(nil), l.Route...)
	return l
}
