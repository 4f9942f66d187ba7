package api

import (
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/session"
)

// RoutePointRequest is one GPS fix in a request body.
type RoutePointRequest struct {
	Latitude  float64   `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"lng" validate:"gte=-180,lte=180"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Speed     *float64  `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Accuracy  *float64  `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// CreateActivityRequest is the payload for POST /api/v1/activities.
type CreateActivityRequest struct {
	ActivityType    string              `json:"activity_type" validate:"required,oneof=Run Cycle Walk Swim Yoga Strength"`
	Title           string              `json:"title" validate:"required,max=200"`
	Notes           string              `json:"notes" validate:"max=5000"`
	StartTime       time.Time           `json:"start_time" validate:"required"`
	EndTime         *time.Time          `json:"end_time"`
	DurationMin     int                 `json:"duration_minutes" validate:"gte=0"`
	DistanceM       *float64            `json:"distance_m" validate:"omitempty,gte=0"`
	CaloriesBurned  *int                `json:"calories_burned" validate:"omitempty,gte=0"`
	AverageSpeedKmh *float64            `json:"average_speed_kmh" validate:"omitempty,gte=0"`
	PaceMinPerKm    *float64            `json:"pace_min_per_km" validate:"omitempty,gte=0"`
	ElevationGainM  *float64            `json:"elevation_gain_m" validate:"omitempty,gte=0"`
	HeartRateAvg    *int                `json:"heart_rate_avg" validate:"omitempty,gte=0"`
	HeartRateMax    *int                `json:"heart_rate_max" validate:"omitempty,gte=0"`
	StartLatitude   *float64            `json:"start_latitude" validate:"omitempty,gte=-90,lte=90"`
	StartLongitude  *float64            `json:"start_longitude" validate:"omitempty,gte=-180,lte=180"`
	StartAddress    string              `json:"start_address" validate:"max=500"`
	Route           []RoutePointRequest `json:"route" validate:"omitempty,dive"`
}

func (r CreateActivityRequest) draft() domain.ActivityDraft {
	return domain.ActivityDraft{
		Type:            domain.ActivityType(r.ActivityType),
		Title:           r.Title,
		Notes:           r.Notes,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		DurationMin:     r.DurationMin,
		DistanceM:       r.DistanceM,
		CaloriesBurned:  r.CaloriesBurned,
		AverageSpeedKmh: r.AverageSpeedKmh,
		PaceMinPerKm:    r.PaceMinPerKm,
		ElevationGainM:  r.ElevationGainM,
		HeartRateAvg:    r.HeartRateAvg,
		HeartRateMax:    r.HeartRateMax,
		StartLatitude:   r.StartLatitude,
		StartLongitude:  r.StartLongitude,
		StartAddress:    r.StartAddress,
		Route:           routePoints(r.Route),
	}
}

// UpdateActivityRequest is the payload for PATCH /api/v1/activities/{id}.
// Omitted fields are left unchanged; an explicit empty route clears it.
type UpdateActivityRequest struct {
	ActivityType   *string             `json:"activity_type" validate:"omitempty,oneof=Run Cycle Walk Swim Yoga Strength"`
	Title          *string             `json:"title" validate:"omitempty,max=200"`
	Notes          *string             `json:"notes" validate:"omitempty,max=5000"`
	StartTime      *time.Time          `json:"start_time"`
	EndTime        *time.Time          `json:"end_time"`
	DurationMin    *int                `json:"duration_minutes" validate:"omitempty,gte=0"`
	DistanceM      *float64            `json:"distance_m" validate:"omitempty,gte=0"`
	CaloriesBurned *int                `json:"calories_burned" validate:"omitempty,gte=0"`
	HeartRateAvg   *int                `json:"heart_rate_avg" validate:"omitempty,gte=0"`
	HeartRateMax   *int                `json:"heart_rate_max" validate:"omitempty,gte=0"`
	StartAddress   *string             `json:"start_address" validate:"omitempty,max=500"`
	Route          []RoutePointRequest `json:"route" validate:"omitempty,dive"`
}

func (r UpdateActivityRequest) patch() domain.ActivityPatch {
	p := domain.ActivityPatch{
		Title:          r.Title,
		Notes:          r.Notes,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		DurationMin:    r.DurationMin,
		DistanceM:      r.DistanceM,
		CaloriesBurned: r.CaloriesBurned,
		HeartRateAvg:   r.HeartRateAvg,
		HeartRateMax:   r.HeartRateMax,
		StartAddress:   r.StartAddress,
		Route:          routePoints(r.Route),
	}
	if r.ActivityType != nil {
		t := domain.ActivityType(*r.ActivityType)
		p.Type = &t
	}
	return p
}

// routePoints keeps the nil/empty distinction of the decoded slice.
func routePoints(in []RoutePointRequest) []domain.RoutePoint {
	if in == nil {
		return nil
	}
	out := make([]domain.RoutePoint, 0, len(in))
	for _, p := range in {
		out = append(out, domain.RoutePoint{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Altitude:  p.Altitude,
			Speed:     p.Speed,
			Accuracy:  p.Accuracy,
			Timestamp: p.Timestamp,
		})
	}
	return out
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID      string              `json:"activity_id"`
	UserID          string              `json:"user_id"`
	ActivityType    string              `json:"activity_type"`
	Title           string              `json:"title"`
	Notes           string              `json:"notes,omitempty"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         *time.Time          `json:"end_time,omitempty"`
	DurationMin     int                 `json:"duration_minutes"`
	DistanceM       *float64            `json:"distance_m,omitempty"`
	CaloriesBurned  *int                `json:"calories_burned,omitempty"`
	AverageSpeedKmh *float64            `json:"average_speed_kmh,omitempty"`
	PaceMinPerKm    *float64            `json:"pace_min_per_km,omitempty"`
	ElevationGainM  *float64            `json:"elevation_gain_m,omitempty"`
	HeartRateAvg    *int                `json:"heart_rate_avg,omitempty"`
	HeartRateMax    *int                `json:"heart_rate_max,omitempty"`
	StartLatitude   *float64            `json:"start_latitude,omitempty"`
	StartLongitude  *float64            `json:"start_longitude,omitempty"`
	StartAddress    string              `json:"start_address,omitempty"`
	Route           []domain.RoutePoint `json:"route"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toActivityView(a domain.Activity) ActivityView {
	route := a.Route
	if route == nil {
		route = []domain.RoutePoint{}
	}
	return ActivityView{
		ActivityID:      a.ID,
		UserID:          a.UserID,
		ActivityType:    string(a.Type),
		Title:           a.Title,
		Notes:           a.Notes,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		DurationMin:     a.DurationMin,
		DistanceM:       a.DistanceM,
		CaloriesBurned:  a.CaloriesBurned,
		AverageSpeedKmh: a.AverageSpeedKmh,
		PaceMinPerKm:    a.PaceMinPerKm,
		ElevationGainM:  a.ElevationGainM,
		HeartRateAvg:    a.HeartRateAvg,
		HeartRateMax:    a.HeartRateMax,
		StartLatitude:   a.StartLatitude,
		StartLongitude:  a.StartLongitude,
		StartAddress:    a.StartAddress,
		Route:           route,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toActivityViews(items []domain.Activity) []ActivityView {
	out := make([]ActivityView, 0, len(items))
	for _, a := range items {
		out = append(out, toActivityView(a))
	}
	return out
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ActivityStatsView summarises activities over a window.
type ActivityStatsView struct {
	Count            int            `json:"count"`
	TotalDistanceM   float64        `json:"total_distance_m"`
	TotalDurationMin int            `json:"total_duration_minutes"`
	TotalCalories    int            `json:"total_calories"`
	AverageDuration  float64        `json:"average_duration_minutes"`
	MaxDurationMin   int            `json:"max_duration_minutes"`
	CountByType      map[string]int `json:"count_by_type"`
	Since            *time.Time     `json:"since,omitempty"`
}

func toActivityStatsView(s domain.ActivityStats, since *time.Time) ActivityStatsView {
	byType := make(map[string]int, len(s.CountByType))
	for t, n := range s.CountByType {
		byType[string(t)] = n
	}
	return ActivityStatsView{
		Count:            s.Count,
		TotalDistanceM:   s.TotalDistanceM,
		TotalDurationMin: s.TotalDurationMin,
		TotalCalories:    s.TotalCalories,
		AverageDuration:  s.AverageDuration,
		MaxDurationMin:   s.MaxDurationMin,
		CountByType:      byType,
		Since:            since,
	}
}

// DailySummaryView is the per-day aggregate.
type DailySummaryView struct {
	Date                string    `json:"date"`
	TotalSteps          int       `json:"total_steps"`
	TotalDistanceM      float64   `json:"total_distance_m"`
	TotalCalories       int       `json:"total_calories"`
	TotalActiveMinutes  int       `json:"total_active_minutes"`
	TotalWorkouts       int       `json:"total_workouts"`
	StepGoalProgress    float64   `json:"step_goal_progress"`
	CalorieGoalProgress float64   `json:"calorie_goal_progress"`
	WorkoutGoalProgress float64   `json:"workout_goal_progress"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toSummaryView(s domain.DailySummary) DailySummaryView {
	return DailySummaryView{
		Date:                s.Date.Format(time.DateOnly),
		TotalSteps:          s.TotalSteps,
		TotalDistanceM:      s.TotalDistanceM,
		TotalCalories:       s.TotalCalories,
		TotalActiveMinutes:  s.TotalActiveMinutes,
		TotalWorkouts:       s.TotalWorkouts,
		StepGoalProgress:    s.StepGoalProgress,
		CalorieGoalProgress: s.CalorieGoalProgress,
		WorkoutGoalProgress: s.WorkoutGoalProgress,
		UpdatedAt:           s.UpdatedAt,
	}
}

// UserStatsView is the lifetime aggregate.
type UserStatsView struct {
	TotalWorkouts    int       `json:"total_workouts"`
	TotalMinutes     int       `json:"total_minutes"`
	TotalCalories    int       `json:"total_calories"`
	TotalDistanceM   float64   `json:"total_distance_m"`
	CurrentStreak    int       `json:"current_streak"`
	LongestStreak    int       `json:"longest_streak"`
	LastActivityDate *string   `json:"last_activity_date,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toStatsView(s domain.UserStats) UserStatsView {
	v := UserStatsView{
		TotalWorkouts:  s.TotalWorkouts,
		TotalMinutes:   s.TotalMinutes,
		TotalCalories:  s.TotalCalories,
		TotalDistanceM: s.TotalDistanceM,
		CurrentStreak:  s.CurrentStreak,
		LongestStreak:  s.LongestStreak,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.LastActivityDate != nil {
		d := s.LastActivityDate.Format(time.DateOnly)
		v.LastActivityDate = &d
	}
	return v
}

// RegisterRequest is the payload for POST /api/v1/auth/register.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
}

// LoginRequest is the payload for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest optionally carries the refresh token whose family is revoked.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User   UserView         `json:"user"`
	Tokens domain.TokenPair `json:"tokens"`
}

// UserView is the public profile of the caller.
type UserView struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	Bio          string     `json:"bio,omitempty"`
	OnlineStatus string     `json:"online_status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toUserView(u domain.User) UserView {
	return UserView{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		AvatarURL:    u.AvatarURL,
		Bio:          u.Bio,
		OnlineStatus: string(u.OnlineStatus),
		LastLoginAt:  u.LastLoginAt,
		LastSeenAt:   u.LastSeenAt,
		CreatedAt:    u.CreatedAt,
	}
}

// UpdateProfileRequest is the payload for PATCH /api/v1/users/me.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=100"`
	FirstName   *string `json:"first_name" validate:"omitempty,max=100"`
	LastName    *string `json:"last_name" validate:"omitempty,max=100"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,url,max=500"`
	Bio         *string `json:"bio" validate:"omitempty,max=1000"`
}

func (r UpdateProfileRequest) patch() domain.ProfilePatch {
	return domain.ProfilePatch{
		DisplayName: r.DisplayName,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		AvatarURL:   r.AvatarURL,
		Bio:         r.Bio,
	}
}

// ChangePasswordRequest is the payload for PUT /api/v1/users/me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// StatusRequest is the payload for PUT /api/v1/users/me/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=online offline away"`
}

// StatusView is the caller's presence record.
type StatusView struct {
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

func toStatusView(s session.State) StatusView {
	return StatusView{Status: string(s.Status), LastLoginAt: s.LastLoginAt, LastSeenAt: s.LastSeenAt}
}

// GoalsRequest updates goals; omitted fields keep their current value.
type GoalsRequest struct {
	SelectedGoals     []string `json:"selected_goals" validate:"omitempty,max=20,dive,max=50"`
	DailyStepGoal     *int     `json:"daily_step_goal" validate:"omitempty,gte=0"`
	WeeklyWorkoutGoal *int     `json:"weekly_workout_goal" validate:"omitempty,gte=0"`
	DailyCalorieGoal  *int     `json:"daily_calorie_goal" validate:"omitempty,gte=0"`
}

func (r GoalsRequest) merge(g domain.Goals) domain.Goals {
	if r.SelectedGoals != nil {
		g.SelectedGoals = append([]string{}, r.SelectedGoals...)
	}
	if r.DailyStepGoal != nil {
		g.DailyStepGoal = *r.DailyStepGoal
	}
	if r.WeeklyWorkoutGoal != nil {
		g.WeeklyWorkoutGoal = *r.WeeklyWorkoutGoal
	}
	if r.DailyCalorieGoal != nil {
		g.DailyCalorieGoal = *r.DailyCalorieGoal
	}
	return g
}

// GoalsView exposes the caller's goals.
type GoalsView struct {
	SelectedGoals     []string  `json:"selected_goals"`
	DailyStepGoal     int       `json:"daily_step_goal"`
	WeeklyWorkoutGoal int       `json:"weekly_workout_goal"`
	DailyCalorieGoal  int       `json:"daily_calorie_goal"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toGoalsView(g domain.Goals) GoalsView {
	selected := g.SelectedGoals
	if selected == nil {
		selected = []string{}
	}
	return GoalsView{
		SelectedGoals:     selected,
		DailyStepGoal:     g.DailyStepGoal,
		WeeklyWorkoutGoal: g.WeeklyWorkoutGoal,
		DailyCalorieGoal:  g.DailyCalorieGoal,
		UpdatedAt:         g.UpdatedAt,
	}
}

// PreferencesRequest updates preferences; omitted fields keep their current value.
type PreferencesRequest struct {
	EmailNotifications *bool   `json:"email_notifications"`
	PushNotifications  *bool   `json:"push_notifications"`
	ActivityReminders  *bool   `json:"activity_reminders"`
	ProfileVisibility  *string `json:"profile_visibility" validate:"omitempty,oneof=public friends private"`
	ShowStatsPublicly  *bool   `json:"show_stats_publicly"`
	Theme              *string `json:"theme" validate:"omitempty,oneof=light dark auto"`
	Units              *string `json:"units" validate:"omitempty,oneof=metric imperial"`
}

func (r PreferencesRequest) merge(p domain.Preferences) domain.Preferences {
	if r.EmailNotifications != nil {
		p.EmailNotifications = *r.EmailNotifications
	}
	if r.PushNotifications != nil {
		p.PushNotifications = *r.PushNotifications
	}
	if r.ActivityReminders != nil {
		p.ActivityReminders = *r.ActivityReminders
	}
	if r.ProfileVisibility != nil {
		p.ProfileVisibility = *r.ProfileVisibility
	}
	if r.ShowStatsPublicly != nil {
		p.ShowStatsPublicly = *r.ShowStatsPublicly
	}
	if r.Theme != nil {
		p.Theme = *r.Theme
	}
	if r.Units != nil {
		p.Units = *r.Units
	}
	return p
}

// PreferencesView exposes the caller's preferences.
type PreferencesView struct {
	EmailNotifications bool      `json:"email_notifications"`
	PushNotifications  bool      `json:"push_notifications"`
	ActivityReminders  bool      `json:"activity_reminders"`
	ProfileVisibility  string    `json:"profile_visibility"`
	ShowStatsPublicly  bool      `json:"show_stats_publicly"`
	Theme              string    `json:"theme"`
	Units              string    `json:"units"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toPreferencesView(p domain.Preferences) PreferencesView {
	return PreferencesView{
		EmailNotifications: p.EmailNotifications,
		PushNotifications:  p.PushNotifications,
		ActivityReminders:  p.ActivityReminders,
		ProfileVisibility:  p.ProfileVisibility,
		ShowStatsPublicly:  p.ShowStatsPublicly,
		Theme:              p.Theme,
		Units:              p.Units,
		UpdatedAt:          p.UpdatedAt,
	}
}

// StartLiveRequest is the payload for POST /api/v1/live-activities.
type StartLiveRequest struct {
	ActivityType string `json:"activity_type" validate:"required,oneof=Run Cycle Walk Swim Yoga Strength"`
	Title        string `json:"title" validate:"required,max=200"`
}

// GPSPointRequest is one fix streamed to an active session. The server stamps it.
type GPSPointRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Altitude  *float64 `json:"altitude"`
	Speed     *float64 `json:"speed" validate:"omitempty,gte=0"`
	Accuracy  *float64 `json:"accuracy" validate:"omitempty,gte=0"`
}

func (r GPSPointRequest) fix() domain.GPSFix {
	return domain.GPSFix{Latitude: *r.Latitude, Longitude: *r.Longitude, Altitude: r.Altitude, Speed: r.Speed, Accuracy: r.Accuracy}
}

// LiveMetricsRequest carries device readings; omitted fields are unchanged.
type LiveMetricsRequest struct {
	Calories     *int     `json:"current_calories" validate:"omitempty,gte=0"`
	PaceMinPerKm *float64 `json:"current_pace" validate:"omitempty,gte=0"`
	SpeedKmh     *float64 `json:"current_speed" validate:"omitempty,gte=0"`
}

// LiveActivityView exposes a live tracking session.
type LiveActivityView struct {
	ID                 string              `json:"id"`
	ActivityType       string              `json:"activity_type"`
	Title              string              `json:"title"`
	Status             string              `json:"status"`
	StartTime          time.Time           `json:"start_time"`
	PausedAt           *time.Time          `json:"paused_at,omitempty"`
	StoppedAt          *time.Time          `json:"stopped_at,omitempty"`
	ElapsedSeconds     int64               `json:"elapsed_seconds"`
	PausedSeconds      int64               `json:"paused_seconds"`
	CurrentDistanceM   float64             `json:"current_distance_m"`
	CurrentCalories    int                 `json:"current_calories"`
	CurrentPace        *float64            `json:"current_pace,omitempty"`
	CurrentSpeed       *float64            `json:"current_speed,omitempty"`
	LastLatitude       *float64            `json:"last_latitude,omitempty"`
	LastLongitude      *float64            `json:"last_longitude,omitempty"`
	LastLocationUpdate *time.Time          `json:"last_location_update,omitempty"`
	Route              []domain.RoutePoint `json:"route"`
	FinalActivityID    *string             `json:"final_activity_id,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func toLiveView(l domain.LiveActivity, now time.Time) LiveActivityView {
	route := l.Route
	if route == nil {
		route = []domain.RoutePoint{}
	}
	return LiveActivityView{
		ID:                 l.ID,
		ActivityType:       string(l.Type),
		Title:              l.Title,
		Status:             string(l.Status),
		StartTime:          l.StartTime,
		PausedAt:           l.PausedAt,
		StoppedAt:          l.StoppedAt,
		ElapsedSeconds:     int64(l.ActiveDuration(now) / time.Second),
		PausedSeconds:      int64(l.PausedFor / time.Second),
		CurrentDistanceM:   l.DistanceM,
		CurrentCalories:    l.Calories,
		CurrentPace:        l.PaceMinPerKm,
		CurrentSpeed:       l.SpeedKmh,
		LastLatitude:       l.LastLatitude,
		LastLongitude:      l.LastLongitude,
		LastLocationUpdate: l.LastUpdate,
		Route:              route,
		FinalActivityID:    l.FinalActivityID,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

// ActiveLiveResponse answers GET /api/v1/live-activities/active.
type ActiveLiveResponse struct {
	Active       bool              `json:"active"`
	LiveActivity *LiveActivityView `json:"live_activity,omitempty"`
}

// StopLiveResponse returns the stopped session and the activity it produced.
type StopLiveResponse struct {
	LiveActivity LiveActivityView `json:"live_activity"`
	Activity     ActivityView     `json:"activity"`
	Message      string           `json:"message"`
}
