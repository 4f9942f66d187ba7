package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ActivityType enumerates the supported workout kinds.
type ActivityType string

const (
	ActivityTypeRun      ActivityType = "Run"
	ActivityTypeCycle    ActivityType = "Cycle"
	ActivityTypeWalk     ActivityType = "Walk"
	ActivityTypeSwim     ActivityType = "Swim"
	ActivityTypeYoga     ActivityType = "Yoga"
	ActivityTypeStrength ActivityType = "Strength"
)

// ActivityTypes lists every valid ActivityType in display order.
var ActivityTypes = []ActivityType{
	ActivityTypeRun,
	ActivityTypeCycle,
	ActivityTypeWalk,
	ActivityTypeSwim,
	ActivityTypeYoga,
	ActivityTypeStrength,
}

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RoutePoint is a single GPS fix along an activity route.
type RoutePoint struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Activity is the canonical workout record owned by exactly one user.
type Activity struct {
	ID              string
	UserID          string
	Type            ActivityType
	Title           string
	Notes           string
	StartTime       time.Time
	EndTime         *time.Time
	DurationMin     int
	DistanceM       *float64
	CaloriesBurned  *int
	AverageSpeedKmh *float64
	PaceMinPerKm    *float64
	ElevationGainM  *float64
	HeartRateAvg    *int
	HeartRateMax    *int
	StartLatitude   *float64
	StartLongitude  *float64
	StartAddress    string
	Route           []RoutePoint
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Date returns the calendar day that owns the activity: its start time's UTC date.
func (a Activity) Date() time.Time {
	return DayOf(a.StartTime)
}

// DayOf truncates t to midnight UTC.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ActivityDraft carries the fields supplied when logging a new activity.
type ActivityDraft struct {
	Type            ActivityType
	Title           string
	Notes           string
	StartTime       time.Time
	EndTime         *time.Time
	DurationMin     int
	DistanceM       *float64
	CaloriesBurned  *int
	AverageSpeedKmh *float64
	PaceMinPerKm    *float64
	ElevationGainM  *float64
	HeartRateAvg    *int
	HeartRateMax    *int
	StartLatitude   *float64
	StartLongitude  *float64
	StartAddress    string
	Route           []RoutePoint
}

// ActivityPatch carries optional updates; nil fields are left unchanged.
type ActivityPatch struct {
	Type           *ActivityType
	Title          *string
	Notes          *string
	StartTime      *time.Time
	EndTime        *time.Time
	DurationMin    *int
	DistanceM      *float64
	CaloriesBurned *int
	HeartRateAvg   *int
	HeartRateMax   *int
	StartAddress   *string
	Route          []RoutePoint
}

func (d ActivityDraft) toActivity() Activity {
	route := append([]RoutePoint(nil), d.Route...)
	return Activity{
		Type:            d.Type,
		Title:           strings.TrimSpace(d.Title),
		Notes:           d.Notes,
		StartTime:       d.StartTime.UTC(),
		EndTime:         utcPtr(d.EndTime),
		DurationMin:     d.DurationMin,
		DistanceM:       d.DistanceM,
		CaloriesBurned:  d.CaloriesBurned,
		AverageSpeedKmh: d.AverageSpeedKmh,
		PaceMinPerKm:    d.PaceMinPerKm,
		ElevationGainM:  d.ElevationGainM,
		HeartRateAvg:    d.HeartRateAvg,
		HeartRateMax:    d.HeartRateMax,
		StartLatitude:   d.StartLatitude,
		StartLongitude:  d.StartLongitude,
		StartAddress:    d.StartAddress,
		Route:           route,
	}
}

// apply returns a copy of a with the patch applied. Derived metrics are cleared
// when the values they were derived from change so DeriveMetrics can refresh them.
func (p ActivityPatch) apply(a Activity) Activity {
	out := a
	out.Route = append([]RoutePoint(nil), a.Route...)
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.StartTime != nil {
		out.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		out.EndTime = utcPtr(p.EndTime)
	}
	if p.DurationMin != nil {
		out.DurationMin = *p.DurationMin
		out.AverageSpeedKmh = nil
		out.PaceMinPerKm = nil
	}
	if p.DistanceM != nil {
		out.DistanceM = p.DistanceM
		out.AverageSpeedKmh = nil
		out.PaceMinPerKm = nil
	}
	if p.CaloriesBurned != nil {
		out.CaloriesBurned = p.CaloriesBurned
	}
	if p.HeartRateAvg != nil {
		out.HeartRateAvg = p.HeartRateAvg
	}
	if p.HeartRateMax != nil {
		out.HeartRateMax = p.HeartRateMax
	}
	if p.StartAddress != nil {
		out.StartAddress = *p.StartAddress
	}
	if p.Route != nil {
		out.Route = append([]RoutePoint(nil), p.Route...)
		out.ElevationGainM = nil
		out.StartLatitude = nil
		out.StartLongitude = nil
		if p.DistanceM == nil {
			out.DistanceM = nil
		}
		out.AverageSpeedKmh = nil
		out.PaceMinPerKm = nil
	}
	return out
}

// Validate checks the activity invariants and returns a *ValidationError
// wrapping ErrInvalidActivity when any are violated.
func (a Activity) Validate() error {
	var problems []string
	if !a.Type.Valid() {
		problems = append(problems, fmt.Sprintf("type %q is not supported", a.Type))
	}
	if a.Title == "" {
		problems = append(problems, "title is required")
	}
	if a.StartTime.IsZero() {
		problems = append(problems, "start_time is required")
	}
	if a.EndTime != nil && a.EndTime.Before(a.StartTime) {
		problems = append(problems, "end_time must not be before start_time")
	}
	if a.DurationMin < 0 {
		problems = append(problems, "duration must be >= 0")
	}
	if a.DistanceM != nil && (*a.DistanceM < 0 || !finite(*a.DistanceM)) {
		problems = append(problems, "distance must be a finite value >= 0")
	}
	if a.CaloriesBurned != nil && *a.CaloriesBurned < 0 {
		problems = append(problems, "calories_burned must be >= 0")
	}
	if a.HeartRateAvg != nil && *a.HeartRateAvg < 0 {
		problems = append(problems, "heart_rate_avg must be >= 0")
	}
	if a.HeartRateMax != nil && *a.HeartRateMax < 0 {
		problems = append(problems, "heart_rate_max must be >= 0")
	}
	problems = append(problems, validateRoute(a.Route)...)
	return newValidationError(ErrInvalidActivity, problems)
}

func validateRoute(route []RoutePoint) []string {
	var problems []string
	for i, p := range route {
		if !finite(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
			problems = append(problems, fmt.Sprintf("route[%d].lat out of range", i))
		}
		if !finite(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
			problems = append(problems, fmt.Sprintf("route[%d].lng out of range", i))
		}
		if i > 0 && p.Timestamp.Before(route[i-1].Timestamp) {
			problems = append(problems, fmt.Sprintf("route[%d] is earlier than route[%d]", i, i-1))
		}
	}
	return problems
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DeriveMetrics fills distance, speed, pace, elevation gain and start
// coordinates from the route and totals when they were not supplied.
func (a *Activity) DeriveMetrics() {
	if a.DistanceM == nil && len(a.Route) >= 2 {
		d := RouteDistance(a.Route)
		a.DistanceM = &d
	}
	if a.ElevationGainM == nil && len(a.Route) >= 2 {
		if gain, ok := ElevationGain(a.Route); ok {
			a.ElevationGainM = &gain
		}
	}
	if len(a.Route) > 0 {
		if a.StartLatitude == nil {
			lat := a.Route[0].Latitude
			a.StartLatitude = &lat
		}
		if a.StartLongitude == nil {
			lng := a.Route[0].Longitude
			a.StartLongitude = &lng
		}
	}
	if a.DistanceM != nil && *a.DistanceM > 0 && a.DurationMin > 0 {
		km := *a.DistanceM / 1000
		hours := float64(a.DurationMin) / 60
		if a.AverageSpeedKmh == nil {
			speed := km / hours
			a.AverageSpeedKmh = &speed
		}
		if a.PaceMinPerKm == nil {
			pace := float64(a.DurationMin) / km
			a.PaceMinPerKm = &pace
		}
	}
}

// Contribution is the share of daily and lifetime totals an activity accounts for.
type Contribution struct {
	Date      time.Time
	Workouts  int
	Minutes   int
	Calories  int
	DistanceM float64
}

// Contribution reports what the activity adds to its day and the user's stats.
// Missing distance or calories contribute zero but the activity still counts.
func (a Activity) Contribution() Contribution {
	c := Contribution{
		Date:     a.Date(),
		Workouts: 1,
		Minutes:  a.DurationMin,
	}
	if a.DistanceM != nil {
		c.DistanceM = *a.DistanceM
	}
	if a.CaloriesBurned != nil {
		c.Calories = *a.CaloriesBurned
	}
	return c
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
