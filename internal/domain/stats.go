package domain

import (
	"sort"
	"time"
)

// UserStats are the lifetime aggregates maintained incrementally per user.
type UserStats struct {
	UserID           string
	TotalWorkouts    int
	TotalMinutes     int
	TotalCalories    int
	TotalDistanceM   float64
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate *time.Time
	UpdatedAt        time.Time
}

// StatsDelta moves UserStats from one contribution to another. Before is nil
// for a create, After is nil for a delete.
type StatsDelta struct {
	Before *Contribution
	After  *Contribution
}

// IsZero reports whether the delta changes nothing.
func (d StatsDelta) IsZero() bool {
	if d.Before == nil && d.After == nil {
		return true
	}
	if d.Before == nil || d.After == nil {
		return false
	}
	return *d.Before == *d.After
}

// Apply folds the delta into s. Totals never drop below zero.
func (s *UserStats) Apply(d StatsDelta) {
	if d.Before != nil {
		s.TotalWorkouts = clampInt(s.TotalWorkouts - d.Before.Workouts)
		s.TotalMinutes = clampInt(s.TotalMinutes - d.Before.Minutes)
		s.TotalCalories = clampInt(s.TotalCalories - d.Before.Calories)
		s.TotalDistanceM = clampFloat(s.TotalDistanceM - d.Before.DistanceM)
	}
	if d.After != nil {
		s.TotalWorkouts += d.After.Workouts
		s.TotalMinutes += d.After.Minutes
		s.TotalCalories += d.After.Calories
		s.TotalDistanceM += d.After.DistanceM
		if d.Before == nil || !d.Before.Date.Equal(d.After.Date) {
			s.advanceStreak(d.After.Date)
		}
	}
	if s.TotalWorkouts == 0 {
		s.CurrentStreak = 0
		s.LongestStreak = 0
		s.LastActivityDate = nil
	}
}

// advanceStreak extends the streak for an activity on date. Dates earlier than
// the last activity date are left for reconciliation.
func (s *UserStats) advanceStreak(date time.Time) {
	day := DayOf(date)
	switch {
	case s.LastActivityDate == nil:
		s.CurrentStreak = 1
		s.LastActivityDate = &day
	case day.Equal(*s.LastActivityDate):
		if s.CurrentStreak == 0 {
			s.CurrentStreak = 1
		}
	case day.Equal(s.LastActivityDate.AddDate(0, 0, 1)):
		s.CurrentStreak++
		s.LastActivityDate = &day
	case day.After(*s.LastActivityDate):
		s.CurrentStreak = 1
		s.LastActivityDate = &day
	}
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
}

// BuildUserStats rebuilds the aggregates from a user's complete activity set.
func BuildUserStats(userID string, activities []Activity) UserStats {
	ordered := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if a.UserID == userID {
			ordered = append(ordered, a)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].StartTime.Equal(ordered[j].StartTime) {
			return ordered[i].StartTime.Before(ordered[j].StartTime)
		}
		return ordered[i].ID < ordered[j].ID
	})

	stats := UserStats{UserID: userID}
	var days []time.Time
	for _, a := range ordered {
		c := a.Contribution()
		stats.TotalWorkouts += c.Workouts
		stats.TotalMinutes += c.Minutes
		stats.TotalCalories += c.Calories
		stats.TotalDistanceM += c.DistanceM
		if len(days) == 0 || !days[len(days)-1].Equal(c.Date) {
			days = append(days, c.Date)
		}
	}
	if len(days) == 0 {
		return stats
	}

	run := 0
	for i, day := range days {
		if i > 0 && day.Equal(days[i-1].AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > stats.LongestStreak {
			stats.LongestStreak = run
		}
	}
	last := days[len(days)-1]
	stats.CurrentStreak = run
	stats.LastActivityDate = &last
	return stats
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func clampFloat(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
