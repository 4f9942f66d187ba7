package domain

import (
	"sort"
	"time"
)

// Default goal values applied at registration.
const (
	DefaultDailyStepGoal     = 10000
	DefaultWeeklyWorkoutGoal = 5
	DefaultDailyCalorieGoal  = 500
)

// Goals are the user's fitness targets used to compute progress ratios.
type Goals struct {
	UserID            string
	SelectedGoals     []string
	DailyStepGoal     int
	WeeklyWorkoutGoal int
	DailyCalorieGoal  int
	UpdatedAt         time.Time
}

// DefaultGoals returns the goals created alongside a new user.
func DefaultGoals(userID string) Goals {
	return Goals{
		UserID:            userID,
		SelectedGoals:     []string{},
		DailyStepGoal:     DefaultDailyStepGoal,
		WeeklyWorkoutGoal: DefaultWeeklyWorkoutGoal,
		DailyCalorieGoal:  DefaultDailyCalorieGoal,
	}
}

// Validate rejects negative targets.
func (g Goals) Validate() error {
	var problems []string
	if g.DailyStepGoal < 0 {
		problems = append(problems, "daily_step_goal must be >= 0")
	}
	if g.WeeklyWorkoutGoal < 0 {
		problems = append(problems, "weekly_workout_goal must be >= 0")
	}
	if g.DailyCalorieGoal < 0 {
		problems = append(problems, "daily_calorie_goal must be >= 0")
	}
	return newValidationError(ErrInvalidInput, problems)
}

// DailySummary is the derived per-day aggregate of a user's activities.
type DailySummary struct {
	UserID              string
	Date                time.Time
	TotalSteps          int
	TotalDistanceM      float64
	TotalCalories       int
	TotalActiveMinutes  int
	TotalWorkouts       int
	StepGoalProgress    float64
	CalorieGoalProgress float64
	WorkoutGoalProgress float64
	UpdatedAt           time.Time
}

// Equal compares the derived fields, ignoring UpdatedAt.
func (s DailySummary) Equal(other DailySummary) bool {
	if !s.Date.Equal(other.Date) {
		return false
	}
	s.Date, other.Date = time.Time{}, time.Time{}
	s.UpdatedAt, other.UpdatedAt = time.Time{}, time.Time{}
	return s == other
}

// BuildDailySummary derives the summary for date from the given activities.
// Activities whose start date differs from date are ignored. Inputs are summed
// in (StartTime, ID) order so the result does not depend on the caller's ordering.
func BuildDailySummary(userID string, date time.Time, activities []Activity, goals Goals) DailySummary {
	day := DayOf(date)
	sameDay := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if a.UserID == userID && a.Date().Equal(day) {
			sameDay = append(sameDay, a)
		}
	}
	sort.Slice(sameDay, func(i, j int) bool {
		if !sameDay[i].StartTime.Equal(sameDay[j].StartTime) {
			return sameDay[i].StartTime.Before(sameDay[j].StartTime)
		}
		return sameDay[i].ID < sameDay[j].ID
	})

	summary := DailySummary{UserID: userID, Date: day}
	for _, a := range sameDay {
		c := a.Contribution()
		summary.TotalWorkouts += c.Workouts
		summary.TotalActiveMinutes += c.Minutes
		summary.TotalCalories += c.Calories
		summary.TotalDistanceM += c.DistanceM
	}

	summary.StepGoalProgress = progress(float64(summary.TotalSteps), float64(goals.DailyStepGoal))
	summary.CalorieGoalProgress = progress(float64(summary.TotalCalories), float64(goals.DailyCalorieGoal))
	summary.WorkoutGoalProgress = progress(float64(summary.TotalWorkouts), float64(goals.WeeklyWorkoutGoal)/7)
	return summary
}

// progress returns value/goal as a percentage capped at 100. A zero goal yields 0.
func progress(value, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	p := value / goal * 100
	if p > 100 {
		return 100
	}
	return p
}
