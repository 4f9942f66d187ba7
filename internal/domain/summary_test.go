package domain

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)

func activityAt(id string, start time.Time, minutes int, distance *float64, calories *int) Activity {
	return Activity{
		ID:             id,
		UserID:         "user-1",
		Type:           ActivityTypeCycle,
		Title:          id,
		StartTime:      start,
		DurationMin:    minutes,
		DistanceM:      distance,
		CaloriesBurned: calories,
	}
}

func TestBuildDailySummaryTotals(t *testing.T) {
	activities := []Activity{
		activityAt("a", day.Add(8*time.Hour), 60, floatPtr(15000), intPtr(400)),
		activityAt("b", day.Add(18*time.Hour), 30, nil, intPtr(150)),
		activityAt("c", day.Add(-time.Hour), 45, floatPtr(9000), nil),
		activityAt("d", day.Add(25*time.Hour), 45, floatPtr(9000), nil),
	}

	summary := BuildDailySummary("user-1", day, activities, DefaultGoals("user-1"))

	assert.Equal(t, 2, summary.TotalWorkouts)
	assert.Equal(t, 90, summary.TotalActiveMinutes)
	assert.Equal(t, 550, summary.TotalCalories)
	assert.Equal(t, 15000.0, summary.TotalDistanceM)
	assert.Equal(t, 0, summary.TotalSteps)
	assert.Equal(t, 100.0, summary.CalorieGoalProgress)
	assert.Equal(t, 0.0, summary.StepGoalProgress)
	assert.Equal(t, 100.0, summary.WorkoutGoalProgress)
}

func TestBuildDailySummaryWorkoutProgressCapped(t *testing.T) {
	goals := DefaultGoals("user-1")
	goals.WeeklyWorkoutGoal = 7
	goals.DailyCalorieGoal = 0
	activities := []Activity{
		activityAt("a", day.Add(time.Hour), 10, nil, intPtr(50)),
		activityAt("b", day.Add(2*time.Hour), 10, nil, nil),
	}
	summary := BuildDailySummary("user-1", day, activities, goals)
	assert.Equal(t, 100.0, summary.WorkoutGoalProgress)
	assert.Equal(t, 0.0, summary.CalorieGoalProgress)
}

func TestBuildDailySummaryIgnoresOtherUsers(t *testing.T) {
	other := activityAt("x", day.Add(time.Hour), 10, floatPtr(1000), nil)
	other.UserID = "user-2"
	summary := BuildDailySummary("user-1", day, []Activity{other}, DefaultGoals("user-1"))
	assert.Zero(t, summary.TotalWorkouts)
	assert.Zero(t, summary.TotalDistanceM)
}

func TestBuildDailySummaryIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	activities := make([]Activity, 0, 50)
	var expected float64
	for i := 0; i < 50; i++ {
		d := rng.Float64() * 12345.678
		activities = append(activities, activityAt(fmt.Sprintf("act-%02d", i), day.Add(time.Duration(rng.Intn(86400))*time.Second), rng.Intn(90), &d, intPtr(rng.Intn(500))))
	}
	goals := DefaultGoals("user-1")
	first := BuildDailySummary("user-1", day, activities, goals)

	for i := 0; i < 10; i++ {
		shuffled := append([]Activity(nil), activities...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		again := BuildDailySummary("user-1", day, shuffled, goals)
		require.True(t, first.Equal(again), "summary changed with input order")
	}

	for _, a := range activities {
		expected += *a.DistanceM
	}
	assert.InDelta(t, expected, first.TotalDistanceM, 1e-6)
}

func TestDailySummaryEqualIgnoresUpdatedAt(t *testing.T) {
	a := DailySummary{UserID: "u", Date: day, TotalWorkouts: 1, UpdatedAt: time.Now()}
	b := a
	b.UpdatedAt = a.UpdatedAt.Add(time.Hour)
	b.Date = day.In(time.FixedZone("X", 3600))
	assert.True(t, a.Equal(b))
	b.TotalWorkouts = 2
	assert.False(t, a.Equal(b))
}
