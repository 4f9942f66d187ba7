package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
)

func TestListPaginatesNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		a := domain.Activity{ID: fmt.Sprintf("act-%d", i), UserID: "user-1", Type: domain.ActivityTypeRun, StartTime: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, store.Create(ctx, a, domain.ChangeEvent{Kind: domain.ChangeCreated}))
	}
	// Same start time as act-4: ordered by id descending.
	require.NoError(t, store.Create(ctx, domain.Activity{ID: "act-9", UserID: "user-1", Type: domain.ActivityTypeWalk, StartTime: base.Add(4 * time.Hour)}, domain.ChangeEvent{}))
	require.NoError(t, store.Create(ctx, domain.Activity{ID: "other", UserID: "user-2", StartTime: base}, domain.ChangeEvent{}))

	page, next, err := store.List(ctx, "user-1", domain.ActivityFilter{}, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "act-9", page[0].ID)
	assert.Equal(t, "act-4", page[1].ID)
	require.NotNil(t, next)

	page, next, err = store.List(ctx, "user-1", domain.ActivityFilter{}, next, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"act-3", "act-2"}, ids(page))

	page, _, err = store.List(ctx, "user-1", domain.ActivityFilter{}, next, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"act-1", "act-0"}, ids(page))

	walk := domain.ActivityTypeWalk
	page, _, err = store.List(ctx, "user-1", domain.ActivityFilter{Type: &walk}, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"act-9"}, ids(page))

	from := base.Add(time.Hour)
	to := base.Add(3 * time.Hour)
	page, _, err = store.List(ctx, "user-1", domain.ActivityFilter{From: &from, To: &to}, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"act-2", "act-1"}, ids(page))

	assert.Len(t, store.Changes(), 7)
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	user := domain.User{ID: "u1", Email: "a@example.com"}
	require.NoError(t, store.CreateUser(ctx, user, domain.DefaultGoals("u1"), domain.UserStats{UserID: "u1"}, domain.DefaultPreferences("u1")))

	dup := domain.User{ID: "u2", Email: "A@Example.com"}
	err := store.CreateUser(ctx, dup, domain.DefaultGoals("u2"), domain.UserStats{UserID: "u2"}, domain.DefaultPreferences("u2"))
	require.ErrorIs(t, err, domain.ErrEmailTaken)

	got, err := store.GetUserByID(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, got)
	goals, err := store.GetGoals(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, goals)
}

func ids(items []domain.Activity) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}
