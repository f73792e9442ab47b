package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focuscal/internal/config"
	"focuscal/internal/model"
)

var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Connect(config.DatabaseConfig{
		Backend: config.DatabaseSQLite,
		DSN:     filepath.Join(t.TempDir(), "focuscal.db"),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = Close(db) })
	return New(db)
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Backend: "oracle"})
	assert.Error(t, err)
}

func TestFetchMeetingsInRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMeeting(ctx, &Meeting{UserID: "u1", Title: "late", StartTime: at(monday, 14, 0), EndTime: at(monday, 15, 0)}))
	require.NoError(t, s.CreateMeeting(ctx, &Meeting{UserID: "u1", Title: "early", StartTime: at(monday, 9, 0), EndTime: at(monday, 10, 0)}))
	require.NoError(t, s.CreateMeeting(ctx, &Meeting{UserID: "u1", Title: "next week", StartTime: at(monday.AddDate(0, 0, 7), 9, 0), EndTime: at(monday.AddDate(0, 0, 7), 10, 0)}))
	require.NoError(t, s.CreateMeeting(ctx, &Meeting{UserID: "u2", Title: "other user", StartTime: at(monday, 11, 0), EndTime: at(monday, 12, 0)}))

	got, err := s.FetchMeetings(ctx, "u1", monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].Title)
	assert.Equal(t, "late", got[1].Title)
	assert.Equal(t, model.SourceMeeting, got[0].Source)
	assert.True(t, got[0].Start.Equal(at(monday, 9, 0)))
}

func TestFetchConfirmedBlocksOnlyConfirmed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTimeBlock(ctx, &TimeBlock{UserID: "u1", Title: "confirmed", StartTime: at(monday, 9, 0), EndTime: at(monday, 10, 0), Status: BlockStatusConfirmed}))
	require.NoError(t, s.CreateTimeBlock(ctx, &TimeBlock{UserID: "u1", Title: "lunch", BlockType: BlockTypeBreak, StartTime: at(monday, 12, 0), EndTime: at(monday, 13, 0), Status: BlockStatusConfirmed}))
	require.NoError(t, s.CreateTimeBlock(ctx, &TimeBlock{UserID: "u1", Title: "suggested", StartTime: at(monday, 10, 0), EndTime: at(monday, 11, 0)}))
	require.NoError(t, s.CreateTimeBlock(ctx, &TimeBlock{UserID: "u1", Title: "dismissed", StartTime: at(monday, 15, 0), EndTime: at(monday, 16, 0), Status: BlockStatusDismissed}))

	got, err := s.FetchConfirmedBlocks(ctx, "u1", monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "confirmed", got[0].Title)
	assert.Equal(t, "lunch", got[1].Title)
	assert.Equal(t, model.SourceTimeBlock, got[0].Source)
}

func TestFetchPendingTasksOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	create := func(id, prio string, status TaskStatus, offset time.Duration) {
		require.NoError(t, s.CreateTask(ctx, &Task{ID: id, UserID: "u1", Title: id, Priority: prio, Status: status, CreatedAt: base.Add(offset)}))
	}
	create("low-1", "low", TaskStatusPending, 0)
	create("high-2", "high", TaskStatusPending, 2*time.Minute)
	create("med-1", "medium", TaskStatusPending, time.Minute)
	create("high-1", "HIGH", TaskStatusPending, time.Minute)
	create("done", "high", TaskStatusDone, 0)

	got, err := s.FetchPendingTasks(ctx, "u1")
	require.NoError(t, err)

	var ids []string
	for _, task := range got {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"high-1", "high-2", "med-1", "low-1"}, ids)
	assert.Equal(t, model.PriorityHigh, got[0].Priority)
	assert.False(t, got[0].UpdatedAt.IsZero())
}

func TestPreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prefs, err := s.FetchPreferences(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, prefs.Found)
	assert.Equal(t, model.DefaultWorkingHours(), prefs.WorkingHours)

	var policy model.WorkingHoursPolicy
	policy.Set(time.Tuesday, &model.DayHours{Start: model.ClockTime{Hour: 10}, End: model.ClockTime{Hour: 18, Minute: 30}})
	require.NoError(t, s.SavePreferences(ctx, "u1", model.Preferences{
		WorkingHours:      policy,
		OptimalFocusHours: 2,
		Timezone:          "Europe/Berlin",
	}))

	prefs, err = s.FetchPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, prefs.Found)
	assert.Equal(t, policy, prefs.WorkingHours)
	assert.Equal(t, 2.0, prefs.OptimalFocusHours)
	assert.Equal(t, "Europe/Berlin", prefs.Timezone)
	assert.False(t, prefs.UpdatedAt.IsZero())

	// Saving again updates in place.
	require.NoError(t, s.SavePreferences(ctx, "u1", model.Preferences{WorkingHours: policy, OptimalFocusHours: 1.5}))
	prefs, err = s.FetchPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1.5, prefs.OptimalFocusHours)
}

func suggestion(start, end time.Time, taskID *string) model.FocusBlockSuggestion {
	return model.FocusBlockSuggestion{
		Title:         "Focus",
		StartTime:     start,
		EndTime:       end,
		BlockType:     model.BlockTypeFocus,
		RelatedTaskID: taskID,
	}
}

func TestPersistSuggestionsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	windowEnd := monday.AddDate(0, 0, 1)
	taskID := "task-1"

	confirmed := &TimeBlock{UserID: "u1", Title: "kept", StartTime: at(monday, 9, 0), EndTime: at(monday, 10, 30), Status: BlockStatusConfirmed}
	require.NoError(t, s.CreateTimeBlock(ctx, confirmed))
	otherDay := &TimeBlock{UserID: "u1", Title: "other day", StartTime: at(monday.AddDate(0, 0, 2), 9, 0), EndTime: at(monday.AddDate(0, 0, 2), 10, 0)}
	require.NoError(t, s.CreateTimeBlock(ctx, otherDay))

	batch := []model.FocusBlockSuggestion{
		suggestion(at(monday, 11, 0), at(monday, 12, 30), &taskID),
		suggestion(at(monday, 13, 0), at(monday, 14, 0), nil),
	}
	require.NoError(t, s.PersistSuggestions(ctx, "u1", monday, windowEnd, batch))
	require.NoError(t, s.PersistSuggestions(ctx, "u1", monday, windowEnd, batch))

	blocks, err := s.ListTimeBlocks(ctx, "u1", monday, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, blocks, 4, "confirmed + two suggestions + other day")

	assert.Equal(t, "kept", blocks[0].Title)
	assert.Equal(t, BlockStatusConfirmed, blocks[0].Status)
	assert.Equal(t, BlockStatusSuggested, blocks[1].Status)
	require.NotNil(t, blocks[1].RelatedTaskID)
	assert.Equal(t, "task-1", *blocks[1].RelatedTaskID)
	assert.Nil(t, blocks[2].RelatedTaskID)
	assert.Equal(t, "other day", blocks[3].Title)

	// An empty run clears the window's suggestions but nothing else.
	require.NoError(t, s.PersistSuggestions(ctx, "u1", monday, windowEnd, nil))
	blocks, err = s.ListTimeBlocks(ctx, "u1", monday, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "kept", blocks[0].Title)
	assert.Equal(t, "other day", blocks[1].Title)
}

func TestConfirmTimeBlock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PersistSuggestions(ctx, "u1", monday, monday.AddDate(0, 0, 1), []model.FocusBlockSuggestion{
		suggestion(at(monday, 11, 0), at(monday, 12, 30), nil),
	}))
	blocks, err := s.ListTimeBlocks(ctx, "u1", monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	_, err = s.ConfirmTimeBlock(ctx, "u2", blocks[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	confirmed, err := s.ConfirmTimeBlock(ctx, "u1", blocks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, BlockStatusConfirmed, confirmed.Status)

	commitments, err := s.FetchConfirmedBlocks(ctx, "u1", monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, commitments, 1)

	// Re-running the engine for the window leaves the confirmed block alone.
	require.NoError(t, s.PersistSuggestions(ctx, "u1", monday, monday.AddDate(0, 0, 1), nil))
	commitments, err = s.FetchConfirmedBlocks(ctx, "u1", monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, commitments, 1)
}

func TestConfirmTimeBlockRequiresSuggestedStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dismissed := &TimeBlock{UserID: "u1", Title: "dismissed", StartTime: at(monday, 9, 0), EndTime: at(monday, 10, 0), Status: BlockStatusDismissed}
	require.NoError(t, s.CreateTimeBlock(ctx, dismissed))
	_, err := s.ConfirmTimeBlock(ctx, "u1", dismissed.ID)
	assert.ErrorIs(t, err, ErrConflict)

	suggested := &TimeBlock{UserID: "u1", Title: "focus", StartTime: at(monday, 11, 0), EndTime: at(monday, 12, 0)}
	require.NoError(t, s.CreateTimeBlock(ctx, suggested))
	_, err = s.ConfirmTimeBlock(ctx, "u1", suggested.ID)
	require.NoError(t, err)
	_, err = s.ConfirmTimeBlock(ctx, "u1", suggested.ID)
	assert.ErrorIs(t, err, ErrConflict, "already confirmed")

	blocks, err := s.ListTimeBlocks(ctx, "u1", monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, BlockStatusDismissed, blocks[0].Status)
	assert.Equal(t, BlockStatusConfirmed, blocks[1].Status)
}

func TestFetchFailsOnClosedDatabase(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, Close(s.DB()))

	_, err := s.FetchMeetings(context.Background(), "u1", monday, monday.AddDate(0, 0, 1))
	assert.Error(t, err)
	_, err = s.FetchPendingTasks(context.Background(), "u1")
	assert.Error(t, err)
}
