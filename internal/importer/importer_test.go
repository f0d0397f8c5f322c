package importer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestAdmit_Defaults(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	tasks, err := Admit([]Draft{{Title: "  Call mom ", Start: &start}})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	got := tasks[0]
	_, perr := uuid.Parse(got.ID)
	assert.NoError(t, perr)
	assert.Equal(t, "Call mom", got.Title)
	assert.Equal(t, 15, got.ReminderMinutes)
	assert.False(t, got.Completed)
	assert.Equal(t, model.PriorityMedium, got.Priority)
	assert.Equal(t, start.Add(time.Hour), got.End)
	assert.Nil(t, got.Recurrence)
}

func TestAdmit_KeepsProvidedFields(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	until := start.AddDate(0, 2, 0)

	tasks, err := Admit([]Draft{{
		Title:           "Gym",
		Start:           &start,
		End:             &end,
		Priority:        "HIGH",
		ReminderMinutes: ptr(0),
		Completed:       ptr(true),
		Recurrence:      &DraftRecurrence{Frequency: "Weekly", Interval: 0, Until: &until},
	}})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	got := tasks[0]
	assert.Equal(t, end, got.End)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.Equal(t, 0, got.ReminderMinutes)
	assert.True(t, got.Completed)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, model.FrequencyWeekly, got.Recurrence.Frequency)
	assert.Equal(t, 1, got.Recurrence.Interval)
	assert.Equal(t, until, *got.Recurrence.Until)
}

func TestAdmit_BadEndAndNoneRecurrence(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)

	tasks, err := Admit([]Draft{{Title: "x", Start: &start, End: &before, Recurrence: &DraftRecurrence{Frequency: "none"}}})
	require.NoError(t, err)
	assert.Equal(t, start.Add(DefaultDuration), tasks[0].End)
	assert.Nil(t, tasks[0].Recurrence)
}

func TestAdmit_RejectsButKeepsGoing(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	ids := []string{"id-1", "id-2"}
	next := 0

	tasks, err := AdmitWithOptions([]Draft{
		{Title: "", Start: &start},
		{Title: "no start"},
		{Title: "ok", Start: &start},
		{Title: "ok too", Start: &start},
	}, Options{ReminderMinutes: 20, NewID: func() string { next++; return ids[next-1] }})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingTitle))
	assert.True(t, errors.Is(err, ErrMissingStart))
	require.Len(t, tasks, 2)
	assert.Equal(t, "id-1", tasks[0].ID)
	assert.Equal(t, "id-2", tasks[1].ID)
	assert.Equal(t, 20, tasks[0].ReminderMinutes)
}

func TestDecodeDrafts(t *testing.T) {
	arr, err := DecodeDrafts(strings.NewReader(`[{"title":"a","start":"2024-03-04T09:00:00Z"}]`))
	require.NoError(t, err)
	require.Len(t, arr, 1)
	assert.Equal(t, "a", arr[0].Title)
	require.NotNil(t, arr[0].Start)

	env, err := DecodeDrafts(strings.NewReader(`{"tasks":[{"title":"b","reminderMinutes":5,"recurrence":{"frequency":"daily"}}]}`))
	require.NoError(t, err)
	require.Len(t, env, 1)
	assert.Equal(t, 5, *env[0].ReminderMinutes)
	assert.Equal(t, "daily", env[0].Recurrence.Frequency)

	_, err = DecodeDrafts(strings.NewReader("  "))
	assert.Error(t, err)
	_, err = DecodeDrafts(strings.NewReader("[oops"))
	assert.Error(t, err)
}
