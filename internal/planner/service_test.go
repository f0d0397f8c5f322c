package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/internal/importer"
	"planner/internal/model"
	"planner/internal/store"
)

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func dailyTask(id string) model.Task {
	return model.Task{
		ID:              id,
		Title:           "Standup",
		Start:           at(2024, 1, 1, 9, 0),
		End:             at(2024, 1, 1, 9, 15),
		Priority:        model.PriorityMedium,
		ReminderMinutes: 5,
		Recurrence:      &model.Recurrence{Frequency: model.FrequencyDaily, Interval: 1},
	}
}

func oneOff(id string) model.Task {
	return model.Task{
		ID:       id,
		Title:    "Dentist",
		Start:    at(2024, 1, 2, 14, 0),
		End:      at(2024, 1, 2, 15, 0),
		Priority: model.PriorityHigh,
	}
}

func newLoaded(t *testing.T, tasks ...model.Task) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory(tasks)
	s := New(mem)
	s.SetLocation(time.UTC)
	require.NoError(t, s.Load(context.Background()))
	return s, mem
}

type failingStore struct{ *store.Memory }

func (failingStore) Save(context.Context, []model.Task) error { return errors.New("disk full") }

func TestCreate(t *testing.T) {
	ctx := context.Background()
	s, mem := newLoaded(t)

	created, err := s.Create(ctx, model.Task{Title: "x", Start: at(2024, 1, 1, 9, 0), End: at(2024, 1, 1, 10, 0), Priority: "LOW"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.PriorityLow, created.Priority)

	persisted, _ := mem.Load(ctx)
	require.Len(t, persisted, 1)
	assert.Equal(t, created.ID, persisted[0].ID)

	_, err = s.Create(ctx, model.Task{ID: created.ID, Title: "dup", Start: at(2024, 1, 1, 9, 0), End: at(2024, 1, 1, 10, 0)})
	assert.ErrorIs(t, err, ErrInvalidTask)

	_, err = s.Create(ctx, model.Task{Title: "bad", Start: at(2024, 1, 1, 9, 0), End: at(2024, 1, 1, 9, 0)})
	assert.ErrorIs(t, err, ErrInvalidTask)
	assert.ErrorIs(t, err, model.ErrInvalidSpan)
}

func TestUpdateAndGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newLoaded(t, oneOff("a"))

	task, err := s.Get("a")
	require.NoError(t, err)
	task.Title = "Dentist (moved)"
	_, err = s.Update(ctx, task)
	require.NoError(t, err)

	got, err := s.Get(model.EncodeOccurrenceID("a", task.Start))
	require.NoError(t, err)
	assert.Equal(t, "Dentist (moved)", got.Title)

	missing := oneOff("nope")
	_, err = s.Update(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_IsSeriesWide(t *testing.T) {
	ctx := context.Background()
	s, _ := newLoaded(t, dailyTask("d"), oneOff("a"))

	require.NoError(t, s.Delete(ctx, model.EncodeOccurrenceID("d", at(2024, 1, 3, 9, 0))))
	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].ID)

	assert.ErrorIs(t, s.Delete(ctx, "d"), ErrNotFound)
}

func TestToggleComplete_RecurringInstance(t *testing.T) {
	ctx := context.Background()
	s, _ := newLoaded(t, dailyTask("d"))
	id := model.EncodeOccurrenceID("d", at(2024, 1, 2, 9, 0))

	task, err := s.ToggleComplete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02T09:00:00.000Z"}, task.CompletedInstances)
	assert.False(t, task.Completed)

	res := s.Occurrences(at(2024, 1, 1, 0, 0), at(2024, 1, 4, 0, 0))
	require.Len(t, res.Occurrences, 3)
	assert.False(t, res.Occurrences[0].Completed)
	assert.True(t, res.Occurrences[1].Completed)
	assert.False(t, res.Occurrences[2].Completed)

	task, err = s.ToggleComplete(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, task.CompletedInstances)
}

func TestToggleComplete_SeriesFlag(t *testing.T) {
	ctx := context.Background()
	s, _ := newLoaded(t, oneOff("a"), dailyTask("d"))

	task, err := s.ToggleComplete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, task.Completed)

	// No instant on a recurring series toggles the flag, not an instance.
	task, err = s.ToggleComplete(ctx, "d")
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.Empty(t, task.CompletedInstances)

	_, err = s.ToggleComplete(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s, _ := newLoaded(t, oneOff("a"))
	s.SetDefaultReminder(30)
	start := at(2024, 1, 5, 8, 0)

	admitted, err := s.Import(ctx, []importer.Draft{{Title: "Run", Start: &start}, {Title: "broken"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, importer.ErrMissingStart)
	require.Len(t, admitted, 1)
	assert.Equal(t, 30, admitted[0].ReminderMinutes)

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "Run", tasks[1].Title)
}

func TestMutation_FailedSaveKeepsList(t *testing.T) {
	ctx := context.Background()
	s := New(failingStore{Memory: store.NewMemory([]model.Task{oneOff("a")})})
	require.NoError(t, s.Load(ctx))

	err := s.Delete(ctx, "a")
	require.Error(t, err)
	assert.Len(t, s.Tasks(), 1)
}

func TestOnChange(t *testing.T) {
	ctx := context.Background()
	s, _ := newLoaded(t, oneOff("a"))
	calls := 0
	s.OnChange(func() { calls++ })

	_, err := s.ToggleComplete(ctx, "a")
	require.NoError(t, err)
	_, err = s.ToggleComplete(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTasks_ReturnsCopy(t *testing.T) {
	s, _ := newLoaded(t, dailyTask("d"))
	tasks := s.Tasks()
	tasks[0].Recurrence.Interval = 7

	again := s.Tasks()
	assert.Equal(t, 1, again[0].Recurrence.Interval)
}

func TestOccurrences_StepInServiceLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	task := dailyTask("gym")
	task.Start = at(2024, 3, 29, 6, 0) // 07:00 CET
	task.End = at(2024, 3, 29, 7, 0)

	s, _ := newLoaded(t, task)
	s.SetLocation(loc)

	// Berlin switches to CEST on Mar 31.
	res := s.Occurrences(at(2024, 4, 1, 0, 0), at(2024, 4, 2, 0, 0))
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, 7, res.Occurrences[0].Start.In(loc).Hour())
	assert.True(t, res.Occurrences[0].Start.Equal(at(2024, 4, 1, 5, 0)))
}
