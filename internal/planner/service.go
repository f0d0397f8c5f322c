// Package planner owns the task list and applies every mutation to it.
//
// The list is replaced as a whole: a mutation clones the current list,
// edits the clone, persists it, and only then swaps it in. Readers always
// see either the old or the new list, never a half-edited one.
package planner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"planner/internal/importer"
	"planner/internal/log"
	"planner/internal/model"
	"planner/internal/schedule"
	"planner/internal/store"
)

var (
	ErrNotFound    = errors.New("task not found")
	ErrInvalidTask = errors.New("invalid task")
)

type Service struct {
	store store.Store

	mu    sync.RWMutex
	tasks []model.Task
	loc   *time.Location

	importOpts importer.Options

	hookMu   sync.Mutex
	onChange []func()
}

func New(st store.Store) *Service {
	return &Service{store: st, tasks: []model.Task{}, loc: time.Local}
}

// SetLocation sets the zone whose calendar recurrence steps follow.
// nil means time.Local.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	s.mu.Lock()
	s.loc = loc
	s.mu.Unlock()
}

// SetDefaultReminder sets the reminder lead applied to imported drafts
// that carry none.
func (s *Service) SetDefaultReminder(minutes int) {
	s.mu.Lock()
	s.importOpts.ReminderMinutes = minutes
	s.mu.Unlock()
}

// OnChange registers fn to run after every successful mutation.
func (s *Service) OnChange(fn func()) {
	s.hookMu.Lock()
	s.onChange = append(s.onChange, fn)
	s.hookMu.Unlock()
}

func (s *Service) changed() {
	s.hookMu.Lock()
	hooks := slices.Clone(s.onChange)
	s.hookMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Load replaces the in-memory list with the stored one.
func (s *Service) Load(ctx context.Context) error {
	tasks, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}

	s.mu.Lock()
	s.tasks = tasks
	s.mu.Unlock()

	log.Info("tasks loaded", "count", len(tasks))
	s.changed()
	return nil
}

// Tasks returns a deep copy of the current list.
func (s *Service) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneTasks(s.tasks)
}

// Get returns the series with the given id. Flat occurrence ids are
// accepted and resolve to their series.
func (s *Service) Get(id string) (model.Task, error) {
	seriesID := model.DecodeOccurrenceID(id).SeriesID

	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.tasks, seriesID)
	if i < 0 {
		return model.Task{}, ErrNotFound
	}
	return s.tasks[i].Clone(), nil
}

// Create appends a new series. An empty id is replaced with a fresh uuid.
func (s *Service) Create(ctx context.Context, t model.Task) (model.Task, error) {
	t = t.Clone()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	normalize(&t)
	if err := t.Validate(); err != nil {
		return model.Task{}, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	err := s.mutate(ctx, func(tasks []model.Task) ([]model.Task, error) {
		if indexOf(tasks, t.ID) >= 0 {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidTask, t.ID)
		}
		return append(tasks, t), nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return t.Clone(), nil
}

// Update replaces the series with the same id.
func (s *Service) Update(ctx context.Context, t model.Task) (model.Task, error) {
	t = t.Clone()
	t.ID = model.DecodeOccurrenceID(t.ID).SeriesID
	normalize(&t)
	if err := t.Validate(); err != nil {
		return model.Task{}, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	err := s.mutate(ctx, func(tasks []model.Task) ([]model.Task, error) {
		i := indexOf(tasks, t.ID)
		if i < 0 {
			return nil, ErrNotFound
		}
		tasks[i] = t
		return tasks, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return t.Clone(), nil
}

// Delete removes the whole series addressed by id, which may be a flat
// occurrence id.
func (s *Service) Delete(ctx context.Context, id string) error {
	seriesID := model.DecodeOccurrenceID(id).SeriesID
	return s.mutate(ctx, func(tasks []model.Task) ([]model.Task, error) {
		i := indexOf(tasks, seriesID)
		if i < 0 {
			return nil, ErrNotFound
		}
		return slices.Delete(tasks, i, i+1), nil
	})
}

// ToggleComplete flips completion for the occurrence addressed by id.
// An id with an instant on a recurring series toggles that instant only;
// anything else toggles the series' Completed flag.
func (s *Service) ToggleComplete(ctx context.Context, id string) (model.Task, error) {
	oid := model.DecodeOccurrenceID(id)
	var out model.Task

	err := s.mutate(ctx, func(tasks []model.Task) ([]model.Task, error) {
		i := indexOf(tasks, oid.SeriesID)
		if i < 0 {
			return nil, ErrNotFound
		}
		t := &tasks[i]

		if oid.HasInstant() && t.IsRecurring() {
			key := model.FormatInstant(oid.Start)
			if j := slices.Index(t.CompletedInstances, key); j >= 0 {
				t.CompletedInstances = slices.Delete(t.CompletedInstances, j, j+1)
			} else {
				t.CompletedInstances = append(t.CompletedInstances, key)
			}
		} else {
			t.Completed = !t.Completed
		}
		out = t.Clone()
		return tasks, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return out, nil
}

// Import admits drafts and appends the valid ones. Rejected drafts are
// reported in the returned error alongside the admitted tasks.
func (s *Service) Import(ctx context.Context, drafts []importer.Draft) ([]model.Task, error) {
	s.mu.RLock()
	opts := s.importOpts
	s.mu.RUnlock()

	admitted, rejectErr := importer.AdmitWithOptions(drafts, opts)
	if rejectErr != nil {
		log.Error("some drafts rejected", rejectErr, "admitted", len(admitted), "total", len(drafts))
	}
	if len(admitted) == 0 {
		return admitted, rejectErr
	}

	err := s.mutate(ctx, func(tasks []model.Task) ([]model.Task, error) {
		return append(tasks, model.CloneTasks(admitted)...), nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("tasks imported", "count", len(admitted))
	return admitted, rejectErr
}

// Occurrences expands the current list over [windowStart, windowEnd).
func (s *Service) Occurrences(windowStart, windowEnd time.Time) schedule.Result {
	s.mu.RLock()
	tasks, loc := s.tasks, s.loc
	s.mu.RUnlock()
	// tasks is never edited in place, so expanding outside the lock is safe.
	return schedule.ExpandWithReport(tasks, windowStart, windowEnd, loc)
}

func (s *Service) mutate(ctx context.Context, edit func([]model.Task) ([]model.Task, error)) error {
	s.mu.Lock()
	next, err := edit(model.CloneTasks(s.tasks))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save tasks: %w", err)
	}
	s.tasks = next
	s.mu.Unlock()

	s.changed()
	return nil
}

func indexOf(tasks []model.Task, id string) int {
	return slices.IndexFunc(tasks, func(t model.Task) bool { return t.ID == id })
}

func normalize(t *model.Task) {
	t.Priority = model.ParsePriority(string(t.Priority))
	if t.Recurrence == nil {
		return
	}
	if !t.Recurrence.Active() {
		t.Recurrence = nil
		t.CompletedInstances = nil
		return
	}
	if t.Recurrence.Interval < 1 {
		t.Recurrence.Interval = 1
	}
}
