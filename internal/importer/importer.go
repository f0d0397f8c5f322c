// Package importer admits externally produced task fields (language-model
// extraction, voice transcripts, ICS feeds) into well-formed series.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"planner/internal/model"
)

const (
	// DefaultReminderMinutes applies when a draft carries no reminder.
	DefaultReminderMinutes = 15

	// DefaultDuration is used when a draft has no usable end.
	DefaultDuration = time.Hour
)

var (
	ErrMissingTitle = errors.New("draft has no title")
	ErrMissingStart = errors.New("draft has no start")
)

// DraftRecurrence is the partial recurrence an extractor may emit.
type DraftRecurrence struct {
	Frequency string     `json:"frequency"`
	Interval  int        `json:"interval,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
}

// Draft is a partial task. Every field may be absent.
type Draft struct {
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Start           *time.Time       `json:"start,omitempty"`
	End             *time.Time       `json:"end,omitempty"`
	Priority        string           `json:"priority,omitempty"`
	ReminderMinutes *int             `json:"reminderMinutes,omitempty"`
	Completed       *bool            `json:"completed,omitempty"`
	Recurrence      *DraftRecurrence `json:"recurrence,omitempty"`
}

// Options tunes defaulting. Zero values select the package defaults.
type Options struct {
	ReminderMinutes int
	NewID           func() string
}

// Admit turns drafts into tasks with fresh ids. Invalid drafts are skipped
// and reported in the joined error; valid drafts are still returned.
func Admit(drafts []Draft) ([]model.Task, error) {
	return AdmitWithOptions(drafts, Options{})
}

// AdmitWithOptions is Admit with explicit defaults.
func AdmitWithOptions(drafts []Draft, opts Options) ([]model.Task, error) {
	if opts.ReminderMinutes <= 0 {
		opts.ReminderMinutes = DefaultReminderMinutes
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	tasks := make([]model.Task, 0, len(drafts))
	var errs []error
	for i, d := range drafts {
		t, err := admitOne(d, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("draft %d: %w", i, err))
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, errors.Join(errs...)
}

func admitOne(d Draft, opts Options) (model.Task, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return model.Task{}, ErrMissingTitle
	}
	if d.Start == nil || d.Start.IsZero() {
		return model.Task{}, ErrMissingStart
	}

	start := *d.Start
	end := start.Add(DefaultDuration)
	if d.End != nil && d.End.After(start) {
		end = *d.End
	}

	t := model.Task{
		ID:              opts.NewID(),
		Title:           title,
		Description:     strings.TrimSpace(d.Description),
		Start:           start,
		End:             end,
		Priority:        model.ParsePriority(d.Priority),
		ReminderMinutes: opts.ReminderMinutes,
	}
	if d.ReminderMinutes != nil && *d.ReminderMinutes >= 0 {
		t.ReminderMinutes = *d.ReminderMinutes
	}
	if d.Completed != nil {
		t.Completed = *d.Completed
	}

	if d.Recurrence != nil {
		freq := model.ParseFrequency(d.Recurrence.Frequency)
		if freq != model.FrequencyNone {
			interval := d.Recurrence.Interval
			if interval <= 0 {
				interval = 1
			}
			t.Recurrence = &model.Recurrence{Frequency: freq, Interval: interval}
			if d.Recurrence.Until != nil {
				u := *d.Recurrence.Until
				t.Recurrence.Until = &u
			}
		}
	}

	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// envelope is the wrapped shape some extractors return.
type envelope struct {
	Tasks []Draft `json:"tasks"`
}

// DecodeDrafts reads either a JSON array of drafts or an object with a
// "tasks" array.
func DecodeDrafts(r io.Reader) ([]Draft, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("empty draft payload")
	}

	if strings.HasPrefix(trimmed, "[") {
		var drafts []Draft
		if err := json.Unmarshal(data, &drafts); err != nil {
			return nil, fmt.Errorf("decode drafts: %w", err)
		}
		return drafts, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode drafts: %w", err)
	}
	return env.Tasks, nil
}
