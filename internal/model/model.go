package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority ranks a task for display.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps free-form input onto a Priority. Unknown or empty
// values become PriorityMedium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Frequency is the step unit of a recurrence.
type Frequency string

const (
	FrequencyNone    Frequency = "none"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// ParseFrequency maps free-form input onto a Frequency. Unknown values
// become FrequencyNone.
func ParseFrequency(s string) Frequency {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return f
	default:
		return FrequencyNone
	}
}

// Recurrence describes how a series repeats. A nil *Recurrence or
// Frequency none means exactly one occurrence.
type Recurrence struct {
	Frequency Frequency  `json:"frequency" yaml:"frequency"`
	Interval  int        `json:"interval" yaml:"interval"`
	Until     *time.Time `json:"until,omitempty" yaml:"until,omitempty"`
}

// Active reports whether the recurrence produces more than one occurrence.
// Unrecognized frequencies are inactive.
func (r *Recurrence) Active() bool {
	if r == nil {
		return false
	}
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	default:
		return false
	}
}

// Step returns the interval normalized to at least 1.
func (r *Recurrence) Step() int {
	if r == nil || r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// Task is a persisted, user-authored series definition.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// Start / End span one canonical occurrence.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Priority        Priority `json:"priority"`
	ReminderMinutes int      `json:"reminderMinutes"`

	// Completed is only meaningful for non-recurring tasks.
	Completed bool `json:"completed"`

	Recurrence *Recurrence `json:"recurrence,omitempty"`

	// CompletedInstances holds FormatInstant renderings of the occurrence
	// starts that are done. Only consulted when Recurrence is active.
	// Entries that no longer match the rule are kept.
	CompletedInstances []string `json:"completedInstances,omitempty"`
}

var (
	ErrMissingID        = errors.New("task id is empty")
	ErrInvalidSpan      = errors.New("task end must be after start")
	ErrNegativeReminder = errors.New("reminder minutes must not be negative")
)

// IsRecurring reports whether the task has an active recurrence.
func (t Task) IsRecurring() bool {
	return t.Recurrence.Active()
}

// Duration is the length of every occurrence of the series.
func (t Task) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Validate checks the creation-time invariants of a series.
func (t Task) Validate() error {
	if t.ID == "" {
		return ErrMissingID
	}
	if strings.Contains(t.ID, IDSeparator) {
		return fmt.Errorf("task id %q must not contain %q", t.ID, IDSeparator)
	}
	if !t.End.After(t.Start) {
		return ErrInvalidSpan
	}
	if t.ReminderMinutes < 0 {
		return ErrNegativeReminder
	}
	return nil
}

// InstanceCompleted reports whether the occurrence starting at start is
// marked done in CompletedInstances.
func (t Task) InstanceCompleted(start time.Time) bool {
	key := FormatInstant(start)
	for _, s := range t.CompletedInstances {
		if s == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, so the copy can be edited without touching
// lists other readers hold.
func (t Task) Clone() Task {
	out := t
	if t.Recurrence != nil {
		r := *t.Recurrence
		if t.Recurrence.Until != nil {
			u := *t.Recurrence.Until
			r.Until = &u
		}
		out.Recurrence = &r
	}
	if t.CompletedInstances != nil {
		out.CompletedInstances = append([]string(nil), t.CompletedInstances...)
	}
	return out
}

// CloneTasks deep-copies a task list.
func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// Occurrence is one concrete materialization of a Task inside a window.
// It is derived on every expansion and never persisted.
type Occurrence struct {
	ID OccurrenceID `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Priority        Priority `json:"priority"`
	ReminderMinutes int      `json:"reminderMinutes"`
	Completed       bool     `json:"completed"`

	Recurrence *Recurrence `json:"recurrence,omitempty"`
}

// SeriesID is the id of the Task this occurrence came from.
func (o Occurrence) SeriesID() string {
	return o.ID.SeriesID
}

// ReminderAt is the instant the reminder for this occurrence is due.
func (o Occurrence) ReminderAt() time.Time {
	return o.Start.Add(-time.Duration(o.ReminderMinutes) * time.Minute)
}
