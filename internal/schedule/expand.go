package schedule

import (
	"sort"
	"time"

	"planner/internal/model"
)

// MaxIterations bounds the number of recurrence steps taken per series in
// one expansion. It guarantees termination for any input. A series whose
// first in-window occurrence lies more than MaxIterations steps after its
// start contributes nothing beyond the cap; such series are reported in
// Result.Truncated.
const MaxIterations = 1000

// Result wraps the expanded occurrences and the ids of series that hit
// MaxIterations before leaving the window.
type Result struct {
	Occurrences []model.Occurrence
	Truncated   []string
}

// Expand materializes every occurrence of tasks overlapping the half-open
// window [windowStart, windowEnd). Recurrence steps follow the calendar
// of loc (nil means time.Local), whatever zone the stored start carries,
// so a 09:00 daily task stays at 09:00 in loc across DST changes.
// A window with windowStart after windowEnd yields nothing. Output order
// follows the task list, then occurrence start; callers that need another
// order sort themselves.
func Expand(tasks []model.Task, windowStart, windowEnd time.Time, loc *time.Location) []model.Occurrence {
	return ExpandWithReport(tasks, windowStart, windowEnd, loc).Occurrences
}

// ExpandWithReport is Expand plus truncation reporting.
func ExpandWithReport(tasks []model.Task, windowStart, windowEnd time.Time, loc *time.Location) Result {
	result := Result{Occurrences: make([]model.Occurrence, 0)}
	if windowStart.After(windowEnd) {
		return result
	}
	if loc == nil {
		loc = time.Local
	}

	for _, t := range tasks {
		if !t.IsRecurring() {
			if overlaps(t.Start, t.End, windowStart, windowEnd) {
				result.Occurrences = append(result.Occurrences, makeOccurrence(t, model.OccurrenceID{SeriesID: t.ID}, t.Start, t.End, t.Completed))
			}
			continue
		}

		occs, hitCap := expandSeries(t, windowStart, windowEnd, loc)
		result.Occurrences = append(result.Occurrences, occs...)
		if hitCap {
			result.Truncated = append(result.Truncated, t.ID)
		}
	}

	return result
}

// expandSeries walks a recurring series from its own start, one step at a
// time in loc, collecting occurrences that overlap the window.
func expandSeries(t model.Task, windowStart, windowEnd time.Time, loc *time.Location) ([]model.Occurrence, bool) {
	var out []model.Occurrence

	rec := t.Recurrence
	dur := t.Duration()

	start := t.Start.In(loc)
	for i := 0; ; i++ {
		if !start.Before(windowEnd) {
			return out, false
		}
		if rec.Until != nil && start.After(*rec.Until) {
			return out, false
		}
		if i >= MaxIterations {
			return out, true
		}

		end := start.Add(dur)
		if overlaps(start, end, windowStart, windowEnd) {
			id := model.OccurrenceID{SeriesID: t.ID, Start: start}
			out = append(out, makeOccurrence(t, id, start, end, t.InstanceCompleted(start)))
		}

		start = NextOccurrenceStart(start, rec.Frequency, rec.Interval)
	}
}

// NextOccurrenceStart advances current by one recurrence step using
// calendar-field arithmetic in current's location. Monthly and yearly
// steps go through time.AddDate, so a day-of-month missing from the
// target month rolls over into the next month (Jan 31 + 1 month is
// Mar 3, or Mar 2 in a leap year). Interval values below 1 count as 1.
// FrequencyNone returns current unchanged.
func NextOccurrenceStart(current time.Time, freq model.Frequency, interval int) time.Time {
	if interval <= 0 {
		interval = 1
	}
	switch freq {
	case model.FrequencyDaily:
		return current.AddDate(0, 0, interval)
	case model.FrequencyWeekly:
		return current.AddDate(0, 0, 7*interval)
	case model.FrequencyMonthly:
		return current.AddDate(0, interval, 0)
	case model.FrequencyYearly:
		return current.AddDate(interval, 0, 0)
	default:
		return current
	}
}

func makeOccurrence(t model.Task, id model.OccurrenceID, start, end time.Time, completed bool) model.Occurrence {
	var rec *model.Recurrence
	if t.Recurrence != nil {
		r := *t.Recurrence
		rec = &r
	}
	return model.Occurrence{
		ID:              id,
		Title:           t.Title,
		Description:     t.Description,
		Start:           start,
		End:             end,
		Priority:        t.Priority,
		ReminderMinutes: t.ReminderMinutes,
		Completed:       completed,
		Recurrence:      rec,
	}
}

// overlaps is the half-open interval test: spans that only touch at a
// boundary do not overlap.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// SortOccurrences orders occurrences by start, then series id.
func SortOccurrences(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].ID.SeriesID < occs[j].ID.SeriesID
	})
}
