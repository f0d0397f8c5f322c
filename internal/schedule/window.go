package schedule

import "time"

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether Start is not after End.
func (w Window) Valid() bool {
	return !w.Start.After(w.End)
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayWindow is local midnight to the following midnight for the day
// containing t. A nil loc means time.Local.
func DayWindow(t time.Time, loc *time.Location) Window {
	start := midnight(t, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// WeekWindow is the seven days containing t, starting on weekStart
// ("monday" or "sunday"; anything else is monday).
func WeekWindow(t time.Time, loc *time.Location, weekStart string) Window {
	start := midnight(t, loc)
	first := time.Monday
	if weekStart == "sunday" {
		first = time.Sunday
	}
	offset := (int(start.Weekday()) - int(first) + 7) % 7
	start = start.AddDate(0, 0, -offset)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// ListWindow runs from midnight of the day containing t for days days.
// days below 1 count as 1.
func ListWindow(t time.Time, loc *time.Location, days int) Window {
	if days < 1 {
		days = 1
	}
	start := midnight(t, loc)
	return Window{Start: start, End: start.AddDate(0, 0, days)}
}
