package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"planner/internal/importer"
	appLog "planner/internal/log"
	"planner/internal/model"
	"planner/internal/schedule"
)

var frequencyFromRRule = map[rrule.Frequency]model.Frequency{
	rrule.DAILY:   model.FrequencyDaily,
	rrule.WEEKLY:  model.FrequencyWeekly,
	rrule.MONTHLY: model.FrequencyMonthly,
	rrule.YEARLY:  model.FrequencyYearly,
}

// ToDrafts maps parsed events onto import drafts. Override instances and
// rules the planner cannot represent are skipped.
func ToDrafts(events []ParsedEvent) []importer.Draft {
	drafts := make([]importer.Draft, 0, len(events))
	for _, ev := range events {
		if ev.IsOverride {
			appLog.Debug("ics skip override instance", "uid", ev.UID)
			continue
		}
		d, err := toDraft(ev)
		if err != nil {
			appLog.Info("ics skip event", "uid", ev.UID, "reason", err.Error())
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts
}

func toDraft(ev ParsedEvent) (importer.Draft, error) {
	start := ev.Start
	d := importer.Draft{
		Title:       ev.Summary,
		Description: ev.Description,
		Start:       &start,
		Priority:    string(priorityFromICS(ev.Priority)),
	}

	switch {
	case !ev.End.IsZero():
		end := ev.End
		d.End = &end
	case ev.AllDay:
		end := start.Add(24 * time.Hour)
		d.End = &end
	}

	if ev.AlarmMinutes >= 0 {
		m := ev.AlarmMinutes
		d.ReminderMinutes = &m
	}

	if ev.RawRRule == "" {
		return d, nil
	}
	rec, err := recurrenceFromRRule(ev.RawRRule, start)
	if err != nil {
		return importer.Draft{}, err
	}
	d.Recurrence = rec
	return d, nil
}

func recurrenceFromRRule(raw string, start time.Time) (*importer.DraftRecurrence, error) {
	opt, err := rrule.StrToROptionInLocation(raw, start.Location())
	if err != nil {
		return nil, fmt.Errorf("rrule %q: %w", raw, err)
	}
	freq, ok := frequencyFromRRule[opt.Freq]
	if !ok {
		return nil, fmt.Errorf("unsupported frequency %s", opt.Freq)
	}
	// A lone BYDAY naming the start's weekday is what most clients emit
	// for a plain weekly event.
	if len(opt.Byweekday) == 1 && opt.Byweekday[0].N() == 0 &&
		opt.Byweekday[0].Day() == (int(start.Weekday())+6)%7 {
		opt.Byweekday = nil
	}
	if hasByParts(opt) {
		return nil, fmt.Errorf("unsupported rule parts in %q", raw)
	}

	interval := opt.Interval
	if interval <= 0 {
		interval = 1
	}
	rec := &importer.DraftRecurrence{Frequency: string(freq), Interval: interval}

	switch {
	case !opt.Until.IsZero():
		until := opt.Until
		rec.Until = &until
	case opt.Count > 0:
		last := start
		for i := 1; i < opt.Count && i < schedule.MaxIterations; i++ {
			last = schedule.NextOccurrenceStart(last, freq, interval)
		}
		// The planner may step in another zone than the feed, which moves
		// starts by up to an hour across DST. Steps are at least a day, so
		// half a day of slack keeps the last start without admitting the next.
		until := last.Add(12 * time.Hour)
		rec.Until = &until
	}
	return rec, nil
}

// hasByParts reports BY* expansions, which a fixed-step series cannot express.
func hasByParts(o *rrule.ROption) bool {
	return len(o.Bysetpos)+len(o.Bymonth)+len(o.Bymonthday)+len(o.Byyearday)+
		len(o.Byweekno)+len(o.Byweekday)+len(o.Byhour)+len(o.Byminute)+
		len(o.Bysecond)+len(o.Byeaster) > 0
}

// priorityFromICS follows RFC 5545: 1-4 high, 5 medium, 6-9 low, 0 undefined.
func priorityFromICS(p int) model.Priority {
	switch {
	case p >= 1 && p <= 4:
		return model.PriorityHigh
	case p >= 6 && p <= 9:
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}

func priorityToICS(p model.Priority) int {
	switch p {
	case model.PriorityHigh:
		return 1
	case model.PriorityLow:
		return 9
	default:
		return 5
	}
}
