package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"planner/internal/model"
)

const productID = "-//planner//tasks//EN"

var frequencyToRRule = map[model.Frequency]rrule.Frequency{
	model.FrequencyDaily:   rrule.DAILY,
	model.FrequencyWeekly:  rrule.WEEKLY,
	model.FrequencyMonthly: rrule.MONTHLY,
	model.FrequencyYearly:  rrule.YEARLY,
}

// Export renders tasks as a published calendar, one VEVENT per series.
// Per-instance completion is not representable and is left out.
func Export(tasks []model.Task, name string, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetName(name)
	}

	for _, t := range tasks {
		ev := cal.AddEvent(t.ID)
		ev.SetDtStampTime(now)
		ev.SetStartAt(t.Start)
		ev.SetEndAt(t.End)
		ev.SetSummary(t.Title)
		if t.Description != "" {
			ev.SetDescription(t.Description)
		}
		ev.SetPriority(priorityToICS(t.Priority))

		if rule := RRuleFor(t.Recurrence); rule != "" {
			ev.AddRrule(rule)
		}

		alarm := ev.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-PT%dM", t.ReminderMinutes))
		alarm.SetProperty(ical.ComponentPropertyDescription, t.Title)
	}

	return cal.Serialize()
}

// RRuleFor renders an active recurrence as an RRULE value, or "" when the
// task does not repeat.
func RRuleFor(r *model.Recurrence) string {
	if !r.Active() {
		return ""
	}
	opt := rrule.ROption{
		Freq:     frequencyToRRule[r.Frequency],
		Interval: r.Step(),
	}
	if r.Until != nil {
		opt.Until = *r.Until
	}
	return opt.RRuleString()
}
