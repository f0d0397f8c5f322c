package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "planner/internal/log"
	"planner/internal/model"
	"planner/internal/schedule"
)

const (
	// DefaultSchedule is the scan cadence. It must not exceed the one
	// minute grace window or reminders can be missed.
	DefaultSchedule = "@every 10s"

	// Grace is how long after an occurrence starts its reminder may still fire.
	Grace = 60 * time.Second

	// DefaultRetention bounds how long a notified id is remembered after
	// its occurrence started.
	DefaultRetention = 24 * time.Hour

	notifyTimeout = 10 * time.Second
)

// TaskSource supplies the current task list on every tick.
type TaskSource interface {
	Tasks() []model.Task
}

// TaskSourceFunc adapts a function to TaskSource.
type TaskSourceFunc func() []model.Task

func (f TaskSourceFunc) Tasks() []model.Task { return f() }

// Options configures a Scanner. Zero values select defaults.
type Options struct {
	// Location defines "today" (midnight to midnight). nil means time.Local.
	Location *time.Location
	// Schedule is a robfig/cron spec, e.g. "@every 10s".
	Schedule string
	// Retention is how long after an occurrence's start its notified
	// marker is kept.
	Retention time.Duration
}

// Scanner fires a reminder the first time "now" enters an occurrence's
// reminder window. The notified set lives for the process lifetime only,
// so a restart re-arms the current day's reminders.
type Scanner struct {
	source   TaskSource
	notifier Notifier
	opts     Options
	clock    func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time // flat occurrence id -> occurrence start

	cronMu sync.Mutex
	cron   *cron.Cron

	inflight sync.WaitGroup
}

// NewScanner constructs a Scanner. It does not start scheduling; call
// Start, or drive Tick directly.
func NewScanner(source TaskSource, notifier Notifier, opts Options) *Scanner {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Scanner{
		source:   source,
		notifier: notifier,
		opts:     opts,
		clock:    time.Now,
		notified: make(map[string]time.Time),
	}
}

// Tick runs one scan at now and returns the occurrences it fired for.
// Notifications are dispatched asynchronously; a failing or slow notifier
// never blocks or aborts the scan.
func (s *Scanner) Tick(now time.Time) []model.Occurrence {
	day := schedule.DayWindow(now, s.opts.Location)
	occs := schedule.Expand(s.source.Tasks(), day.Start, day.End, s.opts.Location)

	s.mu.Lock()
	s.evict(now)

	var fired []model.Occurrence
	for _, o := range occs {
		if o.Completed {
			continue
		}
		key := o.ID.String()
		if _, seen := s.notified[key]; seen {
			continue
		}
		if now.Before(o.ReminderAt()) || !now.Before(o.Start.Add(Grace)) {
			continue
		}
		s.notified[key] = o.Start
		fired = append(fired, o)
	}
	s.mu.Unlock()

	for _, o := range fired {
		appLog.Info("reminder due", "id", o.ID.String(), "title", o.Title, "start", o.Start.Format(time.RFC3339))
		s.dispatch(o)
	}
	return fired
}

// evict drops notified markers whose occurrence started more than
// Retention before now. Caller holds s.mu.
func (s *Scanner) evict(now time.Time) {
	for key, start := range s.notified {
		if now.Sub(start) > s.opts.Retention {
			delete(s.notified, key)
		}
	}
}

// Notified reports whether the occurrence id has already fired.
func (s *Scanner) Notified(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notified[id]
	return ok
}

// Pending returns the number of remembered notified ids.
func (s *Scanner) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notified)
}

func (s *Scanner) dispatch(o model.Occurrence) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				appLog.Error("reminder notifier panicked", fmt.Errorf("%v", r), "id", o.ID.String())
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, o); err != nil {
			appLog.Error("reminder notify failed", err, "id", o.ID.String())
		}
	}()
}

// Flush waits for dispatched notifications to finish.
func (s *Scanner) Flush() {
	s.inflight.Wait()
}

// Start schedules Tick on the configured cadence and runs one tick
// immediately. Ticks never overlap: a tick still running when the next
// is due causes that one to be skipped.
func (s *Scanner) Start() error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron != nil {
		return errors.New("reminder scanner already started")
	}

	logger := appLog.CronLogger()
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.opts.Schedule, func() { s.Tick(s.clock()) }); err != nil {
		return fmt.Errorf("reminder schedule %q: %w", s.opts.Schedule, err)
	}

	s.cron = c
	c.Start()
	appLog.Info("reminder scanner started", "schedule", s.opts.Schedule, "timezone", s.opts.Location.String())

	s.Tick(s.clock())
	return nil
}

// Stop cancels the schedule, waits for a running tick, then waits for
// in-flight notifications. No tick runs after Stop returns.
func (s *Scanner) Stop() {
	s.cronMu.Lock()
	c := s.cron
	s.cron = nil
	s.cronMu.Unlock()
	if c == nil {
		return
	}

	<-c.Stop().Done()
	s.Flush()
	appLog.Info("reminder scanner stopped")
}
