package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	appLog "planner/internal/log"
	"planner/internal/model"
)

// Notifier delivers a reminder for one occurrence. Implementations may be
// slow or fail; the Scanner logs the error and moves on.
type Notifier interface {
	Notify(ctx context.Context, o model.Occurrence) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, o model.Occurrence) error

func (f NotifierFunc) Notify(ctx context.Context, o model.Occurrence) error { return f(ctx, o) }

// LogNotifier writes reminders to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, o model.Occurrence) error {
	appLog.Info("reminder",
		"id", o.ID.String(),
		"title", o.Title,
		"start", o.Start.Format(time.RFC3339),
		"reminder_minutes", o.ReminderMinutes,
	)
	return nil
}

// Multi fans a reminder out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, o model.Occurrence) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Event is a fired reminder as kept by Feed.
type Event struct {
	Occurrence model.Occurrence `json:"occurrence"`
	FiredAt    time.Time        `json:"fired_at"`
}

// Feed keeps the most recent reminders in memory for the web UI to poll.
type Feed struct {
	mu     sync.RWMutex
	events []Event
	limit  int
	now    func() time.Time
}

// NewFeed returns a Feed holding at most limit events (50 if limit < 1).
func NewFeed(limit int) *Feed {
	if limit < 1 {
		limit = 50
	}
	return &Feed{limit: limit, now: time.Now}
}

func (f *Feed) Notify(_ context.Context, o model.Occurrence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, Event{Occurrence: o, FiredAt: f.now()})
	if over := len(f.events) - f.limit; over > 0 {
		f.events = append([]Event(nil), f.events[over:]...)
	}
	return nil
}

// Recent returns the kept events, newest first.
func (f *Feed) Recent() []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Event, len(f.events))
	for i, ev := range f.events {
		out[len(f.events)-1-i] = ev
	}
	return out
}

// WebhookNotifier POSTs each reminder as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier with a short client timeout.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type webhookPayload struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Priority        string    `json:"priority"`
	ReminderMinutes int       `json:"reminder_minutes"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, o model.Occurrence) error {
	body, err := json.Marshal(webhookPayload{
		ID:              o.ID.String(),
		Title:           o.Title,
		Description:     o.Description,
		Start:           o.Start,
		End:             o.End,
		Priority:        string(o.Priority),
		ReminderMinutes: o.ReminderMinutes,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: unexpected status %s", resp.Status)
	}
	return nil
}
