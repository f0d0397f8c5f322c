package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"planner/internal/config"
	"planner/internal/model"
	"planner/internal/planner"
	"planner/internal/reminder"
	"planner/internal/schedule"
	"planner/internal/store"
)

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func seedTasks() []model.Task {
	return []model.Task{
		{
			ID: "standup", Title: "Standup",
			Start: at(2024, 1, 1, 9, 0), End: at(2024, 1, 1, 9, 30),
			Priority: model.PriorityMedium, ReminderMinutes: 5,
			Recurrence: &model.Recurrence{Frequency: model.FrequencyDaily, Interval: 1},
		},
		{
			ID: "dentist", Title: "Dentist",
			Start: at(2024, 1, 3, 9, 15), End: at(2024, 1, 3, 10, 0),
			Priority: model.PriorityHigh, ReminderMinutes: 30,
		},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *planner.Service, *reminder.Feed) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.ICSCacheDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	svc := planner.New(store.NewMemory(seedTasks()))
	svc.SetLocation(time.UTC)
	require.NoError(t, svc.Load(context.Background()))
	feed := reminder.NewFeed(10)

	s := NewServer(cfg, svc, feed)
	s.now = func() time.Time { return at(2024, 1, 3, 8, 0) }
	return s, svc, feed
}

func do(t *testing.T, s *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type occurrenceJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	Completed bool      `json:"completed"`
	Conflict  bool      `json:"conflict"`
}

type occurrencesJSON struct {
	View        string           `json:"view"`
	Occurrences []occurrenceJSON `json:"occurrences"`
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	s, _, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "secret"}
	})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/tasks", "").Code)

	r := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	r.SetBasicAuth("me", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	r.SetBasicAuth("me", "wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOccurrences_DayViewWithConflicts(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/occurrences?view=day", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[occurrencesJSON](t, rec)

	assert.Equal(t, "day", resp.View)
	require.Len(t, resp.Occurrences, 2)
	assert.Equal(t, "standup::2024-01-03T09:00:00.000Z", resp.Occurrences[0].ID)
	assert.Equal(t, "dentist", resp.Occurrences[1].ID)
	assert.True(t, resp.Occurrences[0].Conflict)
	assert.True(t, resp.Occurrences[1].Conflict)
}

func TestOccurrences_WeekAndList(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	week := decode[occurrencesJSON](t, do(t, s, http.MethodGet, "/api/occurrences?date=2024-01-03", ""))
	assert.Equal(t, "week", week.View)
	// Monday Jan 1 to Sunday Jan 7: seven standups and the dentist.
	assert.Len(t, week.Occurrences, 8)

	list := decode[occurrencesJSON](t, do(t, s, http.MethodGet, "/api/occurrences?view=list&date=2024-01-05&days=2", ""))
	assert.Len(t, list.Occurrences, 2)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/occurrences?view=month", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/occurrences?date=03-01-2024", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/occurrences?view=list&days=0", "").Code)
}

func TestToggle_InvalidatesCache(t *testing.T) {
	s, svc, _ := newTestServer(t, nil)

	before := decode[occurrencesJSON](t, do(t, s, http.MethodGet, "/api/occurrences?view=day", ""))
	require.False(t, before.Occurrences[0].Completed)

	id := url.PathEscape("standup::2024-01-03T09:00:00.000Z")
	rec := do(t, s, http.MethodPost, "/api/occurrences/"+id+"/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	task, err := svc.Get("standup")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-03T09:00:00.000Z"}, task.CompletedInstances)

	after := decode[occurrencesJSON](t, do(t, s, http.MethodGet, "/api/occurrences?view=day", ""))
	assert.True(t, after.Occurrences[0].Completed)
	// Completed occurrences never conflict.
	assert.False(t, after.Occurrences[0].Conflict)
	assert.False(t, after.Occurrences[1].Conflict)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/occurrences/nope/toggle", "").Code)
}

func TestOccurrences_ViewComputedBeforeMutationIsNotCached(t *testing.T) {
	s, svc, _ := newTestServer(t, nil)
	day := schedule.DayWindow(s.now(), time.UTC)
	key := "day|" + day.Start.Format(time.RFC3339) + "|" + day.End.Format(time.RFC3339)

	_, _, gen := s.cachedOccurrences(key)
	stale := occurrencesCache{resp: s.occurrencesFor("day", day), updatedAt: s.now()}

	_, err := svc.ToggleComplete(context.Background(), "standup::2024-01-03T09:00:00.000Z")
	require.NoError(t, err)

	assert.False(t, s.storeOccurrences(key, gen, stale))
	got := decode[occurrencesJSON](t, do(t, s, http.MethodGet, "/api/occurrences?view=day", ""))
	require.NotEmpty(t, got.Occurrences)
	assert.True(t, got.Occurrences[0].Completed)

	_, _, current := s.cachedOccurrences(key)
	assert.True(t, s.storeOccurrences(key, current, stale))
}

func TestTaskCRUD(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/tasks",
		`{"title":"Gym","start":"2024-01-04T18:00:00Z","end":"2024-01-04T19:00:00Z","priority":"low","reminderMinutes":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Task](t, rec)
	assert.NotEmpty(t, created.ID)

	rec = do(t, s, http.MethodPut, "/api/tasks/"+created.ID,
		`{"title":"Gym (late)","start":"2024-01-04T20:00:00Z","end":"2024-01-04T21:00:00Z","priority":"low"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Gym (late)", decode[model.Task](t, rec).Title)

	rec = do(t, s, http.MethodGet, "/api/tasks/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/tasks", `{"title":"bad","start":"2024-01-04T18:00:00Z","end":"2024-01-04T17:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/tasks/"+url.PathEscape("standup::2024-01-02T09:00:00.000Z"), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	tasks := decode[[]model.Task](t, do(t, s, http.MethodGet, "/api/tasks", ""))
	require.Len(t, tasks, 2)
	assert.Equal(t, "dentist", tasks[0].ID)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/tasks/standup", "").Code)
}

func TestImport(t *testing.T) {
	s, svc, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/import",
		`{"tasks":[{"title":"Call mom","start":"2024-01-05T10:00:00Z"},{"title":""}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[importResponse](t, rec)
	require.Len(t, resp.Imported, 1)
	assert.Equal(t, 15, resp.Imported[0].ReminderMinutes)
	assert.NotEmpty(t, resp.Rejected)
	assert.Len(t, svc.Tasks(), 3)

	rec = do(t, s, http.MethodPost, "/api/import", `[{"title":"no start"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/import", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportICS(t *testing.T) {
	s, svc, _ := newTestServer(t, nil)
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:x\r\nDTSTAMP:20240101T000000Z\r\n" +
		"DTSTART:20240110T080000Z\r\nDTEND:20240110T090000Z\r\nSUMMARY:Run\r\n" +
		"RRULE:FREQ=WEEKLY\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

	rec := do(t, s, http.MethodPost, "/api/import/ics", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[importResponse](t, rec)
	require.Len(t, resp.Imported, 1)
	assert.Equal(t, model.FrequencyWeekly, resp.Imported[0].Recurrence.Frequency)
	assert.Len(t, svc.Tasks(), 3)

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer feed.Close()

	rec = do(t, s, http.MethodPost, "/api/import/ics?url="+url.QueryEscape(feed.URL+"/cal.ics"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, svc.Tasks(), 4)
}

func TestCalendarExport(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/calendar")
	assert.Contains(t, rec.Body.String(), "RRULE:FREQ=DAILY;INTERVAL=1")
	assert.Contains(t, rec.Body.String(), "UID:dentist")
}

func TestXLSXExport(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/export.xlsx?view=day", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "occurrences.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Occurrences")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestReminders(t *testing.T) {
	s, _, feed := newTestServer(t, nil)

	events := decode[[]reminder.Event](t, do(t, s, http.MethodGet, "/api/reminders", ""))
	assert.Empty(t, events)

	require.NoError(t, feed.Notify(context.Background(), model.Occurrence{ID: model.OccurrenceID{SeriesID: "dentist"}, Title: "Dentist"}))
	events = decode[[]reminder.Event](t, do(t, s, http.MethodGet, "/api/reminders", ""))
	require.Len(t, events, 1)
	assert.Equal(t, "Dentist", events[0].Occurrence.Title)
}
