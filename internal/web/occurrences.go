package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"planner/internal/model"
	"planner/internal/schedule"
)

const occurrencesCacheTTL = 30 * time.Second

// occurrenceDTO is an occurrence plus its conflict flag for the view.
type occurrenceDTO struct {
	model.Occurrence
	Conflict bool `json:"conflict"`
}

type occurrencesResponse struct {
	View        string          `json:"view"`
	Window      schedule.Window `json:"window"`
	Timezone    string          `json:"timezone"`
	Occurrences []occurrenceDTO `json:"occurrences"`
	Truncated   []string        `json:"truncated,omitempty"`
}

type occurrencesCache struct {
	resp      occurrencesResponse
	updatedAt time.Time
}

func (s *Server) invalidate() {
	s.occMu.Lock()
	clear(s.occCache)
	s.occGen++
	s.occMu.Unlock()
}

// cachedOccurrences returns the entry for key and the cache generation
// it was read under.
func (s *Server) cachedOccurrences(key string) (occurrencesCache, bool, uint64) {
	s.occMu.RLock()
	defer s.occMu.RUnlock()
	e, ok := s.occCache[key]
	return e, ok, s.occGen
}

// storeOccurrences caches e unless a mutation invalidated the cache after
// gen was read, in which case e may predate it.
func (s *Server) storeOccurrences(key string, gen uint64, e occurrencesCache) bool {
	s.occMu.Lock()
	defer s.occMu.Unlock()
	if s.occGen != gen {
		return false
	}
	s.occCache[key] = e
	return true
}

// resolveWindow reads view, date and days from the query. Defaults: the
// week view of today in the configured zone.
func (s *Server) resolveWindow(c echo.Context) (string, schedule.Window, error) {
	day := s.now().In(s.loc)
	if raw := c.QueryParam("date"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, s.loc)
		if err != nil {
			return "", schedule.Window{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		day = d
	}

	view := c.QueryParam("view")
	switch view {
	case "day":
		return view, schedule.DayWindow(day, s.loc), nil
	case "", "week":
		return "week", schedule.WeekWindow(day, s.loc, s.cfg.WeekStart), nil
	case "list":
		days := s.cfg.ListDays
		if raw := c.QueryParam("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return "", schedule.Window{}, fmt.Errorf("days must be a positive integer")
			}
			days = n
		}
		return view, schedule.ListWindow(day, s.loc, days), nil
	default:
		return "", schedule.Window{}, fmt.Errorf("unknown view %q", view)
	}
}

// occurrencesFor expands, sorts and flags conflicts for w.
func (s *Server) occurrencesFor(view string, w schedule.Window) occurrencesResponse {
	res := s.tasks.Occurrences(w.Start, w.End)
	schedule.SortOccurrences(res.Occurrences)
	conflicts := schedule.ConflictSet(res.Occurrences)

	dtos := make([]occurrenceDTO, len(res.Occurrences))
	for i, o := range res.Occurrences {
		dtos[i] = occurrenceDTO{Occurrence: o, Conflict: conflicts[o.ID.String()]}
	}
	return occurrencesResponse{
		View:        view,
		Window:      w,
		Timezone:    s.loc.String(),
		Occurrences: dtos,
		Truncated:   res.Truncated,
	}
}

// handleOccurrences returns the expanded view.
//
// GET /api/occurrences?view=day|week|list&date=YYYY-MM-DD&days=N
func (s *Server) handleOccurrences(c echo.Context) error {
	view, w, err := s.resolveWindow(c)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid window", err)
	}

	key := view + "|" + w.Start.Format(time.RFC3339) + "|" + w.End.Format(time.RFC3339)
	now := s.now()

	cached, ok, gen := s.cachedOccurrences(key)
	if ok && now.Sub(cached.updatedAt) < occurrencesCacheTTL {
		return c.JSON(http.StatusOK, cached.resp)
	}

	resp := s.occurrencesFor(view, w)
	s.storeOccurrences(key, gen, occurrencesCache{resp: resp, updatedAt: now})

	return c.JSON(http.StatusOK, resp)
}

// handleToggle flips completion for one occurrence (or a whole
// non-recurring task).
func (s *Server) handleToggle(c echo.Context) error {
	task, err := s.tasks.ToggleComplete(c.Request().Context(), pathID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}
