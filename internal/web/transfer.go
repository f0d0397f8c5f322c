package web

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"planner/internal/export"
	"planner/internal/ics"
	"planner/internal/importer"
	"planner/internal/model"
	"planner/internal/reminder"
)

const maxImportBytes = 4 << 20

type importResponse struct {
	Imported []model.Task `json:"imported"`
	Rejected string       `json:"rejected,omitempty"`
}

// admit imports drafts and reports rejections next to the admitted tasks.
// Nothing admitted out of a non-empty batch is a client error.
func (s *Server) admit(c echo.Context, drafts []importer.Draft) error {
	tasks, err := s.tasks.Import(c.Request().Context(), drafts)
	resp := importResponse{Imported: tasks}
	if resp.Imported == nil {
		resp.Imported = []model.Task{}
	}
	if err != nil {
		if len(tasks) == 0 && len(drafts) > 0 {
			return respondError(c, http.StatusBadRequest, "no drafts admitted", err)
		}
		resp.Rejected = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// handleImport accepts extracted drafts as a JSON array or {"tasks": [...]}.
func (s *Server) handleImport(c echo.Context) error {
	drafts, err := importer.DecodeDrafts(io.LimitReader(c.Request().Body, maxImportBytes))
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid drafts", err)
	}
	return s.admit(c, drafts)
}

// handleImportICS imports a raw ICS body, or the feed named by ?url=.
func (s *Server) handleImportICS(c echo.Context) error {
	src := ics.Source{ID: "upload"}
	var body []byte

	if feed := c.QueryParam("url"); feed != "" {
		res, err := s.fetcher.FetchOne(c.Request().Context(), ics.Source{URL: feed})
		if err != nil {
			return respondError(c, http.StatusBadGateway, "fetch failed", err)
		}
		src, body = res.Source, res.Body
	} else {
		b, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportBytes))
		if err != nil {
			return respondError(c, http.StatusBadRequest, "read body", err)
		}
		body = b
	}

	events, err := ics.ParseICS(src, body)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid calendar", err)
	}
	return s.admit(c, ics.ToDrafts(events))
}

func (s *Server) handleCalendar(c echo.Context) error {
	out := ics.Export(s.tasks.Tasks(), "Planner", s.now())
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(out))
}

// handleExportXLSX writes the same window the occurrences endpoint would.
func (s *Server) handleExportXLSX(c echo.Context) error {
	view, w, err := s.resolveWindow(c)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid window", err)
	}
	resp := s.occurrencesFor(view, w)

	occs := make([]model.Occurrence, len(resp.Occurrences))
	conflicts := make(map[string]bool)
	for i, o := range resp.Occurrences {
		occs[i] = o.Occurrence
		if o.Conflict {
			conflicts[o.ID.String()] = true
		}
	}

	var buf bytes.Buffer
	if err := export.WriteOccurrences(&buf, occs, conflicts, s.loc); err != nil {
		return respondError(c, http.StatusInternalServerError, "failed to generate Excel file", err)
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, `attachment; filename="occurrences.xlsx"`)
	h.Set(echo.HeaderContentLength, strconv.Itoa(buf.Len()))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) handleReminders(c echo.Context) error {
	if s.feed == nil {
		return c.JSON(http.StatusOK, []reminder.Event{})
	}
	return c.JSON(http.StatusOK, s.feed.Recent())
}
