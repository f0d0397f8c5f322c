package web

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"planner/internal/model"
)

// pathID returns the unescaped :id parameter. Flat occurrence ids carry
// colons, which clients usually percent-encode.
func pathID(c echo.Context) string {
	raw := c.Param("id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func (s *Server) handleListTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.tasks.Tasks())
}

func (s *Server) handleGetTask(c echo.Context) error {
	task, err := s.tasks.Get(pathID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var t model.Task
	if err := c.Bind(&t); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid body", err)
	}
	created, err := s.tasks.Create(c.Request().Context(), t)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) handleUpdateTask(c echo.Context) error {
	var t model.Task
	if err := c.Bind(&t); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid body", err)
	}
	t.ID = pathID(c)
	updated, err := s.tasks.Update(c.Request().Context(), t)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// handleDeleteTask removes the whole series, even when addressed by an
// occurrence id.
func (s *Server) handleDeleteTask(c echo.Context) error {
	if err := s.tasks.Delete(c.Request().Context(), pathID(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
