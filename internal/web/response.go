package web

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	appLog "planner/internal/log"
	"planner/internal/planner"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondError(c echo.Context, code int, msg string, err error) error {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Message = err.Error()
		if code >= http.StatusInternalServerError {
			appLog.Error(msg, err, "path", c.Path())
		}
	}
	return c.JSON(code, resp)
}

// respondServiceError maps planner errors onto status codes.
func respondServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, planner.ErrNotFound):
		return respondError(c, http.StatusNotFound, "task not found", err)
	case errors.Is(err, planner.ErrInvalidTask):
		return respondError(c, http.StatusBadRequest, "invalid task", err)
	default:
		return respondError(c, http.StatusInternalServerError, "internal error", err)
	}
}
