package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"planner/internal/config"
	"planner/internal/ics"
	appLog "planner/internal/log"
	"planner/internal/planner"
	"planner/internal/reminder"
)

// Server exposes the planner over HTTP.
type Server struct {
	cfg     *config.Config
	loc     *time.Location
	tasks   *planner.Service
	feed    *reminder.Feed
	fetcher *ics.Fetcher
	echo    *echo.Echo

	// now is swapped in tests.
	now func() time.Time

	// Expanded views are cached per query and dropped on every mutation.
	occMu    sync.RWMutex
	occCache map[string]occurrencesCache
	occGen   uint64 // bumped by invalidate
}

// NewServer wires routes for svc. feed may be nil when no scanner runs.
func NewServer(cfg *config.Config, svc *planner.Service, feed *reminder.Feed) *Server {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
	}

	s := &Server{
		cfg:      cfg,
		loc:      loc,
		tasks:    svc,
		feed:     feed,
		fetcher:  ics.NewFetcher(cfg.ICSCacheDir),
		echo:     echo.New(),
		now:      time.Now,
		occCache: make(map[string]occurrencesCache),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	svc.OnChange(s.invalidate)

	s.registerMiddlewares()
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) registerMiddlewares() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				appLog.Error("http request", v.Error, "method", v.Method, "uri", v.URI, "status", v.Status)
				return nil
			}
			appLog.Debug("http request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.String())
			return nil
		},
	}))

	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		username := s.cfg.BasicAuth.Username
		password := s.cfg.BasicAuth.Password
		s.echo.Use(middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
			// /health stays open for probes.
			Skipper: func(c echo.Context) bool { return c.Path() == "/health" },
			Realm:   "Planner",
			Validator: func(u, p string, _ echo.Context) (bool, error) {
				return secureCompare(u, username) && secureCompare(p, password), nil
			},
		}))
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api")
	api.GET("/occurrences", s.handleOccurrences)
	api.POST("/occurrences/:id/toggle", s.handleToggle)

	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks/:id", s.handleGetTask)
	api.PUT("/tasks/:id", s.handleUpdateTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)

	api.POST("/import", s.handleImport)
	api.POST("/import/ics", s.handleImportICS)

	api.GET("/calendar.ics", s.handleCalendar)
	api.GET("/export.xlsx", s.handleExportXLSX)
	api.GET("/reminders", s.handleReminders)
}

// basicAuthEnabled reports whether both credentials are configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- s.echo.Start(s.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
