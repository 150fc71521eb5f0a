// Package httpapi exposes the operational REST surface: cycle control,
// session inspection, alerts, sources, and stats.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/globaltime"
	"horse.fit/tgewatch/internal/monitor"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// CycleRunner is the orchestrator surface the API needs. Kept as an
// interface so handler tests run without a real cycle.
type CycleRunner interface {
	StartCycle(ctx context.Context) (string, error)
	Abort(sessionUUID string) bool
	Running() bool
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pool   *db.Pool
	runner CycleRunner
	logger zerolog.Logger
	opts   Options
}

func NewServer(pool *db.Pool, runner CycleRunner, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:   pool,
		runner: runner,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("tgewatch api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("tgewatch api server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.POST("/sessions", s.handleStartSession)
	api.GET("/sessions", s.handleListSessions)
	api.GET("/sessions/:session_uuid", s.handleGetSession)
	api.DELETE("/sessions/:session_uuid", s.handleAbortSession)
	api.GET("/alerts", s.handleAlerts)
	api.GET("/sources", s.handleSources)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pool.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health ping failed")
		return internalError(c, "Database unreachable")
	}
	return success(c, map[string]any{
		"service":       "tgewatch",
		"time":          globaltime.UTC(),
		"cycle_running": s.runner.Running(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.pool.QueryStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

// handleStartSession launches a cycle in the background. The session row is
// already persisted when the response goes out, so the returned UUID can be
// polled immediately. The cycle deliberately runs on a detached context: it
// must outlive this request.
func (s *Server) handleStartSession(c echo.Context) error {
	sessionUUID, err := s.runner.StartCycle(context.Background())
	if err != nil {
		if errors.Is(err, monitor.ErrCycleInProgress) {
			return failConflict(c, "A monitoring cycle is already in progress")
		}
		s.logger.Error().Err(err).Msg("start cycle failed")
		return internalError(c, "Failed to start monitoring cycle")
	}
	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"session_uuid": sessionUUID,
	})
}

func (s *Server) handleListSessions(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), 20, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	sessions, err := s.pool.ListRecentSessions(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list sessions failed")
		return internalError(c, "Failed to load sessions")
	}
	return success(c, map[string]any{"items": sessions})
}

func (s *Server) handleGetSession(c echo.Context) error {
	sessionUUID := strings.TrimSpace(c.Param("session_uuid"))
	if sessionUUID == "" {
		return failValidation(c, map[string]string{"session_uuid": "is required"})
	}

	session, err := s.pool.GetSession(c.Request().Context(), sessionUUID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Session not found")
		}
		s.logger.Error().Err(err).Str("session_uuid", sessionUUID).Msg("get session failed")
		return internalError(c, "Failed to load session")
	}
	return success(c, session)
}

func (s *Server) handleAbortSession(c echo.Context) error {
	sessionUUID := strings.TrimSpace(c.Param("session_uuid"))
	if sessionUUID == "" {
		return failValidation(c, map[string]string{"session_uuid": "is required"})
	}

	if !s.runner.Abort(sessionUUID) {
		return failNotFound(c, "No running cycle with that session uuid")
	}
	return success(c, map[string]any{"session_uuid": sessionUUID, "aborting": true})
}

func (s *Server) handleAlerts(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	band := strings.TrimSpace(strings.ToLower(c.QueryParam("band")))
	switch band {
	case "", "high", "medium", "low":
	default:
		return failValidation(c, map[string]string{"band": "must be high, medium, or low"})
	}

	since, err := parseTimeFilter(c.QueryParam("since"))
	if err != nil {
		return failValidation(c, map[string]string{"since": "must be RFC3339 or YYYY-MM-DD"})
	}

	filter := db.AlertFilter{
		Band:    band,
		Company: strings.TrimSpace(c.QueryParam("company")),
		Since:   since,
		Limit:   limit,
	}
	alerts, err := s.pool.ListAlerts(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list alerts failed")
		return internalError(c, "Failed to load alerts")
	}
	return success(c, map[string]any{
		"items": alerts,
		"filters": map[string]any{
			"band":    filter.Band,
			"company": filter.Company,
			"since":   filter.Since,
			"limit":   limit,
		},
	})
}

func (s *Server) handleSources(c echo.Context) error {
	sources, err := s.pool.ListSources(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list sources failed")
		return internalError(c, "Failed to load sources")
	}
	return success(c, map[string]any{"items": sources})
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseTimeFilter(raw string) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}
	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		return &utc, nil
	}
	return nil, fmt.Errorf("invalid time format")
}
