package posestream

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/chat"
	"github.com/normanking/talkinghead/internal/errs"
	"github.com/normanking/talkinghead/internal/logging"
	"github.com/normanking/talkinghead/internal/tts"
)

// Speaker starts and stops utterances.
type Speaker interface {
	Speak(ctx context.Context, text string) (string, error)
	Stop()
	Busy() bool
}

// Chatter answers a chat message.
type Chatter interface {
	Send(ctx context.Context, text string) (string, error)
}

// LogSource serves recent log entries.
type LogSource interface {
	History(limit int) []logging.LogEntry
}

// TextRequest is the body of /speak and /chat.
type TextRequest struct {
	Text string `json:"text"`
}

// SpeakResponse is returned by /speak.
type SpeakResponse struct {
	Session string `json:"session"`
}

// ChatResponse is returned by /chat.
type ChatResponse struct {
	Reply   string `json:"reply"`
	Session string `json:"session,omitempty"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Busy    bool   `json:"busy"`
	Clients int    `json:"clients"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Server is the HTTP surface around the hub.
type Server struct {
	logger  zerolog.Logger
	addr    string
	echo    *echo.Echo
	hub     *Hub
	speaker Speaker
	chat    Chatter
	logs    LogSource
}

// Option customizes a Server.
type Option func(*Server)

// WithChat enables the /chat route.
func WithChat(c Chatter) Option {
	return func(s *Server) { s.chat = c }
}

// WithLogs enables the /logs route.
func WithLogs(l LogSource) Option {
	return func(s *Server) { s.logs = l }
}

// NewServer builds the routes: /pose, /speak, /stop, /healthz, /metrics and,
// when enabled, /chat and /logs.
func NewServer(logger zerolog.Logger, addr string, hub *Hub, speaker Speaker, opts ...Option) *Server {
	s := &Server{
		logger:  logger.With().Str("component", "server").Logger(),
		addr:    addr,
		hub:     hub,
		speaker: speaker,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request")
			return nil
		},
	}))

	e.GET("/pose", func(c echo.Context) error {
		return s.hub.ServeWS(c.Response(), c.Request())
	})
	e.POST("/speak", s.handleSpeak)
	e.POST("/stop", s.handleStop)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if s.chat != nil {
		e.POST("/chat", s.handleChat)
	}
	if s.logs != nil {
		e.GET("/logs", s.handleLogs)
	}

	s.echo = e
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("Pose stream listening")
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Server is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request format",
	})
}

func invalidInput(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   errs.Kind(err),
		Message: err.Error(),
	})
}

func (s *Server) handleSpeak(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	session, err := s.speaker.Speak(c.Request().Context(), req.Text)
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return invalidInput(c, err)
	case err != nil:
		s.logger.Error().Err(err).Msg("Speak request failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "speak_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusAccepted, SpeakResponse{Session: session})
}

func (s *Server) handleStop(c echo.Context) error {
	s.speaker.Stop()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleChat(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	reply, err := s.chat.Send(c.Request().Context(), req.Text)
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return invalidInput(c, err)
	case errors.Is(err, chat.ErrBusy):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "busy",
			Message: err.Error(),
		})
	case err != nil:
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "chat_failed",
			Message: err.Error(),
		})
	}

	resp := ChatResponse{Reply: reply}
	session, err := s.speaker.Speak(c.Request().Context(), tts.Sanitize(reply))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to speak chat reply")
	} else {
		resp.Session = session
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Busy:    s.speaker.Busy(),
		Clients: s.hub.Count(),
	})
}

func (s *Server) handleLogs(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c)
		}
		limit = n
	}
	return c.JSON(http.StatusOK, s.logs.History(limit))
}
