// Package server exposes the voice pipeline over HTTP so that a thin client
// (or a voxloop instance in remote mode) can send utterances and play back
// the reply.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/d1nch8g/voxloop/answer"
	"github.com/d1nch8g/voxloop/pipeline"
)

const maxQueryLength = 2000

// Backend runs turns for the HTTP handlers. pipeline.Client implements it.
type Backend interface {
	Process(ctx context.Context, wav []byte) pipeline.Result
	Query(ctx context.Context, text string) (answer.Answer, error)
	FallbackReady() bool
}

type Config struct {
	ListenAddr    string
	MaxAudioBytes int
	CORSOrigins   []string
}

type Server struct {
	echo    *echo.Echo
	backend Backend
	config  Config
	logger  *slog.Logger
}

// New creates a configured Echo server with all routes registered.
func New(config Config, backend Backend, logger *slog.Logger) *Server {
	if config.MaxAudioBytes <= 0 {
		config.MaxAudioBytes = pipeline.GetDefaultConfig().MaxAudioBytes
	}
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = []string{"*"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: config.CORSOrigins}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.Warn("request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Debug("request", attrs...)
			return nil
		},
	}))

	s := &Server{echo: e, backend: backend, config: config, logger: logger}
	s.register()
	return s
}

func (s *Server) register() {
	s.echo.GET("/", s.root)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.POST("/query", s.query)
	api.POST("/voice-query", s.voiceQuery)
	api.POST("/voice-query/audio", s.voiceQueryAudio)
	api.GET("/health", s.health)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.config.ListenAddr)
		errc <- s.echo.Start(s.config.ListenAddr)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

type voiceQueryResponse struct {
	Text   string `json:"text"`
	Answer string `json:"answer"`
}

type healthResponse struct {
	Status        string `json:"status"`
	API           bool   `json:"api"`
	FallbackReady bool   `json:"fallback_ready"`
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "voxloop voice assistant API"})
}

func (s *Server) health(c echo.Context) error {
	ready := s.backend.FallbackReady()
	status := "healthy"
	if !ready {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, healthResponse{Status: status, API: true, FallbackReady: ready})
}

func (s *Server) query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Detail: "invalid request body"})
	}
	q := strings.TrimSpace(req.Query)
	if n := utf8.RuneCountInString(q); n == 0 || n > maxQueryLength {
		return c.JSON(http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("query must be 1 to %d characters", maxQueryLength)})
	}

	a, err := s.backend.Query(c.Request().Context(), q)
	if err != nil {
		s.logger.Warn("answer failed, sending apology", "error", err)
	}
	sources := a.Sources
	if sources == nil {
		sources = []string{}
	}
	return c.JSON(http.StatusOK, queryResponse{Answer: a.Text, Sources: sources})
}

// voiceQuery runs a full turn and returns the transcript and answer text.
func (s *Server) voiceQuery(c echo.Context) error {
	wav, err := s.readAudio(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
	}

	res := s.backend.Process(c.Request().Context(), wav)
	if res.Kind == pipeline.Failed {
		return c.JSON(http.StatusBadGateway, errorResponse{Detail: "voice pipeline failed"})
	}
	return c.JSON(http.StatusOK, voiceQueryResponse{Text: res.Transcript, Answer: res.Answer})
}

// voiceQueryAudio runs a full turn and returns the spoken reply as WAV.
func (s *Server) voiceQueryAudio(c echo.Context) error {
	wav, err := s.readAudio(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
	}

	res := s.backend.Process(c.Request().Context(), wav)
	h := c.Response().Header()
	h.Set(pipeline.HeaderKind, res.Kind.String())
	h.Set(pipeline.HeaderReason, res.Reason.String())

	if !res.Playable() {
		s.logger.Error("voice query failed", "reason", res.Reason.String(), "error", res.Err)
		return c.JSON(http.StatusBadGateway, errorResponse{Detail: "voice pipeline failed"})
	}
	h.Set(echo.HeaderContentDisposition, "attachment; filename=response.wav")
	return c.Blob(http.StatusOK, "audio/wav", res.Audio)
}

func (s *Server) readAudio(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile("audio")
	if err != nil {
		return nil, errors.New("audio file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, int64(s.config.MaxAudioBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(content) > s.config.MaxAudioBytes {
		return nil, fmt.Errorf("audio too large, max %d bytes", s.config.MaxAudioBytes)
	}
	if len(content) == 0 {
		return nil, errors.New("empty audio file")
	}
	return content, nil
}
