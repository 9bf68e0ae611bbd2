package server

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/model"
	"github.com/ppiankov/scitrue/internal/pipeline"
)

// Verifier is the part of the pipeline the API exposes
type Verifier interface {
	Verify(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	BuildReportPrompt(ctx context.Context, claim string, k int) (*pipeline.ReportPrompt, error)
	History(ctx context.Context, email string) ([]model.CacheEntry, error)
}

// Options configures the HTTP API
type Options struct {
	Logger   *zap.Logger
	Gatherer prometheus.Gatherer // nil serves the default registry
	User     model.UserConfig    // identity for requests that carry none
	Timeout  time.Duration       // per-request verification timeout, 0 for none
}

// Server serves claim verification over HTTP
type Server struct {
	e        *echo.Echo
	verifier Verifier
	logger   *zap.Logger
	user     model.UserConfig
	timeout  time.Duration
}

// New builds the echo instance and registers the routes
func New(verifier Verifier, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		e:        echo.New(),
		verifier: verifier,
		logger:   opts.Logger,
		user:     opts.User,
		timeout:  opts.Timeout,
	}

	e := s.e
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	}))
	e.HTTPErrorHandler = s.handleError

	metrics := promhttp.Handler()
	if opts.Gatherer != nil {
		metrics = promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(metrics))

	v1 := e.Group("/v1")
	v1.POST("/verify", s.verify)
	v1.POST("/prompt", s.prompt)
	v1.GET("/history", s.history)
	v1.GET("/estimate", s.estimate)

	return s
}

// Handler exposes the router for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.e
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- s.e.Start(addr)
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
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request().URL.Path), zap.Error(err))
	}
	if !c.Response().Committed {
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

type errorResponse struct {
	Error  string           `json:"error"`
	Kind   string           `json:"kind,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
}

type verifyRequest struct {
	Claim    string `json:"claim"`
	Articles int    `json:"articles"`
	User     string `json:"user,omitempty"`
	Email    string `json:"email,omitempty"`
	NoCache  bool   `json:"no_cache,omitempty"`
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Server) verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.User == "" {
		req.User = s.user.Name
	}
	if req.Email == "" {
		req.Email = s.user.Email
	}

	ctx, cancel := s.withTimeout(c.Request().Context())
	defer cancel()

	res, err := s.verifier.Verify(ctx, pipeline.Request{
		Claim:    req.Claim,
		Articles: req.Articles,
		User:     req.User,
		Email:    req.Email,
		NoCache:  req.NoCache,
	})
	if err != nil {
		return s.failure(c, res, err)
	}
	return c.JSON(http.StatusOK, res)
}

// failure writes run failures with their hint and partial result
func (s *Server) failure(c echo.Context, res *pipeline.Result, err error) error {
	var f *pipeline.Failure
	if !errors.As(err, &f) {
		return err
	}
	return c.JSON(statusFor(f.Kind), errorResponse{Error: f.Hint, Kind: f.KindName(), Result: res})
}

func statusFor(kind error) int {
	switch kind {
	case pipeline.ErrInvalidInput:
		return http.StatusBadRequest
	case pipeline.ErrUnresolvableClaim, pipeline.ErrInsufficientEvidence, pipeline.ErrMalformedReport:
		return http.StatusUnprocessableEntity
	case pipeline.ErrGeneration, pipeline.ErrRetrieval:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type promptResponse struct {
	Query    string               `json:"query"`
	Prompt   string               `json:"prompt"`
	Blocks   int                  `json:"evidence_blocks"`
	Hint     string               `json:"hint,omitempty"`
	Evidence []model.EvidenceItem `json:"evidence"`
}

func (s *Server) prompt(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := s.withTimeout(c.Request().Context())
	defer cancel()

	rp, err := s.verifier.BuildReportPrompt(ctx, req.Claim, req.Articles)
	if err != nil {
		return s.failure(c, nil, err)
	}
	return c.JSON(http.StatusOK, promptResponse{
		Query:    rp.Query,
		Prompt:   rp.Prompt,
		Blocks:   rp.Blocks,
		Hint:     rp.Hint,
		Evidence: rp.Evidence,
	})
}

func (s *Server) history(c echo.Context) error {
	email := strings.TrimSpace(c.QueryParam("email"))
	if email == "" {
		email = s.user.Email
	}
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	entries, err := s.verifier.History(c.Request().Context(), email)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"email": email, "entries": entries})
}

func (s *Server) estimate(c echo.Context) error {
	k, err := strconv.Atoi(c.QueryParam("articles"))
	if err != nil || k < model.MinArticles || k > model.MaxArticles {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("please enter a number between %d-%d", model.MinArticles, model.MaxArticles))
	}
	return c.JSON(http.StatusOK, map[string]string{"estimate": model.EstimateHint(k)})
}
