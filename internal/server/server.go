// Package server binds the rpc dispatcher to a loopback HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/vetlab/internal/rpc"
)

// DefaultAddr is used when no listen address is configured.
const DefaultAddr = "127.0.0.1:7420"

const (
	requestIDKey    = "request_id"
	maxBody         = "4M"
	shutdownTimeout = 10 * time.Second
)

// ErrNotLoopback is returned for listen addresses reachable from other hosts.
var ErrNotLoopback = errors.New("listen address must be a loopback address")

// statusByCode maps rpc error codes to HTTP statuses. The body is always
// the rpc envelope.
var statusByCode = map[string]int{
	rpc.CodeNotInitialized:   http.StatusServiceUnavailable,
	rpc.CodeNotFound:         http.StatusNotFound,
	rpc.CodeInvalidArgument:  http.StatusBadRequest,
	rpc.CodeConflict:         http.StatusConflict,
	rpc.CodeUnknownOperation: http.StatusNotFound,
	rpc.CodeInternal:         http.StatusInternalServerError,
}

// Server serves rpc operations over HTTP.
type Server struct {
	echo       *echo.Echo
	dispatcher *rpc.Dispatcher
	log        zerolog.Logger
}

// New builds the echo instance and registers routes. gatherer backs
// GET /metrics; nil disables the endpoint.
func New(d *rpc.Dispatcher, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(recovery(logger))
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) { c.Set(requestIDKey, id) },
	}))
	e.Use(requestLogger(logger))
	e.Use(echomw.BodyLimit(maxBody))

	s := &Server{echo: e, dispatcher: d, log: logger}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	api := e.Group("/api")
	api.GET("", s.listOperations)
	api.POST("/:operation", s.call)
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) listOperations(c echo.Context) error {
	return c.JSON(http.StatusOK, rpc.Response{OK: true, Data: s.dispatcher.Operations()})
}

func (s *Server) call(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading request body")
	}
	resp := s.dispatcher.Call(c.Param("operation"), body)
	status := http.StatusOK
	if resp.Error != nil {
		status = statusByCode[resp.Error.Code]
	}
	return c.JSON(status, resp)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := CheckLoopback(addr); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("starting server")
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info().Msg("server stopped")
	return nil
}

// CheckLoopback rejects addresses that do not bind to the loopback
// interface. An empty host binds every interface and is rejected too.
func CheckLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotLoopback, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrNotLoopback, addr)
}
