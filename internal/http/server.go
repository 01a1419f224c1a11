package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tierpeak/apollo-middleman/internal/http/middleware"
	"github.com/tierpeak/apollo-middleman/internal/metrics"
	"github.com/tierpeak/apollo-middleman/internal/service/enrichment"
	"go.uber.org/zap"
)

type Options struct {
	Path     string // people-match route, e.g. /v1/people/match
	LogLevel string
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(opts Options, svc *enrichment.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Path == "" {
		opts.Path = "/v1/people/match"
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(opts.LogLevel))

	e.Pre(middleware.Marker())
	e.Use(echoMid.Recover(), middleware.RequestLogger(logger))

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// routes
	h := peopleMatchHandler(svc, logger)
	e.POST(opts.Path, h)
	e.GET(opts.Path, h)

	return &Server{e: e, log: logger}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func echoLogLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
