package httpserver

import (
	"log/slog"

	apperrors "github.com/Lantsov/middleman/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

func (s *Server) registerRoutes() {
	s.useCommonMiddleware(s.stream)

	s.stream.GET("/", s.handleSubscribe)
	s.stream.GET("/health/live", s.handleLiveness)
	s.stream.GET("/health/ready", s.handleReadiness)
	s.stream.GET("/health/sources", s.handleSources)
	s.stream.GET("/version", s.handleVersion)
	if s.metrics != nil {
		s.stream.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	if s.lookup != nil {
		s.useCommonMiddleware(s.lookup)

		var errorsTotal *prometheus.CounterVec
		if s.metrics != nil {
			errorsTotal = s.metrics.HTTP.ErrorsTotal
		}
		limiter := newLookupLimiter(s.config.LookupRateLimit, s.config.LookupRateBurst, errorsTotal)
		s.lookup.POST("/weight", s.handleLookup, limiter)
		s.lookup.GET("/health/live", s.handleLiveness)
	}
}

func (s *Server) useCommonMiddleware(e *echo.Echo) {
	e.Use(correlationMiddleware)
	e.Use(setupRequestLoggerMiddleware())
	e.Use(middleware.Recover())
	if s.metrics != nil {
		e.Use(s.metrics.HTTP.Middleware())
		e.Use(apperrors.Middleware(s.metrics.HTTP.ErrorsTotal))
	} else {
		e.Use(apperrors.Middleware(nil))
	}
}

func setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.DebugContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
