package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Lantsov/middleman/internal/adapter/metrics"
	"github.com/Lantsov/middleman/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// subscriberHub accepts subscriber connections. *broadcast.Broadcaster satisfies it.
type subscriberHub interface {
	Register(id string, conn *websocket.Conn) error
	Unregister(id string)
}

// readingLookup resolves a configured address to its current reading.
type readingLookup interface {
	ReadingFor(address string) (domain.Reading, error)
}

// Config holds the listener settings.
type Config struct {
	Port            string
	EnableLookup    bool
	LookupPort      string
	AllowedOrigins  []string
	LookupRateLimit float64
	LookupRateBurst int

	// Subscriber guards per remote IP, 0 disables each one.
	MaxSubscribersPerIP int
	SubscribeRateLimit  float64
	SubscribeRateBurst  int
}

// Server runs the subscriber listener and, when enabled, the lookup listener.
type Server struct {
	stream *echo.Echo
	lookup *echo.Echo
	config Config

	hub      subscriberHub
	readings readingLookup
	health   domain.HealthReporter
	metrics  *metrics.Set

	upgrader  websocket.Upgrader
	limits    *subscriberLimits
	startTime time.Time
}

// NewServer builds both listeners. m may be nil.
func NewServer(cfg Config, hub subscriberHub, readings readingLookup, health domain.HealthReporter, m *metrics.Set) *Server {
	srv := &Server{
		stream:   newEcho(),
		config:   cfg,
		hub:      hub,
		readings: readings,
		health:   health,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AllowedOrigins),
		},
		limits:    newSubscriberLimits(cfg.MaxSubscribersPerIP, cfg.SubscribeRateLimit, cfg.SubscribeRateBurst),
		startTime: time.Now(),
	}
	if cfg.EnableLookup {
		srv.lookup = newEcho()
	}

	srv.registerRoutes()
	return srv
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// StreamHandler exposes the subscriber listener's router.
func (s *Server) StreamHandler() http.Handler { return s.stream }

// LookupHandler exposes the lookup listener's router, nil when disabled.
func (s *Server) LookupHandler() http.Handler {
	if s.lookup == nil {
		return nil
	}
	return s.lookup
}

// Start serves until Shutdown is called or a listener fails.
func (s *Server) Start() error {
	var g errgroup.Group

	g.Go(func() error {
		slog.Info("Starting subscriber server", "port", s.config.Port)
		return serve(s.stream, s.config.Port)
	})
	if s.lookup != nil {
		g.Go(func() error {
			slog.Info("Starting lookup server", "port", s.config.LookupPort)
			return serve(s.lookup, s.config.LookupPort)
		})
	}

	return g.Wait()
}

func serve(e *echo.Echo, port string) error {
	if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server on port %s: %w", port, err)
	}
	return nil
}

// Shutdown stops accepting requests on both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.stream.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown subscriber server: %w", err))
	}
	if s.lookup != nil {
		if err := s.lookup.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown lookup server: %w", err))
		}
	}
	return errors.Join(errs...)
}
