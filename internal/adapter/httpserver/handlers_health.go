package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Lantsov/middleman/internal/domain"
	"github.com/Lantsov/middleman/internal/platform/version"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()

	response := map[string]any{
		"status": "ok",
		"uptime": uptime,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}

	return nil
}

// handleReadiness reports ready once sources are configured. A disconnected device is not
// a reason to pull the service out of rotation: subscribers still get its NotConnected status.
func (s *Server) handleReadiness(c echo.Context) error {
	sources := s.health.SourceHealth()

	connected := 0
	for _, h := range sources {
		if h.State == domain.LinkConnected {
			connected++
		}
	}

	status, code := "ready", http.StatusOK
	if len(sources) == 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	response := map[string]any{
		"status":    status,
		"sources":   len(sources),
		"connected": connected,
	}
	if err := c.JSON(code, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSources(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.health.SourceHealth()); err != nil {
		return fmt.Errorf("failed to write sources response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
