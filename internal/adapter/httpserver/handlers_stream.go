package httpserver

import (
	"log/slog"

	"github.com/Lantsov/middleman/internal/platform/correlation"
	apperrors "github.com/Lantsov/middleman/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// handleSubscribe upgrades the request and holds the read side of the subscriber connection
// until the peer goes away. All writes happen in the broadcaster's writer goroutine.
func (s *Server) handleSubscribe(c echo.Context) error {
	if !websocket.IsWebSocketUpgrade(c.Request()) {
		return apperrors.ValidationError("websocket upgrade required")
	}

	ip := c.RealIP()
	if ok, reason := s.limits.acquire(ip); !ok {
		if s.metrics != nil {
			s.metrics.HTTP.SubscribersRejected.WithLabelValues(string(reason)).Inc()
		}
		return apperrors.RateLimitedError("too many subscriber connections").WithField("reason", string(reason))
	}
	defer s.limits.release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		return nil
	}

	id := uuid.NewString()
	ctx := correlation.WithAttrs(c.Request().Context(), slog.String("subscriber_id", id))

	if err := s.hub.Register(id, conn); err != nil {
		slog.WarnContext(ctx, "Subscriber rejected", "remote_addr", ip, "error", err)
		_ = conn.Close()
		return nil
	}
	slog.InfoContext(ctx, "Subscriber connected", "remote_addr", ip)

	defer func() {
		s.hub.Unregister(id)
		slog.InfoContext(ctx, "Subscriber disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
