package httpserver

import (
	"log/slog"
	"time"

	apperrors "github.com/Lantsov/middleman/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Idle per-IP buckets are forgotten after this long.
const lookupLimiterExpiry = 5 * time.Minute

// newLookupLimiter throttles POST /weight per client IP. Echo hands the deny and error handler
// results to c.Error instead of returning them, so both write their response here. counter may be nil.
func newLookupLimiter(perSecond float64, burst int, counter *prometheus.CounterVec) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: lookupLimiterExpiry,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			slog.ErrorContext(c.Request().Context(), "Lookup limiter failed", "error", err)
			return writeError(c, apperrors.InternalError("failed to identify client", err), counter)
		},
		DenyHandler: func(c echo.Context, ip string, _ error) error {
			slog.DebugContext(c.Request().Context(), "Lookup throttled", "client_ip", ip)
			return writeError(c, apperrors.RateLimitedError("too many lookup requests").WithField("client_ip", ip), counter)
		},
	})
}

func writeError(c echo.Context, err *apperrors.Error, counter *prometheus.CounterVec) error {
	if counter != nil {
		counter.WithLabelValues(string(err.Type)).Inc()
	}
	return c.JSON(err.HTTPStatus(), err.ToResponse())
}
