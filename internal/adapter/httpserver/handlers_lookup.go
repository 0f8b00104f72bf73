package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Lantsov/middleman/internal/domain"
	"github.com/Lantsov/middleman/internal/platform/correlation"
	apperrors "github.com/Lantsov/middleman/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const maxLookupBody = 64 << 10

type lookupRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleLookup(c echo.Context) error {
	var req lookupRequest
	body := io.LimitReader(c.Request().Body, maxLookupBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.ValidationError("request body must be a JSON object")
	}

	path := strings.TrimSpace(req.Path)
	if path == "" {
		return apperrors.ValidationError("path is required").WithField("field", "path")
	}

	ctx := correlation.WithAttrs(c.Request().Context(), slog.String("path", path))
	reading, err := s.readings.ReadingFor(path)
	if errors.Is(err, domain.ErrSourceNotFound) {
		return apperrors.NotFoundError("no source configured for path").WithField("path", path)
	}
	if err != nil {
		return apperrors.InternalError("failed to read source", err).WithField("path", path)
	}

	slog.DebugContext(ctx, "Lookup served", "status", reading.Status)
	if err := c.JSON(http.StatusOK, reading); err != nil {
		return fmt.Errorf("failed to write lookup response: %w", err)
	}
	return nil
}
