package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lantsov/middleman/internal/platform/correlation"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "middleman.log"

// Logger is the application-wide structured logger instance.
var Logger *slog.Logger

// Options controls the logger sinks.
type Options struct {
	Level      string // "debug", "info", "warn", "error" (defaults to "info")
	Format     string // "json" or "text" (defaults to "text")
	Dir        string // rotated file sink directory, empty = stdout only
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Stdout     io.Writer // defaults to os.Stdout
}

// InitLogger initializes the global logger. The returned closer releases the file sink and is
// safe to call when no file sink was configured.
func InitLogger(opts Options) io.Closer {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var (
		out    io.Writer = stdout
		closer io.Closer = nopCloser{}
	)
	if opts.Dir != "" {
		file := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, logFileName),
			MaxSize:    opts.MaxSizeMB,
			MaxAge:     opts.MaxAgeDays,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
			LocalTime:  true,
		}
		out = io.MultiWriter(stdout, file)
		closer = file
	}

	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	handler = correlation.NewHandler(handler)

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
	return closer
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithSource returns a logger carrying the slot and address of a device source.
func WithSource(slot int, address string) *slog.Logger {
	return slog.Default().With("slot", slot, "address", address)
}

// WithSubscriber returns a logger carrying a subscriber id.
func WithSubscriber(id string) *slog.Logger {
	return slog.Default().With("subscriber_id", id)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
