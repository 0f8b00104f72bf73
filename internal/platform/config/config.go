// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Lantsov/middleman/internal/platform/retry"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds the service settings.
//
// WEIGHT_SERVICES entries must be unique: a repeated address is a startup error rather than a
// second slot, since POST /weight resolves one address to one slot. RECONNECT_ATTEMPTS=0 means
// unlimited reconnects, not none.
type Config struct {
	WeightServices   string `env:"WEIGHT_SERVICES"`
	Port             string `env:"PORT" default:"3000"`
	EnableHTTPServer bool   `env:"ENABLE_HTTP_SERVER" default:"false"`
	HTTPPort         string `env:"HTTP_PORT" default:"4000"`
	AllowedOrigins   string `env:"ALLOWED_ORIGINS"`

	LogLevel      string `env:"LOG_LEVEL" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" default:"text"`
	LogPath       string `env:"LOG_PATH" default:"logs/"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" default:"20"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" default:"14"`

	// Millisecond values, matching the variables operators already set for this service.
	ReconnectIntervalMs int `env:"RECONNECT_INTERVAL" default:"60000"`
	ReconnectAttempts   int `env:"RECONNECT_ATTEMPTS" default:"120"` // 0 = unlimited
	BroadcastIntervalMs int `env:"BROADCAST_INTERVAL" default:"1000"`
	DeviceReadTimeoutMs int `env:"DEVICE_READ_TIMEOUT" default:"0"`
	DialTimeoutMs       int `env:"DIAL_TIMEOUT" default:"10000"`

	MaxSubscribers  int     `env:"MAX_SUBSCRIBERS" default:"0"`
	LookupRateLimit float64 `env:"LOOKUP_RATE_LIMIT" default:"20"`
	LookupRateBurst int     `env:"LOOKUP_RATE_BURST" default:"40"`

	MaxSubscribersPerIP int     `env:"MAX_SUBSCRIBERS_PER_IP" default:"0"`
	SubscribeRateLimit  float64 `env:"SUBSCRIBE_RATE_LIMIT" default:"0"`
	SubscribeRateBurst  int     `env:"SUBSCRIBE_RATE_BURST" default:"10"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Addresses returns the trimmed, non-empty device URLs in configuration order.
func (c *Config) Addresses() []string {
	return splitList(c.WeightServices)
}

// Origins returns the accepted subscriber Origin values. Empty means any origin.
func (c *Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// RetryPolicy returns the reconnect policy for every source.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Interval:    millis(c.ReconnectIntervalMs),
		MaxAttempts: c.ReconnectAttempts,
	}
}

func (c *Config) BroadcastInterval() time.Duration { return millis(c.BroadcastIntervalMs) }
func (c *Config) DeviceReadTimeout() time.Duration { return millis(c.DeviceReadTimeoutMs) }
func (c *Config) DialTimeout() time.Duration       { return millis(c.DialTimeoutMs) }

func validate(cfg *Config) error {
	addresses := cfg.Addresses()
	if len(addresses) == 0 {
		return errors.New("WEIGHT_SERVICES is required")
	}

	seen := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		u, err := url.Parse(addr)
		if err != nil {
			return fmt.Errorf("WEIGHT_SERVICES: invalid address %q: %w", addr, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("WEIGHT_SERVICES: address %q must use ws:// or wss://", addr)
		}
		if u.Host == "" {
			return fmt.Errorf("WEIGHT_SERVICES: address %q has no host", addr)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("WEIGHT_SERVICES: duplicate address %q", addr)
		}
		seen[addr] = struct{}{}
	}

	if cfg.Port == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.EnableHTTPServer {
		if cfg.HTTPPort == "" {
			return errors.New("HTTP_PORT must not be empty when ENABLE_HTTP_SERVER is set")
		}
		if cfg.HTTPPort == cfg.Port {
			return fmt.Errorf("HTTP_PORT must differ from PORT (%s)", cfg.Port)
		}
	}

	positive := map[string]int{
		"RECONNECT_INTERVAL": cfg.ReconnectIntervalMs,
		"BROADCAST_INTERVAL": cfg.BroadcastIntervalMs,
		"DIAL_TIMEOUT":       cfg.DialTimeoutMs,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}

	nonNegative := map[string]int{
		"RECONNECT_ATTEMPTS":     cfg.ReconnectAttempts,
		"DEVICE_READ_TIMEOUT":    cfg.DeviceReadTimeoutMs,
		"MAX_SUBSCRIBERS":        cfg.MaxSubscribers,
		"MAX_SUBSCRIBERS_PER_IP": cfg.MaxSubscribersPerIP,
		"SUBSCRIBE_RATE_BURST":   cfg.SubscribeRateBurst,
		"LOG_MAX_SIZE_MB":        cfg.LogMaxSizeMB,
		"LOG_MAX_AGE_DAYS":       cfg.LogMaxAgeDays,
	}
	for name, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", name, value)
		}
	}

	if cfg.EnableHTTPServer && (cfg.LookupRateLimit <= 0 || cfg.LookupRateBurst <= 0) {
		return errors.New("LOOKUP_RATE_LIMIT and LOOKUP_RATE_BURST must be positive")
	}
	if cfg.SubscribeRateLimit < 0 {
		return fmt.Errorf("SUBSCRIBE_RATE_LIMIT must be >= 0, got %g", cfg.SubscribeRateLimit)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
