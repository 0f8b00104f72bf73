package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lantsov/middleman/internal/adapter/httpserver"
	"github.com/Lantsov/middleman/internal/adapter/metrics"
	"github.com/Lantsov/middleman/internal/app"
	"github.com/Lantsov/middleman/internal/platform/config"
	"github.com/Lantsov/middleman/internal/platform/logging"
	"github.com/Lantsov/middleman/internal/platform/version"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet; cobra prints the error.
		return fmt.Errorf("failed to load config: %w", err)
	}

	closer := logging.InitLogger(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Dir:        cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer closer.Close()

	info := version.Get()
	slog.Info("Starting middleman",
		"version", info.Version,
		"commit", info.Commit,
		"sources", len(cfg.Addresses()),
		"reconnect_interval", cfg.RetryPolicy().Interval,
		"reconnect_attempts", cfg.RetryPolicy().MaxLabel(),
	)

	m := metrics.NewSet()

	engine, err := app.NewEngine(app.Options{
		Addresses:         cfg.Addresses(),
		Policy:            cfg.RetryPolicy(),
		ReadTimeout:       cfg.DeviceReadTimeout(),
		HandshakeTimeout:  cfg.DialTimeout(),
		BroadcastInterval: cfg.BroadcastInterval(),
		MaxSubscribers:    cfg.MaxSubscribers,
		Clock:             clockwork.NewRealClock(),
		Metrics:           m,
	})
	if err != nil {
		slog.Error("Failed to build engine", "error", err)
		return err
	}

	srv := httpserver.NewServer(httpserver.Config{
		Port:            cfg.Port,
		EnableLookup:    cfg.EnableHTTPServer,
		LookupPort:      cfg.HTTPPort,
		AllowedOrigins:  cfg.Origins(),
		LookupRateLimit: cfg.LookupRateLimit,
		LookupRateBurst: cfg.LookupRateBurst,

		MaxSubscribersPerIP: cfg.MaxSubscribersPerIP,
		SubscribeRateLimit:  cfg.SubscribeRateLimit,
		SubscribeRateBurst:  cfg.SubscribeRateBurst,
	}, engine.Broadcaster(), engine, engine, m)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Service stopped with error", "error", err)
		return err
	}

	slog.Info("Shutdown complete")
	return nil
}
