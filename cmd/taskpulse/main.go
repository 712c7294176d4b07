package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/httpapi"
	"github.com/taskpulse/taskpulse/internal/logging"
	"github.com/taskpulse/taskpulse/internal/monitor"
	"github.com/taskpulse/taskpulse/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := strings.TrimSpace(os.Getenv("TASKPULSE_CONFIG"))
	cfg, err := config.Load(configPath)
	if err != nil {
		stdlog.Fatalf("failed to load configuration: %v", err)
	}

	logger, closeLogs, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		stdlog.Fatalf("failed to initialize logging: %v", err)
	}

	if err := run(cfg, configPath, logger); err != nil {
		logger.Error().Err(err).Msg("taskpulse exited with error")
		closeLogs()
		os.Exit(1)
	}
	closeLogs()
}

func run(cfg config.Config, configPath string, logger zerolog.Logger) error {
	client := workspace.NewHTTPNotionClient(workspace.NotionClientOptions{
		BaseURL:       cfg.BaseURL,
		TokenProvider: workspace.StaticToken(cfg.NotionToken),
		APIVersion:    cfg.NotionVersion,
		PageSize:      cfg.PageSize,
		UserAgent:     "taskpulse",
	})
	discoverer := workspace.NewDiscoverer(workspace.DiscovererOptions{
		Client:      client,
		Concurrency: cfg.Concurrency,
		Log:         logging.Component("discovery"),
	})

	backend, err := monitor.BuildSnapshotBackendFromDSN(cfg.SnapshotDSN)
	if err != nil {
		return fmt.Errorf("build snapshot backend: %w", err)
	}
	if backend != nil {
		defer func() { _ = backend.Close() }()
	}
	cache, err := monitor.NewCache(monitor.CacheOptions{
		Backend: backend,
		Log:     logging.Component("cache"),
	})
	if err != nil {
		return err
	}

	feed := httpapi.NewFeedHub(logging.Component("feed"))
	targets := []monitor.Dispatcher{feed}
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		webhook, err := monitor.NewWebhookDispatcher(monitor.WebhookDispatcherOptions{
			URL:       cfg.WebhookURL,
			Secret:    cfg.WebhookSecret,
			UserAgent: "taskpulse",
		})
		if err != nil {
			return fmt.Errorf("build webhook dispatcher: %w", err)
		}
		targets = append(targets, webhook)
	}

	mon, err := monitor.NewMonitor(monitor.MonitorOptions{
		Reader:      workspace.NewReader(client, logging.Component("reader")),
		Cache:       cache,
		Dispatcher:  monitor.NewFanoutDispatcher(logging.Component("dispatch"), targets...),
		Tracked:     cfg.Tracked,
		Interval:    cfg.Interval(),
		TickTimeout: cfg.TickTimeout(),
		Log:         logging.Component("monitor"),
	})
	if err != nil {
		return err
	}
	if len(cfg.Tracked) > 0 {
		mon.Start()
	}

	if configPath != "" {
		// Only the tracked set applies live; interval or credential
		// changes take effect on the next restart.
		watcher, err := config.NewWatcher(configPath, logging.Component("config"), func(next config.Config) {
			mon.SetTracked(next.Tracked)
		})
		if err != nil {
			logger.Warn().Err(err).Msg("config watcher unavailable, live reload disabled")
		} else {
			defer watcher.Close()
		}
	}

	api := httpapi.NewServer(httpapi.ServerOptions{
		Discoverer:      discoverer,
		Monitor:         mon,
		Cache:           cache,
		Feed:            feed,
		APIToken:        cfg.APIToken,
		RateLimitMax:    intEnv("TASKPULSE_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("TASKPULSE_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64Env("TASKPULSE_MAX_BODY_BYTES", 0),
		Log:             logging.Component("http"),
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Int("tracked", len(cfg.Tracked)).Msg("taskpulse listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		mon.Stop()
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	mon.Stop()
	if err := cache.Flush(); err != nil {
		logger.Warn().Err(err).Msg("final snapshot flush failed")
	}
	return nil
}

func intEnv(name string, fallback int) int {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		stdlog.Printf("ignoring %s=%q: not an integer", name, value)
		return fallback
	}
	return parsed
}

func int64Env(name string, fallback int64) int64 {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		stdlog.Printf("ignoring %s=%q: not an integer", name, value)
		return fallback
	}
	return parsed
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		stdlog.Printf("ignoring %s=%q: not a duration", name, value)
		return fallback
	}
	return parsed
}
