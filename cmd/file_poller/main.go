package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/italolelis/file_poller/internal/cleanup"
	"github.com/italolelis/file_poller/internal/config"
	"github.com/italolelis/file_poller/internal/http/rest"
	"github.com/italolelis/file_poller/internal/intake"
	"github.com/italolelis/file_poller/internal/lock"
	"github.com/italolelis/file_poller/internal/logctx"
	"github.com/italolelis/file_poller/internal/notifier"
	"github.com/italolelis/file_poller/internal/storage"
	"github.com/italolelis/file_poller/internal/storage/sqlite"
	"github.com/italolelis/file_poller/internal/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(logctx.NewTraceHandler(handler))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("file poller starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Resolve Lanes
	laneConfigs, err := cfg.LaneConfigs()
	if err != nil {
		return fmt.Errorf("invalid lane configuration: %w", err)
	}

	// =========================================================================
	// Acquire Process Lock
	processLock, err := lock.Acquire(cfg.LockPath)
	if err != nil {
		return err
	}

	defer func() {
		if err := processLock.Release(); err != nil {
			logger.Error("failed to release process lock", "err", err)
		}
	}()

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		PushInterval:   cfg.Telemetry.PushInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	var (
		listeners []intake.OutcomeListener
		journal   storage.OutcomeRepository
	)

	if cfg.DBPath != "" {
		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			logger.Error("DB error", "err", err)

			return err
		}
		defer database.Close()

		repo := sqlite.NewInstrumentedOutcomeRepository(database, tel)
		journal = repo
		listeners = append(listeners, intake.NewJournalListener(repo, storage.GenerateInstanceID()))
	}

	// =========================================================================
	// Start Notification
	if cfg.DiscordWebhookURL != "" {
		listeners = append(listeners, intake.NewNotifyListener(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)))
	}

	// =========================================================================
	// Build Lanes
	lanes := make([]*intake.Lane, 0, len(laneConfigs))
	views := make([]rest.LaneView, 0, len(laneConfigs))

	for _, lc := range laneConfigs {
		opts := []intake.LaneOption{intake.WithTelemetry(tel)}
		for _, l := range listeners {
			opts = append(opts, intake.WithListener(l))
		}

		lane, err := intake.NewLane(lc, opts...)
		if err != nil {
			return fmt.Errorf("failed to build lane %s: %w", lc.Name, err)
		}

		lanes = append(lanes, lane)
		views = append(views, lane)
	}

	// =========================================================================
	// Start API Service
	serverErrors := make(chan error, 1)

	var server *http.Server

	if cfg.Web.Enabled {
		server = setupServer(ctx, cfg, rest.NewOpsHandler(views, journal, tel))

		go func() {
			logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- err
			}
		}()
	}

	// =========================================================================
	// Start Cleanup
	if journal != nil && cfg.ProcessedRetention > 0 {
		go runCleanup(ctx, journal, cfg)
	}

	// =========================================================================
	// Start Lanes
	laneCtx, cancelLanes := context.WithCancel(ctx)
	defer cancelLanes()

	laneErrors := make(chan error, 1)

	go func() {
		laneErrors <- intake.RunLanes(laneCtx, lanes...)
	}()

	logger.Info("waiting for files...", "lanes", len(lanes))

	var runErr error

	select {
	case err := <-serverErrors:
		runErr = fmt.Errorf("server error: %w", err)
		cancelLanes()
		<-laneErrors
	case err := <-laneErrors:
		runErr = err
	case <-ctx.Done():
		cancelLanes()
		runErr = <-laneErrors
	}

	logger.Info("start shutdown")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}
	}

	return runErr
}

// setupServer mounts the ops API behind otelhttp.
func setupServer(ctx context.Context, cfg *config.Config, ops *rest.OpsHandler) *http.Server {
	r := chi.NewRouter()
	r.Mount("/", ops.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "ops"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func runCleanup(ctx context.Context, journal storage.OutcomeSweepRepository, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-ticker.C:
			res, err := cleanup.Sweep(ctx, journal, cfg.ProcessedRetention)
			if err != nil {
				logger.Error("failed to sweep expired processed files", "err", err)
			}

			if res.Deleted > 0 {
				logger.Info("expired processed files removed", "count", res.Deleted)
			}
		}
	}
}
