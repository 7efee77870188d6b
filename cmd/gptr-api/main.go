package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gandretiraghu/gptr-road-safety/internal/api"
	"github.com/gandretiraghu/gptr-road-safety/internal/config"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
	"github.com/gandretiraghu/gptr-road-safety/internal/logging"
	"github.com/gandretiraghu/gptr-road-safety/internal/metrics"
	"github.com/gandretiraghu/gptr-road-safety/internal/platform/external_apis"
	"github.com/gandretiraghu/gptr-road-safety/internal/store"
	"github.com/gandretiraghu/gptr-road-safety/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger = logger.With("component", "Main")
	logger.Info("starting GPTR road safety server", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Oracle.BaseURL == "" {
		return errors.New("oracle base URL is required (GPTR_ORACLE_URL)")
	}
	window, err := cfg.SubmissionWindow()
	if err != nil {
		return err
	}

	backend, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer backend.Close()

	oracle, err := external_apis.NewForensicsClient(external_apis.ForensicsConfig{
		BaseURL: cfg.Oracle.BaseURL,
		APIKey:  cfg.Oracle.APIKey,
		Timeout: cfg.OracleTimeout(),
	}, logger)
	if err != nil {
		return err
	}

	if cfg.Feeds.NavigationKey == "" {
		logger.Warn("navigation feed locked; set GPTR_NAV_API_KEY or feeds.navigation_key")
	}
	if cfg.Feeds.CivicKey == "" {
		logger.Warn("civic feed locked; set GPTR_CIVIC_API_KEY or feeds.civic_key")
	}

	m := metrics.New()
	submissions := service.NewSubmissionService(backend, oracle, service.Options{
		Window:        &window,
		Limiter:       cfg.DeviceLimiter(),
		OracleTimeout: cfg.OracleTimeout(),
		Metrics:       m,
		Logger:        logger,
	})
	queries := service.NewQueryService(backend, m, logger)

	router := api.SetupRouter(cfg, api.Dependencies{
		Submissions: submissions,
		Hazards:     queries,
		Feeds:       queries,
		Store:       backend,
		Metrics:     m,
		Limiter:     cfg.IPLimiter(),
		Logger:      logger,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Queue.RabbitMQURL != "" {
		consumer, err := worker.NewJobConsumer(cfg, submissions, logger)
		if err != nil {
			// the HTTP API stays useful without the queue
			logger.Warn("job consumer disabled", "error", err)
		} else {
			g.Go(func() error {
				defer consumer.Close()
				if err := consumer.StartConsuming(gCtx); err != nil {
					logger.Error("job consumer stopped", "error", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gCtx.Done()
				consumer.Stop()
				return nil
			})
		}
	} else {
		logger.Info("RabbitMQ URL not configured; job consumer will not start")
	}

	return g.Wait()
}
