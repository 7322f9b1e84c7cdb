/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the policy history server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment, then apply flags
  2. Initialize logger, metrics registry and SQLite archive
  3. Create API handler and replay the latest archived batch
  4. Optionally fetch the remote feed (-reload)
  5. Start the periodic feed refresh (POLICY_HISTORY_REFRESH_INTERVAL)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: POLICY_HISTORY_PORT or 8080)
  -db      SQLite database path (default: POLICY_HISTORY_DB)
           Use ":memory:" for in-memory database
  -feed    Remote feed URL. Empty means mock environment: events arrive
           only through POST /api/events and scenarios.
  -reload  Fetch the feed once at startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the feed refresh
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run against a feed
  ./server -feed="https://example.com/events" -reload

  # Run with in-memory database and pretty logs
  POLICY_HISTORY_LOG_PRETTY=true ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Batch archive
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/warp/policy-history/api"
	"github.com/warp/policy-history/config"
	"github.com/warp/policy-history/feed"
	"github.com/warp/policy-history/format"
	"github.com/warp/policy-history/logging"
	"github.com/warp/policy-history/metrics"
	"github.com/warp/policy-history/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	feedURL := flag.String("feed", cfg.FeedURL, "Remote feed URL (empty for mock environment)")
	reload := flag.Bool("reload", false, "Fetch the feed once at startup")
	flag.Parse()
	cfg.Port, cfg.DBPath, cfg.FeedURL = *port, *dbPath, *feedURL

	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if err := run(cfg, *reload, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg config.Config, reload bool, log zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	rule, err := cfg.Rule()
	if err != nil {
		return err
	}

	// Initialize archive
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := api.Options{
		Archive:   store,
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
		Logger:    log,
		Formatter: format.TermFormatter{Location: time.UTC},
		Rule:      rule,
	}
	if !cfg.MockEnvironment() {
		opts.Source = feed.NewClient(cfg.FeedURL, cfg.FeedTimeout)
	}
	handler := api.NewHandler(opts)

	ctx := context.Background()
	if ok, err := handler.Replay(ctx); err != nil {
		return fmt.Errorf("replay archive: %w", err)
	} else if !ok {
		log.Info().Msg("archive empty, starting with no policies")
	}

	if reload {
		if _, err := handler.ReloadFeed(ctx); err != nil {
			log.Warn().Err(err).Msg("startup reload failed, serving archived data")
		}
	}

	scheduler := api.NewRefreshScheduler(handler, cfg.RefreshInterval)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("activity_rule", rule.String()).
			Bool("mock_environment", cfg.MockEnvironment()).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
