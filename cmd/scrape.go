package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filmesbr/torrent-movies-etl/internal/cache/disk"
	cachemem "github.com/filmesbr/torrent-movies-etl/internal/cache/memory"
	"github.com/filmesbr/torrent-movies-etl/internal/clock/system"
	"github.com/filmesbr/torrent-movies-etl/internal/config"
	"github.com/filmesbr/torrent-movies-etl/internal/fetch"
	"github.com/filmesbr/torrent-movies-etl/internal/metrics"
	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
	"github.com/filmesbr/torrent-movies-etl/internal/ratelimit"
	"github.com/filmesbr/torrent-movies-etl/internal/runner"
	"github.com/filmesbr/torrent-movies-etl/internal/validate"
	warehousemem "github.com/filmesbr/torrent-movies-etl/internal/warehouse/memory"
	"github.com/filmesbr/torrent-movies-etl/internal/warehouse/postgres"
)

// newScrapeCmd creates the 'scrape' subcommand: one full pipeline run.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Runs one scrape-validate-load pipeline pass",
		Long: `Discovers detail links on the configured listing page, fetches each
(cache-checked and rate-limited), extracts and validates movie records,
stages them, and merges new records into the permanent store.`,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
		go func() {
			if serr := srv.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(serr))
			}
		}()
		defer srv.Close() //nolint:errcheck // shutting down anyway
	}

	clock := system.New()

	cache, err := buildCache(cfg, clock, logger)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Config{
		CallsPerSecond: cfg.RateLimit.CallsPerSecond,
		Burst:          cfg.RateLimit.Burst,
	})

	fetchRetry := pipeline.NewExponentialRetryPolicy(
		cfg.HTTP.MaxRetries,
		cfg.BackoffInitial(),
		cfg.BackoffMax(),
	)
	client := fetch.New(fetch.Config{
		UserAgent:    cfg.Site.UserAgent,
		Timeout:      cfg.HTTPTimeout(),
		IgnoreRobots: cfg.Site.IgnoreRobots,
	}, cache, limiter, fetchRetry, logger)

	warehouse, err := buildWarehouse(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer warehouse.Close()

	if err := warehouse.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	run := runner.New(
		client,
		warehouse,
		validate.Validator{MinCompleteness: cfg.Pipeline.MinCompleteness},
		clock,
		runner.Config{
			ListingURL:       cfg.Site.ListingURL,
			FetchConcurrency: cfg.Pipeline.FetchConcurrency,
			StageRetry:       pipeline.NewExponentialRetryPolicy(cfg.Pipeline.StageRetries, cfg.BackoffInitial(), cfg.BackoffMax()),
			MergeRetry:       pipeline.NewExponentialRetryPolicy(cfg.Pipeline.MergeRetries, cfg.BackoffInitial(), cfg.BackoffMax()),
		},
		logger,
	)

	summary, runErr := run.Run(ctx)

	// The summary is the machine-readable contract for schedulers; print it
	// even when the run failed so partial counts are visible.
	out, merr := json.MarshalIndent(summary, "", "  ")
	if merr == nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}

	return runErr
}

func buildCache(cfg config.Config, clock pipeline.Clock, logger *zap.Logger) (pipeline.Cache, error) {
	switch cfg.Cache.Backend {
	case "disk":
		c, err := disk.New(cfg.Cache.Dir, cfg.CacheTTL(), clock)
		if err != nil {
			return nil, fmt.Errorf("init disk cache: %w", err)
		}
		return c, nil
	case "memory":
		return cachemem.New(cfg.CacheTTL(), clock), nil
	case "off":
		logger.Info("fetch cache disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func buildWarehouse(ctx context.Context, cfg config.Config, logger *zap.Logger) (pipeline.Warehouse, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set; using in-memory warehouse, results will be discarded on exit")
		return warehousemem.New(), nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:          cfg.DB.DSN,
		MainTable:    cfg.DB.MainTable,
		StagingTable: cfg.DB.StagingTable,
		MaxConns:     cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}
	return store, nil
}
