// Package runner coordinates one scrape run: discovery, fetch, extraction,
// validation, staging, merge, and reporting.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/filmesbr/torrent-movies-etl/internal/logging"
	"github.com/filmesbr/torrent-movies-etl/internal/metrics"
	"github.com/filmesbr/torrent-movies-etl/internal/parse"
	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
	"github.com/filmesbr/torrent-movies-etl/internal/validate"
)

// Config controls run behavior.
type Config struct {
	ListingURL       string
	FetchConcurrency int
	StageRetry       pipeline.RetryPolicy
	MergeRetry       pipeline.RetryPolicy
}

// cacheHitCounter is implemented by fetchers that track cache hits; the
// summary picks the count up when available.
type cacheHitCounter interface {
	CacheHits() int64
}

// Runner executes the full pipeline against one listing page.
type Runner struct {
	fetcher   pipeline.Fetcher
	warehouse pipeline.Warehouse
	validator validate.Validator
	clock     pipeline.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	fetcher pipeline.Fetcher,
	warehouse pipeline.Warehouse,
	validator validate.Validator,
	clock pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}
	return &Runner{
		fetcher:   fetcher,
		warehouse: warehouse,
		validator: validator,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run walks the state machine to completion. Per-item failures are isolated;
// stage-level failures abort the run after their retry budget and surface as
// *pipeline.RunError. On merge failure staging is preserved so a later run
// can retry the merge without refetching.
func (r *Runner) Run(ctx context.Context) (pipeline.RunSummary, error) {
	summary := pipeline.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: r.clock.Now(),
	}
	logger := logging.ForRun(r.logger, summary.RunID)
	logger.Info("run starting", zap.String("listing_url", r.cfg.ListingURL))

	fail := func(stage pipeline.Stage, err error) (pipeline.RunSummary, error) {
		r.finish(&summary, false)
		logger.Error("run failed",
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
		return summary, &pipeline.RunError{Stage: stage, Err: err}
	}

	links, err := r.discover(ctx, logger)
	if err != nil {
		return fail(pipeline.StageDiscovering, err)
	}
	summary.Discovered = len(links)
	logger.Info("links discovered", zap.Int("count", len(links)))

	batch, err := r.collect(ctx, logger, links, &summary)
	if err != nil {
		return fail(pipeline.StageFetching, err)
	}

	// A cancellation between links must never reach the merge.
	if ctx.Err() != nil {
		return fail(pipeline.StageStaging, ctx.Err())
	}

	if err := pipeline.Retry(ctx, r.cfg.StageRetry, func(ctx context.Context) error {
		return r.warehouse.Stage(ctx, batch)
	}); err != nil {
		return fail(pipeline.StageStaging, err)
	}
	logger.Info("batch staged", zap.Int("records", len(batch)))

	if ctx.Err() != nil {
		return fail(pipeline.StageMerging, ctx.Err())
	}

	var inserted int64
	if err := pipeline.Retry(ctx, r.cfg.MergeRetry, func(ctx context.Context) error {
		n, merr := r.warehouse.MergeToMain(ctx)
		if merr != nil {
			return merr
		}
		inserted = n
		return nil
	}); err != nil {
		// Staging is intentionally left intact here.
		return fail(pipeline.StageMerging, err)
	}
	summary.Inserted = inserted
	metrics.ObserveRowsMerged(inserted)

	// The merge is committed; a failed cleanup only costs a truncate on the
	// next run.
	if err := r.warehouse.TruncateStaging(ctx); err != nil {
		logger.Warn("truncate staging failed", zap.Error(err))
	}

	r.finish(&summary, true)
	logger.Info("run succeeded",
		zap.Int("discovered", summary.Discovered),
		zap.Int("accepted", summary.Accepted),
		zap.Int64("inserted", summary.Inserted),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (r *Runner) discover(ctx context.Context, logger *zap.Logger) ([]string, error) {
	doc, err := r.fetcher.Fetch(ctx, r.cfg.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	links, err := parse.ListingLinks(doc)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		logger.Warn("listing page yielded no links; selector drift?")
	}
	return links, nil
}

// collect fetches, extracts, and validates every discovered link with a
// bounded worker pool. Acceptance does not depend on fetch order; per-item
// failures are logged and counted, never fatal. Only context cancellation
// aborts the stage.
func (r *Runner) collect(
	ctx context.Context,
	logger *zap.Logger,
	links []string,
	summary *pipeline.RunSummary,
) ([]pipeline.MovieRecord, error) {
	var (
		mu    sync.Mutex
		batch []pipeline.MovieRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.FetchConcurrency)

	for _, link := range links {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rec, outcome := r.processLink(gctx, logger, link)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case itemFetchFailed:
				// counted only through Discovered - Fetched
			case itemExtractFailed:
				summary.Fetched++
			case itemRejected:
				summary.Fetched++
				summary.Extracted++
				summary.Rejected++
			case itemAccepted:
				summary.Fetched++
				summary.Extracted++
				summary.Accepted++
				batch = append(batch, rec)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if counter, ok := r.fetcher.(cacheHitCounter); ok {
		summary.CacheHits = int(counter.CacheHits())
	}
	return batch, nil
}

type itemOutcome int

const (
	itemFetchFailed itemOutcome = iota
	itemExtractFailed
	itemRejected
	itemAccepted
)

func (r *Runner) processLink(ctx context.Context, logger *zap.Logger, link string) (pipeline.MovieRecord, itemOutcome) {
	doc, err := r.fetcher.Fetch(ctx, link)
	if err != nil {
		logger.Warn("fetch failed, skipping item", zap.String("url", link), zap.Error(err))
		return pipeline.MovieRecord{}, itemFetchFailed
	}

	candidate, err := parse.ExtractCandidate(doc, link)
	if err != nil {
		logger.Warn("extraction failed, skipping item", zap.String("url", link), zap.Error(err))
		return pipeline.MovieRecord{}, itemExtractFailed
	}

	rec, ratio, rejection := r.validator.Record(candidate)
	if rejection != nil {
		metrics.ObserveValidation(false)
		logger.Warn("record rejected",
			zap.String("url", link),
			zap.String("reason", rejection.Reason),
		)
		return pipeline.MovieRecord{}, itemRejected
	}
	metrics.ObserveValidation(true)
	logger.Debug("record accepted",
		zap.String("url", link),
		zap.Float64("completeness", ratio),
	)
	return rec, itemAccepted
}

func (r *Runner) finish(summary *pipeline.RunSummary, succeeded bool) {
	summary.Duration = r.clock.Now().Sub(summary.StartedAt)
	metrics.ObserveRunDuration(summary.Duration, succeeded)
}
