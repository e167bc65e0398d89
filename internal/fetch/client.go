// Package fetch implements the cached, rate-limited, retrying document
// retrieval layer using the Colly collector.
package fetch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/filmesbr/torrent-movies-etl/internal/metrics"
	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	IgnoreRobots bool
}

// Client implements pipeline.Fetcher. The cache is consulted before any
// network call; a hit returns the cached payload without touching the
// limiter or the wire.
type Client struct {
	cfg           Config
	cache         pipeline.Cache
	limiter       pipeline.Limiter
	retry         pipeline.RetryPolicy
	logger        *zap.Logger
	baseCollector *colly.Collector

	cacheHits atomic.Int64
}

// New builds a Client. cache and limiter may be nil, in which case the
// corresponding behavior is skipped.
func New(cfg Config, cache pipeline.Cache, limiter pipeline.Limiter, retry pipeline.RetryPolicy, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = cfg.IgnoreRobots
	// Retries and cache-expiry refetches revisit the same URL; the
	// collector's visited set must not veto them.
	c.AllowURLRevisit = true
	c.SetRequestTimeout(cfg.Timeout)
	return &Client{
		cfg:           cfg,
		cache:         cache,
		limiter:       limiter,
		retry:         retry,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch returns the document at url, from cache when fresh, otherwise from
// the network with rate limiting and retry. Exhausted retries surface as
// *pipeline.FetchError.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if c.cache != nil {
		if payload, ok := c.cache.Get(url); ok {
			c.cacheHits.Add(1)
			metrics.ObserveCacheLookup(true)
			c.logger.Debug("cache hit", zap.String("url", url))
			return payload, nil
		}
		metrics.ObserveCacheLookup(false)
	}

	var body []byte
	attempt := 0
	err := pipeline.Retry(ctx, c.retry, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.ObserveFetchRetry()
			c.logger.Debug("retrying fetch", zap.String("url", url), zap.Int("attempt", attempt))
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		payload, err := c.visit(ctx, url)
		if err != nil {
			return err
		}
		body = payload
		return nil
	})
	if err != nil {
		metrics.ObservePageFetched(false)
		return nil, &pipeline.FetchError{URL: url, Cause: err}
	}
	metrics.ObservePageFetched(true)

	if c.cache != nil {
		// Cache failures never block the pipeline; the fetch succeeded.
		if cerr := c.cache.Put(url, body); cerr != nil {
			c.logger.Warn("cache write failed", zap.String("url", url), zap.Error(cerr))
		}
	}
	return body, nil
}

// CacheHits reports how many fetches were served from cache.
func (c *Client) CacheHits() int64 {
	return c.cacheHits.Load()
}

func (c *Client) visit(ctx context.Context, url string) ([]byte, error) {
	collector := c.baseCollector.Clone()

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", url, err)
		}
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("response for %s (status %d): %w", url, status, fetchErr)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("unexpected status %d for %s", status, url)
	}
	return body, nil
}
