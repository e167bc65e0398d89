// Package metrics exposes Prometheus collectors for the scrape pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal     *prometheus.CounterVec
	cacheLookupsTotal     *prometheus.CounterVec
	recordsValidatedTotal *prometheus.CounterVec
	rowsMergedTotal       prometheus.Counter
	rateLimitDelaySeconds prometheus.Histogram
	runDurationSeconds    *prometheus.HistogramVec
	fetchRetriesTotal     prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_fetched_total",
				Help: "Total pages fetched, labeled by outcome (ok, error).",
			},
			[]string{"outcome"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_cache_lookups_total",
				Help: "Total cache lookups, labeled by result (hit, miss).",
			},
			[]string{"result"},
		)

		recordsValidatedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_records_validated_total",
				Help: "Total validated records, labeled by result (accepted, rejected).",
			},
			[]string{"result"},
		)

		rowsMergedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_rows_merged_total",
				Help: "Total rows newly inserted into the permanent store.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delay_seconds",
				Help:    "Histogram of delays introduced by the rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Histogram of full run durations, labeled by result.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"result"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_fetch_retries_total",
				Help: "Total fetch attempts beyond the first.",
			},
		)
	})
}

// ObservePageFetched records a fetch outcome.
func ObservePageFetched(ok bool) {
	if pagesFetchedTotal == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	pagesFetchedTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if cacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveValidation records an accepted or rejected record.
func ObserveValidation(accepted bool) {
	if recordsValidatedTotal == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	recordsValidatedTotal.WithLabelValues(result).Inc()
}

// ObserveRowsMerged adds newly inserted rows to the merge counter.
func ObserveRowsMerged(n int64) {
	if rowsMergedTotal == nil || n <= 0 {
		return
	}
	rowsMergedTotal.Add(float64(n))
}

// ObserveRateLimitDelay records a delay introduced by the limiter.
func ObserveRateLimitDelay(d time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveRunDuration records a completed run.
func ObserveRunDuration(d time.Duration, succeeded bool) {
	if runDurationSeconds == nil {
		return
	}
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	runDurationSeconds.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveFetchRetry counts one retried fetch attempt.
func ObserveFetchRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// Handler returns a chi router exposing /metrics and /healthz, suitable for
// serving alongside a long scrape run.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
