package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserversAreSafeBeforeInit(t *testing.T) {
	// Reset collectors for testing purposes.
	pagesFetchedTotal = nil
	cacheLookupsTotal = nil
	recordsValidatedTotal = nil
	rowsMergedTotal = nil
	rateLimitDelaySeconds = nil
	runDurationSeconds = nil
	fetchRetriesTotal = nil

	ObservePageFetched(true)
	ObserveCacheLookup(false)
	ObserveValidation(true)
	ObserveRowsMerged(3)
	ObserveRateLimitDelay(time.Millisecond)
	ObserveRunDuration(time.Second, true)
	ObserveFetchRetry()
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if pagesFetchedTotal == nil || cacheLookupsTotal == nil ||
		recordsValidatedTotal == nil || rowsMergedTotal == nil ||
		rateLimitDelaySeconds == nil || runDurationSeconds == nil ||
		fetchRetriesTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	before := testutil.ToFloat64(rowsMergedTotal)
	ObserveRowsMerged(5)
	ObserveRowsMerged(0)
	ObserveRowsMerged(-2)
	if got := testutil.ToFloat64(rowsMergedTotal); got != before+5 {
		t.Errorf("expected rows merged counter to grow by 5, got %f", got-before)
	}

	before = testutil.ToFloat64(fetchRetriesTotal)
	ObserveFetchRetry()
	if got := testutil.ToFloat64(fetchRetriesTotal); got != before+1 {
		t.Errorf("expected retry counter to grow by 1, got %f", got-before)
	}

	ObservePageFetched(true)
	if got := testutil.ToFloat64(pagesFetchedTotal.WithLabelValues("ok")); got < 1 {
		t.Errorf("expected ok fetch counter to be at least 1, got %f", got)
	}
}

func TestHandlerRoutes(t *testing.T) {
	Init()
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}
