package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cachemem "github.com/filmesbr/torrent-movies-etl/internal/cache/memory"
	"github.com/filmesbr/torrent-movies-etl/internal/clock/system"
	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
)

func testPolicy() pipeline.RetryPolicy {
	return pipeline.NewExponentialRetryPolicy(3, time.Millisecond, 2*time.Millisecond)
}

func newTestClient(cache pipeline.Cache) *Client {
	return New(Config{
		UserAgent:    "movies-etl-test",
		Timeout:      2 * time.Second,
		IgnoreRobots: true,
	}, cache, nil, testPolicy(), zap.NewNop())
}

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>movie</html>"))
	}))
	defer srv.Close()

	client := newTestClient(nil)
	body, err := client.Fetch(context.Background(), srv.URL+"/detail")
	require.NoError(t, err)
	assert.Equal(t, []byte("<html>movie</html>"), body)
}

func TestFetchCacheShortCircuit(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/detail" {
			hits.Add(1)
		}
		_, _ = w.Write([]byte("<html>movie</html>"))
	}))
	defer srv.Close()

	cache := cachemem.New(time.Hour, system.New())
	client := newTestClient(cache)
	url := srv.URL + "/detail"

	first, err := client.Fetch(context.Background(), url)
	require.NoError(t, err)
	require.EqualValues(t, 1, hits.Load())

	second, err := client.Fetch(context.Background(), url)
	require.NoError(t, err)

	// Second call within TTL: identical content, zero additional requests.
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, hits.Load())
	assert.EqualValues(t, 1, client.CacheHits())
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	client := newTestClient(nil)
	body, err := client.Fetch(context.Background(), srv.URL+"/flaky")
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), body)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchErrorAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(nil)
	url := srv.URL + "/broken"
	_, err := client.Fetch(context.Background(), url)
	require.Error(t, err)

	var fetchErr *pipeline.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, url, fetchErr.URL)
	assert.Error(t, fetchErr.Cause)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cache := cachemem.New(time.Hour, system.New())
	client := newTestClient(cache)
	url := srv.URL + "/missing"

	_, err := client.Fetch(context.Background(), url)
	require.Error(t, err)
	firstCalls := calls.Load()

	_, err = client.Fetch(context.Background(), url)
	require.Error(t, err)
	assert.Greater(t, calls.Load(), firstCalls, "failed fetch must not be served from cache")
	assert.EqualValues(t, 0, client.CacheHits())
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(nil)
	_, err := client.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
