package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filmesbr/torrent-movies-etl/internal/clock/system"
	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
	"github.com/filmesbr/torrent-movies-etl/internal/validate"
	warehousemem "github.com/filmesbr/torrent-movies-etl/internal/warehouse/memory"
)

const listingURL = "https://example.com/lancamentos/"

// mapFetcher serves canned pages keyed by URL.
type mapFetcher struct {
	mu       sync.Mutex
	pages    map[string][]byte
	failures map[string]error
	onFetch  func(url string)
	calls    map[string]int
}

func newMapFetcher() *mapFetcher {
	return &mapFetcher{
		pages:    make(map[string][]byte),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	page, ok := f.pages[url]
	if !ok {
		return nil, &pipeline.FetchError{URL: url, Cause: errors.New("no such page")}
	}
	return page, nil
}

func listingPage(links ...string) []byte {
	page := `<html><body><div id="capas_pequenas">`
	for _, link := range links {
		page += fmt.Sprintf(`<div><a href="%s">filme</a></div>`, link)
	}
	page += `</div></body></html>`
	return []byte(page)
}

func detailPage(title, info string) []byte {
	return []byte(fmt.Sprintf(`<html><body>
<div id="informacoes"><p>
Baixar %s Torrent
%s
</p></div>
</body></html>`, title, info))
}

func fastPolicy(attempts int) pipeline.RetryPolicy {
	return pipeline.NewExponentialRetryPolicy(attempts, time.Millisecond, 2*time.Millisecond)
}

func newTestRunner(fetcher pipeline.Fetcher, warehouse pipeline.Warehouse) *Runner {
	return New(fetcher, warehouse, validate.Validator{}, system.New(), Config{
		ListingURL:       listingURL,
		FetchConcurrency: 2,
		StageRetry:       fastPolicy(2),
		MergeRetry:       fastPolicy(2),
	}, zap.NewNop())
}

func seedThreeMovies(f *mapFetcher) []string {
	links := []string{
		"https://example.com/matrix",
		"https://example.com/duna",
		"https://example.com/obscuro",
	}
	f.pages[listingURL] = listingPage(links...)
	f.pages[links[0]] = detailPage("Matrix", "Imdb: 8,7 / 10\nLançamento: 1999")
	f.pages[links[1]] = detailPage("Duna", "Imdb: 8,0 / 10\nLançamento: 2021")
	// Malformed detail page: no rating, no year. Still a valid record.
	f.pages[links[2]] = detailPage("Filme Obscuro", "Qualidade: 720p")
	return links
}

func TestRunAcceptsStagesAndMergesAllDiscoveredRecords(t *testing.T) {
	t.Parallel()

	fetcher := newMapFetcher()
	seedThreeMovies(fetcher)
	store := warehousemem.New()

	summary, err := newTestRunner(fetcher, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Discovered)
	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 3, summary.Extracted)
	assert.Equal(t, 3, summary.Accepted)
	assert.Equal(t, 0, summary.Rejected)
	assert.EqualValues(t, 3, summary.Inserted)
	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.StartedAt.IsZero())

	assert.Equal(t, 3, store.MainCount())
	assert.Equal(t, 0, store.StagedCount(), "staging must be emptied after a committed merge")

	rec, ok := store.Get("https://example.com/obscuro")
	require.True(t, ok)
	assert.Nil(t, rec.Rating)
	assert.Nil(t, rec.Year)
}

func TestSecondRunInsertsNothingNew(t *testing.T) {
	t.Parallel()

	fetcher := newMapFetcher()
	seedThreeMovies(fetcher)
	store := warehousemem.New()
	run := newTestRunner(fetcher, store)

	_, err := run.Run(context.Background())
	require.NoError(t, err)

	summary, err := run.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Accepted)
	assert.EqualValues(t, 0, summary.Inserted)
	assert.Equal(t, 3, store.MainCount())
}

func TestRunSkipsLinksAlreadyInPermanentStore(t *testing.T) {
	t.Parallel()

	fetcher := newMapFetcher()
	seedThreeMovies(fetcher)
	store := warehousemem.New()
	store.Seed(pipeline.MovieRecord{Link: "https://example.com/matrix"})

	summary, err := newTestRunner(fetcher, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Accepted)
	assert.EqualValues(t, 2, summary.Inserted)
	assert.Equal(t, 3, store.MainCount())
}

func TestRejectedRecordsAreCountedNotStaged(t *testing.T) {
	t.Parallel()

	fetcher := newMapFetcher()
	links := seedThreeMovies(fetcher)
	// Out-of-range rating makes this one a rejection.
	fetcher.pages[links[1]] = detailPage("Duna", "Imdb: 12 / 10\nLançamento: 2021")
	store := warehousemem.New()

	summary, err := newTestRunner(fetcher, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Extracted)
	assert.Equal(t, 2, summary.Accepted)
	assert.Equal(t, 1, summary.Rejected)
	assert.EqualValues(t, 2, summary.Inserted)
	_, ok := store.Get(links[1])
	assert.False(t, ok)
}

func TestPerItemFetchFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	fetcher := newMapFetcher()
	links := seedThreeMovies(fetcher)
	fetcher.failures[links[0]] = &pipeline.FetchError{URL: links[0], Cause: errors.New("status 502")}
	store := warehousemem.New()

	summary, err := newTestRunner(fetcher, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Discovered)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 2, summary.Accepted)
	assert.EqualValues(t, 2, summary.Inserted)
}

func TestListingFetchFailureFailsAtDiscovery(t *testing.T) {
	t.Parallel()

	fetcher := newMapFetcher()
	fetcher.failures[listingURL] = &pipeline.FetchError{URL: listingURL, Cause: errors.New("status 503")}

	_, err := newTestRunner(fetcher, warehousemem.New()).Run(context.Background())
	require.Error(t, err)

	var runErr *pipeline.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, pipeline.StageDiscovering, runErr.Stage)
}

// faultyWarehouse wraps the in-memory store with injectable failures and call
// tracking.
type faultyWarehouse struct {
	*warehousemem.Store

	stageErr    error
	mergeErr    error
	mergeCalled bool
	truncated   bool
}

func (w *faultyWarehouse) Stage(ctx context.Context, batch []pipeline.MovieRecord) error {
	if w.stageErr != nil {
		return w.stageErr
	}
	return w.Store.Stage(ctx, batch)
}

func (w *faultyWarehouse) MergeToMain(ctx context.Context) (int64, error) {
	w.mergeCalled = true
	if w.mergeErr != nil {
		return 0, w.mergeErr
	}
	return w.Store.MergeToMain(ctx)
}

func (w *faultyWarehouse) TruncateStaging(ctx context.Context) error {
	w.truncated = true
	return w.Store.TruncateStaging(ctx)
}

func TestMergeFailurePreservesStaging(t *testing.T) {
	t.Parallel()

	fetcher := newMapFetcher()
	seedThreeMovies(fetcher)
	store := &faultyWarehouse{
		Store:    warehousemem.New(),
		mergeErr: &pipeline.SchemaError{Table: "movies", Cause: errors.New("undefined column")},
	}

	summary, err := newTestRunner(fetcher, store).Run(context.Background())
	require.Error(t, err)

	var runErr *pipeline.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, pipeline.StageMerging, runErr.Stage)

	assert.Equal(t, 3, store.StagedCount(), "staging kept for a later merge retry")
	assert.False(t, store.truncated)
	assert.EqualValues(t, 0, summary.Inserted)
}

func TestStageFailureAbortsBeforeMerge(t *testing.T) {
	t.Parallel()

	fetcher := newMapFetcher()
	seedThreeMovies(fetcher)
	store := &faultyWarehouse{
		Store:    warehousemem.New(),
		stageErr: &pipeline.SchemaError{Table: "movies_staging", Cause: errors.New("undefined table")},
	}

	_, err := newTestRunner(fetcher, store).Run(context.Background())
	require.Error(t, err)

	var runErr *pipeline.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, pipeline.StageStaging, runErr.Stage)
	assert.False(t, store.mergeCalled)
}

func TestCancellationDuringCollectNeverReachesMerge(t *testing.T) {
	t.Parallel()

	fetcher := newMapFetcher()
	seedThreeMovies(fetcher)
	store := &faultyWarehouse{Store: warehousemem.New()}

	ctx, cancel := context.WithCancel(context.Background())
	fetcher.onFetch = func(url string) {
		if url != listingURL {
			cancel()
		}
	}

	_, err := newTestRunner(fetcher, store).Run(ctx)
	require.Error(t, err)

	var runErr *pipeline.RunError
	require.ErrorAs(t, err, &runErr)
	assert.False(t, store.mergeCalled, "a canceled run must not merge partial data")
	assert.Equal(t, 0, store.MainCount())
}

func TestSummaryReportsCacheHits(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{mapFetcher: newMapFetcher(), hits: 4}
	seedThreeMovies(fetcher.mapFetcher)

	summary, err := newTestRunner(fetcher, warehousemem.New()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.CacheHits)
}

type countingFetcher struct {
	*mapFetcher
	hits int64
}

func (f *countingFetcher) CacheHits() int64 { return f.hits }
