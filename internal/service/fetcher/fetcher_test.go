package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/assetloader/internal/adapter/filesystem"
	"github.com/inkpress/assetloader/internal/adapter/httptransport"
	"github.com/inkpress/assetloader/internal/adapter/sqlite"
	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/domain/event"
	"github.com/inkpress/assetloader/internal/loader"
)

type recorder struct {
	mu       sync.Mutex
	started  int
	finished []*domain.LoadRecord
}

func (r *recorder) LoadStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recorder) LoadFinished(record *domain.LoadRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *record
	r.finished = append(r.finished, &copied)
}

type fixture struct {
	fetcher  *Fetcher
	assets   *filesystem.Manager
	store    *sqlite.Store
	progress *event.ProgressChannel
	metrics  *recorder
}

func newFixture(t *testing.T, chunkSize int64) *fixture {
	t.Helper()

	assets, err := filesystem.NewManager(t.TempDir())
	require.NoError(t, err)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "loads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	client, err := httptransport.NewClient(nil)
	require.NoError(t, err)

	progress := event.NewProgressChannel()
	l := loader.New(&loader.Config{ChunkSize: chunkSize}, client, progress, nil)
	metrics := &recorder{}

	return &fixture{
		fetcher:  New(l, assets, store, metrics, nil),
		assets:   assets,
		store:    store,
		progress: progress,
		metrics:  metrics,
	}
}

func serveBytes(content []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "book.epub", time.Time{}, bytes.NewReader(content))
	}))
}

func TestFetch_Ranged(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 100)
	srv := serveBytes(content)
	defer srv.Close()

	fx := newFixture(t, 300)
	var events []domain.LoadProgress
	var mu sync.Mutex
	unsubscribe := fx.progress.Subscribe(func(p domain.LoadProgress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	})
	defer unsubscribe()

	record, err := fx.fetcher.Fetch(context.Background(), Request{URL: srv.URL + "/shelf/dune.epub"})
	require.NoError(t, err)

	assert.Equal(t, domain.LoadStatusCompleted, record.Status)
	assert.Equal(t, "dune.epub", record.Name)
	assert.Equal(t, domain.StrategyRanged, record.Strategy)
	assert.Equal(t, int64(1000), record.Size)
	assert.Equal(t, int64(300), record.ChunkSize)
	assert.Equal(t, 4, record.RangeRequests)
	assert.Equal(t, Checksum(content), record.Checksum)

	stored, err := os.ReadFile(record.CachePath)
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	persisted, err := fx.store.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Checksum, persisted.Checksum)
	assert.Equal(t, domain.LoadStatusCompleted, persisted.Status)

	mu.Lock()
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, record.ID, e.LoadID, "progress carries the record id")
	}
	assert.Equal(t, 100, events[len(events)-1].Percent)
	mu.Unlock()

	assert.Equal(t, 1, fx.metrics.started)
	require.Len(t, fx.metrics.finished, 1)
	assert.Equal(t, domain.LoadStatusCompleted, fx.metrics.finished[0].Status)
}

func TestFetch_ChunkSizeOverrideAndName(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 100)
	srv := serveBytes(content)
	defer srv.Close()

	fx := newFixture(t, 1<<20)

	record, err := fx.fetcher.Fetch(context.Background(), Request{
		URL:       srv.URL + "/b",
		Name:      "library/custom.bin",
		ChunkSize: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), record.ChunkSize)
	assert.Equal(t, 3, record.RangeRequests)

	f, info, err := fx.assets.OpenAsset("library/custom.bin")
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, int64(100), info.Size())
}

func TestFetch_FailureIsRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fx := newFixture(t, 10)

	record, err := fx.fetcher.Fetch(context.Background(), Request{URL: srv.URL + "/missing.epub"})
	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))
	require.NotNil(t, record)

	persisted, getErr := fx.store.Get(record.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.LoadStatusFailed, persisted.Status)
	assert.Contains(t, persisted.Error, "500")

	assets, listErr := fx.assets.ListAssets()
	require.NoError(t, listErr)
	assert.Empty(t, assets)

	require.Len(t, fx.metrics.finished, 1)
	assert.Equal(t, domain.LoadStatusFailed, fx.metrics.finished[0].Status)
}

func TestFetch_InvalidInput(t *testing.T) {
	fx := newFixture(t, 10)
	ctx := context.Background()

	_, err := fx.fetcher.Fetch(ctx, Request{})
	assert.ErrorIs(t, err, domain.ErrEmptyURL)

	_, err = fx.fetcher.Fetch(ctx, Request{URL: "http://x/a", ChunkSize: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidChunkSize)

	_, err = fx.fetcher.Fetch(ctx, Request{URL: "http://x/a", Name: ".."})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	records, err := fx.store.List(0)
	require.NoError(t, err)
	assert.Empty(t, records, "rejected requests are not recorded")
	assert.Zero(t, fx.metrics.started)
}

func TestNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://books.example/shelf/dune.epub", "dune.epub"},
		{"https://books.example/shelf/dune.epub?token=abc", "dune.epub"},
		{"https://books.example/shelf/", "shelf"},
		{"https://books.example/", "index"},
		{"https://books.example", "index"},
		{"/relative/book.pdf", "book.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, NameFromURL(tt.url))
		})
	}
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, "ef46db3751d8e999", Checksum(nil))
	assert.Len(t, Checksum([]byte("dune")), 16)
	assert.NotEqual(t, Checksum([]byte("a")), Checksum([]byte("b")))
}

func TestFetch_CacheFull(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 500)
	srv := serveBytes(content)
	defer srv.Close()

	fx := newFixture(t, 1<<20)
	fx.fetcher.SetSpaceManager(NewSpaceManager(fx.assets, 100, 0))

	record, err := fx.fetcher.Fetch(context.Background(), Request{URL: srv.URL + "/big.epub"})
	require.ErrorIs(t, err, domain.ErrCacheFull)
	assert.Equal(t, domain.LoadStatusFailed, record.Status)

	_, _, err = fx.assets.OpenAsset("big.epub")
	assert.ErrorIs(t, err, domain.ErrNotFound, "nothing is written when the cache is full")
}

func TestFetch_RefetchCountsOnlyGrowth(t *testing.T) {
	content := bytes.Repeat([]byte("v2"), 250)
	srv := serveBytes(content)
	defer srv.Close()

	fx := newFixture(t, 1<<20)
	_, _, err := fx.assets.WriteAsset("book.epub", bytes.NewReader(bytes.Repeat([]byte("v1"), 250)))
	require.NoError(t, err)
	_, _, err = fx.assets.WriteAsset("other.epub", bytes.NewReader(make([]byte, 50)))
	require.NoError(t, err)

	space := NewSpaceManager(fx.assets, 600, 0)
	fx.fetcher.SetSpaceManager(space)
	fx.fetcher.SetEvictor(NewEvictor(fx.assets, space, 0, nil))

	record, err := fx.fetcher.Fetch(context.Background(), Request{URL: srv.URL + "/book.epub"})
	require.NoError(t, err)
	assert.Equal(t, domain.LoadStatusCompleted, record.Status)

	f, _, err := fx.assets.OpenAsset("book.epub")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	other, _, err := fx.assets.OpenAsset("other.epub")
	require.NoError(t, err, "replacing an asset in place evicts nothing")
	other.Close()
}

func TestRecorders(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	r := Recorders(a, nil, b)

	r.LoadStarted()
	record := domain.NewLoadRecord("id", "u", "book.epub", 64)
	record.MarkFailed(assert.AnError)
	r.LoadFinished(record)

	for _, rec := range []*recorder{a, b} {
		assert.Equal(t, 1, rec.started)
		require.Len(t, rec.finished, 1)
		assert.Equal(t, domain.LoadStatusFailed, rec.finished[0].Status)
	}
}
