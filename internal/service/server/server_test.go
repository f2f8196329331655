package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/assetloader/internal/adapter/filesystem"
	"github.com/inkpress/assetloader/internal/adapter/httptransport"
	"github.com/inkpress/assetloader/internal/adapter/sqlite"
	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/domain/event"
	"github.com/inkpress/assetloader/internal/loader"
	"github.com/inkpress/assetloader/internal/service/fetcher"
)

type testEnv struct {
	srv      *httptest.Server
	assets   *filesystem.Manager
	store    *sqlite.Store
	progress *event.ProgressChannel
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	assets, err := filesystem.NewManager(t.TempDir())
	require.NoError(t, err)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "loads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	client, err := httptransport.NewClient(nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := event.NewMetricsHandler(reg, "assetloader")
	progress := event.NewProgressChannel()
	progress.Subscribe(metrics.Handle)

	l := loader.New(&loader.Config{ChunkSize: 256}, client, progress, nil)
	f := fetcher.New(l, assets, store, metrics, nil)

	s := New(nil, Deps{
		Store:    store,
		Assets:   assets,
		Fetcher:  f,
		Progress: progress,
		Gatherer: reg,
	}, nil)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, assets: assets, store: store, progress: progress}
}

func (e *testEnv) seed(t *testing.T, name string, content []byte) {
	t.Helper()
	_, _, err := e.assets.WriteAsset(name, bytes.NewReader(content))
	require.NoError(t, err)
}

func (e *testEnv) fetch(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.srv.URL+"/api/fetch", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])

	resp, err = http.Post(env.srv.URL+"/health", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_AssetRanges(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("0123456789abcdefghij")
	env.seed(t, "shelf/book.pdf", content)

	// HEAD advertises the size and range support
	req, _ := http.NewRequest(http.MethodHead, env.srv.URL+"/assets/shelf/book.pdf", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, "20", resp.Header.Get("Content-Length"))
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	// Inclusive byte window
	req, _ = http.NewRequest(http.MethodGet, env.srv.URL+"/assets/shelf/book.pdf", nil)
	req.Header.Set("Range", "bytes=5-9")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "56789", string(body))
	assert.Equal(t, "bytes 5-9/20", resp.Header.Get("Content-Range"))

	// Unsatisfiable window
	req.Header.Set("Range", "bytes=50-60")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/assets/missing.epub")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_AssetList(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "b.pdf", []byte("bb"))
	env.seed(t, "a.epub", []byte("a"))

	resp, err := http.Get(env.srv.URL + "/assets/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "a.epub", list[0]["name"])
	assert.Equal(t, float64(2), list[1]["size"])
}

func TestServer_HiddenFilesAreNotServed(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "a.epub", []byte("a"))
	dbPath := filepath.Join(env.assets.RootDir(), ".assetloader.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("SQLite format 3\x00"), 0644))

	resp, err := http.Get(env.srv.URL + "/assets/.assetloader.db")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotContains(t, string(body), "SQLite")

	resp, err = http.Get(env.srv.URL + "/assets/")
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, "a.epub", list[0]["name"])

	fetched := env.fetch(t, `{"url":"`+env.srv.URL+`/assets/a.epub","name":".assetloader.db"}`)
	assert.Equal(t, http.StatusBadRequest, fetched.StatusCode)

	data, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data))
}

func TestServer_FetchRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	content := bytes.Repeat([]byte("chapter "), 200) // 1600 bytes, 7 chunks of 256
	env.seed(t, "source/dune.epub", content)

	resp := env.fetch(t, `{"url":"`+env.srv.URL+`/assets/source/dune.epub","name":"copies/dune.epub"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record domain.LoadRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, domain.LoadStatusCompleted, record.Status)
	assert.Equal(t, domain.StrategyRanged, record.Strategy)
	assert.Equal(t, int64(1600), record.Size)
	assert.Equal(t, 7, record.RangeRequests)
	assert.Equal(t, fetcher.Checksum(content), record.Checksum)

	// The copy is served back byte for byte
	got, err := http.Get(env.srv.URL + "/assets/copies/dune.epub")
	require.NoError(t, err)
	data, _ := io.ReadAll(got.Body)
	got.Body.Close()
	assert.Equal(t, content, data)

	// History endpoints
	one, err := http.Get(env.srv.URL + "/api/loads/" + record.ID)
	require.NoError(t, err)
	var stored domain.LoadRecord
	require.NoError(t, json.NewDecoder(one.Body).Decode(&stored))
	one.Body.Close()
	assert.Equal(t, record.ID, stored.ID)

	list, err := http.Get(env.srv.URL + "/api/loads?limit=5")
	require.NoError(t, err)
	var records []domain.LoadRecord
	require.NoError(t, json.NewDecoder(list.Body).Decode(&records))
	list.Body.Close()
	require.Len(t, records, 1)

	// Metrics saw the load
	metrics, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	text, _ := io.ReadAll(metrics.Body)
	metrics.Body.Close()
	assert.Contains(t, string(text), `assetloader_loads_total{status="completed",strategy="ranged"} 1`)

	// Stats reflect history and cache
	stats, err := http.Get(env.srv.URL + "/debug/stats")
	require.NoError(t, err)
	var statsBody map[string]any
	require.NoError(t, json.NewDecoder(stats.Body).Decode(&statsBody))
	stats.Body.Close()
	assert.Equal(t, float64(3200), statsBody["cache_size_bytes"])
}

func TestServer_FetchErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{"url":`, http.StatusBadRequest},
		{"empty url", `{}`, http.StatusBadRequest},
		{"negative chunk size", `{"url":"http://x/a","chunk_size_bytes":-5}`, http.StatusBadRequest},
		{"escaping name", `{"url":"http://x/a","name":".."}`, http.StatusBadRequest},
		{"upstream missing", `{"url":"` + env.srv.URL + `/assets/nothing.epub"}`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.fetch(t, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestServer_LoadsErrors(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/loads/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/api/loads?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/api/loads")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `[]`, string(body))
}

func TestServer_ProgressStream(t *testing.T) {
	env := newTestEnv(t)
	baseline := env.progress.Len()

	resp, err := http.Get(env.srv.URL + "/api/progress?load_id=wanted")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return env.progress.Len() == baseline+1 },
		time.Second, 5*time.Millisecond, "stream subscribes on connect")

	env.progress.Publish(domain.IntermediateProgress("other", "u", 1, 10))
	env.progress.Publish(domain.IntermediateProgress("wanted", "u", 5, 10))
	env.progress.Publish(domain.CompleteProgress("wanted", "u", 10))

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
			}
		}
		close(lines)
	}()

	var got []domain.LoadProgress
	for len(got) < 2 {
		select {
		case line := <-lines:
			var p domain.LoadProgress
			require.NoError(t, json.Unmarshal([]byte(line), &p))
			got = append(got, p)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for progress, got %d events", len(got))
		}
	}

	assert.Equal(t, "wanted", got[0].LoadID)
	assert.Equal(t, 50, got[0].Percent)
	assert.Equal(t, 100, got[1].Percent)

	resp.Body.Close()
	require.Eventually(t, func() bool { return env.progress.Len() == baseline },
		time.Second, 5*time.Millisecond, "stream unsubscribes on disconnect")
}
