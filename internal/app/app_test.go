package app_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/app"
	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	pubmemory "github.com/JakeFAU/sitecrawler/internal/publisher/memory"
	"github.com/JakeFAU/sitecrawler/internal/storage/memory"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/", page(`<html><body><a href="/a">a</a><a href="/b">b</a></body></html>`))
	mux.HandleFunc("/a", page(`<html><body><a href="/">home</a><a href="https://elsewhere.example/x">x</a></body></html>`))
	mux.HandleFunc("/b", page(`<html><body><a href="/a">a</a></body></html>`))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 8080},
		Crawler:  config.CrawlerConfig{Workers: 4, RequestTimeoutSeconds: 5, UserAgent: "test", Fetcher: config.FetcherColly},
		Progress: config.ProgressConfig{SubscriberTimeoutSeconds: 5, Console: true, LogEvents: true, Prometheus: true},
		Report:   config.ReportConfig{Enabled: true, Prefix: "reports"},
		Storage:  config.StorageConfig{Backend: config.StorageMemory},
		PubSub:   config.PubSubConfig{TopicName: "crawl-sessions"},
	}
}

func TestAppRunsSessionThroughEverySink(t *testing.T) {
	t.Parallel()
	site := newSite(t)
	ctx := context.Background()

	var console bytes.Buffer
	blobs := memory.NewBlobStore()
	results := memory.NewResultStore()
	publisher := pubmemory.New()
	a, err := app.New(ctx, testConfig(), zap.NewNop(), app.Options{
		Console:    &console,
		Registerer: prometheus.NewRegistry(),
		BlobStore:  blobs,
		Results:    results,
		Publisher:  publisher,
	})
	require.NoError(t, err)
	a.Start(ctx)

	info, err := a.Coordinator().Start(site.URL + "/")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, a.Coordinator().Wait(waitCtx))

	stats := a.Coordinator().Stats()
	assert.False(t, stats.Active)
	assert.EqualValues(t, 3, stats.Succeeded)
	assert.EqualValues(t, 0, stats.Failed)

	require.NoError(t, a.Close(waitCtx))

	rec, err := results.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, crawler.SessionStatusFinished, rec.Status)
	assert.Equal(t, 3, rec.PagesSucceeded)

	uri := a.LastReportURI()
	require.NotEmpty(t, uri)
	assert.Equal(t, 1, blobs.Len())

	msgs := publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "crawl-sessions", msgs[0].Topic)

	assert.Contains(t, console.String(), site.URL)
}

func TestAppRejectsUnreachableBlobDir(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Storage = config.StorageConfig{Backend: config.StorageLocal, LocalDir: "/dev/null/reports"}

	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{
		Registerer: prometheus.NewRegistry(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init local blob store")
}

func TestAppDefaultsToMemoryResults(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Report.Enabled = false
	cfg.Progress.Prometheus = false

	a, err := app.New(context.Background(), cfg, nil, app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	_, err = a.Results().GetSession(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, crawler.ErrSessionNotFound)
	assert.Empty(t, a.LastReportURI())
	assert.NotNil(t, a.APIServer().Handler())
}

func TestAppWrapsFetcherWithRateLimitAndTracing(t *testing.T) {
	t.Parallel()
	site := newSite(t)
	cfg := testConfig()
	cfg.Crawler.RequestsPerSecond = 1000
	cfg.Crawler.Burst = 10
	cfg.Crawler.Fetcher = config.FetcherHTML
	cfg.Tracing = config.TracingConfig{Enabled: true, ServiceName: "sitecrawler-test", SampleRatio: 1}
	cfg.Progress.Prometheus = false
	cfg.Report.Enabled = false

	ctx := context.Background()
	a, err := app.New(ctx, cfg, zap.NewNop(), app.Options{})
	require.NoError(t, err)
	a.Start(ctx)

	_, err = a.Coordinator().Start(site.URL + "/")
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, a.Coordinator().Wait(waitCtx))
	assert.EqualValues(t, 3, a.Coordinator().Stats().Succeeded)
	require.NoError(t, a.Close(waitCtx))
}
