package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
<a href="/about">About</a>
<a href="docs/guide.html">Guide</a>
<a href="/about#team">Team</a>
<a href="https://other.example/">Elsewhere</a>
<a href="mailto:someone@example.com">Mail</a>
<a>no href</a>
</body></html>`)
	})
	mux.HandleFunc("/based", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><base href="/sub/"></head><body><a href="page">P</a></body></html>`)
	})
	mux.HandleFunc("/report.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Header().Set("Content-Type", "text/html")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestProbeReportsContentType(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := New(Config{UserAgent: "sitecrawler-test", Timeout: time.Second})

	res, err := f.Probe(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, res.ContentType, "text/html")

	res, err = f.Probe(context.Background(), server.URL+"/report.pdf")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", res.ContentType)
}

func TestProbeRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := New(Config{Timeout: time.Second})

	_, err := f.Probe(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	var fetchErr *crawler.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, "probe", fetchErr.Op)
	require.Contains(t, err.Error(), "404")
}

func TestFetchExtractsLinks(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := New(Config{Timeout: time.Second})

	res, err := f.Fetch(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, []string{
		server.URL + "/about",
		server.URL + "/docs/guide.html",
		server.URL + "/about#team",
		"https://other.example/",
		"mailto:someone@example.com",
	}, res.Links)
}

func TestFetchHonorsBaseHref(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := New(Config{Timeout: time.Second})

	res, err := f.Fetch(context.Background(), server.URL+"/based")
	require.NoError(t, err)
	require.Equal(t, []string{server.URL + "/sub/page"}, res.Links)
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := New(Config{Timeout: time.Second})

	_, err := f.Fetch(context.Background(), server.URL+"/missing")
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, "fetch", fetchErr.Op)
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := New(Config{Timeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, server.URL+"/slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigureHooks(t *testing.T) {
	t.Parallel()

	var (
		finalURL string
		status   int
		fetchErr error
	)
	hooks := &stubHooks{}
	configureHooks(hooks, &finalURL, &status, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/final")},
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "https://example.com/final", finalURL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestResolveLinkKeepsUnparseableHref(t *testing.T) {
	t.Parallel()

	base := mustParseURL(t, "https://example.com/dir/")
	require.Equal(t, "https://example.com/dir/x", resolveLink(base, " x "))
	require.Equal(t, "http://[::1", resolveLink(base, "http://[::1"))
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkStatus(http.StatusOK))
	require.NoError(t, checkStatus(http.StatusNoContent))
	require.Error(t, checkStatus(http.StatusMovedPermanently))
	require.Error(t, checkStatus(http.StatusInternalServerError))
	require.Error(t, checkStatus(0))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
