package htmlparse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
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
		assert.Equal(t, "sitecrawler-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!doctype html><html><body>
<a href="/about">About</a>
<A HREF="contact">Contact</A>
<a class="x" href="/about#team">Team</a>
<a name="anchor">no href</a>
</body></html>`)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusMovedPermanently)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestProbe(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := New(Config{UserAgent: "sitecrawler-test", Timeout: time.Second})

	res, err := f.Probe(context.Background(), server.URL+"/moved")
	require.NoError(t, err)
	require.Equal(t, server.URL+"/", res.URL)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "text/html; charset=utf-8", res.ContentType)

	_, err = f.Probe(context.Background(), server.URL+"/missing")
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, "probe", fetchErr.Op)
}

func TestFetch(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := New(Config{UserAgent: "sitecrawler-test"})

	res, err := f.Fetch(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Equal(t, []string{
		server.URL + "/about",
		server.URL + "/contact",
		server.URL + "/about#team",
	}, res.Links)

	_, err = f.Fetch(context.Background(), server.URL+"/missing")
	require.Error(t, err)
}

func TestFetchInvalidAddress(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), "http://[::1")
	require.ErrorContains(t, err, "build request")
}

func TestExtractLinksHonorsFirstBase(t *testing.T) {
	t.Parallel()

	page, err := url.Parse("https://example.com/a/b.html")
	require.NoError(t, err)
	body := `<html><head><base href="https://example.com/root/"><base href="/ignored/"></head>
<body><a href="x">X</a><a href="/abs">Abs</a><a href="http://[::1">Bad</a><a href="mailto:a@b.c"/></body></html>`

	links, err := extractLinks(strings.NewReader(body), page)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.com/root/x",
		"https://example.com/abs",
		"http://[::1",
		"mailto:a@b.c",
	}, links)
}

func TestExtractLinksWithoutBase(t *testing.T) {
	t.Parallel()

	page, err := url.Parse("https://example.com/dir/page")
	require.NoError(t, err)
	links, err := extractLinks(strings.NewReader(`<p>no links</p><a href="sibling">s</a>`), page)
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/dir/sibling"}, links)
}
