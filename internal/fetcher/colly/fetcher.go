// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// Fetcher probes with HEAD and fetches with GET, extracting a[href] links.
type Fetcher struct {
	base *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Every call clones a base collector, so the Fetcher is
// safe for concurrent use.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	// Non-2xx responses are reported through OnResponse and rejected below.
	c.ParseHTTPErrorResponse = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)
	return &Fetcher{base: c}
}

// Probe issues a HEAD request and reports the declared content type.
func (f *Fetcher) Probe(ctx context.Context, address string) (crawler.ProbeResult, error) {
	var (
		result   crawler.ProbeResult
		fetchErr error
	)
	collector := f.base.Clone()
	configureHooks(collector, &result.URL, &result.StatusCode, &fetchErr)
	collector.OnResponse(func(r *colly.Response) {
		if r.Headers != nil {
			result.ContentType = r.Headers.Get("Content-Type")
		}
	})

	err := run(ctx, func() error { return collector.Head(address) }, &fetchErr)
	if err == nil {
		err = checkStatus(result.StatusCode)
	}
	if err != nil {
		return crawler.ProbeResult{}, &crawler.FetchError{URL: address, Op: "probe", Err: err}
	}
	return result, nil
}

// Fetch issues a GET request and returns every a[href] resolved against the
// page. Fragments are kept so callers can apply their own link policy.
func (f *Fetcher) Fetch(ctx context.Context, address string) (crawler.FetchResult, error) {
	var (
		result   crawler.FetchResult
		fetchErr error
	)
	collector := f.base.Clone()
	configureHooks(collector, &result.URL, &result.StatusCode, &fetchErr)
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		base := e.Request.URL
		if href, ok := e.DOM.Find("base[href]").First().Attr("href"); ok {
			if resolved, err := base.Parse(strings.TrimSpace(href)); err == nil {
				base = resolved
			}
		}
		e.ForEach("a[href]", func(_ int, a *colly.HTMLElement) {
			result.Links = append(result.Links, resolveLink(base, a.Attr("href")))
		})
	})

	err := run(ctx, func() error { return collector.Visit(address) }, &fetchErr)
	if err == nil {
		err = checkStatus(result.StatusCode)
	}
	if err != nil {
		return crawler.FetchResult{}, &crawler.FetchError{URL: address, Op: "fetch", Err: err}
	}
	return result, nil
}

func configureHooks(hooks collectorHooks, finalURL *string, status *int, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
		if r.Request != nil && r.Request.URL != nil {
			*finalURL = r.Request.URL.String()
		}
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

// resolveLink returns href resolved against base, or href unchanged when it
// cannot be parsed so the caller can report it.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	u, err := base.Parse(href)
	if err != nil {
		return href
	}
	return u.String()
}

func run(ctx context.Context, visit func() error, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly request canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func checkStatus(code int) error {
	if code < 200 || code > 299 {
		return fmt.Errorf("unexpected status %d %s", code, http.StatusText(code))
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
