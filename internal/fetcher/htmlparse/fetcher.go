// Package htmlparse implements crawler.Fetcher with net/http and a streaming
// golang.org/x/net/html tokenizer. It has no DOM and no JavaScript.
package htmlparse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 10 << 20
)

// Config controls the HTTP client.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{client: client, userAgent: cfg.UserAgent}
}

// Probe issues a HEAD request.
func (f *Fetcher) Probe(ctx context.Context, address string) (crawler.ProbeResult, error) {
	resp, err := f.do(ctx, http.MethodHead, address)
	if err != nil {
		return crawler.ProbeResult{}, &crawler.FetchError{URL: address, Op: "probe", Err: err}
	}
	defer resp.Body.Close()
	return crawler.ProbeResult{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Fetch issues a GET request and tokenizes the body for a[href] links.
func (f *Fetcher) Fetch(ctx context.Context, address string) (crawler.FetchResult, error) {
	resp, err := f.do(ctx, http.MethodGet, address)
	if err != nil {
		return crawler.FetchResult{}, &crawler.FetchError{URL: address, Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	links, err := extractLinks(io.LimitReader(resp.Body, maxBodyBytes), resp.Request.URL)
	if err != nil {
		return crawler.FetchResult{}, &crawler.FetchError{URL: address, Op: "fetch", Err: err}
	}
	return crawler.FetchResult{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Links:      links,
	}, nil
}

func (f *Fetcher) do(ctx context.Context, method, address string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, address, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s: %w", strings.ToLower(method), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}

// extractLinks returns every a[href] resolved against the page (or its first
// <base href>). Hrefs that do not parse are returned unchanged.
func extractLinks(r io.Reader, pageURL *url.URL) ([]string, error) {
	base := pageURL
	baseSeen := false
	var links []string

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("tokenize html: %w", err)
			}
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !hasAttr {
				continue
			}
			switch atom.Lookup(name) {
			case atom.A:
				if href, ok := attr(z, "href"); ok {
					links = append(links, resolve(base, href))
				}
			case atom.Base:
				if baseSeen {
					continue
				}
				if href, ok := attr(z, "href"); ok {
					baseSeen = true
					if u, err := pageURL.Parse(strings.TrimSpace(href)); err == nil {
						base = u
					}
				}
			}
		}
	}
}

func attr(z *html.Tokenizer, name string) (string, bool) {
	for {
		key, val, more := z.TagAttr()
		if string(key) == name {
			return string(val), true
		}
		if !more {
			return "", false
		}
	}
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	u, err := base.Parse(href)
	if err != nil {
		return href
	}
	return u.String()
}
