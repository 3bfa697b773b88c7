// Package ratelimit implements a per-domain token bucket in front of a Fetcher.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
)

// Limiter manages per-domain rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A non-positive DefaultRPS disables limiting.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	metrics.Init()
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the domain of rawURL, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}
	l.mu.Lock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Tokens that were immediately available are not a delay.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

// Fetcher throttles every probe and fetch of the wrapped Fetcher.
type Fetcher struct {
	next    crawler.Fetcher
	limiter *Limiter
}

// Wrap returns next guarded by limiter.
func Wrap(next crawler.Fetcher, limiter *Limiter) *Fetcher {
	return &Fetcher{next: next, limiter: limiter}
}

// Probe waits for a token, then probes address.
func (f *Fetcher) Probe(ctx context.Context, address string) (crawler.ProbeResult, error) {
	if err := f.limiter.Wait(ctx, address); err != nil {
		return crawler.ProbeResult{}, &crawler.FetchError{URL: address, Op: "probe", Err: err}
	}
	res, err := f.next.Probe(ctx, address)
	if err != nil {
		return res, fmt.Errorf("limited probe: %w", err)
	}
	return res, nil
}

// Fetch waits for a token, then fetches address.
func (f *Fetcher) Fetch(ctx context.Context, address string) (crawler.FetchResult, error) {
	if err := f.limiter.Wait(ctx, address); err != nil {
		return crawler.FetchResult{}, &crawler.FetchError{URL: address, Op: "fetch", Err: err}
	}
	res, err := f.next.Fetch(ctx, address)
	if err != nil {
		return res, fmt.Errorf("limited fetch: %w", err)
	}
	return res, nil
}
