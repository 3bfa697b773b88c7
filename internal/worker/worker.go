// Package worker implements the unit of crawl work: probe one address, fetch
// it when it is HTML, and report the in-scope links it points to.
package worker

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
)

// DefaultTimeout bounds each network operation when Config.Timeout is unset.
const DefaultTimeout = 5 * time.Second

const htmlContentType = "text/html"

// Config controls Worker behavior.
type Config struct {
	// Timeout applies separately to the probe and to the fetch.
	Timeout time.Duration
}

// Worker executes crawl tasks for one session. It holds no per-task state and
// is safe for concurrent use.
type Worker struct {
	fetcher crawler.Fetcher
	filter  *crawler.URLFilter
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker that keeps only links accepted by filter.
func New(fetcher crawler.Fetcher, filter *crawler.URLFilter, cfg Config, logger *zap.Logger) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		fetcher: fetcher,
		filter:  filter,
		cfg:     cfg,
		logger:  logger.Named("worker"),
	}
}

// Execute processes address and returns exactly one Success or Failure.
// It never retries.
func (w *Worker) Execute(ctx context.Context, address string) crawler.Outcome {
	probe, err := w.probe(ctx, address)
	if err != nil {
		w.logger.Info("probe failed", zap.String("url", address), zap.Error(err))
		return crawler.Failure(address, err.Error())
	}
	if !IsHTML(probe.ContentType) {
		w.logger.Debug("non-html leaf",
			zap.String("url", address),
			zap.String("content_type", probe.ContentType),
		)
		return crawler.Success(crawler.NewPage(address, nil))
	}

	fetched, err := w.fetch(ctx, address)
	if err != nil {
		w.logger.Info("fetch failed", zap.String("url", address), zap.Error(err))
		return crawler.Failure(address, err.Error())
	}

	children := w.eligibleLinks(address, fetched.Links)
	w.logger.Debug("page crawled",
		zap.String("url", address),
		zap.Int("links", len(fetched.Links)),
		zap.Int("children", len(children)),
	)
	return crawler.Success(crawler.NewPage(address, children))
}

// IsHTML reports whether a declared content type indicates an HTML document.
// Parameters such as charset are tolerated.
func IsHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), htmlContentType)
}

func (w *Worker) probe(ctx context.Context, address string) (crawler.ProbeResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	start := time.Now()
	res, err := w.fetcher.Probe(opCtx, address)
	metrics.ObserveFetch("probe", err, time.Since(start))
	return res, err
}

func (w *Worker) fetch(ctx context.Context, address string) (crawler.FetchResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	start := time.Now()
	res, err := w.fetcher.Fetch(opCtx, address)
	metrics.ObserveFetch("fetch", err, time.Since(start))
	return res, err
}

// eligibleLinks parses each raw link and keeps the identities of those the
// session filter accepts. Links are filtered as structured URLs, after parsing.
func (w *Worker) eligibleLinks(address string, links []string) []string {
	children := make([]string, 0, len(links))
	for _, raw := range links {
		u, err := crawler.ParseAddress(raw)
		if err != nil {
			w.logger.Debug("dropping invalid link",
				zap.String("page", address),
				zap.String("link", raw),
				zap.Error(err),
			)
			continue
		}
		if crawler.HasFragmentMarker(raw) || !w.filter.IsEligible(u) {
			continue
		}
		id, err := crawler.Identity(u)
		if err != nil {
			continue
		}
		children = append(children, id)
	}
	return children
}
