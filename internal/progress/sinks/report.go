package sinks

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const reportTimeLayout = "20060102T150405Z"

// ReportConfig controls where reports are written.
type ReportConfig struct {
	// Prefix is prepended to every object name, e.g. "reports".
	Prefix string
	// Hasher, when set, digests each report; the digest is logged with its URI.
	Hasher crawler.Hasher
}

// ReportSubscriber accumulates a plain-text report per session and writes it
// to a BlobStore when the session finishes. The object is named
// "<prefix>/<authority>-<start timestamp>.txt".
type ReportSubscriber struct {
	store  crawler.BlobStore
	cfg    ReportConfig
	logger *zap.Logger

	buf     bytes.Buffer
	session crawler.SessionInfo
	pages   int
	failed  int
	lastURI atomic.Value
}

// NewReportSubscriber builds a ReportSubscriber backed by store.
func NewReportSubscriber(store crawler.BlobStore, cfg ReportConfig, logger *zap.Logger) *ReportSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportSubscriber{store: store, cfg: cfg, logger: logger.Named("report")}
}

// Name implements progress.Subscriber.
func (r *ReportSubscriber) Name() string { return "report" }

// LastURI returns the location of the most recently written report. It is
// safe to call from any goroutine.
func (r *ReportSubscriber) LastURI() string {
	uri, _ := r.lastURI.Load().(string)
	return uri
}

// OnSessionStarted implements progress.Subscriber.
func (r *ReportSubscriber) OnSessionStarted(_ context.Context, session crawler.SessionInfo) error {
	r.buf.Reset()
	r.session = session
	r.pages = 0
	r.failed = 0
	fmt.Fprintf(&r.buf, "Crawl of %s started at %s\n\n", session.BaseAddress, session.StartedAt.Format(time.RFC3339))
	return nil
}

// OnPageCompleted implements progress.Subscriber.
func (r *ReportSubscriber) OnPageCompleted(_ context.Context, page crawler.Page) error {
	r.pages++
	fmt.Fprintf(&r.buf, "Page: %s\n", page.Address)
	if len(page.ChildLinks) > 0 {
		r.buf.WriteString("\tLinks on this page:\n")
		for _, child := range page.ChildLinks {
			fmt.Fprintf(&r.buf, "\t\t%s\n", child)
		}
	}
	return nil
}

// OnPageFailed implements progress.Subscriber.
func (r *ReportSubscriber) OnPageFailed(_ context.Context, address, message string) error {
	r.failed++
	fmt.Fprintf(&r.buf, "Error: %s: %s\n", address, message)
	return nil
}

// OnSessionFinished implements progress.Subscriber.
func (r *ReportSubscriber) OnSessionFinished(ctx context.Context, elapsed time.Duration) error {
	r.buf.WriteString("\n******* Stats *******\n")
	fmt.Fprintf(&r.buf, "Pages crawled: %d\n", r.pages)
	fmt.Fprintf(&r.buf, "Pages failed: %d\n", r.failed)
	fmt.Fprintf(&r.buf, "Time taken (seconds): %d\n", int64(elapsed.Seconds()))

	name := ReportObjectName(r.cfg.Prefix, r.session)
	uri, err := r.store.PutObject(ctx, name, "text/plain; charset=utf-8", bytes.NewReader(r.buf.Bytes()))
	if err != nil {
		return fmt.Errorf("write report %s: %w", name, err)
	}
	r.lastURI.Store(uri)

	fields := []zap.Field{zap.String("session_id", r.session.ID), zap.String("uri", uri)}
	if r.cfg.Hasher != nil {
		digest, err := r.cfg.Hasher.Hash(r.buf.Bytes())
		if err != nil {
			r.logger.Warn("report digest failed", zap.String("uri", uri), zap.Error(err))
		} else {
			fields = append(fields, zap.String("sha256", digest))
		}
	}
	r.logger.Info("report written", fields...)
	return nil
}

// ReportObjectName derives the object name for a session report.
func ReportObjectName(prefix string, session crawler.SessionInfo) string {
	authority := strings.NewReplacer(":", "_", "/", "_").Replace(session.Scope)
	if authority == "" {
		authority = "unknown"
	}
	name := fmt.Sprintf("%s-%s.txt", authority, session.StartedAt.UTC().Format(reportTimeLayout))
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
