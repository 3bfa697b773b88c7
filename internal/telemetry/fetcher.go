package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const tracerName = "github.com/JakeFAU/sitecrawler/internal/telemetry"

// Fetcher records a client span around every probe and fetch of the wrapped Fetcher.
type Fetcher struct {
	next   crawler.Fetcher
	tracer trace.Tracer
}

// TraceFetcher wraps next with spans from tp.
func TraceFetcher(next crawler.Fetcher, tp trace.TracerProvider) *Fetcher {
	return &Fetcher{next: next, tracer: tp.Tracer(tracerName)}
}

// Probe implements crawler.Fetcher.
func (f *Fetcher) Probe(ctx context.Context, address string) (crawler.ProbeResult, error) {
	ctx, span := f.start(ctx, "fetcher.probe", address)
	defer span.End()

	res, err := f.next.Probe(ctx, address)
	if err != nil {
		fail(span, err)
		return res, err
	}
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.String("http.response.content_type", res.ContentType),
	)
	return res, nil
}

// Fetch implements crawler.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, address string) (crawler.FetchResult, error) {
	ctx, span := f.start(ctx, "fetcher.fetch", address)
	defer span.End()

	res, err := f.next.Fetch(ctx, address)
	if err != nil {
		fail(span, err)
		return res, err
	}
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.Int("crawler.links", len(res.Links)),
	)
	return res, nil
}

func (f *Fetcher) start(ctx context.Context, name, address string) (context.Context, trace.Span) {
	return f.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", address)),
	)
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
