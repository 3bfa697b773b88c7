package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

type stubFetcher struct {
	probe    crawler.ProbeResult
	fetch    crawler.FetchResult
	fetchErr error
}

func (s stubFetcher) Probe(context.Context, string) (crawler.ProbeResult, error) {
	return s.probe, nil
}

func (s stubFetcher) Fetch(context.Context, string) (crawler.FetchResult, error) {
	return s.fetch, s.fetchErr
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTraceFetcherRecordsSpans(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	f := TraceFetcher(stubFetcher{
		probe: crawler.ProbeResult{StatusCode: 200, ContentType: "text/html"},
		fetch: crawler.FetchResult{StatusCode: 200, Links: []string{"https://example.com/a", "https://example.com/b"}},
	}, tp)

	_, err := f.Probe(context.Background(), "https://example.com")
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "fetcher.probe", spans[0].Name())
	require.Equal(t, "text/html", attrs(spans[0])["http.response.content_type"].AsString())
	require.Equal(t, "fetcher.fetch", spans[1].Name())
	require.EqualValues(t, 2, attrs(spans[1])["crawler.links"].AsInt64())
	require.Equal(t, "https://example.com", attrs(spans[1])["http.url"].AsString())
}

func TestTraceFetcherMarksErrors(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	boom := errors.New("connection refused")
	f := TraceFetcher(stubFetcher{fetchErr: boom}, tp)

	_, err := f.Fetch(context.Background(), "https://example.com")
	require.ErrorIs(t, err, boom)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, "connection refused", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
}

func TestInitTracerProviderWithoutExporter(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), Config{ServiceName: "sitecrawler", SampleRatio: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "probe")
	require.True(t, span.SpanContext().IsSampled())
	span.End()
}
