package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Probe(ctx context.Context, address string) (crawler.ProbeResult, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(crawler.ProbeResult), args.Error(1)
}

func (m *mockFetcher) Fetch(ctx context.Context, address string) (crawler.FetchResult, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(crawler.FetchResult), args.Error(1)
}

func newWorker(f crawler.Fetcher) *Worker {
	return New(f, crawler.NewURLFilter("x.com"), Config{Timeout: time.Second}, zap.NewNop())
}

func TestExecute_FiltersChildLinks(t *testing.T) {
	t.Parallel()

	f := &mockFetcher{}
	f.On("Probe", mock.Anything, "https://x.com").
		Return(crawler.ProbeResult{URL: "https://x.com", StatusCode: 200, ContentType: "text/html; charset=utf-8"}, nil)
	f.On("Fetch", mock.Anything, "https://x.com").
		Return(crawler.FetchResult{URL: "https://x.com", StatusCode: 200, Links: []string{
			"https://x.com/a",
			"https://x.com/b#frag",
			"https://x.com/c#",
			"https://other.com/c",
			"mailto:someone@x.com",
			"ftp://x.com/file",
			"http://%zz",
			"https://x.com/a",
			"https://x.com/d?q=1",
		}}, nil)

	out := newWorker(f).Execute(context.Background(), "https://x.com")

	require.Equal(t, crawler.OutcomeSuccess, out.Kind)
	require.Equal(t, "https://x.com", out.Page.Address)
	require.Equal(t, []string{"https://x.com/a", "https://x.com/d?q=1"}, out.Page.ChildLinks)
	f.AssertExpectations(t)
}

func TestExecute_NonHTMLIsLeaf(t *testing.T) {
	t.Parallel()

	f := &mockFetcher{}
	f.On("Probe", mock.Anything, "https://x.com/doc.pdf").
		Return(crawler.ProbeResult{StatusCode: 200, ContentType: "application/pdf"}, nil)

	out := newWorker(f).Execute(context.Background(), "https://x.com/doc.pdf")

	require.Equal(t, crawler.OutcomeSuccess, out.Kind)
	require.Empty(t, out.Page.ChildLinks)
	f.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestExecute_MissingContentTypeIsLeaf(t *testing.T) {
	t.Parallel()

	f := &mockFetcher{}
	f.On("Probe", mock.Anything, "https://x.com/blob").
		Return(crawler.ProbeResult{StatusCode: 200}, nil)

	out := newWorker(f).Execute(context.Background(), "https://x.com/blob")

	require.Equal(t, crawler.OutcomeSuccess, out.Kind)
	f.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestExecute_ProbeFailure(t *testing.T) {
	t.Parallel()

	f := &mockFetcher{}
	f.On("Probe", mock.Anything, "https://x.com/x").
		Return(crawler.ProbeResult{}, &crawler.FetchError{URL: "https://x.com/x", Op: "probe", Err: errors.New("connection refused")})

	out := newWorker(f).Execute(context.Background(), "https://x.com/x")

	require.Equal(t, crawler.OutcomeFailure, out.Kind)
	require.Equal(t, "https://x.com/x", out.Address)
	require.Contains(t, out.Message, "connection refused")
	f.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

// TestExecute_FetchTimeout checks that the per-operation deadline reaches the fetcher.
func TestExecute_FetchTimeout(t *testing.T) {
	t.Parallel()

	f := &mockFetcher{}
	f.On("Probe", mock.Anything, "https://x.com/x").
		Return(crawler.ProbeResult{ContentType: "text/html"}, nil)
	f.On("Fetch", mock.Anything, "https://x.com/x").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(crawler.FetchResult{}, context.DeadlineExceeded)

	w := New(f, crawler.NewURLFilter("x.com"), Config{Timeout: 20 * time.Millisecond}, zap.NewNop())
	start := time.Now()
	out := w.Execute(context.Background(), "https://x.com/x")

	require.Equal(t, crawler.OutcomeFailure, out.Kind)
	require.Equal(t, "https://x.com/x", out.Address)
	require.Empty(t, out.Page.ChildLinks)
	require.Less(t, time.Since(start), time.Second)
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	require.True(t, IsHTML("text/html"))
	require.True(t, IsHTML("Text/HTML; charset=UTF-8"))
	require.False(t, IsHTML("application/pdf"))
	require.False(t, IsHTML(""))
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	w := New(&mockFetcher{}, crawler.NewURLFilter("x.com"), Config{}, nil)
	require.Equal(t, DefaultTimeout, w.cfg.Timeout)
}
