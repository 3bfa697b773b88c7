package sinks

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/hash/sha256"
	"github.com/JakeFAU/sitecrawler/internal/storage/memory"
)

func TestReportObjectName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "reports/example.com-20240501T123000Z.txt", ReportObjectName("reports", testSession))

	withPort := testSession
	withPort.Scope = "example.com:8080"
	require.Equal(t, "example.com_8080-20240501T123000Z.txt", ReportObjectName("", withPort))

	withPort.Scope = ""
	require.Equal(t, "unknown-20240501T123000Z.txt", ReportObjectName("", withPort))
}

func TestReportSubscriberWritesReport(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	sub := NewReportSubscriber(store, ReportConfig{Prefix: "reports"}, nil)
	require.NoError(t, replay(sub))

	name := "reports/example.com-20240501T123000Z.txt"
	require.Equal(t, "memory://"+name, sub.LastURI())
	body, ok := store.Object(name)
	require.True(t, ok)

	want := "Crawl of https://example.com started at 2024-05-01T12:30:00Z\n\n" +
		"Page: https://example.com\n" +
		"\tLinks on this page:\n" +
		"\t\thttps://example.com/about\n" +
		"\t\thttps://example.com/missing\n" +
		"Page: https://example.com/about\n" +
		"Error: https://example.com/missing: status 404\n" +
		"\n******* Stats *******\n" +
		"Pages crawled: 2\n" +
		"Pages failed: 1\n" +
		"Time taken (seconds): 3\n"
	require.Equal(t, want, string(body))
}

type failingBlobStore struct{}

func (failingBlobStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestReportSubscriberStoreError(t *testing.T) {
	t.Parallel()

	var _ crawler.BlobStore = failingBlobStore{}
	sub := NewReportSubscriber(failingBlobStore{}, ReportConfig{}, nil)
	err := replay(sub)
	require.ErrorContains(t, err, "bucket unavailable")
	require.Empty(t, sub.LastURI())
}

func TestReportSubscriberLogsDigest(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	store := memory.NewBlobStore()
	sub := NewReportSubscriber(store, ReportConfig{Hasher: sha256.New()}, zap.New(core))
	require.NoError(t, replay(sub))

	body, ok := store.Object(ReportObjectName("", testSession))
	require.True(t, ok)
	want, err := sha256.New().Hash(body)
	require.NoError(t, err)

	entries := logs.FilterMessage("report written").All()
	require.Len(t, entries, 1)
	require.Equal(t, want, entries[0].ContextMap()["sha256"])
}
