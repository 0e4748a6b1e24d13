package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if crawlerPagesTotal == nil || ingestDocumentsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservePage(t *testing.T) {
	ObservePage("https://pages.test/docs", PageFetched, 512)
	ObservePage("pages.test", PageFailed, 0)

	if val := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("pages.test", PageFetched)); val != 1 {
		t.Errorf("expected 1 fetched page, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("pages.test", PageFailed)); val != 1 {
		t.Errorf("expected 1 failed page, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("pages.test")); val != 512 {
		t.Errorf("expected 512 bytes, got %f", val)
	}
}

func TestObserveIngestAndEmbedding(t *testing.T) {
	Init()
	before := testutil.ToFloat64(ingestChunksTotal)
	ObserveIngest(IngestUpdated, 3)
	ObserveIngest(IngestUnchanged, 0)

	if got := testutil.ToFloat64(ingestChunksTotal) - before; got != 3 {
		t.Errorf("expected 3 chunks recorded, got %f", got)
	}

	ObserveEmbedding(nil, 20*time.Millisecond)
	ObserveEmbedding(errors.New("boom"), time.Second)
	if n := testutil.CollectAndCount(embeddingRequestSeconds); n != 2 {
		t.Errorf("expected ok and error series, got %d", n)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
