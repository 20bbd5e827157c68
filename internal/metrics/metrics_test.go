package metrics

import (
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

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scrapesTotal == nil || releasesDiscoveredTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveScrape("ok", 2*time.Second)
	if val := testutil.ToFloat64(scrapesTotal.WithLabelValues("ok")); val != 1 {
		t.Errorf("Expected scrapesTotal{ok} to be 1, got %f", val)
	}

	AddReleases(3, 1)
	if val := testutil.ToFloat64(releasesDiscoveredTotal); val != 3 {
		t.Errorf("Expected releasesDiscoveredTotal to be 3, got %f", val)
	}
	if val := testutil.ToFloat64(releasesUpdatedTotal); val != 1 {
		t.Errorf("Expected releasesUpdatedTotal to be 1, got %f", val)
	}

	ObservePageFetch("https://Example.com/books", 200)
	if val := testutil.ToFloat64(pagesFetchedTotal.WithLabelValues("example.com", "200")); val != 1 {
		t.Errorf("Expected pagesFetchedTotal{example.com,200} to be 1, got %f", val)
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
