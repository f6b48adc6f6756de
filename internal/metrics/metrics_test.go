package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://spinitron.com/WUOG", "spinitron.com"},
		{"standard https", "https://Spinitron.com/WUOG", "spinitron.com"},
		{"no scheme", "spinitron.com/WUOG", "spinitron.com"},
		{"host with port", "spinitron.com:8080", "spinitron.com"},
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

	if crawlPagesTotal == nil || crawlShowsTotal == nil || exportBucketWritesTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	ObservePage("metrics-test", PageFetched)
	ObserveShow("metrics-test", "new")
	AddPlaysInserted("metrics-test", 3)
	AddPlaysInserted("metrics-test", 0)
	ObserveCrawlPass("metrics-test", 2*time.Second)
	ObserveExport("metrics-test", "success")
	ObserveBucketWrite("metrics-test", "January_2026", "success", 12)
	ObserveRateLimitDelay("https://spinitron.com/WUOG", 50*time.Millisecond)
	ObserveRobotsFallback("https://metrics-test.example/robots.txt")

	if val := testutil.ToFloat64(crawlPagesTotal.WithLabelValues("metrics-test", PageFetched)); val != 1 {
		t.Errorf("expected one page observation, got %f", val)
	}
	if val := testutil.ToFloat64(crawlPlaysInsertedTotal.WithLabelValues("metrics-test")); val != 3 {
		t.Errorf("expected 3 inserted plays, got %f", val)
	}
	if val := testutil.ToFloat64(sourceRobotsFallbackTotal.WithLabelValues("metrics-test.example")); val != 1 {
		t.Errorf("expected one robots fallback, got %f", val)
	}
	if val := testutil.ToFloat64(exportBucketRows.WithLabelValues("metrics-test", "January_2026")); val != 12 {
		t.Errorf("expected bucket gauge 12, got %f", val)
	}
}

func TestOutcomeHelpListsLabels(t *testing.T) {
	// Gather only reports families with at least one child.
	ObservePage("help-test", PageEmpty)
	ObserveShow("help-test", ShowMalformed)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	help := map[string]string{}
	for _, mf := range families {
		help[mf.GetName()] = mf.GetHelp()
	}

	checks := map[string][]string{
		"playlist_crawl_pages_total": {PageFetched, PageEmpty, PageFailed},
		"playlist_crawl_shows_total": {ShowNew, ShowSkipped, ShowFailed, ShowMalformed},
	}
	for name, outcomes := range checks {
		text, ok := help[name]
		if !ok {
			t.Fatalf("metric %s not registered", name)
		}
		for _, outcome := range outcomes {
			if !strings.Contains(text, outcome) {
				t.Errorf("%s help %q does not mention %q", name, text, outcome)
			}
		}
		for _, stale := range []string{"items", "error"} {
			if strings.Contains(text, stale) {
				t.Errorf("%s help %q mentions unused outcome %q", name, text, stale)
			}
		}
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://spinitron.com", "ftp://example.com"}
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
