package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"census https", "https://www2.census.gov/geo/tiger/GENZ2022/shp/x.zip", "www2.census.gov"},
		{"mixed case", "https://LEHD.ces.census.gov/data", "lehd.ces.census.gov"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
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

func TestObserveFetch(t *testing.T) {
	before := testutil.ToFloat64(FetchTotal.WithLabelValues("metrics-test", "ok"))
	ObserveFetch("metrics-test", "ok")
	ObserveFetch("metrics-test", "ok")
	if got := testutil.ToFloat64(FetchTotal.WithLabelValues("metrics-test", "ok")); got != before+2 {
		t.Fatalf("expected %v, got %v", before+2, got)
	}
}

func TestObserveDownloadIgnoresEmpty(t *testing.T) {
	counter := DownloadBytesTotal.WithLabelValues("empty.example")
	before := testutil.ToFloat64(counter)
	ObserveDownload("https://empty.example/a", 0)
	ObserveDownload("https://empty.example/a", 512)
	if got := testutil.ToFloat64(counter); got != before+512 {
		t.Fatalf("expected %v, got %v", before+512, got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www2.census.gov", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
