package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/status", "/api/status"},
		{"/api/satellites", "/api/satellites"},
		{"/api/predict/trajectory", "/api/predict/trajectory"},
		{"/api/predict/collision", "/api/predict/collision"},
		{"/api/predict/collision/screen", "/api/predict/collision/screen"},

		// Parameterized routes collapse to one label.
		{"/api/orbit/25544", "/api/orbit/{catalog_id}"},
		{"/api/orbit/44713", "/api/orbit/{catalog_id}"},
		{"/api/orbit/25544/groundtrack", "/api/orbit/{catalog_id}/groundtrack"},
		{"/api/orbit/25544/passes", "/api/orbit/{catalog_id}/passes"},
		{"/api/stream/trajectory/25544", "/api/stream/trajectory/{catalog_id}"},

		// Unknown/bot paths collapse to "other".
		{"/api/orbit/abc", "other"},
		{"/api/orbit/25544/extra", "other"},
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 unique catalog IDs produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[normalizeRoute(fmt.Sprintf("/api/orbit/%d", 25000+i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestRecordCatalogLoad(t *testing.T) {
	RecordCatalogLoad(250*time.Millisecond, 12, 10)

	if got := testutil.ToFloat64(catalogRecords); got != 12 {
		t.Errorf("catalog records = %v, want 12", got)
	}
	if got := testutil.ToFloat64(catalogSatellites); got != 10 {
		t.Errorf("catalog satellites = %v, want 10", got)
	}
}

func TestRecordAssessment(t *testing.T) {
	before := testutil.ToFloat64(collisionAssessmentsTotal.WithLabelValues("HIGH"))
	RecordAssessment("HIGH")
	RecordAssessment("HIGH")
	after := testutil.ToFloat64(collisionAssessmentsTotal.WithLabelValues("HIGH"))
	if after-before != 2 {
		t.Errorf("HIGH assessments delta = %v, want 2", after-before)
	}
}
