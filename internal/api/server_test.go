package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/star/debriswatch/internal/auth"
	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/collision"
	"github.com/star/debriswatch/internal/forecast"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/orbit"
	"github.com/star/debriswatch/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var testRecords = []catalog.SatelliteRecord{
	{CatalogID: 25544, SemiMajorAxis: 6800, Inclination: 51.6, Eccentricity: 0.0007, OrbitalPeriod: 92.68},
	{CatalogID: 44713, SemiMajorAxis: 6921, Inclination: 53.0, Eccentricity: 0.0001, OrbitalPeriod: 95.6},
	{CatalogID: 25544, SemiMajorAxis: 6801, Inclination: 51.6, Eccentricity: 0.0007, OrbitalPeriod: 92.7},
	{CatalogID: 20580, SemiMajorAxis: 6917, Inclination: 28.5, Eccentricity: 0.0003, OrbitalPeriod: 95.4},
}

// halfClassifier always answers exactly 0.5, the MEDIUM/HIGH boundary.
var halfClassifier = collision.ClassifierFunc(func(collision.Features) [2]float64 {
	return [2]float64{0.5, 0.5}
})

type testOpts struct {
	auth    auth.Config
	limiter *httputil.RateLimiter
	records []catalog.SatelliteRecord
}

func newTestHandler(opts testOpts) http.Handler {
	records := opts.records
	if records == nil {
		records = testRecords
	}
	logger := testLogger()
	store := catalog.NewStore(records)
	f := forecast.NewForecaster(store, forecast.NewRandomWalk(10, 7), forecast.Config{})
	est := collision.NewEstimator(store, halfClassifier)

	return NewHandler(Config{
		ListLimit:   2,
		CORSOrigins: []string{"https://ops.example.com"},
		Auth:        opts.auth,
	}, Deps{
		Store:      store,
		Orbits:     orbit.NewEngine(store),
		Forecaster: f,
		Estimator:  est,
		Screener:   collision.NewScreener(est, 2, 10, logger),
		Stream:     stream.NewHandler(f, store, stream.Config{}, logger),
		Limiter:    opts.limiter,
	}, logger)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: invalid JSON body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, resp
}

func TestStatus(t *testing.T) {
	w, resp := do(t, newTestHandler(testOpts{}), "GET", "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["models_loaded"] != true {
		t.Errorf("models_loaded = %v", resp["models_loaded"])
	}
	if resp["total_satellites"].(float64) != 3 || resp["total_records"].(float64) != 4 {
		t.Errorf("counts = %v/%v, want 3/4", resp["total_satellites"], resp["total_records"])
	}
	models := resp["models"].(map[string]any)
	if models["trajectory"] != "random-walk" || models["collision"] != "custom" {
		t.Errorf("models = %v", models)
	}
}

func TestStatusWithoutModels(t *testing.T) {
	h := NewHandler(Config{}, Deps{Store: catalog.NewStore(testRecords)}, testLogger())

	w, resp := do(t, h, "GET", "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["models_loaded"] != false {
		t.Errorf("models_loaded = %v, want false", resp["models_loaded"])
	}
	if models := resp["models"].(map[string]any); len(models) != 0 {
		t.Errorf("models = %v, want empty", models)
	}
	if resp["total_records"].(float64) != 4 {
		t.Errorf("total_records = %v, want 4", resp["total_records"])
	}
}

func TestSatellites(t *testing.T) {
	h := newTestHandler(testOpts{})

	_, resp := do(t, h, "GET", "/api/satellites", "")
	ids := resp["satellites"].([]any)
	if len(ids) != 2 || ids[0].(float64) != 25544 || ids[1].(float64) != 44713 {
		t.Errorf("satellites = %v, want [25544 44713]", ids)
	}

	_, resp = do(t, h, "GET", "/api/satellites?limit=1", "")
	if ids := resp["satellites"].([]any); len(ids) != 1 {
		t.Errorf("limit=1 returned %v", ids)
	}

	for _, q := range []string{"0", "3", "x"} {
		if w, _ := do(t, h, "GET", "/api/satellites?limit="+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestOrbit(t *testing.T) {
	h := newTestHandler(testOpts{})

	w, resp := do(t, h, "GET", "/api/orbit/25544", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["sat_id"].(float64) != 25544 {
		t.Errorf("sat_id = %v", resp["sat_id"])
	}
	points := resp["orbit_points"].([]any)
	if len(points) != 100 {
		t.Fatalf("got %d points, want 100", len(points))
	}
	first := points[0].([]any)
	if first[0].(float64) != 6800 || math.Abs(first[1].(float64)) > 1e-9 || math.Abs(first[2].(float64)) > 1e-9 {
		t.Errorf("first point = %v, want [6800 0 0]", first)
	}
	info := resp["info"].(map[string]any)
	if info["inclination"].(float64) != 51.6 || info["eccentricity"].(float64) != 0.0007 || info["period"].(float64) != 92.68 {
		t.Errorf("info = %v", info)
	}
}

func TestOrbitErrors(t *testing.T) {
	h := newTestHandler(testOpts{})
	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/orbit/999999999", http.StatusNotFound},
		{"/api/orbit/abc", http.StatusBadRequest},
		{"/api/orbit/25544/groundtrack?minutes=0", http.StatusBadRequest},
		{"/api/orbit/25544/groundtrack?step=5", http.StatusBadRequest},
		{"/api/orbit/25544/groundtrack?start=yesterday", http.StatusBadRequest},
		{"/api/orbit/999999999/groundtrack", http.StatusNotFound},
		{"/api/orbit/25544/passes?lon=0", http.StatusBadRequest},
		{"/api/orbit/25544/passes?lat=95&lon=0", http.StatusBadRequest},
		{"/api/orbit/25544/passes?lat=40&lon=0&hours=100", http.StatusBadRequest},
		{"/api/orbit/999999999/passes?lat=40&lon=0", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w, resp := do(t, h, "GET", tt.path, "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}
}

func TestGroundTrack(t *testing.T) {
	w, resp := do(t, newTestHandler(testOpts{}), "GET", "/api/orbit/25544/groundtrack?start=2025-02-14T12:00:00Z", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, resp)
	}
	if pts := resp["points"].([]any); len(pts) != 91 {
		t.Errorf("got %d points, want 91 for 90 min at 60 s", len(pts))
	}
	if resp["start"] != "2025-02-14T12:00:00Z" {
		t.Errorf("start = %v", resp["start"])
	}
}

func TestPasses(t *testing.T) {
	w, resp := do(t, newTestHandler(testOpts{}), "GET",
		"/api/orbit/25544/passes?lat=40.7128&lon=-74.006&min_el=0&hours=24&start=2025-02-14T12:00:00Z", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, resp)
	}
	if passes := resp["passes"].([]any); len(passes) == 0 {
		t.Error("expected at least one pass")
	}
}

func TestTrajectory(t *testing.T) {
	h := newTestHandler(testOpts{})

	w, resp := do(t, h, "POST", "/api/predict/trajectory", `{"sat_id": 25544, "hours": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, resp)
	}
	preds := resp["predictions"].([]any)
	if len(preds) != 3 {
		t.Fatalf("got %d predictions, want 3", len(preds))
	}
	for i, p := range preds {
		if p.(map[string]any)["hour"].(float64) != float64(i+1) {
			t.Errorf("prediction %d hour = %v", i, p)
		}
	}

	// Trailing whitespace after the object is fine.
	if w, _ := do(t, h, "POST", "/api/predict/trajectory", "{\"sat_id\": 25544, \"hours\": 1}\n\n"); w.Code != http.StatusOK {
		t.Errorf("trailing newline status = %d, want 200", w.Code)
	}

	_, resp = do(t, h, "POST", "/api/predict/trajectory", `{"sat_id": 25544}`)
	if preds := resp["predictions"].([]any); len(preds) != 24 {
		t.Errorf("default horizon returned %d predictions, want 24", len(preds))
	}
}

func TestTrajectoryErrors(t *testing.T) {
	h := newTestHandler(testOpts{})
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"zero hours", `{"sat_id": 25544, "hours": 0}`, http.StatusBadRequest},
		{"negative hours", `{"sat_id": 25544, "hours": -1}`, http.StatusBadRequest},
		{"fractional hours", `{"sat_id": 25544, "hours": 1.5}`, http.StatusBadRequest},
		{"string hours", `{"sat_id": 25544, "hours": "24"}`, http.StatusBadRequest},
		{"hours over cap", `{"sat_id": 25544, "hours": 721}`, http.StatusBadRequest},
		{"missing sat_id", `{"hours": 3}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"malformed", `{"sat_id":`, http.StatusBadRequest},
		{"trailing object", `{"sat_id": 25544, "hours": 2} {"x": 1}`, http.StatusBadRequest},
		{"trailing garbage", `{"sat_id": 25544, "hours": 2}xyz`, http.StatusBadRequest},
		{"unknown satellite", `{"sat_id": 999999999}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, h, "POST", "/api/predict/trajectory", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%v)", w.Code, tt.wantStatus, resp)
			}
			if resp["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}
}

func TestCollision(t *testing.T) {
	h := newTestHandler(testOpts{})

	w, resp := do(t, h, "POST", "/api/predict/collision", `{"sat1_id": 25544, "sat2_id": 44713}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, resp)
	}
	if resp["sat1_id"].(float64) != 25544 || resp["sat2_id"].(float64) != 44713 {
		t.Errorf("ids = %v/%v", resp["sat1_id"], resp["sat2_id"])
	}
	if resp["distance_km"].(float64) != 121 {
		t.Errorf("distance_km = %v, want 121", resp["distance_km"])
	}
	if resp["collision_probability"].(float64) != 0.5 || resp["risk_level"] != "MEDIUM" {
		t.Errorf("probability/risk = %v/%v, want 0.5/MEDIUM", resp["collision_probability"], resp["risk_level"])
	}

	for _, body := range []string{`{"sat1_id": 999999999, "sat2_id": 44713}`, `{"sat1_id": 25544, "sat2_id": 999999999}`} {
		if w, _ := do(t, h, "POST", "/api/predict/collision", body); w.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", body, w.Code)
		}
	}
	if w, _ := do(t, h, "POST", "/api/predict/collision", `{"sat1_id": 25544}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing sat2_id status = %d, want 400", w.Code)
	}
}

func TestScreen(t *testing.T) {
	h := newTestHandler(testOpts{})

	w, resp := do(t, h, "POST", "/api/predict/collision/screen", `{"sat_id": 25544}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, resp)
	}
	results := resp["assessments"].([]any)
	if len(results) != 2 {
		t.Fatalf("got %d assessments, want 2", len(results))
	}
	for _, r := range results {
		if r.(map[string]any)["sat2_id"].(float64) == 25544 {
			t.Error("satellite screened against itself")
		}
	}

	if w, _ := do(t, h, "POST", "/api/predict/collision/screen", `{"sat_id": 999999999}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown status = %d, want 404", w.Code)
	}
	if w, _ := do(t, h, "POST", "/api/predict/collision/screen", `{"sat_id": 25544, "limit": 0}`); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", w.Code)
	}
}

func TestStreamRoute(t *testing.T) {
	w, _ := do(t, newTestHandler(testOpts{}), "GET", "/api/stream/trajectory/25544?hours=2", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("stream = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if n := strings.Count(w.Body.String(), `"type":"prediction"`); n != 2 {
		t.Errorf("got %d prediction frames, want 2", n)
	}
}

func TestReadyz(t *testing.T) {
	if w, _ := do(t, newTestHandler(testOpts{}), "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz with catalog = %d, want 200", w.Code)
	}
	empty := newTestHandler(testOpts{records: []catalog.SatelliteRecord{}})
	if w, _ := do(t, empty, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz without catalog = %d, want 503", w.Code)
	}
}

func TestAuth(t *testing.T) {
	h := newTestHandler(testOpts{auth: auth.Config{Enabled: true, Token: "s3cret"}})

	if w, _ := do(t, h, "GET", "/api/satellites", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", w.Code)
	}
	if w, _ := do(t, h, "GET", "/api/status", ""); w.Code != http.StatusOK {
		t.Errorf("status endpoint = %d, want 200 without auth", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/satellites", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestHandler(testOpts{limiter: httputil.NewRateLimiter(0.01, 1, false)})

	body := `{"sat_id": 25544, "hours": 1}`
	if w, _ := do(t, h, "POST", "/api/predict/trajectory", body); w.Code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", w.Code)
	}
	w, _ := do(t, h, "POST", "/api/predict/trajectory", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// Reads are not rate limited.
	if w, _ := do(t, h, "GET", "/api/orbit/25544", ""); w.Code != http.StatusOK {
		t.Errorf("orbit after limit = %d, want 200", w.Code)
	}
}

func TestCORS(t *testing.T) {
	h := newTestHandler(testOpts{auth: auth.Config{Enabled: true, Token: "s3cret"}})

	req := httptest.NewRequest("OPTIONS", "/api/predict/collision", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got allow-origin %q", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	w, _ := do(t, newTestHandler(testOpts{}), "GET", "/healthz", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestDashboard(t *testing.T) {
	h := NewHandler(Config{}, Deps{
		Store: catalog.NewStore(testRecords),
		Web:   fstest.MapFS{"index.html": {Data: []byte("<h1>debriswatch</h1>")}},
	}, testLogger())

	w, _ := do(t, h, "GET", "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "debriswatch") {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}
	if w, _ := do(t, h, "GET", "/index.htm", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown static path = %d, want 404", w.Code)
	}
}
