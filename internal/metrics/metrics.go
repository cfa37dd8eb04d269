package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debriswatch_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	catalogRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "debriswatch_catalog_records",
		Help: "Rows loaded from the catalog source, duplicates included.",
	})

	catalogSatellites = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "debriswatch_catalog_satellites",
		Help: "Distinct catalog IDs in the loaded store.",
	})

	catalogAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "debriswatch_catalog_age_seconds",
		Help: "Seconds since the catalog was loaded.",
	})

	catalogLoadSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "debriswatch_catalog_load_duration_seconds",
		Help: "Duration of the last catalog load in seconds.",
	})

	trajectoryForecastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "debriswatch_trajectory_forecasts_total",
		Help: "Trajectory forecasts computed.",
	})

	trajectoryStepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "debriswatch_trajectory_steps_total",
		Help: "Step predictor invocations across all forecasts.",
	})

	collisionAssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_collision_assessments_total",
			Help: "Collision assessments by resulting risk tier.",
		},
		[]string{"risk_level"},
	)

	screenDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "debriswatch_collision_screen_duration_seconds",
		Help:    "Duration of collision screening batches in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "debriswatch_streams_active",
		Help: "Currently open trajectory streams.",
	})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "debriswatch_stream_messages_total",
		Help: "SSE messages sent to stream clients.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_stream_errors_total",
			Help: "Stream failures by reason.",
		},
		[]string{"reason"},
	)

	rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "debriswatch_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		catalogRecords,
		catalogSatellites,
		catalogAgeSeconds,
		catalogLoadSeconds,
		trajectoryForecastsTotal,
		trajectoryStepsTotal,
		collisionAssessmentsTotal,
		screenDurationSeconds,
		streamsActive,
		streamMessagesTotal,
		streamErrorsTotal,
		rateLimitedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCatalogLoad records the size and duration of a catalog load.
func RecordCatalogLoad(d time.Duration, records, satellites int) {
	catalogLoadSeconds.Set(d.Seconds())
	catalogRecords.Set(float64(records))
	catalogSatellites.Set(float64(satellites))
}

// SetCatalogAge updates the catalog age gauge.
func SetCatalogAge(seconds float64) {
	catalogAgeSeconds.Set(seconds)
}

// RecordForecast counts one forecast of the given number of steps.
func RecordForecast(steps int) {
	trajectoryForecastsTotal.Inc()
	trajectoryStepsTotal.Add(float64(steps))
}

// RecordAssessment counts one collision assessment in the given tier.
func RecordAssessment(riskLevel string) {
	collisionAssessmentsTotal.WithLabelValues(riskLevel).Inc()
}

// ObserveScreen records the duration of a screening batch.
func ObserveScreen(d time.Duration) {
	screenDurationSeconds.Observe(d.Seconds())
}

// IncStreamsActive increments the open stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the open stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamMessages counts one SSE message.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// IncStreamErrors counts a stream failure.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// IncRateLimited counts a request rejected by the rate limiter.
func IncRateLimited() { rateLimitedTotal.Inc() }

// knownRoutes are exact paths that keep their own label.
var knownRoutes = map[string]bool{
	"/":                             true,
	"/healthz":                      true,
	"/readyz":                       true,
	"/metrics":                      true,
	"/api/status":                   true,
	"/api/satellites":               true,
	"/api/predict/trajectory":       true,
	"/api/predict/collision":        true,
	"/api/predict/collision/screen": true,
}

// normalizeRoute collapses parameterized paths to their pattern so a catalog
// ID never becomes a label value. Unknown paths map to "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/orbit/"); ok {
		id, suffix, _ := strings.Cut(rest, "/")
		if !isNumeric(id) {
			return "other"
		}
		switch suffix {
		case "":
			return "/api/orbit/{catalog_id}"
		case "groundtrack":
			return "/api/orbit/{catalog_id}/groundtrack"
		case "passes":
			return "/api/orbit/{catalog_id}/passes"
		}
		return "other"
	}

	if id, ok := strings.CutPrefix(path, "/api/stream/trajectory/"); ok && isNumeric(id) {
		return "/api/stream/trajectory/{catalog_id}"
	}

	return "other"
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE streams keep working.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
