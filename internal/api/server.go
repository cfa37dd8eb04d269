package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/star/debriswatch/internal/auth"
	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/collision"
	"github.com/star/debriswatch/internal/forecast"
	"github.com/star/debriswatch/internal/health"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/metrics"
	"github.com/star/debriswatch/internal/orbit"
	"github.com/star/debriswatch/internal/stream"
	"github.com/star/debriswatch/internal/tracing"
)

// Config holds HTTP server settings.
type Config struct {
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	CORSOrigins       []string
	TrustProxy        bool
	ListLimit         int // max IDs returned by /api/satellites (default: 50)
	Auth              auth.Config
}

// Deps are the core components the gateway serves.
type Deps struct {
	Store      *catalog.Store
	Orbits     *orbit.Engine
	Forecaster *forecast.Forecaster
	Estimator  *collision.Estimator
	Screener   *collision.Screener
	Stream     *stream.Handler
	Limiter    *httputil.RateLimiter // nil disables prediction rate limiting
	Web        fs.FS                 // optional static frontend served at /
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewHandler(cfg, deps, logger),
			ReadTimeout:       orDefault(cfg.ReadTimeout, 10*time.Second),
			ReadHeaderTimeout: orDefault(cfg.ReadHeaderTimeout, 5*time.Second),
			WriteTimeout:      orDefault(cfg.WriteTimeout, 30*time.Second),
			IdleTimeout:       orDefault(cfg.IdleTimeout, 120*time.Second),
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler with the full middleware chain.
func NewHandler(cfg Config, deps Deps, logger *slog.Logger) http.Handler {
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 50
	}
	h := &handlers{
		store:      deps.Store,
		orbits:     deps.Orbits,
		forecaster: deps.Forecaster,
		estimator:  deps.Estimator,
		screener:   deps.Screener,
		listLimit:  cfg.ListLimit,
		logger:     logger,
	}

	limit := func(next http.HandlerFunc) http.Handler { return next }
	if deps.Limiter != nil {
		mw := deps.Limiter.Middleware(func(r *http.Request, ip string) {
			metrics.IncRateLimited()
			logger.Warn("rate limit exceeded", "component", "api", "path", r.URL.Path, "remote_ip", ip)
		})
		limit = func(next http.HandlerFunc) http.Handler { return mw(next) }
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool {
		return deps.Store != nil && deps.Store.CountRecords() > 0
	}))
	mux.Handle("GET /metrics", metrics.Handler())
	if deps.Web != nil {
		mux.Handle("GET /{$}", http.FileServerFS(deps.Web))
	}

	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /api/satellites", h.handleSatellites)
	mux.HandleFunc("GET /api/orbit/{catalog_id}", h.handleOrbit)
	mux.HandleFunc("GET /api/orbit/{catalog_id}/groundtrack", h.handleGroundTrack)
	mux.HandleFunc("GET /api/orbit/{catalog_id}/passes", h.handlePasses)
	mux.Handle("POST /api/predict/trajectory", limit(h.handleTrajectory))
	mux.Handle("POST /api/predict/collision", limit(h.handleCollision))
	mux.Handle("POST /api/predict/collision/screen", limit(h.handleScreen))
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/stream/trajectory/{catalog_id}", deps.Stream.HandleTrajectory)
	}

	// Build middleware chain: metrics -> request ID -> tracing -> logging -> CORS -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = tracing.Middleware(handler)
	handler = httputil.RequestID(handler)
	handler = metrics.Middleware(handler)
	return handler
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// healthPath reports whether path is a health or readiness endpoint, which logs at DEBUG.
func healthPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if healthPath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"route", r.Pattern,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
				"request_id", httputil.RequestIDFromContext(r.Context()),
			)
		})
	}
}

// corsMiddleware answers preflight requests and sets CORS headers for the
// allowed origins. "*" allows any origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	anyOrigin := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			anyOrigin = true
		}
		allowed[strings.TrimSuffix(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			switch {
			case anyOrigin:
				h.Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			default:
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
