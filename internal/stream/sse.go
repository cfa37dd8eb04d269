// Package stream serves trajectory forecasts as Server-Sent Events. Clients
// connect to GET /api/stream/trajectory/{catalog_id}?hours=N and receive one
// message per forecast hour.
//
// SSE message format:
//
//	id: 1
//	data: {"type":"prediction","sat_id":25544,"hour":1,"x":...,"y":...,"z":...}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","sat_id":25544,"hours":24,"model":"random-walk",...}\n\n
//
// The last message is {"type":"complete"}. Keep-alive comments (:\n\n) are
// sent while the stream waits between paced predictions.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/forecast"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/metrics"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // open streams per client IP (default: 10)
	MaxTotal           int           // open streams overall (default: 1000)
	Interval           time.Duration // delay between prediction messages; 0 sends at once
	KeepaliveInterval  time.Duration // keep-alive ping interval (default: 15s)
	TrustProxy         bool          // honor X-Forwarded-For when keying limits
}

// Handler manages trajectory SSE connections.
type Handler struct {
	forecaster *forecast.Forecaster
	store      *catalog.Store
	config     Config
	limiter    *streamLimiter
	logger     *slog.Logger
}

// NewHandler creates a streaming handler. Zero config values take defaults.
func NewHandler(forecaster *forecast.Forecaster, store *catalog.Store, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxTotal <= 0 {
		config.MaxTotal = 1000
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 15 * time.Second
	}
	if config.Interval < 0 {
		config.Interval = 0
	}
	return &Handler{
		forecaster: forecaster,
		store:      store,
		config:     config,
		limiter:    newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:     logger,
	}
}

// HandleTrajectory serves GET /api/stream/trajectory/{catalog_id}?hours=N.
func (h *Handler) HandleTrajectory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("catalog_id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid catalog_id: must be an integer")
		return
	}

	hours := h.forecaster.DefaultHours()
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid hours: must be an integer")
			return
		}
		hours = n
	}
	if err := h.forecaster.Validate(hours); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.store.Get(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if ok, reason := h.limiter.acquire(ip); !ok {
		metrics.IncStreamErrors(reason)
		h.logger.Warn("stream limit exceeded",
			"component", "stream",
			"remote_ip", ip,
			"reason", reason,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamsActive()
	start := time.Now()
	h.logger.Info("stream connected",
		"component", "stream",
		"remote_ip", ip,
		"catalog_id", id,
		"hours", hours,
	)

	c := &client{}
	defer func() {
		h.limiter.release(ip)
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"component", "stream",
			"remote_ip", ip,
			"catalog_id", id,
			"messages", c.sent,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived streams must not inherit the server's WriteTimeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "component", "stream", "error", err)
	}
	*c = client{w: w, flusher: flusher, rc: rc, logger: h.logger}

	// Jittered retry so a server restart does not trigger a reconnect storm.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.IntN(4000))
	flusher.Flush()

	meta := metadataMessage{
		Type:              "metadata",
		SatID:             id,
		Hours:             hours,
		Model:             h.forecaster.Model(),
		IntervalMs:        h.config.Interval.Milliseconds(),
		CatalogSource:     h.store.Source(),
		CatalogAgeSeconds: int(h.store.AgeSeconds()),
	}
	if err := c.send("", meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "component", "stream", "remote_ip", ip, "error", err)
		return
	}

	ctx := r.Context()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()
	var pace <-chan time.Time
	if h.config.Interval > 0 {
		t := time.NewTicker(h.config.Interval)
		defer t.Stop()
		pace = t.C
	}

	err = h.forecaster.Walk(id, hours, func(p forecast.Prediction) error {
		if pace != nil && p.Hour > 1 {
			if err := waitTick(ctx, pace, keepalive.C, c); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.send(strconv.Itoa(p.Hour), predictionMessage{
			Type:  "prediction",
			SatID: id,
			Hour:  p.Hour,
			X:     p.X,
			Y:     p.Y,
			Z:     p.Z,
		})
	})
	switch {
	case err == nil:
		if err := c.send("", completeMessage{Type: "complete", SatID: id, Hours: hours}); err != nil {
			metrics.IncStreamErrors("send_error")
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away.
	default:
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "component", "stream", "remote_ip", ip, "error", err)
	}
}

// waitTick blocks until the next pace tick, sending keep-alives meanwhile.
func waitTick(ctx context.Context, pace, keepalive <-chan time.Time, c *client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pace:
			return nil
		case <-keepalive:
			if err := c.keepalive(); err != nil {
				return err
			}
		}
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type              string `json:"type"`
	SatID             int    `json:"sat_id"`
	Hours             int    `json:"hours"`
	Model             string `json:"model"`
	IntervalMs        int64  `json:"interval_ms"`
	CatalogSource     string `json:"catalog_source"`
	CatalogAgeSeconds int    `json:"catalog_age_seconds"`
}

type predictionMessage struct {
	Type  string  `json:"type"`
	SatID int     `json:"sat_id"`
	Hour  int     `json:"hour"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

type completeMessage struct {
	Type  string `json:"type"`
	SatID int    `json:"sat_id"`
	Hours int    `json:"hours"`
}
