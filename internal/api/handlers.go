package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/collision"
	"github.com/star/debriswatch/internal/forecast"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/orbit"
	"github.com/star/debriswatch/internal/tracing"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	store      *catalog.Store
	orbits     *orbit.Engine
	forecaster *forecast.Forecaster
	estimator  *collision.Estimator
	screener   *collision.Screener
	listLimit  int
	logger     *slog.Logger
}

type statusResponse struct {
	ModelsLoaded      bool              `json:"models_loaded"`
	Models            map[string]string `json:"models"`
	TotalSatellites   int               `json:"total_satellites"`
	TotalRecords      int               `json:"total_records"`
	CatalogSource     string            `json:"catalog_source"`
	CatalogAgeSeconds int               `json:"catalog_age_seconds"`
}

func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	models := make(map[string]string, 2)
	if h.forecaster != nil {
		models["trajectory"] = h.forecaster.Model()
	}
	if h.estimator != nil {
		models["collision"] = h.estimator.Model()
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		ModelsLoaded:      len(models) == 2,
		Models:            models,
		TotalSatellites:   h.store.CountUniqueSatellites(),
		TotalRecords:      h.store.CountRecords(),
		CatalogSource:     h.store.Source(),
		CatalogAgeSeconds: int(h.store.AgeSeconds()),
	})
}

// GET /api/satellites?limit=N, N in [1, list limit].
func (h *handlers) handleSatellites(w http.ResponseWriter, r *http.Request) {
	limit := h.listLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > h.listLimit {
			badRequest(w, fmt.Sprintf("invalid limit parameter, must be 1-%d", h.listLimit))
			return
		}
		limit = n
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]int{
		"satellites": h.store.ListIDs(limit),
	})
}

type orbitInfo struct {
	Inclination  float64 `json:"inclination"`
	Eccentricity float64 `json:"eccentricity"`
	Period       float64 `json:"period"`
}

type orbitResponse struct {
	SatID       int        `json:"sat_id"`
	OrbitPoints orbit.Path `json:"orbit_points"`
	Info        orbitInfo  `json:"info"`
}

func (h *handlers) handleOrbit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	_, span := tracing.StartSpan(r.Context(), "orbit.compute", attribute.Int("catalog_id", id))
	rec, path, err := h.orbits.Orbit(id)
	tracing.EndSpan(span, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, orbitResponse{
		SatID:       id,
		OrbitPoints: path,
		Info: orbitInfo{
			Inclination:  rec.Inclination,
			Eccentricity: rec.Eccentricity,
			Period:       rec.OrbitalPeriod,
		},
	})
}

type groundTrackResponse struct {
	SatID       int                 `json:"sat_id"`
	Start       time.Time           `json:"start"`
	StepSeconds int                 `json:"step_seconds"`
	Points      []orbit.GroundPoint `json:"points"`
}

// GET /api/orbit/{catalog_id}/groundtrack?minutes=90&step=60&start=RFC3339
func (h *handlers) handleGroundTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	minutes, ok := intParam(w, q.Get("minutes"), "minutes", 90, 1, 1440)
	if !ok {
		return
	}
	step, ok := intParam(w, q.Get("step"), "step", 60, 10, 3600)
	if !ok {
		return
	}
	start, ok := timeParam(w, q.Get("start"))
	if !ok {
		return
	}

	_, span := tracing.StartSpan(r.Context(), "orbit.groundtrack",
		attribute.Int("catalog_id", id),
		attribute.Int("minutes", minutes),
		attribute.Int("step_seconds", step),
	)
	_, points, err := h.orbits.GroundTrack(id, start, time.Duration(minutes)*time.Minute, time.Duration(step)*time.Second)
	tracing.EndSpan(span, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, groundTrackResponse{
		SatID:       id,
		Start:       points[0].Time,
		StepSeconds: step,
		Points:      points,
	})
}

type observerJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	AltitudeM float64 `json:"altitude_m"`
}

type passesResponse struct {
	SatID    int               `json:"sat_id"`
	Observer observerJSON      `json:"observer"`
	Start    time.Time         `json:"start"`
	Hours    int               `json:"hours"`
	Passes   []orbit.PassEvent `json:"passes"`
}

// GET /api/orbit/{catalog_id}/passes?lat=&lon=&alt=0&hours=24&min_el=10&start=RFC3339
func (h *handlers) handlePasses(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	lat, ok := floatParam(w, q.Get("lat"), "lat", nil, -90, 90)
	if !ok {
		return
	}
	lon, ok := floatParam(w, q.Get("lon"), "lon", nil, -180, 180)
	if !ok {
		return
	}
	zero := 0.0
	alt, ok := floatParam(w, q.Get("alt"), "alt", &zero, -500, 10000)
	if !ok {
		return
	}
	ten := 10.0
	minEl, ok := floatParam(w, q.Get("min_el"), "min_el", &ten, 0, 90)
	if !ok {
		return
	}
	hours, ok := intParam(w, q.Get("hours"), "hours", 24, 1, 72)
	if !ok {
		return
	}
	start, ok := timeParam(w, q.Get("start"))
	if !ok {
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "orbit.passes",
		attribute.Int("catalog_id", id),
		attribute.Int("hours", hours),
	)
	_, passes, err := h.orbits.Passes(ctx, id, orbit.PassQuery{
		Observer:     orbit.Observer{LatitudeDeg: lat, LongitudeDeg: lon, AltitudeKm: alt / 1000},
		Start:        start,
		Horizon:      time.Duration(hours) * time.Hour,
		MinElevation: minEl,
		MaxPasses:    50,
	})
	tracing.EndSpan(span, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, passesResponse{
		SatID:    id,
		Observer: observerJSON{Latitude: lat, Longitude: lon, AltitudeM: alt},
		Start:    start.UTC().Truncate(time.Second),
		Hours:    hours,
		Passes:   passes,
	})
}

type trajectoryRequest struct {
	SatID *int `json:"sat_id"`
	Hours *int `json:"hours"`
}

type trajectoryResponse struct {
	SatID       int                   `json:"sat_id"`
	Predictions []forecast.Prediction `json:"predictions"`
}

func (h *handlers) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	var req trajectoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SatID == nil {
		badRequest(w, "sat_id is required")
		return
	}
	hours := h.forecaster.DefaultHours()
	if req.Hours != nil {
		hours = *req.Hours
	}

	_, span := tracing.StartSpan(r.Context(), "forecast.trajectory",
		attribute.Int("catalog_id", *req.SatID),
		attribute.Int("hours", hours),
	)
	fc, err := h.forecaster.Forecast(*req.SatID, hours)
	tracing.EndSpan(span, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, trajectoryResponse{
		SatID:       fc.CatalogID,
		Predictions: fc.Predictions,
	})
}

type collisionRequest struct {
	Sat1ID *int `json:"sat1_id"`
	Sat2ID *int `json:"sat2_id"`
}

func (h *handlers) handleCollision(w http.ResponseWriter, r *http.Request) {
	var req collisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Sat1ID == nil || req.Sat2ID == nil {
		badRequest(w, "sat1_id and sat2_id are required")
		return
	}

	_, span := tracing.StartSpan(r.Context(), "collision.assess",
		attribute.Int("sat1_id", *req.Sat1ID),
		attribute.Int("sat2_id", *req.Sat2ID),
	)
	a, err := h.estimator.Assess(*req.Sat1ID, *req.Sat2ID)
	tracing.EndSpan(span, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type screenRequest struct {
	SatID *int `json:"sat_id"`
	Limit *int `json:"limit"`
}

type screenResponse struct {
	SatID       int                    `json:"sat_id"`
	Assessments []collision.Assessment `json:"assessments"`
}

func (h *handlers) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SatID == nil {
		badRequest(w, "sat_id is required")
		return
	}
	limit := 0
	if req.Limit != nil {
		if *req.Limit < 1 || *req.Limit > h.screener.MaxPairs() {
			badRequest(w, fmt.Sprintf("invalid limit, must be 1-%d", h.screener.MaxPairs()))
			return
		}
		limit = *req.Limit
	}

	ctx, span := tracing.StartSpan(r.Context(), "collision.screen",
		attribute.Int("catalog_id", *req.SatID),
		attribute.Int("limit", limit),
	)
	results, err := h.screener.Screen(ctx, *req.SatID, limit)
	tracing.EndSpan(span, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, screenResponse{SatID: *req.SatID, Assessments: results})
}

// decodeBody decodes a JSON request body holding exactly one object into v.
// Type mismatches such as a fractional or quoted integer are rejected, as is
// anything after the object.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			badRequest(w, "request body is required")
		case errors.As(err, &typeErr):
			badRequest(w, fmt.Sprintf("invalid %s: must be an integer", typeErr.Field))
		case errors.As(err, &maxErr):
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			badRequest(w, "invalid JSON body")
		}
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		badRequest(w, "request body must contain a single JSON object")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("catalog_id"))
	if err != nil {
		badRequest(w, "invalid catalog_id: must be an integer")
		return 0, false
	}
	return id, true
}

func intParam(w http.ResponseWriter, v, name string, def, lo, hi int) (int, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		badRequest(w, fmt.Sprintf("invalid %s parameter, must be %d-%d", name, lo, hi))
		return 0, false
	}
	return n, true
}

// floatParam parses a bounded float query value. A nil def makes the
// parameter required.
func floatParam(w http.ResponseWriter, v, name string, def *float64, lo, hi float64) (float64, bool) {
	if v == "" {
		if def == nil {
			badRequest(w, fmt.Sprintf("%s parameter is required", name))
			return 0, false
		}
		return *def, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < lo || f > hi {
		badRequest(w, fmt.Sprintf("invalid %s parameter, must be %g to %g", name, lo, hi))
		return 0, false
	}
	return f, true
}

func timeParam(w http.ResponseWriter, v string) (time.Time, bool) {
	if v == "" {
		return time.Now().UTC(), true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		badRequest(w, "invalid start parameter, must be RFC3339")
		return time.Time{}, false
	}
	return t.UTC(), true
}
