package orbit

import (
	"context"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/debriswatch/internal/catalog"
)

const (
	coarseStep  = 30 * time.Second
	fineStep    = time.Second
	minPassDur  = 10 * time.Second
	deg2rad     = math.Pi / 180.0
	rad2deg     = 180.0 / math.Pi
	maxPassScan = 7 * 24 * time.Hour
)

// Observer is a ground location.
type Observer struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64
}

// Validate checks the observer's coordinates.
func (o Observer) Validate() error {
	if o.LatitudeDeg < -90 || o.LatitudeDeg > 90 {
		return fmt.Errorf("latitude %.4f out of range [-90, 90]", o.LatitudeDeg)
	}
	if o.LongitudeDeg < -180 || o.LongitudeDeg > 180 {
		return fmt.Errorf("longitude %.4f out of range [-180, 180]", o.LongitudeDeg)
	}
	if o.AltitudeKm < -0.5 || o.AltitudeKm > 10 {
		return fmt.Errorf("altitude %.3f km out of range [-0.5, 10]", o.AltitudeKm)
	}
	return nil
}

// PassEvent describes one pass of a satellite over an observer.
type PassEvent struct {
	StartTime        time.Time `json:"start_time"`
	MaxElevationTime time.Time `json:"max_elevation_time"`
	EndTime          time.Time `json:"end_time"`
	DurationSeconds  float64   `json:"duration_seconds"`
	MaxElevation     float64   `json:"max_elevation"` // degrees
	AzimuthAtMax     float64   `json:"azimuth_at_max"`
	StartAzimuth     float64   `json:"start_azimuth"`
	EndAzimuth       float64   `json:"end_azimuth"`
}

// PassQuery bounds a pass search.
type PassQuery struct {
	Observer     Observer
	Start        time.Time
	Horizon      time.Duration
	MinElevation float64 // degrees
	MaxPasses    int
}

type lookAngles struct {
	elevation float64 // degrees
	azimuth   float64 // degrees, [0, 360)
}

// lookAngles returns the observer's view of the satellite at t.
func (p *SGP4Propagator) lookAngles(obs Observer, t time.Time) (lookAngles, error) {
	t = t.UTC()
	pos, err := p.Position(t)
	if err != nil {
		return lookAngles{}, err
	}
	jd := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	ll := satellite.LatLong{Latitude: obs.LatitudeDeg * deg2rad, Longitude: obs.LongitudeDeg * deg2rad}
	la := satellite.ECIToLookAngles(pos, ll, obs.AltitudeKm, jd)

	az := math.Mod(la.Az*rad2deg, 360)
	if az < 0 {
		az += 360
	}
	return lookAngles{elevation: la.El * rad2deg, azimuth: az}, nil
}

// FindPasses scans [q.Start, q.Start+q.Horizon) for intervals where rec is
// above q.MinElevation. A coarse scan finds candidate windows and a fine scan
// locates rise, culmination and set to the second.
func FindPasses(ctx context.Context, rec catalog.SatelliteRecord, q PassQuery) ([]PassEvent, error) {
	if err := q.Observer.Validate(); err != nil {
		return nil, err
	}
	if q.Horizon <= 0 || q.Horizon > maxPassScan {
		return nil, fmt.Errorf("pass horizon %s out of range (0, %s]", q.Horizon, maxPassScan)
	}
	if q.MaxPasses <= 0 {
		q.MaxPasses = 10
	}
	start := q.Start.UTC().Truncate(time.Second)

	prop, err := NewSGP4Propagator(rec, start)
	if err != nil {
		return nil, err
	}

	end := start.Add(q.Horizon)
	passes := []PassEvent{}

	for t := start; t.Before(end) && len(passes) < q.MaxPasses; {
		if err := ctx.Err(); err != nil {
			return passes, err
		}

		la, err := prop.lookAngles(q.Observer, t)
		if err != nil {
			return passes, err
		}
		if la.elevation <= 0 {
			t = t.Add(coarseStep)
			continue
		}

		pass, windowEnd, err := refinePass(ctx, prop, q, t, start, end)
		if err != nil {
			return passes, err
		}
		if pass != nil && pass.EndTime.Sub(pass.StartTime) >= minPassDur {
			passes = append(passes, *pass)
		}
		t = windowEnd.Add(coarseStep)
	}
	return passes, nil
}

// refinePass scans second by second around a coarse hit. It backs up one
// coarse step to catch the rise, then runs forward until the set. It returns
// the pass (nil if the elevation never reached the minimum) and the time the
// window ended.
func refinePass(ctx context.Context, prop *SGP4Propagator, q PassQuery, hit, windowStart, windowEnd time.Time) (*PassEvent, time.Time, error) {
	t := hit.Add(-coarseStep)
	if t.Before(windowStart) {
		t = windowStart
	}

	var (
		ev       PassEvent
		rose     bool
		wasAbove bool
		last     lookAngles
	)
	for ; t.Before(windowEnd); t = t.Add(fineStep) {
		if err := ctx.Err(); err != nil {
			return nil, t, err
		}
		la, err := prop.lookAngles(q.Observer, t)
		if err != nil {
			return nil, t, err
		}
		last = la
		above := la.elevation >= q.MinElevation

		switch {
		case above && !wasAbove && !rose:
			rose = true
			ev.StartTime, ev.StartAzimuth = t, la.azimuth
			ev.MaxElevation, ev.MaxElevationTime, ev.AzimuthAtMax = la.elevation, t, la.azimuth
		case above && la.elevation > ev.MaxElevation:
			ev.MaxElevation, ev.MaxElevationTime, ev.AzimuthAtMax = la.elevation, t, la.azimuth
		case !above && rose:
			ev.EndTime, ev.EndAzimuth = t, la.azimuth
			ev.DurationSeconds = ev.EndTime.Sub(ev.StartTime).Seconds()
			return &ev, t, nil
		case !above && la.elevation <= 0 && t.After(hit):
			// Dipped below the horizon without reaching the minimum.
			return nil, t, nil
		}
		wasAbove = above
	}

	if !rose {
		return nil, t, nil
	}
	// Still above the minimum when the search window closed.
	ev.EndTime, ev.EndAzimuth = t, last.azimuth
	ev.DurationSeconds = ev.EndTime.Sub(ev.StartTime).Seconds()
	return &ev, t, nil
}

// Passes returns the passes of catalog entry id over the query's observer.
func (e *Engine) Passes(ctx context.Context, id int, q PassQuery) (catalog.SatelliteRecord, []PassEvent, error) {
	rec, err := e.store.Get(id)
	if err != nil {
		return catalog.SatelliteRecord{}, nil, err
	}
	passes, err := FindPasses(ctx, rec, q)
	if err != nil {
		return rec, nil, err
	}
	return rec, passes, nil
}
