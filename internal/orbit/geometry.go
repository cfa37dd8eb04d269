// Package orbit derives orbit geometry from catalog elements.
//
// ComputeOrbit treats every orbit as a circle of radius equal to the
// semi-major axis, tilted about the x-axis by the inclination. Eccentricity is
// carried in the record but not used by the geometry: this is a known
// approximation, not an oversight. GroundTrack uses full SGP4 propagation for
// callers that need a physically propagated path.
package orbit

import (
	"math"

	"github.com/star/debriswatch/internal/catalog"
)

// PathPoints is the number of samples in an orbit path.
const PathPoints = 100

// Point is a position in km in the orbit's reference frame.
type Point [3]float64

// Path is one revolution sampled at PathPoints equally spaced angles
// theta_i = 2*pi*i/PathPoints, i = 0..PathPoints-1.
type Path []Point

// ComputeOrbit samples the tilted circular orbit for rec. It is deterministic:
// the same record always yields the same path.
func ComputeOrbit(rec catalog.SatelliteRecord) Path {
	a := rec.SemiMajorAxis
	inc := rec.Inclination * math.Pi / 180.0
	cosInc, sinInc := math.Cos(inc), math.Sin(inc)

	path := make(Path, PathPoints)
	for i := range path {
		theta := 2 * math.Pi * float64(i) / PathPoints
		sinT, cosT := math.Sincos(theta)
		path[i] = Point{
			a * cosT,
			a * sinT * cosInc,
			a * sinT * sinInc,
		}
	}
	return path
}

// Engine resolves catalog IDs and computes their orbit paths.
type Engine struct {
	store *catalog.Store
}

// NewEngine creates an Engine over store.
func NewEngine(store *catalog.Store) *Engine {
	return &Engine{store: store}
}

// Orbit returns the record and orbit path for id. Unknown IDs return the
// store's *catalog.NotFoundError.
func (e *Engine) Orbit(id int) (catalog.SatelliteRecord, Path, error) {
	rec, err := e.store.Get(id)
	if err != nil {
		return catalog.SatelliteRecord{}, nil, err
	}
	return rec, ComputeOrbit(rec), nil
}
