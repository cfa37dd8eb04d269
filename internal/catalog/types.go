package catalog

import (
	"errors"
	"fmt"
)

// Column names every catalog source must provide. Other columns are ignored.
const (
	ColCatalogID     = "NORAD_CAT_ID"
	ColSemiMajorAxis = "SEMI_MAJOR_AXIS"
	ColInclination   = "INCLINATION"
	ColEccentricity  = "ECCENTRICITY"
	ColOrbitalPeriod = "ORBITAL_PERIOD"
)

// RequiredColumns lists the columns checked when a source is loaded.
var RequiredColumns = []string{
	ColCatalogID,
	ColSemiMajorAxis,
	ColInclination,
	ColEccentricity,
	ColOrbitalPeriod,
}

// SatelliteRecord holds the orbital elements of one tracked object.
// Records are immutable once loaded into a Store.
type SatelliteRecord struct {
	CatalogID     int
	SemiMajorAxis float64 // km
	Inclination   float64 // degrees, [0, 180]
	Eccentricity  float64 // [0, 1)
	OrbitalPeriod float64 // minutes
}

// Validate reports whether r satisfies the element ranges a record must hold.
func (r SatelliteRecord) Validate() error {
	switch {
	case r.SemiMajorAxis <= 0:
		return fmt.Errorf("semi-major axis %.3f must be positive", r.SemiMajorAxis)
	case r.Inclination < 0 || r.Inclination > 180:
		return fmt.Errorf("inclination %.4f outside [0, 180]", r.Inclination)
	case r.Eccentricity < 0 || r.Eccentricity >= 1:
		return fmt.Errorf("eccentricity %.7f outside [0, 1)", r.Eccentricity)
	case r.OrbitalPeriod <= 0:
		return fmt.Errorf("orbital period %.3f must be positive", r.OrbitalPeriod)
	}
	return nil
}

// ErrNotFound is matched by every NotFoundError via errors.Is.
var ErrNotFound = errors.New("satellite not found")

// NotFoundError is returned when a catalog ID is absent from the store.
type NotFoundError struct {
	CatalogID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("satellite %d not found", e.CatalogID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DataLoadError reports a catalog source that is missing or malformed.
// It is fatal at startup.
type DataLoadError struct {
	Source string
	Err    error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("loading catalog from %s: %v", e.Source, e.Err)
}

func (e *DataLoadError) Unwrap() error {
	return e.Err
}
