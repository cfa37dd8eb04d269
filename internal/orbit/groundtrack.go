package orbit

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/debriswatch/internal/catalog"
)

// Catalog records carry mean elements but no TLE, so ground tracks are
// propagated from a TLE synthesized from the record: inclination, eccentricity
// and mean motion (from the orbital period) come from the record; RAAN,
// argument of perigee, mean anomaly and drag terms are zero; the epoch is the
// track start. The result is a plausible track for the orbit's shape, not the
// object's true sky position.

const minutesPerDay = 1440.0

// ErrPropagation is wrapped by every failure to build or run SGP4 for a
// record.
var ErrPropagation = errors.New("orbit cannot be propagated")

// GroundPoint is a sub-satellite point at one instant.
type GroundPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`    // degrees
	Longitude float64   `json:"longitude"`   // degrees, [-180, 180)
	Altitude  float64   `json:"altitude_km"` // km above the WGS-84 ellipsoid
}

// SGP4Propagator wraps the go-satellite model for one catalog record.
type SGP4Propagator struct {
	sat       satellite.Satellite
	catalogID int
}

// NewSGP4Propagator synthesizes a TLE for rec at epoch and initializes SGP4.
func NewSGP4Propagator(rec catalog.SatelliteRecord, epoch time.Time) (*SGP4Propagator, error) {
	line1, line2, err := SynthesizeTLE(rec, epoch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPropagation, err)
	}
	// go-satellite calls log.Fatal on malformed lines, so check the layout first.
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("%w: synthesized TLE for %d: %v", ErrPropagation, rec.CatalogID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init failed for %d: code=%d %s", ErrPropagation, rec.CatalogID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, catalogID: rec.CatalogID}, nil
}

// Position returns the ECI position (km) at t. Failures are detected from the
// output because go-satellite does not surface SGP4 error codes from Propagate.
func (p *SGP4Propagator) Position(t time.Time) (satellite.Vector3, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return satellite.Vector3{}, fmt.Errorf("%w: sgp4 output for %d is NaN/Inf", ErrPropagation, p.catalogID)
	}

	// Below roughly the Earth's surface the orbit has decayed.
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6300.0 {
		return satellite.Vector3{}, fmt.Errorf("%w: %d position magnitude %.1f km below surface", ErrPropagation, p.catalogID, mag)
	}
	return pos, nil
}

// GroundPoint converts the position at t to latitude, longitude and altitude.
func (p *SGP4Propagator) GroundPoint(t time.Time) (GroundPoint, error) {
	t = t.UTC()
	pos, err := p.Position(t)
	if err != nil {
		return GroundPoint{}, err
	}

	jd := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	gmst := satellite.ThetaG_JD(jd)
	alt, _, ll := satellite.ECIToLLA(pos, gmst)
	deg := satellite.LatLongDeg(ll)

	return GroundPoint{
		Time:      t,
		Latitude:  deg.Latitude,
		Longitude: normalizeLongitude(deg.Longitude),
		Altitude:  alt,
	}, nil
}

// GroundTrack samples rec's sub-satellite point from start over span at the
// given step, both ends included.
func GroundTrack(rec catalog.SatelliteRecord, start time.Time, span, step time.Duration) ([]GroundPoint, error) {
	if step <= 0 || span < 0 {
		return nil, fmt.Errorf("invalid ground track window: span=%s step=%s", span, step)
	}
	start = start.UTC().Truncate(time.Second)

	prop, err := NewSGP4Propagator(rec, start)
	if err != nil {
		return nil, err
	}

	n := int(span/step) + 1
	points := make([]GroundPoint, 0, n)
	for i := 0; i < n; i++ {
		gp, err := prop.GroundPoint(start.Add(time.Duration(i) * step))
		if err != nil {
			return nil, err
		}
		points = append(points, gp)
	}
	return points, nil
}

// GroundTrack returns the record and its ground track for id.
func (e *Engine) GroundTrack(id int, start time.Time, span, step time.Duration) (catalog.SatelliteRecord, []GroundPoint, error) {
	rec, err := e.store.Get(id)
	if err != nil {
		return catalog.SatelliteRecord{}, nil, err
	}
	points, err := GroundTrack(rec, start, span, step)
	if err != nil {
		return rec, nil, err
	}
	return rec, points, nil
}

// SynthesizeTLE formats rec's elements as a two-line element set at epoch.
func SynthesizeTLE(rec catalog.SatelliteRecord, epoch time.Time) (string, string, error) {
	if err := rec.Validate(); err != nil {
		return "", "", fmt.Errorf("catalog id %d: %w", rec.CatalogID, err)
	}
	meanMotion := minutesPerDay / rec.OrbitalPeriod
	if meanMotion >= 100 {
		return "", "", fmt.Errorf("catalog id %d: orbital period %.3f min too short for a TLE", rec.CatalogID, rec.OrbitalPeriod)
	}

	epoch = epoch.UTC()
	midnight := time.Date(epoch.Year(), epoch.Month(), epoch.Day(), 0, 0, 0, 0, time.UTC)
	dayOfYear := float64(epoch.YearDay()) + epoch.Sub(midnight).Hours()/24

	ecc := int(math.Round(rec.Eccentricity * 1e7))
	if ecc > 9999999 {
		ecc = 9999999
	}
	satnum := rec.CatalogID % 100000

	line1 := fmt.Sprintf("1 %05dU %-8s %02d%012.8f  .00000000  00000-0  00000-0 0  999",
		satnum, "00000A", epoch.Year()%100, dayOfYear)
	line2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%05d",
		satnum, rec.Inclination, 0.0, ecc, 0.0, 0.0, meanMotion, 0)

	return line1 + tleChecksum(line1), line2 + tleChecksum(line2), nil
}

// tleChecksum returns the modulo-10 checksum digit of a TLE line body.
func tleChecksum(line string) string {
	sum := 0
	for _, c := range line {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return fmt.Sprintf("%d", sum%10)
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
