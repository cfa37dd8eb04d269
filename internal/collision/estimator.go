// Package collision scores the conjunction risk of satellite pairs with a
// pluggable RiskClassifier and buckets the result into a risk tier.
package collision

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/metrics"
)

// Risk tiers.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Features is the classifier input:
// [inclination_1, eccentricity_1, inclination_2, eccentricity_2, |a1 - a2|].
type Features [5]float64

// RiskClassifier maps a feature vector to a (no collision, collision)
// probability pair. Implementations must be safe for concurrent use.
type RiskClassifier interface {
	Classify(f Features) [2]float64
}

// ClassifierFunc adapts a plain function to RiskClassifier.
type ClassifierFunc func(f Features) [2]float64

// Classify calls fn(f).
func (fn ClassifierFunc) Classify(f Features) [2]float64 {
	return fn(f)
}

// RandomClassifier is the placeholder risk model: both probabilities are
// independent uniform draws in [0, 1) and ignore the features entirely.
type RandomClassifier struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomClassifier creates a RandomClassifier. A zero seed draws a random
// one.
func NewRandomClassifier(seed uint64) *RandomClassifier {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomClassifier{rng: rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))}
}

// Classify returns two uniform draws.
func (c *RandomClassifier) Classify(Features) [2]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return [2]float64{c.rng.Float64(), c.rng.Float64()}
}

func (c *RandomClassifier) String() string {
	return "random-classifier"
}

// Tier buckets a probability. Boundaries are exclusive: exactly 0.5 is
// MEDIUM and exactly 0.1 is LOW.
func Tier(p float64) string {
	switch {
	case p > 0.5:
		return RiskHigh
	case p > 0.1:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Assessment is the result of scoring one pair.
type Assessment struct {
	Sat1ID      int     `json:"sat1_id"`
	Sat2ID      int     `json:"sat2_id"`
	DistanceKm  float64 `json:"distance_km"`
	Probability float64 `json:"collision_probability"`
	RiskLevel   string  `json:"risk_level"`
}

// BuildFeatures assembles the classifier input for a pair of records.
func BuildFeatures(r1, r2 catalog.SatelliteRecord) Features {
	return Features{
		r1.Inclination,
		r1.Eccentricity,
		r2.Inclination,
		r2.Eccentricity,
		math.Abs(r1.SemiMajorAxis - r2.SemiMajorAxis),
	}
}

// Estimator scores pairs of catalog entries.
type Estimator struct {
	store      *catalog.Store
	classifier RiskClassifier
}

// NewEstimator creates an Estimator backed by store.
func NewEstimator(store *catalog.Store, classifier RiskClassifier) *Estimator {
	return &Estimator{
		store:      store,
		classifier: classifier,
	}
}

// Model names the configured classifier.
func (e *Estimator) Model() string {
	if s, ok := e.classifier.(fmt.Stringer); ok {
		return s.String()
	}
	return "custom"
}

// Assess scores the pair (id1, id2). Either ID missing from the store yields
// a catalog.NotFoundError.
func (e *Estimator) Assess(id1, id2 int) (Assessment, error) {
	r1, err := e.store.Get(id1)
	if err != nil {
		return Assessment{}, err
	}
	r2, err := e.store.Get(id2)
	if err != nil {
		return Assessment{}, err
	}
	return e.assessRecords(r1, r2), nil
}

func (e *Estimator) assessRecords(r1, r2 catalog.SatelliteRecord) Assessment {
	f := BuildFeatures(r1, r2)
	p := clamp01(e.classifier.Classify(f)[1])
	level := Tier(p)
	metrics.RecordAssessment(level)

	return Assessment{
		Sat1ID:      r1.CatalogID,
		Sat2ID:      r2.CatalogID,
		DistanceKm:  f[4],
		Probability: p,
		RiskLevel:   level,
	}
}

func clamp01(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
