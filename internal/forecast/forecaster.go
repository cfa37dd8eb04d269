// Package forecast projects a satellite's position forward hour by hour with
// a pluggable StepPredictor.
package forecast

import (
	"errors"
	"fmt"
	"math"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/metrics"
)

// ErrValidation is matched by every ValidationError via errors.Is.
var ErrValidation = errors.New("invalid forecast request")

// ValidationError reports a malformed forecast request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Config holds forecast bounds loaded from configuration.
type Config struct {
	DefaultHours int // horizon when a request omits hours (default: 24)
	MaxHours     int // upper bound on a requested horizon (default: 720)
}

// Prediction is the forecast position after Hour steps.
type Prediction struct {
	Hour int     `json:"hour"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// Forecast is an ordered trajectory for one satellite, hours 1..len.
type Forecast struct {
	CatalogID   int
	Predictions []Prediction
}

// Forecaster iterates a StepPredictor from a record's initial state.
type Forecaster struct {
	store     *catalog.Store
	predictor StepPredictor
	config    Config
}

// NewForecaster creates a Forecaster. Zero config values take the defaults.
func NewForecaster(store *catalog.Store, predictor StepPredictor, config Config) *Forecaster {
	if config.DefaultHours <= 0 {
		config.DefaultHours = 24
	}
	if config.MaxHours <= 0 {
		config.MaxHours = 720
	}
	if config.DefaultHours > config.MaxHours {
		config.DefaultHours = config.MaxHours
	}
	return &Forecaster{
		store:     store,
		predictor: predictor,
		config:    config,
	}
}

// DefaultHours returns the horizon used when a request omits one.
func (f *Forecaster) DefaultHours() int {
	return f.config.DefaultHours
}

// MaxHours returns the largest accepted horizon.
func (f *Forecaster) MaxHours() int {
	return f.config.MaxHours
}

// Model names the configured step predictor.
func (f *Forecaster) Model() string {
	if s, ok := f.predictor.(fmt.Stringer); ok {
		return s.String()
	}
	return "custom"
}

// InitialState returns the starting position for rec: (a, 0, a*sin(inc)).
func InitialState(rec catalog.SatelliteRecord) Vector {
	a := rec.SemiMajorAxis
	inc := rec.Inclination * math.Pi / 180.0
	return Vector{a, 0, a * math.Sin(inc)}
}

// Validate checks hours against the configured bounds.
func (f *Forecaster) Validate(hours int) error {
	if hours <= 0 {
		return &ValidationError{Field: "hours", Reason: fmt.Sprintf("must be a positive integer, got %d", hours)}
	}
	if hours > f.config.MaxHours {
		return &ValidationError{Field: "hours", Reason: fmt.Sprintf("must be at most %d, got %d", f.config.MaxHours, hours)}
	}
	return nil
}

// Forecast advances id's initial state hours times, collecting every step.
func (f *Forecaster) Forecast(id, hours int) (Forecast, error) {
	if err := f.Validate(hours); err != nil {
		return Forecast{}, err
	}

	preds := make([]Prediction, 0, hours)
	err := f.Walk(id, hours, func(p Prediction) error {
		preds = append(preds, p)
		return nil
	})
	if err != nil {
		return Forecast{}, err
	}
	return Forecast{CatalogID: id, Predictions: preds}, nil
}

// Walk advances id's initial state hours times and calls fn with each step in
// order. It stops at the first error from fn and returns it.
func (f *Forecaster) Walk(id, hours int, fn func(Prediction) error) error {
	if err := f.Validate(hours); err != nil {
		return err
	}
	rec, err := f.store.Get(id)
	if err != nil {
		return err
	}

	pos := InitialState(rec)
	steps := 0
	defer func() { metrics.RecordForecast(steps) }()

	for h := 1; h <= hours; h++ {
		pos = f.predictor.Advance(pos)
		steps++
		if err := fn(Prediction{Hour: h, X: pos[0], Y: pos[1], Z: pos[2]}); err != nil {
			return err
		}
	}
	return nil
}
