package forecast

import (
	"math/rand/v2"
	"sync"
)

// Vector is a position in km.
type Vector [3]float64

// StepPredictor advances a position by one forecast step (one hour).
// Implementations must be safe for concurrent use.
type StepPredictor interface {
	Advance(pos Vector) Vector
}

// StepFunc adapts a plain function to StepPredictor.
type StepFunc func(pos Vector) Vector

// Advance calls f(pos).
func (f StepFunc) Advance(pos Vector) Vector {
	return f(pos)
}

// RandomWalk is the placeholder trajectory model: each step adds independent
// normally distributed noise to every coordinate. It stands in for a trained
// sequence model and carries no orbital physics.
type RandomWalk struct {
	sigma float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomWalk creates a RandomWalk with standard deviation sigma (km).
// A zero seed draws a random one; any other seed makes runs reproducible.
func NewRandomWalk(sigma float64, seed uint64) *RandomWalk {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomWalk{
		sigma: sigma,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Advance returns pos plus N(0, sigma^2) noise on each axis.
func (w *RandomWalk) Advance(pos Vector) Vector {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Vector{
		pos[0] + w.rng.NormFloat64()*w.sigma,
		pos[1] + w.rng.NormFloat64()*w.sigma,
		pos[2] + w.rng.NormFloat64()*w.sigma,
	}
}

func (w *RandomWalk) String() string {
	return "random-walk"
}
