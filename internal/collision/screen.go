package collision

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/metrics"
)

// screenJob is a unit of work for the screening pool.
type screenJob struct {
	primary catalog.SatelliteRecord
	otherID int
}

// Screener assesses one satellite against many on a fixed number of
// goroutines.
type Screener struct {
	estimator *Estimator
	workers   int
	maxPairs  int
	logger    *slog.Logger
}

// NewScreener creates a Screener. maxPairs caps how many candidates a single
// request may screen (default: 100); workers defaults to 4.
func NewScreener(estimator *Estimator, workers, maxPairs int, logger *slog.Logger) *Screener {
	if workers <= 0 {
		workers = 4
	}
	if maxPairs <= 0 {
		maxPairs = 100
	}
	return &Screener{
		estimator: estimator,
		workers:   workers,
		maxPairs:  maxPairs,
		logger:    logger,
	}
}

// MaxPairs returns the per-request candidate cap.
func (s *Screener) MaxPairs() int {
	return s.maxPairs
}

// Screen assesses id against up to limit other catalog entries, taken in
// first-occurrence order, and returns the assessments sorted by probability
// descending. A limit <= 0 or above MaxPairs is clamped to MaxPairs.
func (s *Screener) Screen(ctx context.Context, id, limit int) ([]Assessment, error) {
	primary, err := s.estimator.store.Get(id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.maxPairs {
		limit = s.maxPairs
	}

	start := time.Now()
	defer func() { metrics.ObserveScreen(time.Since(start)) }()

	candidates := make([]int, 0, limit)
	for _, other := range s.estimator.store.ListIDs(0) {
		if other == id {
			continue
		}
		candidates = append(candidates, other)
		if len(candidates) == limit {
			break
		}
	}
	if len(candidates) == 0 {
		return []Assessment{}, nil
	}

	jobs := make(chan screenJob, s.workers*2)
	results := make(chan Assessment, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				other, err := s.estimator.store.Get(job.otherID)
				if err != nil {
					s.logger.Warn("screen candidate vanished", "component", "collision", "catalog_id", job.otherID)
					continue
				}
				select {
				case results <- s.estimator.assessRecords(job.primary, other):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, other := range candidates {
			select {
			case jobs <- screenJob{primary: primary, otherID: other}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Assessment, 0, len(candidates))
	for a := range results {
		out = append(out, a)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Sat2ID < out[j].Sat2ID
	})

	s.logger.Debug("screen complete",
		"component", "collision",
		"catalog_id", id,
		"pairs", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
