package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/star/debriswatch/internal/metrics"
)

// LoadConfig controls where the catalog is read from and how remote sources
// are retried and snapshotted.
type LoadConfig struct {
	Source        string        // path, http(s):// URL or s3://bucket/key
	CacheDir      string        // snapshot directory for remote sources
	MaxFiles      int           // snapshots kept per format (default: 5)
	Attempts      uint          // fetch attempts for remote sources (default: 3)
	RetryInterval time.Duration // initial backoff between attempts (default: 1s)
	MaxBytes      int64         // remote payload cap (default: DefaultMaxBytes)
	S3            S3Config
}

// Load reads the configured source and builds a Store. Any failure is
// returned as a *DataLoadError.
func Load(ctx context.Context, cfg LoadConfig, logger *slog.Logger) (*Store, error) {
	start := time.Now()

	src, err := ParseSource(cfg.Source)
	if err != nil {
		return nil, &DataLoadError{Source: cfg.Source, Err: err}
	}

	p := src.Location
	if src.Remote() {
		p, err = fetchSnapshot(ctx, src, cfg, logger)
		if err != nil {
			return nil, &DataLoadError{Source: src.Location, Err: err}
		}
	}

	records, err := parseFile(p, src.Format, logger)
	if err != nil {
		return nil, &DataLoadError{Source: src.Location, Err: err}
	}

	store := NewStore(records)
	store.source = src.Location

	duration := time.Since(start)
	metrics.RecordCatalogLoad(duration, store.CountRecords(), store.CountUniqueSatellites())

	logger.Info("catalog loaded",
		"component", "catalog",
		"source", src.Location,
		"format", src.Format,
		"records", store.CountRecords(),
		"satellites", store.CountUniqueSatellites(),
		"duration_ms", duration.Milliseconds(),
	)
	return store, nil
}

func parseFile(p string, format Format, logger *slog.Logger) ([]SatelliteRecord, error) {
	if format == FormatParquet {
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
		return ParseParquet(p, logger)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f, logger)
}

// fetchSnapshot downloads a remote source with retries and stores it in the
// snapshot cache. When every attempt fails the newest cached snapshot is used.
func fetchSnapshot(ctx context.Context, src Source, cfg LoadConfig, logger *slog.Logger) (string, error) {
	fetcher, err := newFetcher(ctx, src, cfg)
	if err != nil {
		return "", err
	}

	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 3
	}
	bo := backoff.NewExponentialBackOff()
	if cfg.RetryInterval > 0 {
		bo.InitialInterval = cfg.RetryInterval
	}

	data, fetchErr := backoff.Retry(ctx, func() ([]byte, error) {
		b, err := fetcher.Fetch(ctx)
		if err != nil {
			var se *statusError
			var tooLarge *sizeError
			if (errors.As(err, &se) && !se.retryable()) || errors.As(err, &tooLarge) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return b, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("catalog fetch failed, retrying",
				"component", "catalog",
				"source", src.Location,
				"retry_in_ms", next.Milliseconds(),
				"error", err,
			)
		}),
	)

	cache := NewSnapshotCache(cfg.CacheDir, cfg.MaxFiles)
	if fetchErr != nil {
		p, ts, err := cache.Latest(src.Format)
		if err != nil {
			return "", fmt.Errorf("%w (no cached snapshot: %v)", fetchErr, err)
		}
		logger.Warn("catalog source unreachable, using cached snapshot",
			"component", "catalog",
			"source", src.Location,
			"snapshot", p,
			"cached_at", ts.UTC().Format(time.RFC3339),
			"error", fetchErr,
		)
		return p, nil
	}

	p, err := cache.Write(data, src.Format, time.Now())
	if err != nil {
		return "", err
	}
	logger.Debug("catalog snapshot written", "component", "catalog", "path", p, "bytes", len(data))
	return p, nil
}

func newFetcher(ctx context.Context, src Source, cfg LoadConfig) (Fetcher, error) {
	switch src.Kind {
	case KindHTTP:
		return NewHTTPFetcher(src.Location, cfg.MaxBytes), nil
	case KindS3:
		return NewS3Fetcher(ctx, src, cfg.S3, cfg.MaxBytes)
	default:
		return nil, fmt.Errorf("source kind %q cannot be fetched", src.Kind)
	}
}
