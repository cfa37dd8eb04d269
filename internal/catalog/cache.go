package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// SnapshotCache is the on-disk fallback for remote catalog sources. Each
// successful download is kept as catalog_<unix-nanos>.<format>; CSV and
// Parquet snapshots are retained and pruned independently.
type SnapshotCache struct {
	dir      string
	maxFiles int
}

// snapshot is one cached payload on disk.
type snapshot struct {
	path    string
	fetched time.Time
}

// NewSnapshotCache returns a cache rooted at dir. A non-positive maxFiles
// keeps five snapshots per format.
func NewSnapshotCache(dir string, maxFiles int) *SnapshotCache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &SnapshotCache{dir: dir, maxFiles: maxFiles}
}

// Write saves data as the snapshot fetched at ts, drops the oldest
// snapshots of the same format beyond maxFiles, and returns the new path.
func (c *SnapshotCache) Write(data []byte, format Format, ts time.Time) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir %s: %w", c.dir, err)
	}

	p := filepath.Join(c.dir, snapshotName(format, ts))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot %s: %w", p, err)
	}

	snaps, err := c.snapshots(format)
	if err != nil {
		return p, err
	}
	for len(snaps) > c.maxFiles {
		if err := os.Remove(snaps[0].path); err != nil {
			return p, fmt.Errorf("removing stale snapshot: %w", err)
		}
		snaps = snaps[1:]
	}
	return p, nil
}

// Latest returns the newest snapshot of format and when it was fetched.
func (c *SnapshotCache) Latest(format Format) (string, time.Time, error) {
	snaps, err := c.snapshots(format)
	if err != nil {
		return "", time.Time{}, err
	}
	if len(snaps) == 0 {
		return "", time.Time{}, fmt.Errorf("no %s snapshot under %s", format, c.dir)
	}
	newest := snaps[len(snaps)-1]
	return newest.path, newest.fetched, nil
}

// snapshots lists the snapshots of format, oldest first. A missing
// directory holds none.
func (c *SnapshotCache) snapshots(format Format) ([]snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot dir %s: %w", c.dir, err)
	}

	var snaps []snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ts, ok := parseSnapshotName(e.Name(), format); ok {
			snaps = append(snaps, snapshot{path: filepath.Join(c.dir, e.Name()), fetched: ts})
		}
	}
	slices.SortFunc(snaps, func(a, b snapshot) int {
		return a.fetched.Compare(b.fetched)
	})
	return snaps, nil
}

func snapshotName(format Format, ts time.Time) string {
	return "catalog_" + strconv.FormatInt(ts.UnixNano(), 10) + "." + string(format)
}

// parseSnapshotName recovers the fetch time from a name written by
// snapshotName, rejecting other formats and foreign files.
func parseSnapshotName(name string, format Format) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, "catalog_")
	if !ok {
		return time.Time{}, false
	}
	stamp, ok = strings.CutSuffix(stamp, "."+string(format))
	if !ok {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}
