package catalog

import "time"

// Store is a read-only index of satellite records keyed by catalog ID.
// It is never mutated after construction, so concurrent reads need no locking.
type Store struct {
	records  map[int]SatelliteRecord
	order    []int
	rows     int
	source   string
	loadedAt time.Time
}

// NewStore indexes records. When a catalog ID appears more than once the
// first row wins; every row still counts toward CountRecords.
func NewStore(records []SatelliteRecord) *Store {
	s := &Store{
		records:  make(map[int]SatelliteRecord, len(records)),
		order:    make([]int, 0, len(records)),
		rows:     len(records),
		loadedAt: time.Now(),
	}
	for _, r := range records {
		if _, ok := s.records[r.CatalogID]; ok {
			continue
		}
		s.records[r.CatalogID] = r
		s.order = append(s.order, r.CatalogID)
	}
	return s
}

// Get returns the record for id, or a *NotFoundError.
func (s *Store) Get(id int) (SatelliteRecord, error) {
	r, ok := s.records[id]
	if !ok {
		return SatelliteRecord{}, &NotFoundError{CatalogID: id}
	}
	return r, nil
}

// ListIDs returns unique catalog IDs in first-occurrence order, truncated to
// limit. A limit <= 0 returns every ID.
func (s *Store) ListIDs(limit int) []int {
	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	ids := make([]int, n)
	copy(ids, s.order[:n])
	return ids
}

// CountRecords returns the number of rows kept from the source, duplicates
// included. Rows the parser skipped are not counted.
func (s *Store) CountRecords() int {
	return s.rows
}

// CountUniqueSatellites returns the number of distinct catalog IDs.
func (s *Store) CountUniqueSatellites() int {
	return len(s.order)
}

// Source returns where the records were loaded from.
func (s *Store) Source() string {
	return s.source
}

// LoadedAt returns when the store was built.
func (s *Store) LoadedAt() time.Time {
	return s.loadedAt
}

// AgeSeconds returns the time since the store was loaded in seconds.
func (s *Store) AgeSeconds() float64 {
	return time.Since(s.loadedAt).Seconds()
}
