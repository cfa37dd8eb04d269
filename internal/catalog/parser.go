package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// ParseCSV reads catalog rows from a CSV source with a header line.
// The header must name every required column. Rows with missing or invalid
// element values are skipped with a warning log and are not returned, so
// they never count toward Store.CountRecords.
func ParseCSV(r io.Reader, logger *slog.Logger) ([]SatelliteRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty source: no header line")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		records []SatelliteRecord
		skipped int
		line    = 1
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}

		rec, err := recordFromRow(row, idx)
		if err != nil {
			skipped++
			logger.Warn("skipping malformed catalog row", "component", "catalog", "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no usable rows (%d skipped)", skipped)
	}
	if skipped > 0 {
		logger.Info("catalog rows skipped", "component", "catalog", "skipped", skipped, "kept", len(records))
	}
	return records, nil
}

// columnIndex maps each required column to its position in header.
func columnIndex(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	has := func(col string) bool {
		_, ok := pos[col]
		return ok
	}
	if err := requireColumns(has); err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(RequiredColumns))
	for _, col := range RequiredColumns {
		idx[col] = pos[col]
	}
	return idx, nil
}

// requireColumns fails with the list of RequiredColumns that has rejects.
func requireColumns(has func(col string) bool) error {
	var missing []string
	for _, col := range RequiredColumns {
		if !has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func recordFromRow(row []string, idx map[string]int) (SatelliteRecord, error) {
	field := func(col string) (string, error) {
		i := idx[col]
		if i >= len(row) {
			return "", fmt.Errorf("%s: column absent in row", col)
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			return "", fmt.Errorf("%s: empty value", col)
		}
		return v, nil
	}
	float := func(col string) (float64, error) {
		v, err := field(col)
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%s: invalid number %q", col, v)
		}
		return f, nil
	}

	idStr, err := field(ColCatalogID)
	if err != nil {
		return SatelliteRecord{}, err
	}
	id, err := parseCatalogID(idStr)
	if err != nil {
		return SatelliteRecord{}, err
	}

	var rec SatelliteRecord
	rec.CatalogID = id
	if rec.SemiMajorAxis, err = float(ColSemiMajorAxis); err != nil {
		return SatelliteRecord{}, err
	}
	if rec.Inclination, err = float(ColInclination); err != nil {
		return SatelliteRecord{}, err
	}
	if rec.Eccentricity, err = float(ColEccentricity); err != nil {
		return SatelliteRecord{}, err
	}
	if rec.OrbitalPeriod, err = float(ColOrbitalPeriod); err != nil {
		return SatelliteRecord{}, err
	}
	if err := rec.Validate(); err != nil {
		return SatelliteRecord{}, fmt.Errorf("catalog id %d: %w", id, err)
	}
	return rec, nil
}

// parseCatalogID accepts plain integers and integral floats ("25544.0"),
// which dataframe exports emit for integer columns containing gaps.
func parseCatalogID(s string) (int, error) {
	if id, err := strconv.Atoi(s); err == nil {
		if id < 0 || id > math.MaxInt32 {
			return 0, fmt.Errorf("%s: invalid catalog id %q", ColCatalogID, s)
		}
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s: invalid catalog id %q", ColCatalogID, s)
	}
	return int(f), nil
}
