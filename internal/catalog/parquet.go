package catalog

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// parquetRow mirrors the required catalog columns in a parquet file.
type parquetRow struct {
	CatalogID     int64   `parquet:"name=NORAD_CAT_ID, type=INT64"`
	SemiMajorAxis float64 `parquet:"name=SEMI_MAJOR_AXIS, type=DOUBLE"`
	Inclination   float64 `parquet:"name=INCLINATION, type=DOUBLE"`
	Eccentricity  float64 `parquet:"name=ECCENTRICITY, type=DOUBLE"`
	OrbitalPeriod float64 `parquet:"name=ORBITAL_PERIOD, type=DOUBLE"`
}

// ParseParquet reads catalog rows from a parquet file on disk. The footer
// schema is checked for the required columns before any row is decoded.
// Rows failing record validation are skipped with a warning log.
func ParseParquet(path string, logger *slog.Logger) (records []SatelliteRecord, err error) {
	// parquet-go panics instead of returning errors on schemas it cannot map.
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("decoding parquet file: %v", r)
		}
	}()

	cols, err := parquetColumns(path)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(func(col string) bool { return cols[col] }); err != nil {
		return nil, err
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(parquetRow), 4)
	if err != nil {
		return nil, fmt.Errorf("reading parquet schema: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]parquetRow, n)
	if n > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("reading parquet rows: %w", err)
		}
	}

	records = make([]SatelliteRecord, 0, len(rows))
	var skipped int
	for i, row := range rows {
		if row.CatalogID < 0 || row.CatalogID > math.MaxInt32 {
			skipped++
			logger.Warn("skipping parquet row with invalid catalog id", "component", "catalog", "row", i, "catalog_id", row.CatalogID)
			continue
		}
		rec := SatelliteRecord{
			CatalogID:     int(row.CatalogID),
			SemiMajorAxis: row.SemiMajorAxis,
			Inclination:   row.Inclination,
			Eccentricity:  row.Eccentricity,
			OrbitalPeriod: row.OrbitalPeriod,
		}
		if err := rec.Validate(); err != nil {
			skipped++
			logger.Warn("skipping malformed catalog row", "component", "catalog", "row", i, "catalog_id", rec.CatalogID, "error", err)
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

// parquetColumns returns the column names declared in the file footer.
func parquetColumns(path string) (map[string]bool, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("reading parquet footer: %w", err)
	}
	defer pr.ReadStop()

	cols := make(map[string]bool, len(pr.Footer.Schema))
	for _, el := range pr.Footer.Schema {
		cols[el.GetName()] = true
	}
	return cols, nil
}
