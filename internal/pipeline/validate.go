package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"covid-pipeline/internal/model"
)

// Date header layouts of the time-series tables, e.g. "1/22/20".
var dateLayouts = []string{"1/2/06", "1/2/2006"}

// dateColumn is a header column holding one day of counts
type dateColumn struct {
	Index int
	Date  time.Time
}

// timeSeriesLayout locates the identifier and date columns of a wide table
type timeSeriesLayout struct {
	SubRegion int
	Country   int
	Dates     []dateColumn
}

// lookupLayout locates the columns used from the population lookup table
type lookupLayout struct {
	SubRegion  int
	Country    int
	County     int // -1 when the table has no county column
	Key        int // -1 when absent
	Population int
}

// ParseDateColumn parses a time-series header such as "3/15/20" into a UTC date.
func ParseDateColumn(name string) (time.Time, error) {
	name = strings.TrimSpace(name)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, name); err == nil {
			return d.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: column %q is not a M/D/YY date", ErrSchemaDrift, name)
}

// FormatDateColumn is the inverse of ParseDateColumn.
func FormatDateColumn(d time.Time) string {
	return d.Format(dateLayouts[0])
}

// validateTimeSeries checks the header and row shape of a wide cases/deaths table.
func validateTimeSeries(t *model.RawTable, schema model.Schema) (*timeSeriesLayout, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: missing table", ErrSchemaDrift)
	}

	discard := make(map[string]bool, len(schema.DiscardColumns))
	for _, c := range schema.DiscardColumns {
		discard[c] = true
	}

	layout := &timeSeriesLayout{SubRegion: -1, Country: -1}
	seen := make(map[time.Time]string)
	for i, col := range t.Header {
		switch {
		case col == schema.SubRegionColumn:
			layout.SubRegion = i
		case col == schema.CountryColumn:
			layout.Country = i
		case discard[col]:
		default:
			d, err := ParseDateColumn(col)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", t.Source, err)
			}
			if prev, dup := seen[d]; dup {
				return nil, fmt.Errorf("%w: table %s: columns %q and %q name the same date", ErrSchemaDrift, t.Source, prev, col)
			}
			seen[d] = col
			layout.Dates = append(layout.Dates, dateColumn{Index: i, Date: d})
		}
	}

	if layout.SubRegion < 0 {
		return nil, fmt.Errorf("%w: table %s: missing column %q", ErrSchemaDrift, t.Source, schema.SubRegionColumn)
	}
	if layout.Country < 0 {
		return nil, fmt.Errorf("%w: table %s: missing column %q", ErrSchemaDrift, t.Source, schema.CountryColumn)
	}
	if len(layout.Dates) == 0 {
		return nil, fmt.Errorf("%w: table %s: no date columns", ErrSchemaDrift, t.Source)
	}

	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return nil, fmt.Errorf("%w: table %s: row %d has %d fields, header has %d",
				ErrSchemaDrift, t.Source, i+2, len(row), len(t.Header))
		}
	}

	return layout, nil
}

// validateLookup locates the join and population columns of the lookup table.
func validateLookup(t *model.RawTable, schema model.Schema) (*lookupLayout, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: missing lookup table", ErrSchemaDrift)
	}

	index := make(map[string]int, len(t.Header))
	for i, col := range t.Header {
		index[col] = i
	}
	find := func(name string, required bool) (int, error) {
		if name == "" && !required {
			return -1, nil
		}
		i, ok := index[name]
		if !ok {
			if required {
				return -1, fmt.Errorf("%w: table %s: missing column %q", ErrSchemaDrift, t.Source, name)
			}
			return -1, nil
		}
		return i, nil
	}

	var (
		layout lookupLayout
		err    error
	)
	if layout.SubRegion, err = find(schema.LookupSubRegionColumn, true); err != nil {
		return nil, err
	}
	if layout.Country, err = find(schema.LookupCountryColumn, true); err != nil {
		return nil, err
	}
	if layout.Population, err = find(schema.LookupPopColumn, true); err != nil {
		return nil, err
	}
	layout.County, _ = find(schema.LookupCountyColumn, false)
	layout.Key, _ = find(schema.LookupKeyColumn, false)

	return &layout, nil
}

// parseCount reads a cumulative count cell. Empty cells count as zero;
// integral floats such as "12.0" are accepted.
func parseCount(cell string) (int64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: cell %q is not a count", ErrSchemaDrift, cell)
	}
	return int64(f), nil
}
