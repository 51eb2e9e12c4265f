package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"covid-pipeline/internal/model"
)

// Reshape turns a wide time-series table into one observation per
// (row, date column). Identifier columns are kept, discarded columns are
// dropped and every other column must be a date. Output is row-major.
func Reshape(t *model.RawTable, metric string, schema model.Schema) ([]model.LongObservation, error) {
	layout, err := validateTimeSeries(t, schema)
	if err != nil {
		return nil, err
	}

	out := make([]model.LongObservation, 0, len(t.Rows)*len(layout.Dates))
	for i, row := range t.Rows {
		subRegion := row[layout.SubRegion]
		country := row[layout.Country]
		for _, dc := range layout.Dates {
			v, err := parseCount(row[dc.Index])
			if err != nil {
				return nil, fmt.Errorf("table %s row %d (%s/%s) column %s: %w",
					t.Source, i+2, country, subRegion, t.Header[dc.Index], err)
			}
			out = append(out, model.LongObservation{
				SubRegion: subRegion,
				Country:   country,
				Date:      dc.Date,
				Metric:    metric,
				Value:     v,
			})
		}
	}

	return out, nil
}

// Widen rebuilds a wide table from long observations: one row per
// (sub-region, country) in first-seen order and one column per date in
// ascending order. Missing cells are left empty.
func Widen(long []model.LongObservation, schema model.Schema) *model.RawTable {
	type unit struct{ sub, country string }

	var units []unit
	unitIndex := make(map[unit]int)
	dateSet := make(map[time.Time]bool)
	values := make(map[unit]map[time.Time]int64)

	for _, o := range long {
		u := unit{o.SubRegion, o.Country}
		if _, ok := unitIndex[u]; !ok {
			unitIndex[u] = len(units)
			units = append(units, u)
			values[u] = make(map[time.Time]int64)
		}
		values[u][o.Date] = o.Value
		dateSet[o.Date] = true
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	header := []string{schema.SubRegionColumn, schema.CountryColumn}
	for _, d := range dates {
		header = append(header, FormatDateColumn(d))
	}

	rows := make([][]string, 0, len(units))
	for _, u := range units {
		row := []string{u.sub, u.country}
		for _, d := range dates {
			if v, ok := values[u][d]; ok {
				row = append(row, strconv.FormatInt(v, 10))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}

	table := &model.RawTable{Header: header, Rows: rows}
	if len(long) > 0 {
		table.Source = long[0].Metric
	}
	return table
}
