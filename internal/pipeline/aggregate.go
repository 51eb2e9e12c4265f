package pipeline

import (
	"sort"
	"strings"
	"time"

	"covid-pipeline/internal/logger"
	"covid-pipeline/internal/model"

	"github.com/shopspring/decimal"
)

// EnrichStats summarizes the population join
type EnrichStats struct {
	LookupRows int `json:"lookup_rows"` // rows usable as join targets
	Duplicates int `json:"duplicates"`  // lookup keys seen more than once
	Matched    int `json:"matched"`
	Unmatched  int `json:"unmatched"`
}

// JoinObservations full-outer-joins cases and deaths on (sub-region, country, date).
// A key present on one side only gets 0 for the other metric.
// Rows keep first-seen order: cases keys first, then deaths-only keys.
func JoinObservations(cases, deaths []model.LongObservation) []model.Observation {
	index := make(map[model.ObservationKey]int, len(cases))
	out := make([]model.Observation, 0, len(cases))

	for _, c := range cases {
		k := c.Key()
		if i, ok := index[k]; ok {
			out[i].Cases = c.Value
			continue
		}
		index[k] = len(out)
		out = append(out, model.Observation{
			SubRegion: c.SubRegion,
			Country:   c.Country,
			Date:      c.Date,
			Cases:     c.Value,
		})
	}

	for _, d := range deaths {
		k := d.Key()
		if i, ok := index[k]; ok {
			out[i].Deaths = d.Value
			continue
		}
		index[k] = len(out)
		out = append(out, model.Observation{
			SubRegion: d.SubRegion,
			Country:   d.Country,
			Date:      d.Date,
			Deaths:    d.Value,
		})
	}

	return out
}

type lookupEntry struct {
	combinedKey string
	population  decimal.NullDecimal
}

// EnrichPopulation left-joins population from the lookup table by
// (sub-region, country). Only lookup rows without a county are join targets;
// when a key repeats, the first row wins. Unmatched observations keep an
// invalid population.
func EnrichPopulation(obs []model.Observation, lookup *model.RawTable, schema model.Schema) ([]model.EnrichedObservation, EnrichStats, error) {
	var stats EnrichStats

	layout, err := validateLookup(lookup, schema)
	if err != nil {
		return nil, stats, err
	}

	type key struct{ sub, country string }
	entries := make(map[key]lookupEntry)
	for _, row := range lookup.Rows {
		if len(row) != len(lookup.Header) {
			continue
		}
		if layout.County >= 0 && strings.TrimSpace(row[layout.County]) != "" {
			continue
		}
		k := key{row[layout.SubRegion], row[layout.Country]}
		if _, dup := entries[k]; dup {
			stats.Duplicates++
			logger.Warn("duplicate lookup key %q/%q, keeping first row", k.country, k.sub)
			continue
		}
		e := lookupEntry{population: parsePopulation(row[layout.Population])}
		if layout.Key >= 0 {
			e.combinedKey = row[layout.Key]
		}
		entries[k] = e
		stats.LookupRows++
	}

	out := make([]model.EnrichedObservation, len(obs))
	missing := make(map[key]bool)
	for i, o := range obs {
		out[i].Observation = o
		k := key{o.SubRegion, o.Country}
		e, ok := entries[k]
		if !ok {
			stats.Unmatched++
			missing[k] = true
			continue
		}
		stats.Matched++
		out[i].CombinedKey = e.combinedKey
		out[i].Population = e.population
	}

	for k := range missing {
		logger.Debug("no population for %q/%q", k.country, k.sub)
	}
	if len(missing) > 0 {
		logger.Warn("population lookup missed %d units (%d rows)", len(missing), stats.Unmatched)
	}

	return out, stats, nil
}

// parsePopulation returns an invalid value for empty or unparseable cells.
func parsePopulation(cell string) decimal.NullDecimal {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(cell)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// FilterPositive keeps observations with at least one confirmed case.
func FilterPositive(rows []model.EnrichedObservation) []model.EnrichedObservation {
	out := make([]model.EnrichedObservation, 0, len(rows))
	for _, r := range rows {
		if r.Cases > 0 {
			out = append(out, r)
		}
	}
	return out
}

// AggregateCountryDays sums sub-region rows per (country, date).
// Population is the sum of the valid populations in the group and is invalid
// when none are valid. Since rows with zero cases were filtered before, early
// dates may undercount a country's population. Output is sorted by country
// then date.
func AggregateCountryDays(rows []model.EnrichedObservation) []model.CountryDay {
	type key struct {
		country string
		date    time.Time
	}

	index := make(map[key]int)
	var out []model.CountryDay
	for _, r := range rows {
		k := key{r.Country, r.Date}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, model.CountryDay{Country: r.Country, Date: r.Date})
		}
		day := &out[i]
		day.Cases += r.Cases
		day.Deaths += r.Deaths
		if r.Population.Valid {
			if day.Population.Valid {
				day.Population.Decimal = day.Population.Decimal.Add(r.Population.Decimal)
			} else {
				day.Population = r.Population
			}
		}
	}

	for i := range out {
		out[i].DeathsPerMillion = Rate(out[i].Deaths, out[i].Population, PerMillion)
	}

	sortCountryDays(out)
	return out
}

func sortCountryDays(days []model.CountryDay) {
	sort.SliceStable(days, func(i, j int) bool {
		if days[i].Country != days[j].Country {
			return days[i].Country < days[j].Country
		}
		return days[i].Date.Before(days[j].Date)
	})
}
