package pipeline

import (
	"sort"
	"time"

	"covid-pipeline/internal/model"

	"github.com/shopspring/decimal"
)

// Rate scales.
const (
	PerThousand int64 = 1_000
	PerMillion  int64 = 1_000_000
)

// rateDecimals is the number of decimal places kept on derived rates.
const rateDecimals = 6

// Rate returns value*scale/population. The result is invalid when population
// is invalid or zero.
func Rate(value int64, population decimal.NullDecimal, scale int64) decimal.NullDecimal {
	if !population.Valid || population.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	r := decimal.NewFromInt(value).Mul(decimal.NewFromInt(scale)).Div(population.Decimal)
	return decimal.NewNullDecimal(r.Round(rateDecimals))
}

// Diff returns first differences with new[0] = 0.
func Diff(values []int64) []int64 {
	out := make([]int64, len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}

// DeriveDaily adds new cases/deaths and per-million rates to country days.
// Differences restart at 0 on each country's first row.
func DeriveDaily(days []model.CountryDay) []model.CountryDayMetrics {
	sorted := make([]model.CountryDay, len(days))
	copy(sorted, days)
	sortCountryDays(sorted)

	out := make([]model.CountryDayMetrics, len(sorted))
	for i, d := range sorted {
		m := model.CountryDayMetrics{CountryDay: d}
		if i > 0 && sorted[i-1].Country == d.Country {
			m.NewCases = d.Cases - sorted[i-1].Cases
			m.NewDeaths = d.Deaths - sorted[i-1].Deaths
		}
		m.CasesPerMillion = Rate(d.Cases, d.Population, PerMillion)
		m.NewCasesPerMillion = Rate(m.NewCases, d.Population, PerMillion)
		m.NewDeathsPerMillion = Rate(m.NewDeaths, d.Population, PerMillion)
		if !m.DeathsPerMillion.Valid {
			m.DeathsPerMillion = Rate(d.Deaths, d.Population, PerMillion)
		}
		out[i] = m
	}
	return out
}

// ResampleMonthly takes the maximum cumulative cases and deaths per
// (country, calendar month) and then first-differences across months.
func ResampleMonthly(days []model.CountryDay) []model.CountryMonth {
	type key struct {
		country string
		month   time.Time
	}

	index := make(map[key]int)
	var out []model.CountryMonth
	for _, d := range days {
		month := time.Date(d.Date.Year(), d.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		k := key{d.Country, month}
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, model.CountryMonth{Country: d.Country, Month: month, Cases: d.Cases, Deaths: d.Deaths})
			continue
		}
		if d.Cases > out[i].Cases {
			out[i].Cases = d.Cases
		}
		if d.Deaths > out[i].Deaths {
			out[i].Deaths = d.Deaths
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].Month.Before(out[j].Month)
	})

	for i := 1; i < len(out); i++ {
		if out[i].Country != out[i-1].Country {
			continue
		}
		out[i].NewCases = out[i].Cases - out[i-1].Cases
		out[i].NewDeaths = out[i].Deaths - out[i-1].Deaths
	}
	return out
}

// CountryTotals returns the final cumulative state of every country ranked by
// cases descending, ties broken by name.
func CountryTotals(days []model.CountryDay) []model.CountryTotal {
	index := make(map[string]int)
	var out []model.CountryTotal
	for _, d := range days {
		i, ok := index[d.Country]
		if !ok {
			i = len(out)
			index[d.Country] = i
			out = append(out, model.CountryTotal{Country: d.Country})
		}
		t := &out[i]
		if d.Cases > t.Cases {
			t.Cases = d.Cases
		}
		if d.Deaths > t.Deaths {
			t.Deaths = d.Deaths
		}
		if d.Population.Valid && (!t.Population.Valid || d.Population.Decimal.GreaterThan(t.Population.Decimal)) {
			t.Population = d.Population
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cases != out[j].Cases {
			return out[i].Cases > out[j].Cases
		}
		return out[i].Country < out[j].Country
	})

	for i := range out {
		out[i].Rank = i + 1
		out[i].CasesPerThousand = Rate(out[i].Cases, out[i].Population, PerThousand)
		out[i].DeathsPerThousand = Rate(out[i].Deaths, out[i].Population, PerThousand)
	}
	return out
}

// DailySeries returns a country's cumulative case series on a regular daily
// grid from its first to its last observed date. Missing days carry the
// previous value forward.
func DailySeries(days []model.CountryDay, country string) ([]time.Time, []float64) {
	var rows []model.CountryDay
	for _, d := range days {
		if d.Country == country {
			rows = append(rows, d)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	first, last := rows[0].Date, rows[len(rows)-1].Date
	n := int(last.Sub(first).Hours()/24) + 1

	dates := make([]time.Time, 0, n)
	values := make([]float64, 0, n)
	j := 0
	var current float64
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		for j < len(rows) && !rows[j].Date.After(d) {
			current = float64(rows[j].Cases)
			j++
		}
		dates = append(dates, d)
		values = append(values, current)
	}
	return dates, values
}
