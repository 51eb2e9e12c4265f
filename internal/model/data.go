package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metric names carried by long observations
const (
	MetricCases  = "cases"
	MetricDeaths = "deaths"
)

// MonthLayout is the year-month key format of monthly rows.
const MonthLayout = "2006-01"

// RawTable is a CSV table as read from a source: one row per geographic unit.
type RawTable struct {
	Source string     `json:"source"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// LongObservation is one (unit, date) cell of a reshaped time-series table
type LongObservation struct {
	SubRegion string    `json:"sub_region"`
	Country   string    `json:"country"`
	Date      time.Time `json:"date"`
	Metric    string    `json:"metric"`
	Value     int64     `json:"value"`
}

// ObservationKey identifies a sub-region on a date
type ObservationKey struct {
	SubRegion string
	Country   string
	Date      time.Time
}

// Key returns the join key of o.
func (o LongObservation) Key() ObservationKey {
	return ObservationKey{SubRegion: o.SubRegion, Country: o.Country, Date: o.Date}
}

// Observation is a merged cases/deaths row for one sub-region and date
type Observation struct {
	SubRegion string    `json:"sub_region"`
	Country   string    `json:"country"`
	Date      time.Time `json:"date"`
	Cases     int64     `json:"cases"`
	Deaths    int64     `json:"deaths"`
}

// EnrichedObservation is an observation joined with population metadata.
// Population is invalid when the lookup had no row for the unit.
type EnrichedObservation struct {
	Observation
	CombinedKey string              `json:"combined_key"`
	Population  decimal.NullDecimal `json:"population"`
}

// CountryDay is the per-country daily total summed across sub-regions
type CountryDay struct {
	Country          string              `json:"country" db:"country"`
	Date             time.Time           `json:"date" db:"date"`
	Cases            int64               `json:"cases" db:"cases"`
	Deaths           int64               `json:"deaths" db:"deaths"`
	Population       decimal.NullDecimal `json:"population" db:"population"`
	DeathsPerMillion decimal.NullDecimal `json:"deaths_per_million" db:"deaths_per_million"`
}

// CountryDayMetrics extends a country day with deltas and normalized rates
type CountryDayMetrics struct {
	CountryDay
	NewCases            int64               `json:"new_cases" db:"new_cases"`
	NewDeaths           int64               `json:"new_deaths" db:"new_deaths"`
	CasesPerMillion     decimal.NullDecimal `json:"cases_per_million" db:"cases_per_million"`
	NewCasesPerMillion  decimal.NullDecimal `json:"new_cases_per_million" db:"new_cases_per_million"`
	NewDeathsPerMillion decimal.NullDecimal `json:"new_deaths_per_million" db:"new_deaths_per_million"`
}

// CountryMonth is a calendar-month resample of a country's cumulative counts
type CountryMonth struct {
	Country   string    `json:"country" db:"country"`
	Month     time.Time `json:"month" db:"month"` // first day of the month, UTC
	Cases     int64     `json:"cases" db:"cases"`
	Deaths    int64     `json:"deaths" db:"deaths"`
	NewCases  int64     `json:"new_cases" db:"new_cases"`
	NewDeaths int64     `json:"new_deaths" db:"new_deaths"`
}

// MonthKey returns the "YYYY-MM" key of the row.
func (m CountryMonth) MonthKey() string {
	return m.Month.Format(MonthLayout)
}

// CountryTotal is the final cumulative state of one country
type CountryTotal struct {
	Rank              int                 `json:"rank" db:"rank"`
	Country           string              `json:"country" db:"country"`
	Cases             int64               `json:"cases" db:"cases"`
	Deaths            int64               `json:"deaths" db:"deaths"`
	Population        decimal.NullDecimal `json:"population" db:"population"`
	CasesPerThousand  decimal.NullDecimal `json:"cases_per_thousand" db:"cases_per_thousand"`
	DeathsPerThousand decimal.NullDecimal `json:"deaths_per_thousand" db:"deaths_per_thousand"`
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // "database", "csv", "json", "png", "markdown"
	Path        string    `json:"path"` // file path or table name
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Result bundles everything one run produced
type Result struct {
	JobID         string              `json:"job_id"`
	CountryDays   []CountryDayMetrics `json:"country_days"`
	CountryMonths []CountryMonth      `json:"country_months"`
	CountryTotals []CountryTotal      `json:"country_totals"`
	Forecast      *ForecastResult     `json:"forecast,omitempty"`
	ForecastError string              `json:"forecast_error,omitempty"`
	Exports       []ExportResult      `json:"exports"`
	OutputDir     string              `json:"output_dir"`
}
