package model

import "fmt"

// Source names used to address the three input tables
const (
	SourceConfirmed = "confirmed"
	SourceDeaths    = "deaths"
	SourceLookup    = "lookup"
)

// Source represents a data source for the pipeline
type Source struct {
	Name string `json:"name"` // confirmed, deaths, lookup
	Type string `json:"type"` // csv
	URL  string `json:"url"`  // http(s) URL or local path
}

// Schema names the identifying columns of the input tables
type Schema struct {
	SubRegionColumn       string   `json:"subRegionColumn"`
	CountryColumn         string   `json:"countryColumn"`
	DiscardColumns        []string `json:"discardColumns"` // coordinates, dropped after reshape
	LookupSubRegionColumn string   `json:"lookupSubRegionColumn"`
	LookupCountryColumn   string   `json:"lookupCountryColumn"`
	LookupCountyColumn    string   `json:"lookupCountyColumn"` // rows with a value here are skipped
	LookupKeyColumn       string   `json:"lookupKeyColumn"`
	LookupPopColumn       string   `json:"lookupPopulationColumn"`
}

// ForecastSpec defines the ARIMA search space and projection
type ForecastSpec struct {
	Enabled bool    `json:"enabled"`
	Country string  `json:"country"`
	Horizon int     `json:"horizon"`
	MaxP    int     `json:"maxP"`
	MaxD    int     `json:"maxD"`
	MaxQ    int     `json:"maxQ"`
	Levels  []int   `json:"levels"` // e.g. [80, 95]
	Alpha   float64 `json:"kpssAlpha"`
}

// ReportSpec defines which charts to render
type ReportSpec struct {
	Enabled   bool     `json:"enabled"`
	TopN      int      `json:"topN"`
	Highlight string   `json:"highlight"`
	Countries []string `json:"countries"`
	WidthCM   float64  `json:"widthCm"`
	HeightCM  float64  `json:"heightCm"`
}

// Export defines export targets
type Export struct {
	OutputDir string   `json:"outputDir"`
	Formats   []string `json:"formats"` // csv, json
	DB        bool     `json:"db"`      // save derived tables to the store
}

// PipelineJobSpec defines the entire pipeline configuration for one run
type PipelineJobSpec struct {
	Sources  []Source     `json:"sources"`
	Schema   Schema       `json:"schema"`
	Forecast ForecastSpec `json:"forecast"`
	Report   ReportSpec   `json:"report"`
	Export   Export       `json:"export"`
	Timeout  string       `json:"timeout"` // e.g. "10m"
}

// Source returns the source registered under name.
func (s PipelineJobSpec) Source(name string) (Source, error) {
	for _, src := range s.Sources {
		if src.Name == name {
			return src, nil
		}
	}
	return Source{}, fmt.Errorf("source %q not configured", name)
}
