// Package report renders the charts and markdown summary of a pipeline run.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"covid-pipeline/internal/logger"
	"covid-pipeline/internal/model"
	"covid-pipeline/pkg/utils"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Chart and summary file names
const (
	FileTopCountries = "top_countries.png"
	FileForecast     = "forecast.png"
	FileSummary      = "report.md"
)

const (
	defaultWidthCM   = 24
	defaultHeightCM  = 14
	defaultTopN      = 10
	defaultCountries = 5
)

// Input is everything a report is built from
type Input struct {
	JobID         string
	GeneratedAt   time.Time
	Spec          model.ReportSpec
	Sources       []model.Source
	Days          []model.CountryDayMetrics
	Months        []model.CountryMonth
	Totals        []model.CountryTotal
	Forecast      *model.ForecastResult
	ForecastError string
	Levels        []int
	Stages        []model.StageProgress
}

// chart is one rendered figure of the report
type chart struct {
	File  string
	Title string
	plot  *plot.Plot
	err   error
}

// Render writes every chart and report.md into dir and returns the paths of
// the files written. A chart that fails does not stop the others; all
// failures are returned joined.
func Render(dir string, in Input) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	width, height := size(in.Spec)
	charts := buildCharts(in)

	var (
		files []string
		errs  []error
		drawn []chart
	)
	for _, c := range charts {
		if c.err != nil {
			errs = append(errs, fmt.Errorf("chart %s: %w", c.File, c.err))
			continue
		}
		path := filepath.Join(dir, c.File)
		if err := c.plot.Save(width, height, path); err != nil {
			errs = append(errs, fmt.Errorf("chart %s: %w", c.File, err))
			continue
		}
		files = append(files, path)
		drawn = append(drawn, c)
	}

	path := filepath.Join(dir, FileSummary)
	if err := writeSummary(path, in, drawn); err != nil {
		errs = append(errs, err)
	} else {
		files = append(files, path)
	}

	logger.Info("job %s: rendered %d report files to %s", in.JobID, len(files), dir)
	return files, errors.Join(errs...)
}

func size(spec model.ReportSpec) (vg.Length, vg.Length) {
	w, h := spec.WidthCM, spec.HeightCM
	if w <= 0 {
		w = defaultWidthCM
	}
	if h <= 0 {
		h = defaultHeightCM
	}
	return vg.Length(w) * vg.Centimeter, vg.Length(h) * vg.Centimeter
}

func buildCharts(in Input) []chart {
	topN := in.Spec.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	highlight := highlightCountry(in)

	var charts []chart
	add := func(file, title string, p *plot.Plot, err error) {
		charts = append(charts, chart{File: file, Title: title, plot: p, err: err})
	}

	p, err := topCountriesChart(in.Totals, topN, highlight)
	add(FileTopCountries, "Confirmed cases of the top countries", p, err)

	countries := selectedCountries(in)
	metrics := []struct {
		file, title, label string
		value              func(model.CountryDayMetrics) float64
		log                bool
	}{
		{"cases_linear.png", "Cumulative cases", "cases", func(d model.CountryDayMetrics) float64 { return float64(d.Cases) }, false},
		{"cases_log.png", "Cumulative cases (log scale)", "cases", func(d model.CountryDayMetrics) float64 { return float64(d.Cases) }, true},
		{"deaths_linear.png", "Cumulative deaths", "deaths", func(d model.CountryDayMetrics) float64 { return float64(d.Deaths) }, false},
		{"deaths_log.png", "Cumulative deaths (log scale)", "deaths", func(d model.CountryDayMetrics) float64 { return float64(d.Deaths) }, true},
		{"new_cases.png", "Daily new cases", "new cases", func(d model.CountryDayMetrics) float64 { return float64(d.NewCases) }, false},
		{"new_deaths.png", "Daily new deaths", "new deaths", func(d model.CountryDayMetrics) float64 { return float64(d.NewDeaths) }, false},
	}
	for _, m := range metrics {
		p, err := lineChart(m.title, m.label, countrySeries(in.Days, countries, m.value), m.log)
		add(m.file, m.title, p, err)
	}

	if highlight != "" {
		p, err := monthlyChart(in.Months, highlight)
		add(fmt.Sprintf("monthly_new_cases_%s.png", utils.Slug(highlight)), "Monthly new cases: "+highlight, p, err)
	}

	if in.Forecast != nil {
		p, err := forecastChart(in.Forecast)
		add(FileForecast, "Forecast: "+in.Forecast.Country, p, err)
	}
	return charts
}

// highlightCountry is the configured highlight, else the top-ranked country.
func highlightCountry(in Input) string {
	if in.Spec.Highlight != "" {
		return in.Spec.Highlight
	}
	if len(in.Totals) > 0 {
		return in.Totals[0].Country
	}
	return ""
}

// selectedCountries is the configured list, else the largest countries by cases.
func selectedCountries(in Input) []string {
	if len(in.Spec.Countries) > 0 {
		return in.Spec.Countries
	}
	var out []string
	for _, t := range in.Totals {
		if len(out) == defaultCountries {
			break
		}
		out = append(out, t.Country)
	}
	return out
}

func countrySeries(days []model.CountryDayMetrics, countries []string, value func(model.CountryDayMetrics) float64) []series {
	index := make(map[string]int, len(countries))
	out := make([]series, len(countries))
	for i, c := range countries {
		index[c] = i
		out[i].name = c
	}
	for _, d := range days {
		i, ok := index[d.Country]
		if !ok {
			continue
		}
		out[i].points = append(out[i].points, plotter.XY{X: timeX(d.Date), Y: value(d)})
	}
	return out
}
