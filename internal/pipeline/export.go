package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"covid-pipeline/internal/logger"
	"covid-pipeline/internal/model"
	"covid-pipeline/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Export file base names
const (
	FileCountryDays   = "country_days"
	FileCountryMonths = "country_months"
	FileCountryTotals = "country_totals"
	FileForecast      = "forecast"
)

// nullText is how invalid numbers are written to CSV.
const nullText = "NaN"

// jsonAPI encodes non-finite floats as null instead of failing.
var jsonAPI = sonic.Config{
	EscapeHTML:            true,
	SortMapKeys:           true,
	EncodeNullForInfOrNan: true,
}.Froze()

// ResultStore persists derived tables and the files a run produced.
type ResultStore interface {
	SaveCountryDays(ctx context.Context, jobID string, rows []model.CountryDayMetrics) error
	SaveCountryMonths(ctx context.Context, jobID string, rows []model.CountryMonth) error
	SaveCountryTotals(ctx context.Context, jobID string, rows []model.CountryTotal) error
	SaveForecast(ctx context.Context, jobID string, f *model.ForecastResult) error
	SaveOutputFile(ctx context.Context, f model.OutputFile) error
}

// ExportManager handles data export operations for one run
type ExportManager struct {
	JobID   string
	Spec    model.Export
	Outputs *utils.OutputManager
	Store   ResultStore // nil disables database export and file registration
	Levels  []int       // forecast interval levels, for CSV columns
}

// table is a CSV-ready rendering of one derived table
type table struct {
	name   string
	header []string
	rows   [][]string
	data   interface{}
	count  int
}

// ExportTables writes every derived table in each configured format and,
// when enabled, saves them to the store. A failing target does not stop the
// others; its error is reported in the returned results.
func (em *ExportManager) ExportTables(ctx context.Context, res *model.Result) []model.ExportResult {
	tables := []table{
		countryDaysTable(res.CountryDays),
		countryMonthsTable(res.CountryMonths),
		countryTotalsTable(res.CountryTotals),
	}
	if res.Forecast != nil {
		tables = append(tables, forecastTable(res.Forecast, em.Levels))
	}

	var results []model.ExportResult
	for _, format := range em.Spec.Formats {
		for _, t := range tables {
			if ctx.Err() != nil {
				return append(results, failed(format, t.name, ctx.Err()))
			}
			var r model.ExportResult
			switch format {
			case "csv":
				r = em.exportToCSV(ctx, t)
			case "json":
				r = em.exportToJSON(ctx, t)
			default:
				r = failed(format, t.name, fmt.Errorf("unknown export format %q", format))
			}
			results = append(results, r)
		}
	}

	if em.Spec.DB {
		results = append(results, em.exportToDatabase(ctx, res)...)
	}
	return results
}

// RegisterFile records a produced file in the store. Returns the record even
// when no store is configured.
func (em *ExportManager) RegisterFile(ctx context.Context, path string) model.OutputFile {
	name := filepath.Base(path)
	f := model.OutputFile{
		JobID:     em.JobID,
		FileName:  name,
		FilePath:  path,
		FileType:  em.Outputs.GetFileType(name),
		CreatedAt: time.Now().UTC(),
	}
	if size, err := em.Outputs.GetFileSize(path); err == nil {
		f.FileSize = size
	}
	f.DownloadURL = em.Outputs.GetDownloadURL(em.JobID, name)

	if em.Store != nil {
		if err := em.Store.SaveOutputFile(ctx, f); err != nil {
			logger.Warn("job %s: failed to register output file %s: %v", em.JobID, name, err)
		}
	}
	return f
}

func (em *ExportManager) exportToCSV(ctx context.Context, t table) model.ExportResult {
	path, err := em.Outputs.GetOutputFilePath(em.JobID, t.name+".csv")
	if err != nil {
		return failed("csv", t.name, err)
	}
	if err := writeCSVFile(path, t.header, t.rows); err != nil {
		logger.Error("job %s: export to %s failed: %v", em.JobID, path, err)
		return failed("csv", path, err)
	}
	em.RegisterFile(ctx, path)
	logger.Info("job %s: exported %d records to %s", em.JobID, t.count, path)
	return succeeded("csv", path, t.count)
}

func (em *ExportManager) exportToJSON(ctx context.Context, t table) model.ExportResult {
	path, err := em.Outputs.GetOutputFilePath(em.JobID, t.name+".json")
	if err != nil {
		return failed("json", t.name, err)
	}

	payload := map[string]interface{}{
		"export_info": map[string]interface{}{
			"job_id":       em.JobID,
			"exported_at":  time.Now().UTC(),
			"record_count": t.count,
			"export_type":  t.name,
		},
		"data": t.data,
	}
	body, err := jsonAPI.MarshalIndent(payload, "", "  ")
	if err == nil {
		err = os.WriteFile(path, body, 0644)
	}
	if err != nil {
		logger.Error("job %s: export to %s failed: %v", em.JobID, path, err)
		return failed("json", path, fmt.Errorf("failed to write JSON: %w", err))
	}

	em.RegisterFile(ctx, path)
	logger.Info("job %s: exported %d records to %s", em.JobID, t.count, path)
	return succeeded("json", path, t.count)
}

func (em *ExportManager) exportToDatabase(ctx context.Context, res *model.Result) []model.ExportResult {
	if em.Store == nil {
		return []model.ExportResult{failed("database", "", fmt.Errorf("no store configured"))}
	}

	saves := []struct {
		name  string
		count int
		save  func() error
	}{
		{"country_days", len(res.CountryDays), func() error { return em.Store.SaveCountryDays(ctx, em.JobID, res.CountryDays) }},
		{"country_months", len(res.CountryMonths), func() error { return em.Store.SaveCountryMonths(ctx, em.JobID, res.CountryMonths) }},
		{"country_totals", len(res.CountryTotals), func() error { return em.Store.SaveCountryTotals(ctx, em.JobID, res.CountryTotals) }},
	}
	if res.Forecast != nil {
		saves = append(saves, struct {
			name  string
			count int
			save  func() error
		}{"forecasts", len(res.Forecast.Points), func() error { return em.Store.SaveForecast(ctx, em.JobID, res.Forecast) }})
	}

	results := make([]model.ExportResult, 0, len(saves))
	for _, s := range saves {
		if err := s.save(); err != nil {
			logger.Error("job %s: export to table %s failed: %v", em.JobID, s.name, err)
			results = append(results, failed("database", s.name, err))
			continue
		}
		logger.Info("job %s: saved %d records to table %s", em.JobID, s.count, s.name)
		results = append(results, succeeded("database", s.name, s.count))
	}
	return results
}

func writeCSVFile(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return file.Close()
}

func succeeded(kind, path string, count int) model.ExportResult {
	return model.ExportResult{Type: kind, Path: path, RecordCount: count, Success: true, Timestamp: time.Now().UTC()}
}

func failed(kind, path string, err error) model.ExportResult {
	return model.ExportResult{Type: kind, Path: path, Success: false, Error: err.Error(), Timestamp: time.Now().UTC()}
}

// ------------------- Table encoders -------------------

const dateFormat = "2006-01-02"

func formatNull(d decimal.NullDecimal) string {
	if !d.Valid {
		return nullText
	}
	return d.Decimal.String()
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func countryDaysTable(rows []model.CountryDayMetrics) table {
	t := table{
		name: FileCountryDays,
		header: []string{"country", "date", "cases", "deaths", "population",
			"new_cases", "new_deaths", "cases_per_million", "deaths_per_million",
			"new_cases_per_million", "new_deaths_per_million"},
		data:  rows,
		count: len(rows),
	}
	for _, r := range rows {
		t.rows = append(t.rows, []string{
			r.Country, r.Date.Format(dateFormat), itoa(r.Cases), itoa(r.Deaths), formatNull(r.Population),
			itoa(r.NewCases), itoa(r.NewDeaths), formatNull(r.CasesPerMillion), formatNull(r.DeathsPerMillion),
			formatNull(r.NewCasesPerMillion), formatNull(r.NewDeathsPerMillion),
		})
	}
	return t
}

func countryMonthsTable(rows []model.CountryMonth) table {
	t := table{
		name:   FileCountryMonths,
		header: []string{"country", "month", "cases", "deaths", "new_cases", "new_deaths"},
		data:   rows,
		count:  len(rows),
	}
	for _, r := range rows {
		t.rows = append(t.rows, []string{
			r.Country, r.MonthKey(), itoa(r.Cases), itoa(r.Deaths), itoa(r.NewCases), itoa(r.NewDeaths),
		})
	}
	return t
}

func countryTotalsTable(rows []model.CountryTotal) table {
	t := table{
		name:   FileCountryTotals,
		header: []string{"rank", "country", "cases", "deaths", "population", "cases_per_thousand", "deaths_per_thousand"},
		data:   rows,
		count:  len(rows),
	}
	for _, r := range rows {
		t.rows = append(t.rows, []string{
			strconv.Itoa(r.Rank), r.Country, itoa(r.Cases), itoa(r.Deaths), formatNull(r.Population),
			formatNull(r.CasesPerThousand), formatNull(r.DeathsPerThousand),
		})
	}
	return t
}

func forecastTable(f *model.ForecastResult, levels []int) table {
	t := table{
		name:   FileForecast,
		header: []string{"country", "date", "step", "mean"},
		data:   f,
		count:  len(f.Points),
	}
	for _, l := range levels {
		t.header = append(t.header, fmt.Sprintf("lower_%d", l), fmt.Sprintf("upper_%d", l))
	}
	for _, p := range f.Points {
		row := []string{f.Country, p.Date.Format(dateFormat), strconv.Itoa(p.Step), ftoa(p.Mean)}
		for _, l := range levels {
			if iv, ok := p.Interval(l); ok {
				row = append(row, ftoa(iv.Lower), ftoa(iv.Upper))
			} else {
				row = append(row, nullText, nullText)
			}
		}
		t.rows = append(t.rows, row)
	}
	return t
}
