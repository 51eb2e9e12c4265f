package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"covid-pipeline/internal/model"
	"covid-pipeline/internal/store"
	"covid-pipeline/pkg/utils"
)

// writeInputs writes a small confirmed/deaths/lookup triple with days columns
// and returns the job spec reading it.
func writeInputs(t *testing.T, days int) model.PipelineJobSpec {
	t.Helper()
	dir := t.TempDir()

	header := []string{"Province/State", "Country/Region", "Lat", "Long"}
	for d := 0; d < days; d++ {
		header = append(header, FormatDateColumn(day(22).AddDate(0, 0, d)))
	}
	series := func(sub, country string, f func(d int) int) string {
		cells := []string{sub, country, "0", "0"}
		for d := 0; d < days; d++ {
			cells = append(cells, fmt.Sprint(f(d)))
		}
		return strings.Join(cells, ",")
	}

	confirmed := strings.Join([]string{
		strings.Join(header, ","),
		series("", "X", func(d int) int { return (d + 1) * (d + 2) }),
		series("P", "X", func(d int) int { return d }),
		series("", "Y", func(d int) int { return 3 * d }),
	}, "\n") + "\n"
	deaths := strings.Join([]string{
		strings.Join(header, ","),
		series("", "X", func(d int) int { return d / 2 }),
		series("P", "X", func(d int) int { return 0 }),
		series("", "Y", func(d int) int { return d / 3 }),
	}, "\n") + "\n"
	lookup := "UID,Admin2,Province_State,Country_Region,Combined_Key,Population\n" +
		"1,,,X,X,1000000\n" +
		"2,,P,X,\"P, X\",500000\n" +
		"3,,,Y,Y,2000\n"

	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	return model.PipelineJobSpec{
		Sources: []model.Source{
			{Name: model.SourceConfirmed, Type: "csv", URL: write("confirmed.csv", confirmed)},
			{Name: model.SourceDeaths, Type: "csv", URL: write("deaths.csv", deaths)},
			{Name: model.SourceLookup, Type: "csv", URL: write("lookup.csv", lookup)},
		},
		Schema:   testSchema,
		Forecast: model.ForecastSpec{Horizon: 30, MaxP: 2, MaxD: 2, MaxQ: 2, Levels: []int{80, 95}, Alpha: 0.05},
		Export:   model.Export{Formats: []string{"csv", "json"}},
		Timeout:  "1m",
	}
}

func TestRunWithoutStore(t *testing.T) {
	spec := writeInputs(t, 5)
	outputs := utils.NewOutputManager(t.TempDir())
	runner := NewRunner(NewFetcher(0, ""), nil, outputs)

	res, err := runner.Run(context.Background(), "job-1", spec)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// X has 5 days, Y has 4 (its first day has zero cases)
	if len(res.CountryDays) != 9 {
		t.Errorf("country days = %d, want 9", len(res.CountryDays))
	}
	if len(res.CountryTotals) != 2 || res.CountryTotals[0].Country != "X" {
		t.Fatalf("totals = %+v", res.CountryTotals)
	}
	if x := res.CountryTotals[0]; x.Cases != 34 || x.Deaths != 2 {
		t.Errorf("X totals = %d/%d, want 34/2", x.Cases, x.Deaths)
	}
	if res.Forecast != nil || res.ForecastError != "" {
		t.Error("forecast ran while disabled")
	}
	if res.OutputDir != outputs.JobOutputDir("job-1") {
		t.Errorf("OutputDir = %q", res.OutputDir)
	}

	for _, name := range []string{"country_days.csv", "country_months.csv", "country_totals.csv", "country_days.json", "country_totals.json"} {
		if _, err := os.Stat(filepath.Join(res.OutputDir, name)); err != nil {
			t.Errorf("missing export %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(res.OutputDir, "forecast.csv")); !os.IsNotExist(err) {
		t.Error("forecast.csv written without a forecast")
	}
	if len(res.Exports) != 6 {
		t.Errorf("exports = %d, want 6", len(res.Exports))
	}
}

func TestRunRecordsProgress(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer st.Close()

	spec := writeInputs(t, 5)
	spec.Export.DB = true
	spec.Forecast.Enabled = true
	spec.Forecast.Country = "Nowhere"
	if err := st.SaveJob(ctx, "job-1", spec); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(NewFetcher(0, ""), st, utils.NewOutputManager(t.TempDir()))
	res, err := runner.Run(ctx, "job-1", spec)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ForecastError == "" {
		t.Error("expected a forecast error for an unknown country")
	}

	job, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}

	progress, err := st.ListStageProgress(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	status := make(map[string]string)
	for _, p := range progress {
		status[p.Stage] = p.Status
	}
	for _, stage := range []string{StageFetch, StageReshape, StageAggregate, StageDerive, StageExport} {
		if status[stage] != "completed" {
			t.Errorf("stage %s = %q, want completed", stage, status[stage])
		}
	}
	if status[StageForecast] != "failed" {
		t.Errorf("forecast stage = %q, want failed", status[StageForecast])
	}

	errs, err := st.ListJobErrors(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "[forecast]") {
		t.Errorf("job errors = %+v", errs)
	}

	totals, err := st.CountryTotals(ctx, "job-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 2 {
		t.Errorf("stored totals = %d, want 2", len(totals))
	}

	files, err := st.ListOutputFiles(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 6 {
		t.Errorf("registered files = %d, want 6", len(files))
	}
}

func TestRunFetchFailure(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer st.Close()

	spec := writeInputs(t, 3)
	spec.Sources[1].URL = filepath.Join(t.TempDir(), "missing.csv")
	if err := st.SaveJob(ctx, "job-1", spec); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(NewFetcher(0, ""), st, utils.NewOutputManager(t.TempDir()))
	if _, err := runner.Run(ctx, "job-1", spec); !errors.Is(err, ErrFetch) {
		t.Fatalf("Run() error = %v, want ErrFetch", err)
	}

	job, _ := st.GetJob(ctx, "job-1")
	if job.Status != model.StatusFailed {
		t.Errorf("status = %q, want failed", job.Status)
	}
	errs, _ := st.ListJobErrors(ctx, "job-1")
	if len(errs) != 1 {
		t.Errorf("job errors = %d, want 1", len(errs))
	}
}

func TestRunSchemaDrift(t *testing.T) {
	spec := writeInputs(t, 3)
	spec.Schema.CountryColumn = "Country"

	runner := NewRunner(NewFetcher(0, ""), nil, utils.NewOutputManager(t.TempDir()))
	if _, err := runner.Run(context.Background(), "job-1", spec); !errors.Is(err, ErrSchemaDrift) {
		t.Errorf("Run() error = %v, want ErrSchemaDrift", err)
	}
}

func TestRunDatabaseExportWithoutStore(t *testing.T) {
	spec := writeInputs(t, 3)
	spec.Export.DB = true

	runner := NewRunner(NewFetcher(0, ""), nil, utils.NewOutputManager(t.TempDir()))
	res, err := runner.Run(context.Background(), "job-1", spec)
	if err == nil {
		t.Fatal("expected export error without a store")
	}
	if res == nil || len(res.CountryTotals) != 2 {
		t.Errorf("result should carry the derived tables: %+v", res)
	}
}

func TestForecastCountry(t *testing.T) {
	_, err := ForecastCountry(nil, model.ForecastSpec{Country: "X", Horizon: 10, Levels: []int{95}})
	if err == nil {
		t.Error("expected error for a country without data")
	}
}
