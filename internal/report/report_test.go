package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"covid-pipeline/internal/model"

	"github.com/shopspring/decimal"
	"gonum.org/v1/plot/plotter"
)

func day(country string, date time.Time, cases, deaths, newCases int64) model.CountryDayMetrics {
	return model.CountryDayMetrics{
		CountryDay: model.CountryDay{
			Country: country,
			Date:    date,
			Cases:   cases,
			Deaths:  deaths,
		},
		NewCases: newCases,
	}
}

func sampleInput() Input {
	d0 := time.Date(2020, 3, 30, 0, 0, 0, 0, time.UTC)
	var days []model.CountryDayMetrics
	for i := 0; i < 5; i++ {
		date := d0.AddDate(0, 0, i)
		days = append(days,
			day("Italy", date, int64(100*(i+1)), int64(5*i), 100),
			day("Korea, South", date, int64(10*(i+1)), 0, 10),
		)
	}
	months := []model.CountryMonth{
		{Country: "Italy", Month: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), Cases: 200, NewCases: 0},
		{Country: "Italy", Month: time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC), Cases: 500, NewCases: 300},
	}
	totals := []model.CountryTotal{
		{Rank: 1, Country: "Italy", Cases: 500, Deaths: 20,
			CasesPerThousand: decimal.NewNullDecimal(decimal.RequireFromString("8.27"))},
		{Rank: 2, Country: "Korea, South", Cases: 50},
	}

	fc := &model.ForecastResult{
		Country:         "Italy",
		P:               0,
		D:               1,
		Q:               0,
		IncludeConstant: true,
		Constant:        100,
		Sigma2:          4,
		NObs:            5,
		FirstDate:       d0,
		LastDate:        d0.AddDate(0, 0, 4),
		History:         []float64{100, 200, 300, 400, 500},
	}
	for s := 1; s <= 10; s++ {
		mean := 500 + 100*float64(s)
		fc.Points = append(fc.Points, model.ForecastPoint{
			Step: s,
			Date: fc.LastDate.AddDate(0, 0, s),
			Mean: mean,
			Intervals: []model.ForecastInterval{
				{Level: 80, Lower: mean - float64(s), Upper: mean + float64(s)},
				{Level: 95, Lower: mean - 2*float64(s), Upper: mean + 2*float64(s)},
			},
		})
	}

	return Input{
		JobID:       "job-1",
		GeneratedAt: time.Date(2020, 4, 4, 12, 0, 0, 0, time.UTC),
		Spec:        model.ReportSpec{Enabled: true, TopN: 10, Highlight: "Korea, South", WidthCM: 12, HeightCM: 8},
		Sources:     []model.Source{{Name: model.SourceConfirmed, Type: "csv", URL: "confirmed.csv"}},
		Days:        days,
		Months:      months,
		Totals:      totals,
		Forecast:    fc,
		Levels:      []int{80, 95},
		Stages: []model.StageProgress{
			{JobID: "job-1", Stage: "fetch", Status: "completed", Records: 4},
		},
	}
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	files, err := Render(dir, sampleInput())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := []string{
		FileTopCountries,
		"cases_linear.png",
		"cases_log.png",
		"deaths_linear.png",
		"deaths_log.png",
		"new_cases.png",
		"new_deaths.png",
		"monthly_new_cases_korea_south.png",
		FileForecast,
		FileSummary,
	}
	if len(files) != len(want) {
		t.Fatalf("Render() wrote %d files, want %d: %v", len(files), len(want), files)
	}
	for _, name := range want {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("missing %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}

	body, err := os.ReadFile(filepath.Join(dir, FileSummary))
	if err != nil {
		t.Fatal(err)
	}
	md := string(body)
	for _, s := range []string{
		"`job-1`",
		"Data through: 2020-04-03",
		"| 1 | Italy | 500 | 20 | 8.27 | n/a |",
		"| 2 | Korea, South | 50 | 0 | n/a | n/a |",
		"ARIMA(0,1,0) with drift",
		"| 7 | 2020-04-10 | 1200 | 1193 to 1207 | 1186 to 1214 |",
		"(top_countries.png)",
		"| fetch | completed | 4 |",
	} {
		if !strings.Contains(md, s) {
			t.Errorf("report.md missing %q\n%s", s, md)
		}
	}
}

func TestRenderEmptyInput(t *testing.T) {
	dir := t.TempDir()
	in := Input{
		JobID:         "empty",
		GeneratedAt:   time.Now(),
		ForecastError: "degenerate series: no observations",
	}
	files, err := Render(dir, in)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	// top countries and six line charts, all placeholders, plus the summary
	if len(files) != 8 {
		t.Fatalf("Render() wrote %d files, want 8: %v", len(files), files)
	}

	body, err := os.ReadFile(filepath.Join(dir, FileSummary))
	if err != nil {
		t.Fatal(err)
	}
	md := string(body)
	if !strings.Contains(md, "No country reported confirmed cases.") {
		t.Errorf("report.md missing empty ranking note\n%s", md)
	}
	if !strings.Contains(md, "Forecast failed: degenerate series") {
		t.Errorf("report.md missing forecast error\n%s", md)
	}
}

func TestLogChartSkipsNonPositive(t *testing.T) {
	d := time.Date(2020, 1, 22, 0, 0, 0, 0, time.UTC)
	all := []series{{name: "A", points: nil}}
	for i, v := range []float64{0, 0, 5} {
		all[0].points = append(all[0].points, plotter.XY{X: timeX(d.AddDate(0, 0, i)), Y: v})
	}

	p, err := lineChart("cases", "cases", all, true)
	if err != nil {
		t.Fatal(err)
	}
	if p.Y.Min <= 0 || p.Y.Min >= p.Y.Max {
		t.Errorf("log axis range = [%v, %v], want positive and non-empty", p.Y.Min, p.Y.Max)
	}
	if strings.HasSuffix(p.Title.Text, "no data") {
		t.Errorf("title = %q, want a real chart", p.Title.Text)
	}

	p, err = lineChart("deaths", "deaths", []series{{name: "A"}}, true)
	if err != nil {
		t.Fatal(err)
	}
	if p.Title.Text != "deaths: no data" {
		t.Errorf("title = %q, want placeholder", p.Title.Text)
	}
}

func TestSelectedCountries(t *testing.T) {
	in := sampleInput()
	if got := selectedCountries(in); len(got) != 2 || got[0] != "Italy" {
		t.Errorf("selectedCountries() = %v", got)
	}
	in.Spec.Countries = []string{"Korea, South"}
	if got := selectedCountries(in); len(got) != 1 || got[0] != "Korea, South" {
		t.Errorf("selectedCountries() = %v", got)
	}
	in.Spec.Highlight = ""
	if got := highlightCountry(in); got != "Italy" {
		t.Errorf("highlightCountry() = %q, want Italy", got)
	}
}
