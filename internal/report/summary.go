package report

import (
	"fmt"
	"os"
	"text/template"
	"time"

	"covid-pipeline/internal/model"

	"github.com/shopspring/decimal"
)

// summarySteps are the forecast horizons listed in the summary table.
var summarySteps = []int{1, 7, 30, 90, 180, 365}

var summaryTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"date":    func(p model.ForecastPoint) string { return p.Date.Format("2006-01-02") },
	"num":     func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"rate":    formatRate,
	"seconds": func(s model.StageProgress) string { return fmt.Sprintf("%.2fs", s.Duration().Seconds()) },
	"interval": func(p model.ForecastPoint, level int) string {
		iv, ok := p.Interval(level)
		if !ok {
			return "n/a"
		}
		return fmt.Sprintf("%.0f to %.0f", iv.Lower, iv.Upper)
	},
}).Parse(`# COVID-19 report

- Run: ` + "`{{.JobID}}`" + `
- Generated: {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}
{{- if .LastDate}}
- Data through: {{.LastDate}}
{{- end}}
- Countries: {{len .In.Totals}}

## Sources

{{range .In.Sources}}- {{.Name}}: {{.URL}}
{{end}}
## Top {{len .Top}} countries by confirmed cases

{{if .Top -}}
| Rank | Country | Cases | Deaths | Cases per 1000 | Deaths per 1000 |
|---:|---|---:|---:|---:|---:|
{{range .Top}}| {{.Rank}} | {{.Country}} | {{.Cases}} | {{.Deaths}} | {{rate .CasesPerThousand}} | {{rate .DeathsPerThousand}} |
{{end}}
{{- else -}}
No country reported confirmed cases.
{{end}}
## Forecast

{{with .In.Forecast -}}
{{.Country}}: {{.Order}} fitted on {{.NObs}} daily observations up to {{.LastDate.Format "2006-01-02"}}, sigma^2 = {{printf "%.2f" .Sigma2}}.

| Step | Date | Mean |{{range $.Levels}} {{.}}% interval |{{end}}
|---:|---|---:|{{range $.Levels}}---|{{end}}
{{range $.Points}}| {{.Step}} | {{date .}} | {{num .Mean}} |{{$p := .}}{{range $.Levels}} {{interval $p .}} |{{end}}
{{end}}
{{- else -}}
{{if .In.ForecastError}}Forecast failed: {{.In.ForecastError}}
{{else}}No forecast was requested.
{{end}}
{{- end}}
## Charts

{{range .Charts}}- [{{.Title}}]({{.File}})
{{end}}
{{- if .In.Stages}}
## Stages

| Stage | Status | Records | Duration |
|---|---|---:|---:|
{{range .In.Stages}}| {{.Stage}} | {{.Status}} | {{.Records}} | {{seconds .}} |
{{end}}
{{- end}}`))

// summary is the data behind report.md
type summary struct {
	In          Input
	JobID       string
	GeneratedAt time.Time
	LastDate    string
	Top         []model.CountryTotal
	Levels      []int
	Points      []model.ForecastPoint
	Charts      []chart
}

func writeSummary(path string, in Input, charts []chart) error {
	s := summary{
		In:          in,
		JobID:       in.JobID,
		GeneratedAt: in.GeneratedAt,
		Levels:      in.Levels,
		Charts:      charts,
	}
	if len(in.Days) > 0 {
		last := in.Days[0].Date
		for _, d := range in.Days {
			if d.Date.After(last) {
				last = d.Date
			}
		}
		s.LastDate = last.Format("2006-01-02")
	}

	topN := in.Spec.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	s.Top = in.Totals
	if len(s.Top) > topN {
		s.Top = s.Top[:topN]
	}

	if f := in.Forecast; f != nil {
		if len(s.Levels) == 0 && len(f.Points) > 0 {
			for _, iv := range f.Points[0].Intervals {
				s.Levels = append(s.Levels, iv.Level)
			}
		}
		for _, step := range summarySteps {
			if step <= len(f.Points) {
				s.Points = append(s.Points, f.Points[step-1])
			}
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}
	defer file.Close()

	if err := summaryTemplate.Execute(file, s); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	return file.Close()
}

func formatRate(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	return d.Decimal.StringFixed(2)
}
