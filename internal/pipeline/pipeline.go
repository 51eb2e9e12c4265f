package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"covid-pipeline/internal/forecast"
	"covid-pipeline/internal/logger"
	"covid-pipeline/internal/model"
	"covid-pipeline/internal/report"
	"covid-pipeline/pkg/utils"
)

// Stage names recorded in stage progress and pipeline logs
const (
	StageFetch     = "fetch"
	StageReshape   = "reshape"
	StageAggregate = "aggregate"
	StageDerive    = "derive"
	StageForecast  = "forecast"
	StageRender    = "render"
	StageExport    = "export"
)

// defaultTimeout bounds a run whose spec has no timeout.
const defaultTimeout = 10 * time.Minute

// Store is everything a run persists. Implemented by store.Store.
type Store interface {
	Recorder
	ResultStore
}

// Runner executes pipeline runs
type Runner struct {
	Fetcher *Fetcher
	Store   Store // may be nil
	Outputs *utils.OutputManager
}

// NewRunner creates a runner. st may be nil to run without persistence.
func NewRunner(fetcher *Fetcher, st Store, outputs *utils.OutputManager) *Runner {
	return &Runner{Fetcher: fetcher, Store: st, Outputs: outputs}
}

// ------------------- Pipeline Runner -------------------

// Run executes every stage once, in order, for the job jobID. Fetch, schema
// and export setup failures abort the run; a failed forecast or chart is
// recorded and the run continues with what exists.
func (r *Runner) Run(ctx context.Context, jobID string, spec model.PipelineJobSpec) (res *model.Result, err error) {
	start := time.Now()
	log := logger.With("job_id", jobID)
	log.Infof("starting pipeline run")

	var rec Recorder
	if r.Store != nil {
		rec = r.Store
	}
	tracker := NewTracker(jobID, rec)

	// the final status is saved even when the run context was cancelled
	statusCtx := context.WithoutCancel(ctx)
	defer func() {
		if err != nil {
			// errors of failed stages are already recorded
			if !tracker.FailedWith(err) {
				tracker.RecordError(statusCtx, err)
			}
			tracker.SetStatus(statusCtx, model.StatusFailed)
			log.Errorf("pipeline run failed after %v: %v", time.Since(start), err)
			return
		}
		tracker.SetStatus(statusCtx, model.StatusCompleted)
		log.Infof("pipeline run completed in %v", time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, utils.ParseDuration(spec.Timeout, defaultTimeout))
	defer cancel()

	fetcher := r.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(0, "")
	}

	// --- FETCH STAGE ---
	tracker.SetStatus(ctx, model.StatusFetching)
	tracker.StartStage(ctx, StageFetch)
	tables, err := fetcher.FetchAll(ctx, spec)
	if err != nil {
		tracker.FailStage(ctx, StageFetch, err)
		return nil, err
	}
	tracker.EndStage(ctx, StageFetch, len(tables.Confirmed.Rows)+len(tables.Deaths.Rows)+len(tables.Lookup.Rows))

	// --- RESHAPE STAGE ---
	tracker.SetStatus(ctx, model.StatusReshaping)
	tracker.StartStage(ctx, StageReshape)
	cases, err := Reshape(tables.Confirmed, model.MetricCases, spec.Schema)
	if err != nil {
		tracker.FailStage(ctx, StageReshape, err)
		return nil, err
	}
	deaths, err := Reshape(tables.Deaths, model.MetricDeaths, spec.Schema)
	if err != nil {
		tracker.FailStage(ctx, StageReshape, err)
		return nil, err
	}
	tracker.EndStage(ctx, StageReshape, len(cases)+len(deaths))

	// --- AGGREGATE STAGE ---
	tracker.SetStatus(ctx, model.StatusAggregating)
	tracker.StartStage(ctx, StageAggregate)
	joined := JoinObservations(cases, deaths)
	enriched, stats, err := EnrichPopulation(joined, tables.Lookup, spec.Schema)
	if err != nil {
		tracker.FailStage(ctx, StageAggregate, err)
		return nil, err
	}
	if stats.Unmatched > 0 || stats.Duplicates > 0 {
		tracker.Log(ctx, StageAggregate, "warning", "population lookup incomplete", map[string]interface{}{
			"unmatched_rows":    stats.Unmatched,
			"duplicate_lookups": stats.Duplicates,
		})
	}
	positive := FilterPositive(enriched)
	days := AggregateCountryDays(positive)
	tracker.EndStage(ctx, StageAggregate, len(days))

	// --- DERIVE STAGE ---
	tracker.SetStatus(ctx, model.StatusDeriving)
	tracker.StartStage(ctx, StageDerive)
	res = &model.Result{
		JobID:         jobID,
		CountryDays:   DeriveDaily(days),
		CountryMonths: ResampleMonthly(days),
		CountryTotals: CountryTotals(days),
	}
	tracker.EndStage(ctx, StageDerive, len(res.CountryDays)+len(res.CountryMonths)+len(res.CountryTotals))

	// --- FORECAST STAGE ---
	if spec.Forecast.Enabled {
		tracker.SetStatus(ctx, model.StatusForecasting)
		tracker.StartStage(ctx, StageForecast)
		f, ferr := ForecastCountry(days, spec.Forecast)
		if ferr != nil {
			res.ForecastError = ferr.Error()
			tracker.FailStage(ctx, StageForecast, ferr)
		} else {
			res.Forecast = f
			tracker.EndStage(ctx, StageForecast, len(f.Points))
		}
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("pipeline cancelled: %w", ctx.Err())
	}

	outDir, err := r.Outputs.CreateJobOutputDir(jobID)
	if err != nil {
		return nil, err
	}
	res.OutputDir = outDir

	exporter := &ExportManager{
		JobID:   jobID,
		Spec:    spec.Export,
		Outputs: r.Outputs,
		Levels:  spec.Forecast.Levels,
	}
	if r.Store != nil {
		exporter.Store = r.Store
	}

	// --- RENDER STAGE ---
	if spec.Report.Enabled {
		tracker.SetStatus(ctx, model.StatusRendering)
		tracker.StartStage(ctx, StageRender)
		files, rerr := report.Render(outDir, report.Input{
			JobID:         jobID,
			GeneratedAt:   time.Now().UTC(),
			Spec:          spec.Report,
			Sources:       spec.Sources,
			Days:          res.CountryDays,
			Months:        res.CountryMonths,
			Totals:        res.CountryTotals,
			Forecast:      res.Forecast,
			ForecastError: res.ForecastError,
			Levels:        spec.Forecast.Levels,
			Stages:        tracker.Stages(),
		})
		for _, path := range files {
			exporter.RegisterFile(ctx, path)
			res.Exports = append(res.Exports, succeeded(r.Outputs.GetFileType(path), path, 1))
		}
		if rerr != nil {
			tracker.FailStage(ctx, StageRender, rerr)
		} else {
			tracker.EndStage(ctx, StageRender, len(files))
		}
	}

	// --- EXPORT STAGE ---
	tracker.SetStatus(ctx, model.StatusExporting)
	tracker.StartStage(ctx, StageExport)
	exports := exporter.ExportTables(ctx, res)
	res.Exports = append(res.Exports, exports...)

	var exportErrs []error
	records := 0
	for _, e := range exports {
		if !e.Success {
			exportErrs = append(exportErrs, fmt.Errorf("%s export to %s: %s", e.Type, e.Path, e.Error))
			continue
		}
		records += e.RecordCount
	}
	if len(exportErrs) > 0 {
		err = errors.Join(exportErrs...)
		tracker.FailStage(ctx, StageExport, err)
		return res, err
	}
	tracker.EndStage(ctx, StageExport, records)

	return res, nil
}

// ForecastCountry fits an automatic ARIMA model to the country's cumulative
// cases and projects it spec.Horizon days past the last observation.
func ForecastCountry(days []model.CountryDay, spec model.ForecastSpec) (*model.ForecastResult, error) {
	dates, values := DailySeries(days, spec.Country)
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no observations for %q", forecast.ErrDegenerateSeries, spec.Country)
	}

	m, err := forecast.Auto(values, forecast.Options{
		MaxP:  spec.MaxP,
		MaxD:  spec.MaxD,
		MaxQ:  spec.MaxQ,
		Alpha: spec.Alpha,
	})
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", spec.Country, err)
	}

	points, err := m.Forecast(spec.Horizon, spec.Levels)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", spec.Country, err)
	}

	last := dates[len(dates)-1]
	out := &model.ForecastResult{
		Country:         spec.Country,
		P:               m.Order.P,
		D:               m.Order.D,
		Q:               m.Order.Q,
		IncludeConstant: m.IncludeConstant,
		Constant:        m.Constant,
		AR:              m.AR,
		MA:              m.MA,
		Sigma2:          m.Sigma2,
		AICc:            utils.Finite(m.AICc),
		NObs:            m.NObs,
		FirstDate:       dates[0],
		LastDate:        last,
		History:         values,
		Points:          make([]model.ForecastPoint, len(points)),
	}
	for i, p := range points {
		fp := model.ForecastPoint{
			Step:      p.Step,
			Date:      last.AddDate(0, 0, p.Step),
			Mean:      p.Mean,
			Intervals: make([]model.ForecastInterval, len(p.Bounds)),
		}
		for j, b := range p.Bounds {
			fp.Intervals[j] = model.ForecastInterval{Level: b.Level, Lower: b.Lower, Upper: b.Upper}
		}
		out.Points[i] = fp
	}

	logger.Info("forecast %s: %s, sigma2=%.3f, %d points", spec.Country, out.Order(), out.Sigma2, len(out.Points))
	return out, nil
}
