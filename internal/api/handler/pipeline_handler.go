package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"covid-pipeline/internal/logger"
	"covid-pipeline/internal/model"
	"covid-pipeline/pkg/utils"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Store is the part of the run store the API reads and writes
type Store interface {
	SaveJob(ctx context.Context, jobID string, spec model.PipelineJobSpec) error
	ListJobs(ctx context.Context) ([]model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobErrors(ctx context.Context, jobID string) ([]model.JobError, error)
	ListStageProgress(ctx context.Context, jobID string) ([]model.StageProgress, error)
	ListPipelineLogs(ctx context.Context, jobID string) ([]model.PipelineLog, error)
	ListOutputFiles(ctx context.Context, jobID string) ([]model.OutputFile, error)
	CountryDays(ctx context.Context, jobID, country string) ([]model.CountryDayMetrics, error)
	CountryMonths(ctx context.Context, jobID, country string) ([]model.CountryMonth, error)
	CountryTotals(ctx context.Context, jobID string, limit int) ([]model.CountryTotal, error)
	Forecast(ctx context.Context, jobID, country string) (*model.ForecastResult, error)
}

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context, jobID string, spec model.PipelineJobSpec) (*model.Result, error)
}

// Handler serves the report API
type Handler struct {
	Store   Store
	Runner  Runner
	Outputs *utils.OutputManager
	Base    model.PipelineJobSpec // spec every run starts from

	running sync.WaitGroup
}

// New creates a handler
func New(st Store, runner Runner, outputs *utils.OutputManager, base model.PipelineJobSpec) *Handler {
	return &Handler{Store: st, Runner: runner, Outputs: outputs, Base: base}
}

// Wait blocks until every run started by the handler has finished.
func (h *Handler) Wait() {
	h.running.Wait()
}

// CreateReportRequest holds the optional overrides of a run
type CreateReportRequest struct {
	Country   string `json:"country" example:"Italy"`
	Horizon   int    `json:"horizon" validate:"omitempty,gte=1,lte=3650" example:"365"`
	TopN      int    `json:"top_n" validate:"omitempty,gte=1,lte=100" example:"10"`
	Highlight string `json:"highlight" example:"Italy"`
	Forecast  *bool  `json:"forecast"`
}

// CreateReportResponse is returned when a run is accepted
type CreateReportResponse struct {
	Message   string    `json:"message"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// spec applies the request overrides to the base spec.
func (r CreateReportRequest) spec(base model.PipelineJobSpec) model.PipelineJobSpec {
	spec := base
	spec.Forecast.Levels = append([]int(nil), base.Forecast.Levels...)
	spec.Report.Countries = append([]string(nil), base.Report.Countries...)

	if r.Country != "" {
		spec.Forecast.Country = r.Country
	}
	if r.Horizon > 0 {
		spec.Forecast.Horizon = r.Horizon
	}
	if r.TopN > 0 {
		spec.Report.TopN = r.TopN
	}
	if r.Highlight != "" {
		spec.Report.Highlight = r.Highlight
	}
	if r.Forecast != nil {
		spec.Forecast.Enabled = *r.Forecast
	}
	return spec
}

// CreateReport starts a new pipeline run
// @Summary Start a report run
// @Description Start a pipeline run in the background. The body is optional and overrides the configured forecast country, horizon and chart settings.
// @Tags reports
// @Accept json
// @Produce json
// @Param request body CreateReportRequest false "Run overrides"
// @Success 202 {object} CreateReportResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /reports [post]
func (h *Handler) CreateReport(c echo.Context) error {
	var req CreateReportRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	spec := req.spec(h.Base)
	if spec.Forecast.Enabled && spec.Forecast.Country == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "forecast country is required")
	}

	jobID := uuid.New().String()
	if err := h.Store.SaveJob(c.Request().Context(), jobID, spec); err != nil {
		return err
	}

	h.running.Add(1)
	go func() {
		defer h.running.Done()
		if _, err := h.Runner.Run(context.Background(), jobID, spec); err != nil {
			logger.Error("job %s: run failed: %v", jobID, err)
		}
	}()

	return c.JSON(http.StatusAccepted, CreateReportResponse{
		Message:   "Report run started",
		JobID:     jobID,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
}

// ListReports returns every run
// @Summary List report runs
// @Tags reports
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /reports [get]
func (h *Handler) ListReports(c echo.Context) error {
	jobs, err := h.Store.ListJobs(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetReport returns one run with its spec and status
// @Summary Get a report run
// @Tags reports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.Job
// @Failure 404 {object} ErrorResponse
// @Router /reports/{id} [get]
func (h *Handler) GetReport(c echo.Context) error {
	job, err := h.Store.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

// GetReportErrors returns the errors recorded for a run
// @Summary Get run errors
// @Tags reports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /reports/{id}/errors [get]
func (h *Handler) GetReportErrors(c echo.Context) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return err
	}
	errs, err := h.Store.ListJobErrors(c.Request().Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"errors": errs,
		"count":  len(errs),
	})
}

// GetReportProgress returns the per-stage progress of a run
// @Summary Get run progress
// @Tags reports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /reports/{id}/progress [get]
func (h *Handler) GetReportProgress(c echo.Context) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return err
	}
	progress, err := h.Store.ListStageProgress(c.Request().Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"job_id":   jobID,
		"progress": progress,
		"count":    len(progress),
	})
}

// GetReportLogs returns the persisted log lines of a run
// @Summary Get run logs
// @Tags reports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /reports/{id}/logs [get]
func (h *Handler) GetReportLogs(c echo.Context) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return err
	}
	logs, err := h.Store.ListPipelineLogs(c.Request().Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"logs":   logs,
		"count":  len(logs),
	})
}

// GetReportFiles returns the files a run produced
// @Summary List run output files
// @Tags files
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /reports/{id}/files [get]
func (h *Handler) GetReportFiles(c echo.Context) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return err
	}
	files, err := h.Store.ListOutputFiles(c.Request().Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"files":  files,
		"count":  len(files),
	})
}

// GetCountryDaily returns the daily metrics of one country
// @Summary Get daily country metrics
// @Tags countries
// @Produce json
// @Param id path string true "Run ID"
// @Param country path string true "Country name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /reports/{id}/countries/{country}/daily [get]
func (h *Handler) GetCountryDaily(c echo.Context) error {
	jobID, country, err := h.countryParams(c)
	if err != nil {
		return err
	}
	days, err := h.Store.CountryDays(c.Request().Context(), jobID, country)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no daily data for "+country)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"country": country,
		"days":    days,
		"count":   len(days),
	})
}

// GetCountryMonthly returns the monthly resample of one country
// @Summary Get monthly country metrics
// @Tags countries
// @Produce json
// @Param id path string true "Run ID"
// @Param country path string true "Country name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /reports/{id}/countries/{country}/monthly [get]
func (h *Handler) GetCountryMonthly(c echo.Context) error {
	jobID, country, err := h.countryParams(c)
	if err != nil {
		return err
	}
	months, err := h.Store.CountryMonths(c.Request().Context(), jobID, country)
	if err != nil {
		return err
	}
	if len(months) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no monthly data for "+country)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"country": country,
		"months":  months,
		"count":   len(months),
	})
}

// GetCountryForecast returns the forecast of one country
// @Summary Get a country forecast
// @Tags countries
// @Produce json
// @Param id path string true "Run ID"
// @Param country path string true "Country name"
// @Success 200 {object} model.ForecastResult
// @Failure 404 {object} ErrorResponse
// @Router /reports/{id}/countries/{country}/forecast [get]
func (h *Handler) GetCountryForecast(c echo.Context) error {
	jobID, country, err := h.countryParams(c)
	if err != nil {
		return err
	}
	f, err := h.Store.Forecast(c.Request().Context(), jobID, country)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

// GetTotals returns the ranked country totals of a run
// @Summary Get country totals
// @Tags countries
// @Produce json
// @Param id path string true "Run ID"
// @Param limit query int false "Number of countries, all when omitted"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /reports/{id}/totals [get]
func (h *Handler) GetTotals(c echo.Context) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return err
	}

	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}

	totals, err := h.Store.CountryTotals(c.Request().Context(), jobID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"totals": totals,
		"count":  len(totals),
	})
}

// DownloadFile serves an output file of a run
// @Summary Download file
// @Description Download a specific output file of a run
// @Tags files
// @Produce application/octet-stream
// @Param id path string true "Run ID"
// @Param file path string true "File name"
// @Success 200 {file} file "File download"
// @Failure 404 {object} ErrorResponse
// @Router /download/{id}/{file} [get]
func (h *Handler) DownloadFile(c echo.Context) error {
	name := c.Param("file")
	path, err := h.Outputs.ResolveFile(c.Param("id"), name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "file not found").SetInternal(err)
	}
	return c.Attachment(path, name)
}

// Health reports whether the service is up
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// jobID returns the run ID of the path after checking the run exists.
func (h *Handler) jobID(c echo.Context) (string, error) {
	id := c.Param("id")
	if _, err := h.Store.GetJob(c.Request().Context(), id); err != nil {
		return "", err
	}
	return id, nil
}

func (h *Handler) countryParams(c echo.Context) (string, string, error) {
	jobID, err := h.jobID(c)
	if err != nil {
		return "", "", err
	}
	country, err := url.PathUnescape(c.Param("country"))
	if err != nil || country == "" {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "invalid country")
	}
	return jobID, country, nil
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}
