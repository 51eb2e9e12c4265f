package api

import (
	"context"
	"errors"
	"net/http"

	_ "covid-pipeline/docs"
	"covid-pipeline/internal/api/handler"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Server is the HTTP API of the pipeline
type Server struct {
	router  *echo.Echo
	handler *handler.Handler
}

// NewServer builds the echo router and registers every route.
func NewServer(h *handler.Handler, logLevel string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(echoLogLevel(logLevel))

	e.Validator = NewValidator()
	e.JSONSerializer = sonicSerializer{}
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())

	RegisterRoutes(e, h)
	return &Server{router: e, handler: h}
}

// RegisterRoutes registers the API and Swagger UI routes on e
func RegisterRoutes(e *echo.Echo, h *handler.Handler) {
	e.GET("/swagger/*", echo.WrapHandler(httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json"))))

	api := e.Group("/api/v1")
	api.GET("/health", h.Health)

	reports := api.Group("/reports")
	reports.POST("", h.CreateReport)
	reports.GET("", h.ListReports)
	reports.GET("/:id", h.GetReport)
	reports.GET("/:id/errors", h.GetReportErrors)
	reports.GET("/:id/progress", h.GetReportProgress)
	reports.GET("/:id/logs", h.GetReportLogs)
	reports.GET("/:id/files", h.GetReportFiles)
	reports.GET("/:id/totals", h.GetTotals)
	reports.GET("/:id/countries/:country/daily", h.GetCountryDaily)
	reports.GET("/:id/countries/:country/monthly", h.GetCountryMonthly)
	reports.GET("/:id/countries/:country/forecast", h.GetCountryForecast)

	api.GET("/download/:id/:file", h.DownloadFile)
}

// Handler returns the server as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	err := s.router.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for running pipeline runs
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.router.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.handler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
