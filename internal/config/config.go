package config

import (
	"fmt"
	"strings"
	"time"

	"covid-pipeline/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Default JHU CSSE sources.
const (
	DefaultConfirmedURL = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/csse_covid_19_time_series/time_series_covid19_confirmed_global.csv"
	DefaultDeathsURL    = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/csse_covid_19_time_series/time_series_covid19_deaths_global.csv"
	DefaultLookupURL    = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/UID_ISO_FIPS_LookUp_Table.csv"
)

// Config represents the complete application configuration
type Config struct {
	Sources  SourcesConfig  `mapstructure:"sources"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Report   ReportConfig   `mapstructure:"report"`
	Export   ExportConfig   `mapstructure:"export"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourcesConfig holds the three input tables. Values may be URLs or local paths.
type SourcesConfig struct {
	ConfirmedURL string `mapstructure:"confirmed_url" validate:"required"`
	DeathsURL    string `mapstructure:"deaths_url" validate:"required"`
	LookupURL    string `mapstructure:"lookup_url" validate:"required"`
}

// SchemaConfig names the identifying columns of the input tables.
type SchemaConfig struct {
	SubRegionColumn       string   `mapstructure:"sub_region_column" validate:"required"`
	CountryColumn         string   `mapstructure:"country_column" validate:"required"`
	DiscardColumns        []string `mapstructure:"discard_columns"`
	LookupSubRegionColumn string   `mapstructure:"lookup_sub_region_column" validate:"required"`
	LookupCountryColumn   string   `mapstructure:"lookup_country_column" validate:"required"`
	LookupCountyColumn    string   `mapstructure:"lookup_county_column"`
	LookupKeyColumn       string   `mapstructure:"lookup_key_column" validate:"required"`
	LookupPopColumn       string   `mapstructure:"lookup_population_column" validate:"required"`
}

// ForecastConfig controls the ARIMA order search and projection
type ForecastConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Country string  `mapstructure:"country"`
	Horizon int     `mapstructure:"horizon" validate:"gte=1,lte=3650"`
	MaxP    int     `mapstructure:"max_p" validate:"gte=0,lte=5"`
	MaxD    int     `mapstructure:"max_d" validate:"gte=0,lte=2"`
	MaxQ    int     `mapstructure:"max_q" validate:"gte=0,lte=5"`
	Levels  []int   `mapstructure:"levels" validate:"required,dive,gt=0,lt=100"`
	Alpha   float64 `mapstructure:"kpss_alpha" validate:"gt=0,lt=1"`
}

// ReportConfig controls chart and summary rendering
type ReportConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	TopN      int      `mapstructure:"top_n" validate:"gte=1,lte=100"`
	Highlight string   `mapstructure:"highlight"`
	Countries []string `mapstructure:"countries"`
	Width     float64  `mapstructure:"width_cm" validate:"gt=0"`
	Height    float64  `mapstructure:"height_cm" validate:"gt=0"`
}

// ExportConfig defines export targets
type ExportConfig struct {
	OutputDir string   `mapstructure:"output_dir" validate:"required"`
	Formats   []string `mapstructure:"formats" validate:"dive,oneof=csv json"`
	Database  bool     `mapstructure:"database"`
}

// DatabaseConfig selects the run/result store
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr       string        `mapstructure:"addr" validate:"required"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// HTTPConfig holds fetcher client configuration
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("COVID_PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("sources.confirmed_url", DefaultConfirmedURL)
	v.SetDefault("sources.deaths_url", DefaultDeathsURL)
	v.SetDefault("sources.lookup_url", DefaultLookupURL)

	v.SetDefault("schema.sub_region_column", "Province/State")
	v.SetDefault("schema.country_column", "Country/Region")
	v.SetDefault("schema.discard_columns", []string{"Lat", "Long"})
	v.SetDefault("schema.lookup_sub_region_column", "Province_State")
	v.SetDefault("schema.lookup_country_column", "Country_Region")
	v.SetDefault("schema.lookup_county_column", "Admin2")
	v.SetDefault("schema.lookup_key_column", "Combined_Key")
	v.SetDefault("schema.lookup_population_column", "Population")

	v.SetDefault("forecast.enabled", true)
	v.SetDefault("forecast.country", "US")
	v.SetDefault("forecast.horizon", 365)
	v.SetDefault("forecast.max_p", 3)
	v.SetDefault("forecast.max_d", 2)
	v.SetDefault("forecast.max_q", 3)
	v.SetDefault("forecast.levels", []int{80, 95})
	v.SetDefault("forecast.kpss_alpha", 0.05)

	v.SetDefault("report.enabled", true)
	v.SetDefault("report.top_n", 10)
	v.SetDefault("report.highlight", "US")
	v.SetDefault("report.countries", []string{"US", "India", "Brazil", "United Kingdom"})
	v.SetDefault("report.width_cm", 24)
	v.SetDefault("report.height_cm", 14)

	v.SetDefault("export.output_dir", "./outputs")
	v.SetDefault("export.formats", []string{"csv", "json"})
	v.SetDefault("export.database", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "pipeline.db")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.job_timeout", "10m")

	v.SetDefault("http.timeout", "60s")
	v.SetDefault("http.user_agent", "covid-pipeline/1.0")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

var validate = validator.New()

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Forecast.Enabled && c.Forecast.Country == "" {
		return fmt.Errorf("forecast.country is required when forecast is enabled")
	}
	if c.Forecast.MaxP+c.Forecast.MaxQ == 0 && c.Forecast.MaxD == 0 {
		return fmt.Errorf("forecast search space is empty: max_p, max_d and max_q are all 0")
	}
	switch c.Forecast.Alpha {
	case 0.01, 0.025, 0.05, 0.1:
	default:
		return fmt.Errorf("forecast.kpss_alpha must be one of 0.01, 0.025, 0.05, 0.1")
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}
	if !c.Export.Database && len(c.Export.Formats) == 0 {
		return fmt.Errorf("export needs at least one file format or database export")
	}

	return nil
}

// JobSpec converts the configuration into the job spec of one pipeline run.
func (c *Config) JobSpec() model.PipelineJobSpec {
	spec := model.PipelineJobSpec{
		Sources: []model.Source{
			{Name: model.SourceConfirmed, Type: "csv", URL: c.Sources.ConfirmedURL},
			{Name: model.SourceDeaths, Type: "csv", URL: c.Sources.DeathsURL},
			{Name: model.SourceLookup, Type: "csv", URL: c.Sources.LookupURL},
		},
		Schema: model.Schema{
			SubRegionColumn:       c.Schema.SubRegionColumn,
			CountryColumn:         c.Schema.CountryColumn,
			DiscardColumns:        append([]string(nil), c.Schema.DiscardColumns...),
			LookupSubRegionColumn: c.Schema.LookupSubRegionColumn,
			LookupCountryColumn:   c.Schema.LookupCountryColumn,
			LookupCountyColumn:    c.Schema.LookupCountyColumn,
			LookupKeyColumn:       c.Schema.LookupKeyColumn,
			LookupPopColumn:       c.Schema.LookupPopColumn,
		},
		Forecast: model.ForecastSpec{
			Enabled: c.Forecast.Enabled,
			Country: c.Forecast.Country,
			Horizon: c.Forecast.Horizon,
			MaxP:    c.Forecast.MaxP,
			MaxD:    c.Forecast.MaxD,
			MaxQ:    c.Forecast.MaxQ,
			Levels:  append([]int(nil), c.Forecast.Levels...),
			Alpha:   c.Forecast.Alpha,
		},
		Report: model.ReportSpec{
			Enabled:   c.Report.Enabled,
			TopN:      c.Report.TopN,
			Highlight: c.Report.Highlight,
			Countries: append([]string(nil), c.Report.Countries...),
			WidthCM:   c.Report.Width,
			HeightCM:  c.Report.Height,
		},
		Export: model.Export{
			OutputDir: c.Export.OutputDir,
			Formats:   append([]string(nil), c.Export.Formats...),
			DB:        c.Export.Database,
		},
	}
	if c.Server.JobTimeout > 0 {
		spec.Timeout = c.Server.JobTimeout.String()
	}
	return spec
}
