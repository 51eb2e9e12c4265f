package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	content := `
sources:
  confirmed_url: "testdata/confirmed.csv"
  deaths_url: "testdata/deaths.csv"
  lookup_url: "testdata/lookup.csv"

forecast:
  enabled: true
  country: "Italy"
  horizon: 30
  max_p: 2
  max_d: 1
  max_q: 2
  levels: [80, 95]

report:
  top_n: 5
  highlight: "Italy"

export:
  output_dir: "./out"
  formats: ["csv"]

database:
  driver: "sqlite"
  dsn: "file::memory:"

logging:
  level: "debug"
  format: "console"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sources.ConfirmedURL != "testdata/confirmed.csv" {
		t.Errorf("Unexpected confirmed URL: %s", cfg.Sources.ConfirmedURL)
	}
	if cfg.Forecast.Country != "Italy" {
		t.Errorf("Unexpected forecast country: %s", cfg.Forecast.Country)
	}
	if cfg.Forecast.Horizon != 30 {
		t.Errorf("Expected horizon 30, got %d", cfg.Forecast.Horizon)
	}
	if len(cfg.Forecast.Levels) != 2 {
		t.Errorf("Expected 2 levels, got %d", len(cfg.Forecast.Levels))
	}
	// Defaults survive a partial file.
	if cfg.Schema.CountryColumn != "Country/Region" {
		t.Errorf("Unexpected country column default: %s", cfg.Schema.CountryColumn)
	}
	if cfg.HTTP.Timeout != 60*time.Second {
		t.Errorf("Unexpected http timeout default: %v", cfg.HTTP.Timeout)
	}
	if cfg.Forecast.Alpha != 0.05 {
		t.Errorf("Unexpected kpss alpha default: %v", cfg.Forecast.Alpha)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sources.LookupURL != DefaultLookupURL {
		t.Errorf("Unexpected lookup URL: %s", cfg.Sources.LookupURL)
	}
	if cfg.Forecast.Horizon != 365 {
		t.Errorf("Expected default horizon 365, got %d", cfg.Forecast.Horizon)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed on defaults: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("COVID_PIPELINE_FORECAST_COUNTRY", "Germany")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Forecast.Country != "Germany" {
		t.Errorf("Expected env override Germany, got %s", cfg.Forecast.Country)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidateErrors(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "forecast enabled without country",
			mutate:  func(c *Config) { c.Forecast.Country = "" },
			wantErr: true,
		},
		{
			name:    "forecast disabled without country",
			mutate:  func(c *Config) { c.Forecast.Enabled = false; c.Forecast.Country = "" },
			wantErr: false,
		},
		{
			name:    "invalid level",
			mutate:  func(c *Config) { c.Forecast.Levels = []int{80, 100} },
			wantErr: true,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: true,
		},
		{
			name:    "unknown export format",
			mutate:  func(c *Config) { c.Export.Formats = []string{"xlsx"} },
			wantErr: true,
		},
		{
			name:    "nothing to export",
			mutate:  func(c *Config) { c.Export.Formats = nil; c.Export.Database = false },
			wantErr: true,
		},
		{
			name:    "unsupported kpss alpha",
			mutate:  func(c *Config) { c.Forecast.Alpha = 0.2 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobSpec(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Forecast.Country = "Italy"

	spec := cfg.JobSpec()
	if len(spec.Sources) != 3 {
		t.Fatalf("Expected 3 sources, got %d", len(spec.Sources))
	}
	src, err := spec.Source("deaths")
	if err != nil {
		t.Fatal(err)
	}
	if src.URL != DefaultDeathsURL || src.Type != "csv" {
		t.Errorf("Unexpected deaths source: %+v", src)
	}
	if spec.Forecast.Country != "Italy" || spec.Forecast.Horizon != 365 {
		t.Errorf("Unexpected forecast spec: %+v", spec.Forecast)
	}
	if spec.Timeout != "10m0s" {
		t.Errorf("Expected timeout 10m0s, got %q", spec.Timeout)
	}
	if !spec.Export.DB || len(spec.Export.Formats) != 2 {
		t.Errorf("Unexpected export spec: %+v", spec.Export)
	}

	// the job spec does not share slices with the config
	spec.Forecast.Levels[0] = 50
	if cfg.Forecast.Levels[0] != 80 {
		t.Errorf("JobSpec shares the levels slice with the config")
	}
}

func TestShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Server.JobTimeout != 10*time.Minute || cfg.HTTP.Timeout != time.Minute {
		t.Errorf("Unexpected timeouts: %v %v", cfg.Server.JobTimeout, cfg.HTTP.Timeout)
	}
	if cfg.Schema.LookupCountyColumn != "Admin2" || len(cfg.Report.Countries) != 4 {
		t.Errorf("Unexpected schema/report: %+v %+v", cfg.Schema, cfg.Report)
	}
}
