package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	configYAML := `
input:
  year: ["2021", "2022"]
  state: [WI, mn]
  origin: [home]
  census:
    geography: [county, tract]
paths:
  root: /data/input
http:
  timeout_seconds: 45
  user_agent: census-test
lodes:
  max_concurrency: 2
s3:
  profile: census
  endpoint_url: https://account.r2.example.com
  public_bucket: public-data
storage:
  provider: s3
ledger:
  provider: postgres
  dsn: postgres://localhost/census
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := strings.Join(cfg.Input.State, ","); got != "wi,mn" {
		t.Fatalf("expected lower-cased states, got %s", got)
	}
	if len(cfg.Input.Origin) != 1 || cfg.Input.Origin[0] != "home" {
		t.Fatalf("expected origin override, got %v", cfg.Input.Origin)
	}
	if cfg.Paths.Root != "/data/input" {
		t.Fatalf("expected root override, got %s", cfg.Paths.Root)
	}
	if cfg.LODES.MaxConcurrency != 2 {
		t.Fatalf("expected lodes concurrency 2, got %d", cfg.LODES.MaxConcurrency)
	}
	if cfg.S3.PublicBucket != "public-data" || cfg.S3.Profile != "census" {
		t.Fatalf("expected s3 settings to load: %+v", cfg.S3)
	}
	if got := cfg.Timeout(); got != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %v", got)
	}
	if !cfg.Logging.Development {
		t.Fatalf("expected development logging")
	}
	if err := cfg.RequireYear("2022"); err != nil {
		t.Fatalf("RequireYear(2022) error = %v", err)
	}
	if err := cfg.RequireGeography("tract"); err != nil {
		t.Fatalf("RequireGeography(tract) error = %v", err)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing file, got %+v", cfg)
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("input:\n  year: [\"2022\"]\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Paths.Root != "input" {
		t.Fatalf("expected default root, got %s", cfg.Paths.Root)
	}
	if cfg.LODES.MaxConcurrency != 4 {
		t.Fatalf("expected lodes concurrency 4, got %d", cfg.LODES.MaxConcurrency)
	}
	if cfg.Timeout() != 0 {
		t.Fatalf("expected no timeout by default, got %v", cfg.Timeout())
	}
	if cfg.LODES.BaseURL != "https://lehd.ces.census.gov/data/lodes/LODES8" {
		t.Fatalf("unexpected lodes base url %s", cfg.LODES.BaseURL)
	}
	if cfg.Tiger.BaseURL != "https://www2.census.gov/geo/tiger/" {
		t.Fatalf("unexpected tiger base url %s", cfg.Tiger.BaseURL)
	}
	if strings.Join(cfg.Input.Origin, ",") != "home,work" {
		t.Fatalf("expected default origins, got %v", cfg.Input.Origin)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CENSUS_PATHS_ROOT", "/env/root")
	t.Setenv("CENSUS_STORAGE_PROVIDER", "memory")

	path := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(path, []byte("paths:\n  root: /file/root\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Paths.Root != "/env/root" {
		t.Fatalf("expected env root override, got %s", cfg.Paths.Root)
	}
	if cfg.Storage.Provider != "memory" {
		t.Fatalf("expected memory provider, got %s", cfg.Storage.Provider)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := Config{
		Paths:   PathsConfig{Root: "input"},
		Storage: StorageConfig{Provider: "s3"},
		Ledger:  LedgerConfig{Provider: "memory"},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"empty root", func(c *Config) { c.Paths.Root = "" }, "paths.root"},
		{"negative timeout", func(c *Config) { c.HTTP.TimeoutSeconds = -1 }, "http.timeout_seconds"},
		{"negative rate", func(c *Config) { c.HTTP.RequestsPerSecond = -1 }, "http.requests_per_second"},
		{"bad origin", func(c *Config) { c.Input.Origin = []string{"commute"} }, "input.origin"},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = "gcs" }, "storage.gcs_bucket"},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "ftp" }, "storage.provider"},
		{"postgres without dsn", func(c *Config) { c.Ledger.Provider = "postgres" }, "ledger.dsn"},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "published" }, "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRequireYearRejectsUnknown(t *testing.T) {
	t.Parallel()

	cfg := Config{Input: InputConfig{Year: []string{"2021", "2022"}}}
	err := cfg.RequireYear("2019")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !strings.Contains(err.Error(), "2021, 2022") {
		t.Fatalf("expected allowed years in message, got %v", err)
	}
}
