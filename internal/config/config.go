// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidInput marks configuration and argument errors. Commands fail on
// it before any network activity.
var ErrInvalidInput = errors.New("invalid input")

// DefaultPath is the parameter file read when --config is not given.
const DefaultPath = "params.yaml"

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Input   InputConfig   `mapstructure:"input"`
	Paths   PathsConfig   `mapstructure:"paths"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	LODES   LODESConfig   `mapstructure:"lodes"`
	Tiger   TigerConfig   `mapstructure:"tiger"`
	S3      S3Config      `mapstructure:"s3"`
	Storage StorageConfig `mapstructure:"storage"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// InputConfig lists the years, states, origins and geographies a run covers.
type InputConfig struct {
	Year   []string     `mapstructure:"year"`
	State  []string     `mapstructure:"state"`
	Origin []string     `mapstructure:"origin"`
	Census CensusConfig `mapstructure:"census"`
}

// CensusConfig holds the geography list.
type CensusConfig struct {
	Geography []string `mapstructure:"geography"`
}

// PathsConfig locates the local data tree.
type PathsConfig struct {
	Root string `mapstructure:"root"`
}

// HTTPConfig configures the download client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	// RequestsPerSecond caps requests per host. Zero disables the cap.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// FetchConfig bounds boundary-file fetches. Zero or less means unbounded.
type FetchConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// LODESConfig configures origin-destination fetches and aggregation.
type LODESConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
}

// TigerConfig configures cartographic boundary fetches.
type TigerConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// S3Config holds the S3-compatible publish target.
type S3Config struct {
	Profile      string `mapstructure:"profile"`
	AccountID    string `mapstructure:"account_id"`
	Region       string `mapstructure:"region"`
	EndpointURL  string `mapstructure:"endpoint_url"`
	PublicBucket string `mapstructure:"public_bucket"`
}

// StorageConfig picks the publish backend.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// LedgerConfig picks where publish decisions are recorded.
type LedgerConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// PubSubConfig holds metadata for publish notifications. An empty topic
// disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the optional metrics listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. A missing default parameter
// file is tolerated; an explicitly named one is not.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CENSUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || (!errors.As(err, &notFound) && !isNotExist(err)) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.year", []string{})
	v.SetDefault("input.state", []string{})
	v.SetDefault("input.origin", []string{"home", "work"})
	v.SetDefault("input.census.geography", []string{})
	v.SetDefault("paths.root", "input")
	v.SetDefault("http.timeout_seconds", 0)
	v.SetDefault("http.user_agent", "censusctl/1.0")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("fetch.max_concurrency", 0)
	v.SetDefault("lodes.base_url", "https://lehd.ces.census.gov/data/lodes/LODES8")
	v.SetDefault("lodes.max_concurrency", 4)
	v.SetDefault("tiger.base_url", "https://www2.census.gov/geo/tiger/")
	v.SetDefault("storage.provider", "s3")
	v.SetDefault("storage.local_dir", "public")
	v.SetDefault("ledger.provider", "memory")
	v.SetDefault("ledger.table", "publish_ledger")
	v.SetDefault("logging.development", false)
}

func (c *Config) normalize() {
	for i, s := range c.Input.State {
		c.Input.State[i] = strings.ToLower(strings.TrimSpace(s))
	}
	for i, o := range c.Input.Origin {
		c.Input.Origin[i] = strings.ToLower(strings.TrimSpace(o))
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Paths.Root == "" {
		return invalid("paths.root must be set")
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return invalid("http.timeout_seconds must be >= 0")
	}
	if c.HTTP.RequestsPerSecond < 0 || c.HTTP.Burst < 0 {
		return invalid("http.requests_per_second and http.burst must be >= 0")
	}
	for _, o := range c.Input.Origin {
		if o != "home" && o != "work" {
			return invalid("input.origin entries must be home or work, got %q", o)
		}
	}
	switch c.Storage.Provider {
	case "s3":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return invalid("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return invalid("storage.local_dir must be set when storage.provider is local")
		}
	case "memory":
	default:
		return invalid("storage.provider must be one of s3, gcs, local, memory")
	}
	switch c.Ledger.Provider {
	case "memory":
	case "postgres":
		if c.Ledger.DSN == "" {
			return invalid("ledger.dsn must be set when ledger.provider is postgres")
		}
	default:
		return invalid("ledger.provider must be memory or postgres")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return invalid("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// RequireYear fails unless year is one of input.year.
func (c Config) RequireYear(year string) error {
	if !slices.Contains(c.Input.Year, year) {
		return invalid("year must be one of: %s", strings.Join(c.Input.Year, ", "))
	}
	return nil
}

// RequireGeography fails unless geography is one of input.census.geography.
func (c Config) RequireGeography(geography string) error {
	if !slices.Contains(c.Input.Census.Geography, geography) {
		return invalid("geography must be one of: %s", strings.Join(c.Input.Census.Geography, ", "))
	}
	return nil
}

// Timeout converts http.timeout_seconds to a duration. Zero means none.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
