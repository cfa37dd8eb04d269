// Package config loads service configuration from an optional YAML file,
// an optional .env file and DEBRISWATCH_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Collision CollisionConfig `yaml:"collision"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Stream    StreamConfig    `yaml:"stream"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	TrustProxy        bool          `yaml:"trust_proxy"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type CatalogConfig struct {
	Source        string        `yaml:"source"`
	CacheDir      string        `yaml:"cache_dir"`
	MaxFiles      int           `yaml:"max_files"`
	MaxSizeMB     int           `yaml:"max_size_mb"`
	ListLimit     int           `yaml:"list_limit"`
	LoadAttempts  uint          `yaml:"load_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	S3            S3Config      `yaml:"s3"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ForecastConfig struct {
	DefaultHours int     `yaml:"default_hours"`
	MaxHours     int     `yaml:"max_hours"`
	NoiseSigma   float64 `yaml:"noise_sigma"`
	Seed         uint64  `yaml:"seed"`
}

type CollisionConfig struct {
	Seed        uint64 `yaml:"seed"`
	ScreenLimit int    `yaml:"screen_limit"`
	Workers     int    `yaml:"workers"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type StreamConfig struct {
	MaxConcurrentPerIP int           `yaml:"max_concurrent_per_ip"`
	MaxTotal           int           `yaml:"max_total"`
	Interval           time.Duration `yaml:"interval"`
	KeepaliveInterval  time.Duration `yaml:"keepalive_interval"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
	ServiceName string  `yaml:"service_name"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json | text
	Output     string `yaml:"output"` // stdout | stderr | file path
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
		},
		Catalog: CatalogConfig{
			Source:        "data/satellites.csv",
			CacheDir:      "cache/catalog",
			MaxFiles:      5,
			MaxSizeMB:     64,
			ListLimit:     50,
			LoadAttempts:  3,
			RetryInterval: time.Second,
		},
		Forecast: ForecastConfig{
			DefaultHours: 24,
			MaxHours:     720,
			NoiseSigma:   10,
		},
		Collision: CollisionConfig{
			ScreenLimit: 100,
			Workers:     runtime.NumCPU(),
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     5,
			Burst:   10,
		},
		Stream: StreamConfig{
			MaxConcurrentPerIP: 10,
			MaxTotal:           1000,
			Interval:           time.Second,
			KeepaliveInterval:  15 * time.Second,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			SampleRatio: 1.0,
			ServiceName: "debriswatch",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding values already set. Missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is set and the file exists), then environment overrides. Invalid
// environment values are logged and ignored.
func Load(path string, logger *slog.Logger) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("config file not found, using defaults", "component", "config", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse YAML: %w", err)
			}
		}
	}

	applyEnv(&cfg, logger)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot be served.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		errs = append(errs, errors.New("auth.token is required when auth is enabled"))
	}
	if strings.TrimSpace(c.Catalog.Source) == "" {
		errs = append(errs, errors.New("catalog.source is required"))
	}
	if c.Catalog.MaxSizeMB < 1 {
		errs = append(errs, fmt.Errorf("catalog.max_size_mb must be positive, got %d", c.Catalog.MaxSizeMB))
	}
	if c.Catalog.ListLimit < 1 {
		errs = append(errs, fmt.Errorf("catalog.list_limit must be positive, got %d", c.Catalog.ListLimit))
	}
	if c.Forecast.MaxHours < 1 {
		errs = append(errs, fmt.Errorf("forecast.max_hours must be positive, got %d", c.Forecast.MaxHours))
	}
	if c.Forecast.DefaultHours < 1 || c.Forecast.DefaultHours > c.Forecast.MaxHours {
		errs = append(errs, fmt.Errorf("forecast.default_hours must be in [1, %d], got %d", c.Forecast.MaxHours, c.Forecast.DefaultHours))
	}
	if c.Forecast.NoiseSigma < 0 {
		errs = append(errs, fmt.Errorf("forecast.noise_sigma must not be negative, got %g", c.Forecast.NoiseSigma))
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.rps must be positive, got %g", c.RateLimit.RPS))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be in [0, 1], got %g", c.Tracing.SampleRatio))
	}
	return errors.Join(errs...)
}
