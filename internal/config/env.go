package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "DEBRISWATCH_"

func applyEnv(cfg *Config, logger *slog.Logger) {
	e := envReader{logger: logger}

	e.setString("HTTP_ADDR", &cfg.Server.Addr)
	e.setDuration("HTTP_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.setBool("TRUST_PROXY", &cfg.Server.TrustProxy)
	if v, ok := e.lookup("CORS_ORIGINS"); ok {
		cfg.Server.CORSOrigins = splitList(v)
	}

	e.setBool("AUTH_ENABLED", &cfg.Auth.Enabled)
	e.setString("AUTH_TOKEN", &cfg.Auth.Token)

	e.setString("CATALOG_SOURCE", &cfg.Catalog.Source)
	e.setString("CATALOG_CACHE_DIR", &cfg.Catalog.CacheDir)
	e.setInt("CATALOG_MAX_FILES", &cfg.Catalog.MaxFiles, 1)
	e.setInt("CATALOG_MAX_SIZE_MB", &cfg.Catalog.MaxSizeMB, 1)
	e.setInt("CATALOG_LIST_LIMIT", &cfg.Catalog.ListLimit, 1)
	e.setUint("CATALOG_LOAD_ATTEMPTS", &cfg.Catalog.LoadAttempts)
	e.setString("S3_REGION", &cfg.Catalog.S3.Region)
	e.setString("S3_ENDPOINT", &cfg.Catalog.S3.Endpoint)
	e.setString("S3_ACCESS_KEY_ID", &cfg.Catalog.S3.AccessKeyID)
	e.setString("S3_SECRET_ACCESS_KEY", &cfg.Catalog.S3.SecretAccessKey)

	e.setInt("FORECAST_DEFAULT_HOURS", &cfg.Forecast.DefaultHours, 1)
	e.setInt("FORECAST_MAX_HOURS", &cfg.Forecast.MaxHours, 1)
	e.setFloat("FORECAST_NOISE_SIGMA", &cfg.Forecast.NoiseSigma, 0)
	e.setUint64("FORECAST_SEED", &cfg.Forecast.Seed)

	e.setUint64("COLLISION_SEED", &cfg.Collision.Seed)
	e.setInt("COLLISION_SCREEN_LIMIT", &cfg.Collision.ScreenLimit, 1)
	e.setInt("COLLISION_WORKERS", &cfg.Collision.Workers, 1)

	e.setBool("RATELIMIT_ENABLED", &cfg.RateLimit.Enabled)
	e.setFloat("RATELIMIT_RPS", &cfg.RateLimit.RPS, 0)
	e.setInt("RATELIMIT_BURST", &cfg.RateLimit.Burst, 1)

	e.setInt("STREAM_MAX_PER_IP", &cfg.Stream.MaxConcurrentPerIP, 1)
	e.setDuration("STREAM_INTERVAL", &cfg.Stream.Interval)
	e.setDuration("STREAM_KEEPALIVE", &cfg.Stream.KeepaliveInterval)

	e.setBool("TRACING_ENABLED", &cfg.Tracing.Enabled)
	e.setString("TRACING_EXPORTER", &cfg.Tracing.Exporter)
	e.setString("OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	e.setFloat("TRACING_SAMPLE_RATIO", &cfg.Tracing.SampleRatio, 0)

	e.setString("LOG_LEVEL", &cfg.Log.Level)
	e.setString("LOG_FORMAT", &cfg.Log.Format)
	e.setString("LOG_OUTPUT", &cfg.Log.Output)
}

// envReader applies DEBRISWATCH_* overrides. A value that does not parse is
// logged at WARN and the current value is kept.
type envReader struct {
	logger *slog.Logger
}

func (e envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e envReader) warn(name, v string, current any) {
	e.logger.Warn("invalid "+envPrefix+name+" value, using default",
		"component", "config",
		"value", v,
		"default", current,
	)
}

func (e envReader) setString(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e envReader) setBool(name string, dst *bool) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.warn(name, v, *dst)
		return
	}
	*dst = b
}

func (e envReader) setInt(name string, dst *int, lo int) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo {
		e.warn(name, v, *dst)
		return
	}
	*dst = n
}

func (e envReader) setUint(name string, dst *uint) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		e.warn(name, v, *dst)
		return
	}
	*dst = uint(n)
}

func (e envReader) setUint64(name string, dst *uint64) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.warn(name, v, *dst)
		return
	}
	*dst = n
}

func (e envReader) setFloat(name string, dst *float64, lo float64) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < lo {
		e.warn(name, v, *dst)
		return
	}
	*dst = f
}

func (e envReader) setDuration(name string, dst *time.Duration) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		e.warn(name, v, dst.String())
		return
	}
	*dst = d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
