package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "taskwatch.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TASKWATCH_PORT")
	setString(&cfg.Server.CORSOrigin, "TASKWATCH_CORS_ORIGIN")

	setString(&cfg.API.BaseURL, "TASKWATCH_API_URL")
	setString(&cfg.API.EventsPath, "TASKWATCH_API_EVENTS_PATH")
	setString(&cfg.API.SnapshotPath, "TASKWATCH_API_SNAPSHOT_PATH")
	setDuration(&cfg.API.FetchTimeout, "TASKWATCH_API_FETCH_TIMEOUT")
	setInt(&cfg.API.MaxFrameMB, "TASKWATCH_API_MAX_FRAME_MB")

	setString(&cfg.Logging.Level, "TASKWATCH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TASKWATCH_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TASKWATCH_LOG_ASYNC")
	setInt(&cfg.Logging.BufferSize, "TASKWATCH_LOG_BUFFER")
	setInt(&cfg.Logging.Workers, "TASKWATCH_LOG_WORKERS")

	setInt(&cfg.Breaker.MaxFailures, "TASKWATCH_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TASKWATCH_BREAKER_TIMEOUT")

	setInt64(&cfg.Cache.MaxSizeMB, "TASKWATCH_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "TASKWATCH_CACHE_TTL")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.SubjectPrefix, "TASKWATCH_NATS_SUBJECT_PREFIX")

	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.ServiceName, "TASKWATCH_OTEL_SERVICE")
	setFloat64(&cfg.Telemetry.SampleRate, "TASKWATCH_OTEL_SAMPLE_RATE")
	setBool(&cfg.Telemetry.Insecure, "TASKWATCH_OTEL_INSECURE")

	setBool(&cfg.Render.Enabled, "TASKWATCH_RENDER")
	setInt(&cfg.Render.MaxSteps, "TASKWATCH_RENDER_MAX_STEPS")
	setBool(&cfg.Render.Color, "TASKWATCH_RENDER_COLOR")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if !strings.Contains(cfg.API.EventsPath, "%s") {
		return errors.New("api.events_path must contain %s")
	}
	if !strings.Contains(cfg.API.SnapshotPath, "%s") {
		return errors.New("api.snapshot_path must contain %s")
	}
	if cfg.API.FetchTimeout <= 0 {
		return errors.New("api.fetch_timeout must be > 0")
	}
	if cfg.API.MaxFrameMB < 1 {
		return errors.New("api.max_frame_mb must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Logging.Async && (cfg.Logging.BufferSize < 1 || cfg.Logging.Workers < 1) {
		return errors.New("logging.buffer_size and logging.workers must be >= 1 when async")
	}
	if cfg.Cache.MaxSizeMB < 1 {
		return errors.New("cache.max_size_mb must be >= 1")
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return errors.New("telemetry.sample_rate must be within [0, 1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
