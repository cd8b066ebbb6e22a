// Package config provides hierarchical configuration loading for taskwatch.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the taskwatch client.
type Config struct {
	Server    Server    `yaml:"server"`
	API       API       `yaml:"api"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Cache     Cache     `yaml:"cache"`
	NATS      NATS      `yaml:"nats"`
	Telemetry Telemetry `yaml:"telemetry"`
	Render    Render    `yaml:"render"`
}

// Server holds the local HTTP surface configuration. An empty Port disables it.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// API describes the remote task backend.
type API struct {
	BaseURL      string        `yaml:"base_url"`
	EventsPath   string        `yaml:"events_path"`   // fmt template, receives the escaped task ID
	SnapshotPath string        `yaml:"snapshot_path"` // fmt template, receives the escaped task ID
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxFrameMB   int           `yaml:"max_frame_mb"` // largest accepted stream frame
}

// Logging holds structured logging configuration.
type Logging struct {
	Level      string `yaml:"level"`
	Service    string `yaml:"service"`
	Async      bool   `yaml:"async"`
	BufferSize int    `yaml:"buffer_size"`
	Workers    int    `yaml:"workers"`
}

// Breaker holds circuit breaker configuration for snapshot fetches.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds the in-process snapshot cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// NATS holds the optional snapshot mirror configuration. An empty URL disables it.
type NATS struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Telemetry holds OpenTelemetry configuration. An empty endpoint disables export.
type Telemetry struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Render holds terminal renderer configuration.
type Render struct {
	Enabled  bool `yaml:"enabled"`
	MaxSteps int  `yaml:"max_steps"` // 0 = show all
	Color    bool `yaml:"color"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8090",
			CORSOrigin: "http://localhost:3000",
		},
		API: API{
			BaseURL:      "http://localhost:8000",
			EventsPath:   "/tasks/%s/events",
			SnapshotPath: "/tasks/%s",
			FetchTimeout: 10 * time.Second,
			MaxFrameMB:   4,
		},
		Logging: Logging{
			Level:      "info",
			Service:    "taskwatch",
			BufferSize: 4096,
			Workers:    1,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			MaxSizeMB: 16,
			TTL:       time.Hour,
		},
		NATS: NATS{
			SubjectPrefix: "taskwatch.snapshot",
		},
		Telemetry: Telemetry{
			ServiceName: "taskwatch",
			SampleRate:  1.0,
			Insecure:    true,
		},
		Render: Render{
			Enabled: true,
			Color:   true,
		},
	}
}
