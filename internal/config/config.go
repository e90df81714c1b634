// Package config holds the runtime's process configuration: a struct of
// structs with JSON-file and environment-variable overrides, in the
// same two-layer style the teacher uses (DefaultConfig, then
// LoadFromFile/LoadFromEnv applied on top). The single daemon process
// described by SPEC_FULL.md needs far less here than the teacher's VM
// pool/Firecracker/gRPC configuration did — the only file format read is
// the optional JSON file loaded by LoadFromFile, and these are the flat
// process knobs the SPEC_FULL.md components read, not a user-facing
// deployment manifest.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageConfig locates the ArtifactStore's root directory (§4.2).
type StorageConfig struct {
	Root string `json:"root"`
}

// ServerConfig holds the Gateway's listen address and configured tenant
// (§4.8, §6 "the tenant is the server's configured username").
type ServerConfig struct {
	Addr   string `json:"addr"`
	Tenant string `json:"tenant"`
}

// InvokerConfig holds Invoker limits (§4.7).
type InvokerConfig struct {
	DefaultTimeout time.Duration `json:"default_timeout"` // top-level-call timeout; RAIKIRI_TIMEOUT overrides
	MaxCallDepth   int           `json:"max_call_depth"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Exporter    string  `json:"exporter"`     // otlp-http, stdout
	Endpoint    string  `json:"endpoint"`     // localhost:4318
	ServiceName string  `json:"service_name"` // raikiri
	SampleRate  float64 `json:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled          bool      `json:"enabled"`
	Namespace        string    `json:"namespace"`
	HistogramBuckets []float64 `json:"histogram_buckets"` // latency buckets in ms
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `json:"level"`  // debug, info, warn, error
	Format         string `json:"format"` // text, json
	IncludeTraceID bool   `json:"include_trace_id"`
}

// ObservabilityConfig groups every observability knob (carried
// regardless of the feature Non-goals: structured logging, metrics, and
// tracing are ambient infrastructure, not a mitigation the spec
// excludes).
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// Config is the root configuration tree.
type Config struct {
	Storage       StorageConfig       `json:"storage"`
	Server        ServerConfig        `json:"server"`
	Invoker       InvokerConfig       `json:"invoker"`
	Observability ObservabilityConfig `json:"observability"`
}

// DefaultConfig returns a Config with sensible defaults (§4.2 "Root
// defaults to $HOME/.raikiri").
func DefaultConfig() *Config {
	root := os.Getenv("HOME")
	if root == "" {
		root = "."
	}
	return &Config{
		Storage: StorageConfig{
			Root: root + "/.raikiri",
		},
		Server: ServerConfig{
			Addr:   ":8080",
			Tenant: defaultTenant(),
		},
		Invoker: InvokerConfig{
			DefaultTimeout: 300 * time.Millisecond,
			MaxCallDepth:   10,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "raikiri",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:          true,
				Namespace:        "raikiri",
				HistogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
		},
	}
}

func defaultTenant() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}

// LoadFromFile loads configuration from a JSON file, applied on top of
// DefaultConfig.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to cfg in place.
// RAIKIRI_TIMEOUT is read in milliseconds, matching the original
// implementation's env var of the same name (§4.7).
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("RAIKIRI_STORAGE_ROOT"); v != "" {
		cfg.Storage.Root = v
	}
	if v := os.Getenv("RAIKIRI_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("RAIKIRI_TENANT"); v != "" {
		cfg.Server.Tenant = v
	}
	if v := os.Getenv("RAIKIRI_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Invoker.DefaultTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("RAIKIRI_MAX_CALL_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Invoker.MaxCallDepth = n
		}
	}

	if v := os.Getenv("RAIKIRI_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("RAIKIRI_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("RAIKIRI_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("RAIKIRI_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("RAIKIRI_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("RAIKIRI_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
