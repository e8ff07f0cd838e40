package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/originblock/blockcache/internal/bytesize"
)

const defaultMaxCoverageBlockSkipSize = 5 * bytesize.MiB

// ApplyDefaults fills in zero-valued configuration fields with sensible
// defaults after loading from file and environment.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyCacheDefaults(&cfg.Cache)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)

	// No defaults for Origins: an empty origin registry is valid (every
	// request 404s), but silently inventing an origin would be wrong.
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8081
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Root == "" {
		cfg.Root = "/var/lib/blockcache"
	}
	if cfg.DefaultBlockSize == 0 {
		cfg.DefaultBlockSize = 4 * bytesize.MiB
	}
	if cfg.MaxCoverageBlockSkipSize == 0 {
		cfg.MaxCoverageBlockSkipSize = defaultMaxCoverageBlockSkipSize
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a fully-defaulted Config, used when no
// configuration file is found and for `blockcached init`'s starter file.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Origins: []OriginConfig{},
	}
	ApplyDefaults(cfg)
	return cfg
}
