package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/originblock/blockcache/internal/bytesize"
)

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != ":8080" {
		t.Errorf("ListenAddress = %q, want :8080", cfg.Server.ListenAddress)
	}
	if cfg.Server.Workers != runtime.NumCPU() {
		t.Errorf("Workers = %d, want %d", cfg.Server.Workers, runtime.NumCPU())
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.API.Port != 8081 {
		t.Errorf("API.Port = %d, want 8081", cfg.Server.API.Port)
	}
}

func TestApplyDefaults_Cache(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Cache.Root != "/var/lib/blockcache" {
		t.Errorf("Root = %q, want /var/lib/blockcache", cfg.Cache.Root)
	}
	if cfg.Cache.DefaultBlockSize != 4*bytesize.MiB {
		t.Errorf("DefaultBlockSize = %d, want %d", cfg.Cache.DefaultBlockSize, 4*bytesize.MiB)
	}
	if cfg.Cache.MaxCoverageBlockSkipSize != 5*bytesize.MiB {
		t.Errorf("MaxCoverageBlockSkipSize = %d, want %d", cfg.Cache.MaxCoverageBlockSkipSize, 5*bytesize.MiB)
	}
}

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Format = %q, want text", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Output = %q, want stdout", cfg.Logging.Output)
	}
}

func TestApplyDefaults_LoggingLevelNormalizedToUppercase(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Level = %q, want normalized DEBUG", cfg.Logging.Level)
	}
}

func TestApplyDefaults_Telemetry(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Endpoint = %q, want localhost:4317", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v, want 1.0", cfg.Telemetry.SampleRate)
	}
	if cfg.Telemetry.Profiling.Endpoint != "http://localhost:4040" {
		t.Errorf("Profiling.Endpoint = %q, want http://localhost:4040", cfg.Telemetry.Profiling.Endpoint)
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		t.Error("Profiling.ProfileTypes should default to a non-empty list")
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Metrics.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_OriginsNotInvented(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Origins != nil {
		t.Errorf("Origins = %+v, want nil (no origin should be invented)", cfg.Origins)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddress:   ":1234",
			Workers:         7,
			ShutdownTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			Root:                     "/explicit/root",
			DefaultBlockSize:         bytesize.MiB,
			MaxCoverageBlockSkipSize: bytesize.MiB,
		},
		Logging: LoggingConfig{
			Level:  "WARN",
			Format: "json",
			Output: "/var/log/blockcache.log",
		},
	}

	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != ":1234" {
		t.Errorf("ListenAddress overwritten: %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.Workers != 7 {
		t.Errorf("Workers overwritten: %d", cfg.Server.Workers)
	}
	if cfg.Cache.Root != "/explicit/root" {
		t.Errorf("Cache.Root overwritten: %q", cfg.Cache.Root)
	}
	if cfg.Cache.DefaultBlockSize != bytesize.MiB {
		t.Errorf("DefaultBlockSize overwritten: %d", cfg.Cache.DefaultBlockSize)
	}
	if cfg.Cache.MaxCoverageBlockSkipSize != bytesize.MiB {
		t.Errorf("MaxCoverageBlockSkipSize overwritten: %d", cfg.Cache.MaxCoverageBlockSkipSize)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format overwritten: %q", cfg.Logging.Format)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("default config should pass validation, got: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.ListenAddress == "" {
		t.Error("default config missing listen address")
	}
	if cfg.Cache.Root == "" {
		t.Error("default config missing cache root")
	}
	if cfg.Logging.Level == "" {
		t.Error("default config missing logging level")
	}
	if cfg.Origins == nil {
		t.Error("default config should have a non-nil (possibly empty) origin slice")
	}
}
