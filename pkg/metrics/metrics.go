// Package metrics wires Prometheus collectors for the cache pipeline behind
// an enabled flag, mirroring the enabled/no-op split internal/telemetry uses
// for tracing. pkg/metrics/prometheus registers constructors into this
// package at init time so metrics.go never imports the prometheus client
// library directly, avoiding an import cycle between the two packages.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and creates the Prometheus
// registry that constructors registered via RegisterXConstructor functions
// will register their collectors against. Calling it more than once
// replaces the registry; existing collector instances keep pointing at the
// old one.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Disable turns metrics collection back off. Used by tests to reset global
// state between cases.
func Disable() {
	mu.Lock()
	defer mu.Unlock()
	enabled = false
	registry = nil
}
