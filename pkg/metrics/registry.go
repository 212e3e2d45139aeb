// Package metrics provides Prometheus metrics collection for objfs components.
//
// All metrics are optional. If the registry is not initialized, constructors
// return no-op implementations, so the filesystem and the stores run the same
// way with or without collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	fsMetrics := metrics.NewFSMetrics()
//	storeMetrics := metrics.NewStoreMetrics("badger")
//
//	// Or use nil for no-op behavior
//	fs, err := vfs.New(ctx, st, vfs.Options{}) // No metrics
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all objfs metrics.
	// Protected by registryOnce for write-once, read-many.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// It must be called before creating any metrics instances and is safe to
// call multiple times.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// status labels an outcome for counters.
func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
