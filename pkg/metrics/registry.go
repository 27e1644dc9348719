// Package metrics provides Prometheus metrics collection for DittoHTTP.
//
// All metrics are optional: when the registry is not initialized, components
// receive no-op implementations and pay nothing for them.
//
// Usage:
//
//	metrics.InitRegistry()
//	httpMetrics := prometheus.NewHTTPMetrics()
//	adapter := http1.New(cfg, httpMetrics)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry. Later calls are ignored.
//
// Go runtime and process collectors are registered alongside the server's
// own metrics.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
