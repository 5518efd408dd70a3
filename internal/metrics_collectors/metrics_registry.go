package metrics_collectors

import (
	"sort"

	"github.com/rs/zerolog"
)

// MetricsRegistry holds the host collectors served on the status endpoint.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
}

// NewDefaultRegistry returns a registry with the cpu, memory and goroutine collectors.
func NewDefaultRegistry(logger zerolog.Logger) *MetricsRegistry {
	r := NewMetricsRegistry()
	r.Register(&CPUMetricCollector{Logger: logger})
	r.Register(&MemoryMetricCollector{Logger: logger})
	r.Register(&GoroutineMetricCollector{Logger: logger})
	return r
}

// Register adds a metric collector, replacing any collector with the same name.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors[collector.Name()] = collector
}

// GetCollectors returns all the metric collectors registered in the registry.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	return r.collectors
}

// Names returns the registered collector names in sorted order.
func (r *MetricsRegistry) Names() []string {
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
