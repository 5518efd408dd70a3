package metrics_collectors

import (
	"context"
	"runtime"

	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/rs/zerolog"
)

// GoroutineMetricCollector counts live goroutines, which grows with in-flight sends.
type GoroutineMetricCollector struct {
	Logger zerolog.Logger
}

func (g *GoroutineMetricCollector) Name() string {
	return "goroutines"
}

func (g *GoroutineMetricCollector) Collect(_ context.Context) (float64, error) {
	n := float64(runtime.NumGoroutine())
	g.Logger.Debug().Float64("goroutines", n).Msg("Goroutine count collected")
	return n, nil
}

func (g *GoroutineMetricCollector) IsEnabled(config *models.StatusConfig) bool {
	return config.MonitorGoroutines
}

func (g *GoroutineMetricCollector) Unit() string {
	return "count"
}
