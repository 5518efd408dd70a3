package metrics_collectors

import (
	"context"
	"errors"

	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
)

// CPUMetricCollector reports host CPU utilisation.
type CPUMetricCollector struct {
	Logger zerolog.Logger
}

func (c *CPUMetricCollector) Name() string {
	return "cpu"
}

func (c *CPUMetricCollector) Collect(ctx context.Context) (float64, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, errors.New("cpu usage data is empty")
	}

	c.Logger.Debug().Float64("cpu_usage", percentages[0]).Msg("CPU usage collected")
	return percentages[0], nil
}

func (c *CPUMetricCollector) IsEnabled(config *models.StatusConfig) bool {
	return config.MonitorCPU
}

func (c *CPUMetricCollector) Unit() string {
	return "percentage"
}
