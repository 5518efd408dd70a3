package services

import (
	"context"
	"sync"
	"time"

	"github.com/benmeehan/kitchen-simulator/internal/metrics_collectors"
	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/benmeehan/kitchen-simulator/internal/utils"
	"github.com/rs/zerolog"
)

// StatusService reports host metrics of the simulator process on demand.
type StatusService struct {
	config   models.StatusConfig
	timeout  time.Duration
	registry *metrics_collectors.MetricsRegistry
	started  time.Time
	logger   zerolog.Logger
}

// NewStatusService initializes a StatusService. A nil registry gets the default collectors.
func NewStatusService(config models.StatusConfig, timeout time.Duration,
	registry *metrics_collectors.MetricsRegistry, logger zerolog.Logger) *StatusService {

	if registry == nil {
		registry = metrics_collectors.NewDefaultRegistry(logger)
	}
	return &StatusService{
		config:   config,
		timeout:  timeout,
		registry: registry,
		started:  time.Now(),
		logger:   logger,
	}
}

// Collect runs every enabled collector concurrently. A collector that fails
// or misses the timeout is left out of the result.
func (s *StatusService) Collect(ctx context.Context) *models.HostStatus {
	status := &models.HostStatus{
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Metrics:   make(map[string]models.Metric),
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	dispatcher := utils.NewDispatcher()
	var mu sync.Mutex

	for name, collector := range s.registry.GetCollectors() {
		if !collector.IsEnabled(&s.config) {
			continue
		}
		name, collector := name, collector
		dispatcher.Submit(func() {
			value, err := collector.Collect(ctx)
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				s.logger.Warn().Err(err).Str("collector", name).Msg("Failed to collect host metric")
				return
			}

			mu.Lock()
			defer mu.Unlock()
			status.Metrics[name] = models.Metric{Value: value, Unit: collector.Unit()}
		})
	}

	dispatcher.Wait()
	s.logger.Debug().Int("metrics", len(status.Metrics)).Msg("Host status collected")
	return status
}
