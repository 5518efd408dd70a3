package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/kitchen-simulator/internal/api"
	"github.com/benmeehan/kitchen-simulator/internal/broker"
	"github.com/benmeehan/kitchen-simulator/internal/metrics"
	"github.com/benmeehan/kitchen-simulator/internal/registry"
	"github.com/benmeehan/kitchen-simulator/internal/scheduler"
	"github.com/benmeehan/kitchen-simulator/internal/services"
	"github.com/benmeehan/kitchen-simulator/internal/transport"
	"github.com/benmeehan/kitchen-simulator/internal/utils"
	"github.com/benmeehan/kitchen-simulator/pkg/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Dependencies are the shared collaborators handed to services.
type Dependencies struct {
	FileClient  file.FileOperations
	Clock       scheduler.Clock         // Optional; wall time when nil
	MQTTFactory transport.ClientFactory // Optional; paho when nil
	Registry    *prometheus.Registry    // Optional; a fresh registry when nil
}

// ServiceRegistry manages the lifecycle of the simulator's services.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	panel       *services.PanelService
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new, empty service registry.
func NewServiceRegistry(logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]registry.Service),
		Logger:   logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Panel returns the registered panel service, or nil before RegisterServices.
func (sr *ServiceRegistry) Panel() *services.PanelService {
	return sr.panel
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
// The broker starts before the panel so a broker-mode fridge can reach it, and
// the API starts last because it serves the panel.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deps Dependencies) error {
	reg := deps.Registry
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	m := metrics.NewMetrics(reg)

	panel := services.NewPanelService(config, deps.FileClient, deps.Clock, m, deps.MQTTFactory, sr.Logger)
	status := services.NewStatusService(config.Status.StatusConfig, config.Status.Timeout, nil, sr.Logger)

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "broker",
			enabled: config.Broker.Enabled,
			constructor: func() (registry.Service, error) {
				return broker.NewBrokerService(config.Broker.Listen, sr.Logger), nil
			},
		},
		{
			name:    "panel",
			enabled: true,
			constructor: func() (registry.Service, error) {
				return panel, nil
			},
		},
		{
			name:    "api",
			enabled: config.API.Enabled,
			constructor: func() (registry.Service, error) {
				return api.NewAPIService(api.Options{
					Listen:          config.API.Listen,
					ManualSendRate:  config.API.ManualSendRate,
					ManualSendBurst: config.API.ManualSendBurst,
					CORSOrigins:     config.API.CORSOrigins,
					Gatherer:        reg,
				}, panel, status, sr.Logger), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.panel = panel
	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
