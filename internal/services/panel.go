package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benmeehan/kitchen-simulator/internal/constants"
	"github.com/benmeehan/kitchen-simulator/internal/emitter"
	"github.com/benmeehan/kitchen-simulator/internal/metrics"
	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/benmeehan/kitchen-simulator/internal/scheduler"
	"github.com/benmeehan/kitchen-simulator/internal/transport"
	"github.com/benmeehan/kitchen-simulator/internal/utils"
	"github.com/benmeehan/kitchen-simulator/pkg/file"
	"github.com/benmeehan/kitchen-simulator/pkg/mqtt"
	"github.com/benmeehan/kitchen-simulator/pkg/schema"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownEmitter  = errors.New("unknown emitter")
	ErrPanelNotMounted = errors.New("panel is not mounted")
)

// PanelService hosts the simulation panel: the camera and fridge emitters and
// the scheduler driving them. Starting the service mounts the panel with the
// configured defaults; stopping it unmounts the panel and discards all state.
type PanelService struct {
	config      *utils.Config
	fileClient  file.FileOperations
	clock       scheduler.Clock
	metrics     *metrics.Metrics
	mqttFactory transport.ClientFactory
	logger      zerolog.Logger

	mu        sync.RWMutex
	mounted   bool
	scheduler *scheduler.Scheduler
	emitters  cmap.ConcurrentMap[string, *emitter.Emitter]
	broker    *transport.MQTTTransport
}

// NewPanelService initializes a PanelService. A nil clock uses wall time, and
// a nil mqttFactory connects through paho when mqtt.mode is broker.
func NewPanelService(config *utils.Config, fileClient file.FileOperations, clock scheduler.Clock,
	m *metrics.Metrics, mqttFactory transport.ClientFactory, logger zerolog.Logger) *PanelService {

	if clock == nil {
		clock = scheduler.RealClock()
	}
	if mqttFactory == nil {
		mqttFactory = transport.BrokerClientFactory(mqtt.Options{
			ClientID:       config.MQTT.ClientID,
			Username:       config.MQTT.Username,
			Password:       config.MQTT.Password,
			CACertificate:  config.MQTT.CACertificate,
			ConnectTimeout: config.MQTT.ConnectTimeout,
		}, fileClient)
	}

	return &PanelService{
		config:      config,
		fileClient:  fileClient,
		clock:       clock,
		metrics:     m,
		mqttFactory: mqttFactory,
		logger:      logger,
		emitters:    cmap.New[*emitter.Emitter](),
	}
}

// Start mounts the panel.
func (p *PanelService) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mounted {
		p.logger.Warn().Msg("PanelService is already running")
		return errors.New("panel service is already running")
	}
	if err := p.mount(); err != nil {
		return err
	}

	p.logger.Info().Str("mqtt_mode", p.config.MQTT.Mode).Msg("PanelService started successfully")
	return nil
}

// Stop unmounts the panel. No scheduled send fires after Stop returns.
func (p *PanelService) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.mounted {
		p.logger.Warn().Msg("PanelService is not running")
		return errors.New("panel service is not running")
	}
	p.unmount()

	p.logger.Info().Msg("PanelService stopped successfully")
	return nil
}

// Reset unmounts and remounts the panel, restoring every emitter to its defaults.
func (p *PanelService) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.mounted {
		return ErrPanelNotMounted
	}
	p.unmount()
	if err := p.mount(); err != nil {
		return fmt.Errorf("failed to remount panel: %w", err)
	}

	p.logger.Info().Msg("Panel reset to defaults")
	return nil
}

func (p *PanelService) mount() error {
	sched := scheduler.NewScheduler(p.clock, p.logger)

	var fridgeTransport emitter.Transport = transport.SimulatedMQTT{Logger: p.logger}
	var broker *transport.MQTTTransport
	if p.config.MQTT.Mode == constants.MQTTModeBroker {
		broker = transport.NewMQTTTransport(p.mqttFactory, p.logger)
		fridgeTransport = broker
	}

	camera, err := p.newEmitter(constants.CameraEmitter, constants.KindHTTP, p.config.Emitters.Camera,
		transport.NewHTTPTransport(p.config.HTTP.Timeout, p.logger), sched)
	if err != nil {
		sched.Shutdown()
		return err
	}
	fridge, err := p.newEmitter(constants.FridgeEmitter, constants.KindMQTT, p.config.Emitters.Fridge,
		fridgeTransport, sched)
	if err != nil {
		sched.Shutdown()
		return err
	}

	p.scheduler = sched
	p.broker = broker
	p.emitters.Set(camera.Name(), camera)
	p.emitters.Set(fridge.Name(), fridge)
	p.mounted = true
	return nil
}

func (p *PanelService) newEmitter(name string, kind constants.EmitterKind, ec utils.EmitterConfig,
	tr emitter.Transport, sched *scheduler.Scheduler) (*emitter.Emitter, error) {

	opts := emitter.Options{
		Name:     name,
		Device:   ec.Device,
		Kind:     kind,
		Payload:  ec.Payload,
		Interval: ec.Interval,
	}
	if kind == constants.KindHTTP {
		opts.Target.HTTP = &models.HTTPTarget{Method: ec.Method, Endpoint: ec.Endpoint}
	} else {
		opts.Target.MQTT = &models.MQTTTarget{Broker: ec.Broker, Topic: ec.Topic, QOS: ec.QOS}
	}

	if ec.PayloadSchema != "" {
		text, err := p.fileClient.ReadFile(ec.PayloadSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload schema for %s: %w", name, err)
		}
		opts.Schema, err = schema.NewValidator(text)
		if err != nil {
			return nil, fmt.Errorf("failed to load payload schema for %s: %w", name, err)
		}
	}

	e, err := emitter.NewEmitter(opts, tr, sched, p.metrics, p.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s emitter: %w", name, err)
	}
	return e, nil
}

// unmount stops both emitters and the scheduler. Deliveries already in flight
// are left to finish against the discarded emitters.
func (p *PanelService) unmount() {
	for _, e := range p.emitters.Items() {
		e.Stop()
	}
	p.scheduler.Shutdown()
	if p.broker != nil {
		p.broker.Close()
	}

	p.emitters.Clear()
	p.scheduler = nil
	p.broker = nil
	p.mounted = false
}

// Emitter returns the mounted emitter called name.
func (p *PanelService) Emitter(name string) (*emitter.Emitter, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.mounted {
		return nil, ErrPanelNotMounted
	}
	e, ok := p.emitters.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEmitter, name)
	}
	return e, nil
}

// Emitters returns the mounted emitters ordered by name.
func (p *PanelService) Emitters() []*emitter.Emitter {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*emitter.Emitter, 0, p.emitters.Count())
	for _, e := range p.emitters.Items() {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Devices returns the device catalog. A device is online while its emitter runs.
func (p *PanelService) Devices() []models.Device {
	emitters := p.Emitters()
	devices := make([]models.Device, 0, len(emitters))

	for _, e := range emitters {
		ec := p.emitterConfig(e.Name())
		state := e.State()

		device := models.Device{
			ID:         ec.DeviceID,
			Name:       state.Device,
			Type:       ec.DeviceType,
			Protocol:   string(e.Kind()),
			Status:     "offline",
			LastActive: state.LastSent,
		}
		if state.Running {
			device.Status = "online"
		}
		if n := len(state.History); n > 0 {
			device.Data = json.RawMessage(state.History[n-1].Payload)
		}
		devices = append(devices, device)
	}
	return devices
}

// ConfigSnippet renders the device-side configuration for the emitter called name.
func (p *PanelService) ConfigSnippet(name string) (string, error) {
	e, err := p.Emitter(name)
	if err != nil {
		return "", err
	}
	return renderSnippet(e.State(), p.config.MQTT.Username)
}

func (p *PanelService) emitterConfig(name string) utils.EmitterConfig {
	if name == constants.FridgeEmitter {
		return p.config.Emitters.Fridge
	}
	return p.config.Emitters.Camera
}
