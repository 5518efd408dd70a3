package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const stopTimeout = 5 * time.Second

// runner is the lifecycle half of the server returned by gmqtt.NewServer.
// gmqtt.Server only covers the plugin-facing API.
type runner interface {
	Run()
	Stop(ctx context.Context) error
}

// BrokerService runs an embedded MQTT broker, so the fridge emitter in broker
// mode has somewhere to publish without an external Thingsboard instance.
type BrokerService struct {
	listen string
	logger zerolog.Logger

	mu       sync.Mutex
	server   runner
	listener net.Listener
	plugin   *telemetryPlugin
}

// NewBrokerService initializes a BrokerService listening on listen.
func NewBrokerService(listen string, logger zerolog.Logger) *BrokerService {
	return &BrokerService{
		listen: listen,
		logger: logger,
	}
}

// Start opens the listener and runs the broker in the background.
func (b *BrokerService) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.server != nil {
		b.logger.Warn().Msg("BrokerService is already running")
		return errors.New("broker service is already running")
	}

	ln, err := net.Listen("tcp", b.listen)
	if err != nil {
		return err
	}

	b.plugin = &telemetryPlugin{logger: b.logger}
	b.listener = ln
	srv := gmqtt.NewServer(
		gmqtt.WithTCPListener(ln),
		gmqtt.WithPlugin(b.plugin),
	)
	srv.Run()
	b.server = srv

	b.logger.Info().Str("addr", ln.Addr().String()).Msg("BrokerService started successfully")
	return nil
}

// Stop shuts the broker down and closes client connections.
func (b *BrokerService) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.server == nil {
		b.logger.Warn().Msg("BrokerService is not running")
		return errors.New("broker service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := b.server.Stop(ctx)

	b.server = nil
	b.listener = nil
	if err != nil {
		b.logger.Error().Err(err).Msg("BrokerService did not stop cleanly")
		return fmt.Errorf("failed to stop broker: %w", err)
	}
	b.logger.Info().Msg("BrokerService stopped successfully")
	return nil
}

// Addr returns the address the broker listens on, or "" when stopped.
func (b *BrokerService) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Received returns the number of telemetry messages accepted since Start.
func (b *BrokerService) Received() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.plugin == nil {
		return 0
	}
	return b.plugin.received.Load()
}

// telemetryPlugin logs arriving telemetry and drops payloads that are not JSON.
type telemetryPlugin struct {
	logger   zerolog.Logger
	received atomic.Int64
}

func (p *telemetryPlugin) Load(service gmqtt.Server) error {
	return nil
}

func (p *telemetryPlugin) Unload() error {
	return nil
}

func (p *telemetryPlugin) Name() string { return "kitchen telemetry" }

func (p *telemetryPlugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnMsgArrivedWrapper: p.OnMsgArrivedWrapper,
	}
}

// OnMsgArrivedWrapper counts telemetry and rejects non-JSON payloads.
func (p *telemetryPlugin) OnMsgArrivedWrapper(arrived gmqtt.OnMsgArrived) gmqtt.OnMsgArrived {
	return func(ctx context.Context, client gmqtt.Client, msg packets.Message) (valid bool) {
		clientID := client.OptionsReader().ClientID()
		if !json.Valid(msg.Payload()) {
			p.logger.Warn().Str("client", clientID).Str("topic", msg.Topic()).Msg("Dropped telemetry that is not JSON")
			return false
		}

		p.received.Add(1)
		p.logger.Info().
			Str("client", clientID).
			Str("topic", msg.Topic()).
			RawJSON("payload", msg.Payload()).
			Msg("Telemetry received")
		return arrived(ctx, client, msg)
	}
}
