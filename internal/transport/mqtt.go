package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/kitchen-simulator/internal/emitter"
	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/benmeehan/kitchen-simulator/pkg/file"
	"github.com/benmeehan/kitchen-simulator/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// disconnectQuiesce is the time in milliseconds given to in-flight work on disconnect.
const disconnectQuiesce = 250

// ClientFactory returns a connected MQTT client for broker.
type ClientFactory func(broker string) (mqtt.MQTTClient, error)

// BrokerClientFactory connects a new paho client per broker using base for
// everything except the broker URI. Client IDs get a random suffix so two
// simulators can share a broker.
func BrokerClientFactory(base mqtt.Options, fileClient file.FileOperations) ClientFactory {
	return func(broker string) (mqtt.MQTTClient, error) {
		opts := base
		opts.Broker = broker
		opts.ClientID = fmt.Sprintf("%s-%s", base.ClientID, uuid.New().String()[:8])

		service := mqtt.NewMqttService(fileClient)
		if err := service.Initialize(opts); err != nil {
			return nil, err
		}
		return service, nil
	}
}

// MQTTTransport publishes payloads to a real broker. Connections are opened
// on first use and kept per broker URI.
type MQTTTransport struct {
	factory ClientFactory
	logger  zerolog.Logger

	mu      sync.Mutex
	clients map[string]mqtt.MQTTClient
}

// NewMQTTTransport creates an MQTTTransport that connects through factory.
func NewMQTTTransport(factory ClientFactory, logger zerolog.Logger) *MQTTTransport {
	return &MQTTTransport{
		factory: factory,
		logger:  logger,
		clients: make(map[string]mqtt.MQTTClient),
	}
}

// Deliver publishes msg.Payload to msg.Target.MQTT and waits for the publish
// to complete or ctx to end.
func (t *MQTTTransport) Deliver(ctx context.Context, msg models.Message) error {
	target := msg.Target.MQTT
	if target == nil {
		return errors.New("message has no mqtt target")
	}

	client, err := t.client(target.Broker)
	if err != nil {
		return err
	}

	token := client.Publish(target.Topic, byte(target.QOS), false, msg.Payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s interrupted: %w", target.Topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", target.Topic, err)
	}

	t.logger.Debug().
		Str("emitter", msg.Emitter).
		Str("broker", target.Broker).
		Str("topic", target.Topic).
		Msg("MQTT payload published")
	return nil
}

func (t *MQTTTransport) client(broker string) (mqtt.MQTTClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if client, ok := t.clients[broker]; ok {
		return client, nil
	}

	client, err := t.factory(broker)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker %s: %w", broker, err)
	}
	t.clients[broker] = client
	t.logger.Info().Str("broker", broker).Msg("Connected to MQTT broker")
	return client, nil
}

// Close disconnects every open broker connection.
func (t *MQTTTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for broker, client := range t.clients {
		client.Disconnect(disconnectQuiesce)
		delete(t.clients, broker)
		t.logger.Info().Str("broker", broker).Msg("Disconnected from MQTT broker")
	}
}

// SimulatedMQTT stands in for a broker. Publishing succeeds only while the
// emitter is running, and nothing leaves the process.
type SimulatedMQTT struct {
	Logger zerolog.Logger
}

// Deliver accepts msg when the emitter was running at send time.
func (s SimulatedMQTT) Deliver(_ context.Context, msg models.Message) error {
	if !msg.Running {
		return emitter.ErrEmitterIdle
	}
	topic := ""
	if msg.Target.MQTT != nil {
		topic = msg.Target.MQTT.Topic
	}
	s.Logger.Debug().Str("emitter", msg.Emitter).Str("topic", topic).Msg("Simulated MQTT publish")
	return nil
}
