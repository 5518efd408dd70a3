package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/benmeehan/kitchen-simulator/internal/constants"
	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/benmeehan/kitchen-simulator/pkg/file"
	"github.com/rs/zerolog"
)

// SupportedConfigVersions is the semver constraint a configuration file must satisfy.
const SupportedConfigVersions = "^1"

// EmitterConfig holds the defaults an emitter is mounted with.
type EmitterConfig struct {
	DeviceID      string        `yaml:"device_id"`      // Catalog identifier, e.g. device-001
	Device        string        `yaml:"device"`         // Human readable device name
	DeviceType    string        `yaml:"device_type"`    // Catalog type, e.g. camera or refrigerator
	Method        string        `yaml:"method"`         // HTTP method (HTTP emitter only)
	Endpoint      string        `yaml:"endpoint"`       // HTTP endpoint (HTTP emitter only)
	Broker        string        `yaml:"broker"`         // MQTT broker URI (MQTT emitter only)
	Topic         string        `yaml:"topic"`          // MQTT topic (MQTT emitter only)
	QOS           int           `yaml:"qos"`            // MQTT QoS level (MQTT emitter only)
	Payload       string        `yaml:"payload"`        // Initial payload text
	Interval      time.Duration `yaml:"interval"`       // One of the allowed send intervals, 0 for off
	PayloadSchema string        `yaml:"payload_schema"` // Optional path to a JSON schema for the payload
}

// Config represents the structure of the configuration file.
type Config struct {
	Version string `yaml:"version"` // Configuration format version

	Log struct {
		Level  string `yaml:"level"`  // zerolog level name
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`

	API struct {
		Enabled         bool     `yaml:"enabled"`           // Enable/disable the control API
		Listen          string   `yaml:"listen"`            // Listen address of the control API
		ManualSendRate  float64  `yaml:"manual_send_rate"`  // Manual sends allowed per second
		ManualSendBurst int      `yaml:"manual_send_burst"` // Burst size for manual sends
		CORSOrigins     []string `yaml:"cors_origins"`      // Allowed browser origins
	} `yaml:"api"`

	HTTP struct {
		Timeout time.Duration `yaml:"timeout"` // Request timeout of the HTTP emitter, 0 for none
	} `yaml:"http"`

	MQTT struct {
		Mode           string        `yaml:"mode"`            // simulated or broker
		ClientID       string        `yaml:"client_id"`       // MQTT client ID prefix
		Username       string        `yaml:"username"`        // Device access token
		Password       string        `yaml:"password"`        // Optional password
		CACertificate  string        `yaml:"ca_certificate"`  // Optional path to the CA certificate
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // Timeout for establishing a broker connection
	} `yaml:"mqtt"`

	Broker struct {
		Enabled bool   `yaml:"enabled"` // Run an embedded MQTT broker
		Listen  string `yaml:"listen"`  // Listen address of the embedded broker
	} `yaml:"broker"`

	Emitters struct {
		Camera EmitterConfig `yaml:"camera"`
		Fridge EmitterConfig `yaml:"fridge"`
	} `yaml:"emitters"`

	Status struct {
		models.StatusConfig `yaml:",inline"`

		Timeout time.Duration `yaml:"timeout"` // Timeout for collecting host status
	} `yaml:"status"`
}

const (
	defaultCameraPayload = `{
  "shopping_note": "osta 2 tomaattia, osta maito, munat, leipä"
}`
	defaultFridgePayload = `{
  "items": ["maito", "juusto", "tomaatti", "kurkku", "voi"],
  "item_count": 5
}`
)

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	var config Config
	config.Version = "1.0"

	config.Log.Level = "info"
	config.Log.Format = "console"

	config.API.Enabled = true
	config.API.Listen = "127.0.0.1:8080"
	config.API.ManualSendRate = 2
	config.API.ManualSendBurst = 4
	config.API.CORSOrigins = []string{"*"}

	config.MQTT.Mode = constants.MQTTModeSimulated
	config.MQTT.ClientID = "kitchen-simulator"
	config.MQTT.Username = "YOUR_DEVICE_ACCESS_TOKEN"
	config.MQTT.ConnectTimeout = 10 * time.Second

	config.Broker.Listen = ":1883"

	config.Emitters.Camera = EmitterConfig{
		DeviceID:   "device-001",
		Device:     "Smart Shopping Camera",
		DeviceType: "camera",
		Method:     "POST",
		Endpoint:   "http://localhost:9090/api/v1/YOUR_DEVICE_ACCESS_TOKEN/telemetry",
		Payload:    defaultCameraPayload,
		Interval:   constants.IntervalOff,
	}
	config.Emitters.Fridge = EmitterConfig{
		DeviceID:   "device-002",
		Device:     "Smart Fridge Inventory",
		DeviceType: "refrigerator",
		Broker:     "tcp://localhost:1883",
		Topic:      "v1/devices/me/telemetry",
		QOS:        1,
		Payload:    defaultFridgePayload,
		Interval:   constants.IntervalOff,
	}

	config.Status.Timeout = 2 * time.Second
	config.Status.MonitorCPU = true
	config.Status.MonitorMemory = true
	config.Status.MonitorGoroutines = true

	return &config
}

// LoadConfig loads the YAML configuration from the specified file on top of
// DefaultConfig and validates the result. A missing file yields the defaults.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	if filename != "" {
		exists, err := fileClient.IsFileExists(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if exists {
			if err := fileClient.ReadYamlFile(filename, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate checks enumerated values and the configuration version.
func (c *Config) Validate() error {
	var errs []error

	constraint, err := semver.NewConstraint(SupportedConfigVersions)
	if err != nil {
		return err
	}
	version, err := semver.NewVersion(c.Version)
	if err != nil {
		errs = append(errs, fmt.Errorf("version %q: %w", c.Version, err))
	} else if !constraint.Check(version) {
		errs = append(errs, fmt.Errorf("version %s is not supported, want %s", version, SupportedConfigVersions))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}

	if c.MQTT.Mode != constants.MQTTModeSimulated && c.MQTT.Mode != constants.MQTTModeBroker {
		errs = append(errs, fmt.Errorf("mqtt.mode %q must be %s or %s", c.MQTT.Mode, constants.MQTTModeSimulated, constants.MQTTModeBroker))
	}
	if c.API.Enabled && c.API.Listen == "" {
		errs = append(errs, errors.New("api.listen is required when the API is enabled"))
	}
	if c.Broker.Enabled && c.Broker.Listen == "" {
		errs = append(errs, errors.New("broker.listen is required when the broker is enabled"))
	}

	methods := toSet(constants.HTTPMethods)
	if _, ok := methods[c.Emitters.Camera.Method]; !ok {
		errs = append(errs, fmt.Errorf("emitters.camera.method %q is not one of %v", c.Emitters.Camera.Method, constants.HTTPMethods))
	}

	intervals := toSet(constants.Intervals)
	for name, ec := range map[string]EmitterConfig{
		constants.CameraEmitter: c.Emitters.Camera,
		constants.FridgeEmitter: c.Emitters.Fridge,
	} {
		if _, ok := intervals[ec.Interval]; !ok {
			errs = append(errs, fmt.Errorf("emitters.%s.interval %s is not one of %v", name, ec.Interval, constants.Intervals))
		}
	}
	if q := c.Emitters.Fridge.QOS; q < 0 || q > 2 {
		errs = append(errs, fmt.Errorf("emitters.fridge.qos %d must be 0, 1 or 2", q))
	}

	return errors.Join(errs...)
}

func toSet[T comparable](values []T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
