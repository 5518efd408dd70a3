package constants

import "time"

// EmitterKind identifies the transport family of an emitter.
type EmitterKind string

const (
	KindHTTP EmitterKind = "http"
	KindMQTT EmitterKind = "mqtt"
)

// Emitter names mounted by the simulation panel.
const (
	CameraEmitter = "camera"
	FridgeEmitter = "fridge"
)

// HistoryLimit is the number of most recent sends kept per emitter.
const HistoryLimit = 5

// Send intervals selectable for an emitter. IntervalOff disables auto-repeat.
const (
	IntervalOff        time.Duration = 0
	IntervalTenMinutes time.Duration = 10 * time.Minute
	IntervalOneHour    time.Duration = time.Hour
	IntervalFiveHours  time.Duration = 5 * time.Hour
	IntervalTwentyFour time.Duration = 24 * time.Hour
)

// Intervals lists every allowed send interval in ascending order.
var Intervals = []time.Duration{
	IntervalOff,
	IntervalTenMinutes,
	IntervalOneHour,
	IntervalFiveHours,
	IntervalTwentyFour,
}

// HTTPMethods lists the request methods the HTTP emitter may use.
var HTTPMethods = []string{"GET", "POST", "PUT", "DELETE"}

// Editable emitter fields.
const (
	FieldMethod   = "method"
	FieldEndpoint = "endpoint"
	FieldBroker   = "broker"
	FieldTopic    = "topic"
	FieldPayload  = "payload"
	FieldInterval = "interval"
)

// MQTT transport modes.
const (
	MQTTModeSimulated = "simulated"
	MQTTModeBroker    = "broker"
)

// Emitter states.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// Send outcomes reported to metrics.
const (
	OutcomeSuccess        = "success"
	OutcomePayloadError   = "payload_error"
	OutcomeTransportError = "transport_error"
	OutcomeSkippedIdle    = "skipped_idle"
)
