package models

import "time"

// HTTPTarget describes where the HTTP emitter sends its payload.
type HTTPTarget struct {
	Method   string `json:"method" yaml:"method"`     // GET, POST, PUT or DELETE
	Endpoint string `json:"endpoint" yaml:"endpoint"` // Full request URL
}

// MQTTTarget describes where the MQTT emitter publishes its payload.
type MQTTTarget struct {
	Broker string `json:"broker" yaml:"broker"` // Broker URI, e.g. tcp://localhost:1883
	Topic  string `json:"topic" yaml:"topic"`   // Publish topic
	QOS    int    `json:"qos" yaml:"qos"`       // MQTT QoS level
}

// Target is the destination of an emitter. Exactly one of HTTP or MQTT is set.
type Target struct {
	HTTP *HTTPTarget `json:"http,omitempty"`
	MQTT *MQTTTarget `json:"mqtt,omitempty"`
}

// Clone returns a deep copy so callers can hand the target to another goroutine.
func (t Target) Clone() Target {
	var out Target
	if t.HTTP != nil {
		h := *t.HTTP
		out.HTTP = &h
	}
	if t.MQTT != nil {
		m := *t.MQTT
		out.MQTT = &m
	}
	return out
}

// HistoryEntry is one successfully sent payload.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   string    `json:"payload"` // Payload text as typed by the user
}

// Message is a validated payload ready for a transport.
type Message struct {
	Emitter string
	Target  Target
	Payload []byte // Compacted JSON
	Running bool   // Emitter state when the send was issued
}

// EmitterState is a point-in-time snapshot of an emitter.
type EmitterState struct {
	Name       string         `json:"name"`
	Device     string         `json:"device"`
	Kind       string         `json:"kind"`
	State      string         `json:"state"`
	Running    bool           `json:"running"`
	Target     Target         `json:"target"`
	Payload    string         `json:"payload"`
	IntervalMs int64          `json:"interval_ms"`
	History    []HistoryEntry `json:"history"`
	SentCount  int            `json:"sent_count"`
	LastSent   *time.Time     `json:"last_sent,omitempty"`
}
