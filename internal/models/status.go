package models

import "time"

// StatusConfig selects which host collectors report on the status endpoint.
type StatusConfig struct {
	MonitorCPU        bool `yaml:"monitor_cpu"`
	MonitorMemory     bool `yaml:"monitor_memory"`
	MonitorGoroutines bool `yaml:"monitor_goroutines"`
}

// Metric is a single collected value and its unit.
type Metric struct {
	Value interface{} `json:"value"`
	Unit  string      `json:"unit"`
}

// HostStatus is the host snapshot served by the status endpoint.
type HostStatus struct {
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Metrics   map[string]Metric `json:"metrics"`
}
