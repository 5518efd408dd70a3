package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "kitchen_simulator"

// Metrics holds the emitter instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SendsTotal   *prometheus.CounterVec
	SendDuration *prometheus.HistogramVec
	Running      *prometheus.GaugeVec
	HistorySize  *prometheus.GaugeVec
}

// NewRegistry returns a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// NewMetrics creates the emitter instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Send attempts per emitter and outcome.",
		}, []string{"emitter", "outcome"}),
		SendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Transport latency of delivered sends.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"emitter"}),
		Running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emitter_running",
			Help:      "1 while the emitter is running.",
		}, []string{"emitter"}),
		HistorySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emitter_history_entries",
			Help:      "Entries currently held in the emitter history.",
		}, []string{"emitter"}),
	}

	if reg != nil {
		reg.MustRegister(m.SendsTotal, m.SendDuration, m.Running, m.HistorySize)
	}
	return m
}

// ObserveSend counts one send attempt. d is recorded only for attempts that reached the transport.
func (m *Metrics) ObserveSend(emitter, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(emitter, outcome).Inc()
	if d > 0 {
		m.SendDuration.WithLabelValues(emitter).Observe(d.Seconds())
	}
}

// SetRunning records the run state of an emitter.
func (m *Metrics) SetRunning(emitter string, running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.Running.WithLabelValues(emitter).Set(v)
}

// SetHistorySize records the number of history entries of an emitter.
func (m *Metrics) SetHistorySize(emitter string, n int) {
	if m == nil {
		return
	}
	m.HistorySize.WithLabelValues(emitter).Set(float64(n))
}
