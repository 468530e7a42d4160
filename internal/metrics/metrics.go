// Package metrics holds the Prometheus collectors of the engine.
//
// All methods are safe on a nil *Metrics, so components built without
// metrics (tests, tools) need no special casing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all engine collectors.
type Metrics struct {
	PacketsProcessed prometheus.Counter
	PacketsDropped   prometheus.Counter
	PacketsMalformed prometheus.Counter

	Threats        *prometheus.CounterVec
	AlertsSuppress prometheus.Counter
	TrackedFlows   prometheus.Gauge
	FlowsEvicted   prometheus.Counter

	ResponseActions *prometheus.CounterVec
	BlockedIPs      prometheus.Gauge

	Retrains      *prometheus.CounterVec
	ModelVersion  prometheus.Gauge
	DetectionRate prometheus.Gauge
}

// New creates the collectors. They are not registered.
func New() *Metrics {
	return &Metrics{
		PacketsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gonguard_packets_processed_total",
			Help: "Total number of packets run through the detection pipeline",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gonguard_packets_dropped_total",
			Help: "Total number of packets dropped because a worker queue was full",
		}),
		PacketsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gonguard_packets_malformed_total",
			Help: "Total number of packets skipped for missing or invalid metadata",
		}),
		Threats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gonguard_threats_total",
			Help: "Total number of threats emitted",
		}, []string{"threat_type", "severity"}),
		AlertsSuppress: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gonguard_alerts_suppressed_total",
			Help: "Total number of detections suppressed by the per-source cooldown",
		}),
		TrackedFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gonguard_tracked_flows",
			Help: "Number of source addresses in the flow store",
		}),
		FlowsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gonguard_flows_evicted_total",
			Help: "Total number of idle flow records swept from the flow store",
		}),
		ResponseActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gonguard_response_actions_total",
			Help: "Total number of block and unblock attempts by outcome",
		}, []string{"status"}),
		BlockedIPs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gonguard_blocked_ips",
			Help: "Number of addresses currently blocked",
		}),
		Retrains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gonguard_model_retrains_total",
			Help: "Total number of retraining attempts by outcome",
		}, []string{"outcome"}),
		ModelVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gonguard_model_version",
			Help: "Version of the active anomaly model",
		}),
		DetectionRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gonguard_model_detection_rate",
			Help: "Fraction of confirmed threat samples the active model flags",
		}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PacketsProcessed, m.PacketsDropped, m.PacketsMalformed,
		m.Threats, m.AlertsSuppress, m.TrackedFlows, m.FlowsEvicted,
		m.ResponseActions, m.BlockedIPs,
		m.Retrains, m.ModelVersion, m.DetectionRate,
	}
}

// PacketProcessed counts one packet through the pipeline.
func (m *Metrics) PacketProcessed() {
	if m == nil {
		return
	}
	m.PacketsProcessed.Inc()
}

// PacketDropped counts one packet lost to back-pressure.
func (m *Metrics) PacketDropped() {
	if m == nil {
		return
	}
	m.PacketsDropped.Inc()
}

// PacketMalformed counts one skipped packet.
func (m *Metrics) PacketMalformed() {
	if m == nil {
		return
	}
	m.PacketsMalformed.Inc()
}

// ThreatEmitted counts one emitted threat.
func (m *Metrics) ThreatEmitted(threatType, severity string) {
	if m == nil {
		return
	}
	m.Threats.WithLabelValues(threatType, severity).Inc()
}

// AlertSuppressed counts one detection dropped by the cooldown.
func (m *Metrics) AlertSuppressed() {
	if m == nil {
		return
	}
	m.AlertsSuppress.Inc()
}

// SetTrackedFlows records the flow store size.
func (m *Metrics) SetTrackedFlows(n int) {
	if m == nil {
		return
	}
	m.TrackedFlows.Set(float64(n))
}

// FlowsSwept counts records removed by a sweep.
func (m *Metrics) FlowsSwept(n int) {
	if m == nil {
		return
	}
	m.FlowsEvicted.Add(float64(n))
}

// ResponseAction counts one response outcome and records the table size.
func (m *Metrics) ResponseAction(status string, blocked int) {
	if m == nil {
		return
	}
	m.ResponseActions.WithLabelValues(status).Inc()
	m.BlockedIPs.Set(float64(blocked))
}

// Retrain records a retraining outcome. version and rate are only applied
// for successful retrains.
func (m *Metrics) Retrain(outcome string, version int, rate float64) {
	if m == nil {
		return
	}
	m.Retrains.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		m.ModelVersion.Set(float64(version))
		m.DetectionRate.Set(rate)
	}
}

// SetModelVersion records the version of a model loaded at startup.
func (m *Metrics) SetModelVersion(version int) {
	if m == nil {
		return
	}
	m.ModelVersion.Set(float64(version))
}
