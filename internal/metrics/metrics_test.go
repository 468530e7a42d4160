package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))

	m.PacketProcessed()
	m.PacketProcessed()
	m.ThreatEmitted("DDoS", "CRITICAL")
	m.ResponseAction("blocked", 3)
	m.Retrain("success", 4, 0.9)
	m.Retrain("skipped", 99, 0.1)

	assert.Equal(t, 2.0, value(t, m.PacketsProcessed))
	assert.Equal(t, 1.0, value(t, m.Threats.WithLabelValues("DDoS", "CRITICAL")))
	assert.Equal(t, 3.0, value(t, m.BlockedIPs))
	assert.Equal(t, 4.0, value(t, m.ModelVersion))
	assert.Equal(t, 0.9, value(t, m.DetectionRate))
	assert.Equal(t, 1.0, value(t, m.Retrains.WithLabelValues("skipped")))

	require.Error(t, m.Register(reg), "double registration must fail")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PacketProcessed()
		m.PacketDropped()
		m.PacketMalformed()
		m.ThreatEmitted("DDoS", "HIGH")
		m.AlertSuppressed()
		m.SetTrackedFlows(3)
		m.FlowsSwept(2)
		m.ResponseAction("blocked", 1)
		m.Retrain("success", 1, 1)
		m.SetModelVersion(1)
	})
}
