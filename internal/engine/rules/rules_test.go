package rules

import (
	"testing"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluate(fv model.FeatureVector, dnsLen int) []model.Threat {
	return New(DefaultThresholds()).Evaluate("10.0.0.5", fv, 22, "TCP", dnsLen)
}

func byType(threats []model.Threat, tt model.ThreatType) *model.Threat {
	for i := range threats {
		if threats[i].ThreatType == tt {
			return &threats[i]
		}
	}
	return nil
}

func TestPortScanSeverityBands(t *testing.T) {
	for ports := 0; ports <= 64; ports++ {
		threats := evaluate(model.FeatureVector{UniquePorts: float64(ports)}, 0)
		scan := byType(threats, model.ThreatPortScan)
		if ports < 15 {
			assert.Nil(t, scan, "ports=%d", ports)
			continue
		}
		require.NotNil(t, scan, "ports=%d", ports)
		if ports > 30 {
			assert.Equal(t, model.SeverityHigh, scan.Severity, "ports=%d", ports)
		} else {
			assert.Equal(t, model.SeverityMedium, scan.Severity, "ports=%d", ports)
		}
	}
}

func TestDDoSBoundaryIsInclusive(t *testing.T) {
	ddos := byType(evaluate(model.FeatureVector{PacketsPerSecond: 500, PacketCount: 600}, 0), model.ThreatDDoS)
	require.NotNil(t, ddos)
	assert.Equal(t, model.SeverityCritical, ddos.Severity)

	assert.Nil(t, byType(evaluate(model.FeatureVector{PacketsPerSecond: 499, PacketCount: 600}, 0), model.ThreatDDoS))
}

func TestDDoSNeedsMinimumPackets(t *testing.T) {
	// A single packet in a fresh window computes as 1000 pkt/s.
	assert.Nil(t, byType(evaluate(model.FeatureVector{PacketsPerSecond: 1000, PacketCount: 1}, 0), model.ThreatDDoS))
	assert.Nil(t, byType(evaluate(model.FeatureVector{PacketsPerSecond: 1000, PacketCount: 9}, 0), model.ThreatDDoS))
	assert.NotNil(t, byType(evaluate(model.FeatureVector{PacketsPerSecond: 1000, PacketCount: 10}, 0), model.ThreatDDoS))
}

func TestDDoSGateDisabled(t *testing.T) {
	th := DefaultThresholds()
	th.DDoSMinPackets = 0
	got := New(th).Evaluate("10.0.0.9", model.FeatureVector{PacketsPerSecond: 500}, 80, "TCP", 0)
	d := byType(got, model.ThreatDDoS)
	require.NotNil(t, d)
	assert.Equal(t, model.SeverityCritical, d.Severity)
}

func TestThresholdsFromConfig(t *testing.T) {
	th := ThresholdsFromConfig(config.Default().Detection.Rules)
	assert.Equal(t, DefaultThresholds(), th)
}

func TestBruteForce(t *testing.T) {
	bf := byType(evaluate(model.FeatureVector{SynCount: 20, UniquePorts: 3}, 0), model.ThreatBruteForce)
	require.NotNil(t, bf)
	assert.Equal(t, model.SeverityHigh, bf.Severity)
	assert.EqualValues(t, 20, bf.PacketCount)
	require.NotNil(t, bf.DstPort)
	assert.EqualValues(t, 22, *bf.DstPort)

	assert.Nil(t, byType(evaluate(model.FeatureVector{SynCount: 20, UniquePorts: 4}, 0), model.ThreatBruteForce))
	assert.Nil(t, byType(evaluate(model.FeatureVector{SynCount: 19, UniquePorts: 1}, 0), model.ThreatBruteForce))
}

func TestDNSTunnelingBoundaryIsExclusive(t *testing.T) {
	dns := byType(evaluate(model.FeatureVector{}, 201), model.ThreatDNSTunneling)
	require.NotNil(t, dns)
	assert.Equal(t, model.SeverityHigh, dns.Severity)
	assert.Equal(t, "DNS", dns.Protocol)

	assert.Nil(t, byType(evaluate(model.FeatureVector{}, 200), model.ThreatDNSTunneling))
}

func TestRulesFireIndependently(t *testing.T) {
	fv := model.FeatureVector{UniquePorts: 40, PacketsPerSecond: 2000, PacketCount: 900}
	threats := evaluate(fv, 300)
	require.Len(t, threats, 3)
	assert.NotNil(t, byType(threats, model.ThreatPortScan))
	assert.NotNil(t, byType(threats, model.ThreatDDoS))
	assert.NotNil(t, byType(threats, model.ThreatDNSTunneling))
	for _, th := range threats {
		assert.Equal(t, "10.0.0.5", th.SrcIP)
		assert.Equal(t, fv, th.RawFeatures)
		assert.Empty(t, th.ID)
	}
}

func TestQuietFlowProducesNothing(t *testing.T) {
	assert.Empty(t, evaluate(model.FeatureVector{PacketCount: 30, UniquePorts: 2, PacketsPerSecond: 12, SynCount: 1}, 40))
}

func TestCustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.DDoSPacketsPerSec = 1000
	e := New(th)
	assert.Empty(t, e.Evaluate("10.0.0.5", model.FeatureVector{PacketsPerSecond: 999, PacketCount: 100}, 80, "UDP", 0))
	threats := e.Evaluate("10.0.0.5", model.FeatureVector{PacketsPerSecond: 1000, PacketCount: 100}, 80, "UDP", 0)
	require.Len(t, threats, 1)
	assert.Equal(t, "UDP", threats[0].Protocol)
}
