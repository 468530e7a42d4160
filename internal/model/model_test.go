package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestIsSYN(t *testing.T) {
	assert.True(t, (&PacketMeta{TCPFlags: FlagSYN}).IsSYN())
	assert.False(t, (&PacketMeta{TCPFlags: FlagSYN | FlagACK}).IsSYN())
	assert.False(t, (&PacketMeta{TCPFlags: FlagACK}).IsSYN())
}

func TestProtocolName(t *testing.T) {
	assert.Equal(t, "TCP", ProtocolName(ProtoTCP))
	assert.Equal(t, "UDP", ProtocolName(ProtoUDP))
	assert.Equal(t, "ICMP", ProtocolName(ProtoICMP))
	assert.Equal(t, "OTHER", ProtocolName(47))
	assert.Equal(t, "UDP", (&PacketMeta{Protocol: ProtoUDP}).ProtocolName())
}

func TestFeatureVectorSlice(t *testing.T) {
	f := FeatureVector{1, 2, 3, 4, 5, 6, 7, 8}
	s := f.Slice()
	require.Len(t, s, FeatureCount)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, s)
	assert.Equal(t, f, FeatureVectorFromSlice(s))
	assert.Equal(t, FeatureVector{}, FeatureVectorFromSlice([]float64{1, 2}))
}

func TestFlowRecordCloneIsDeep(t *testing.T) {
	r := NewFlowRecord("10.0.0.1", time.Unix(1700000000, 0))
	r.Ports[22] = struct{}{}
	r.DstIPs["10.0.0.2"] = struct{}{}

	c := r.Clone()
	c.Ports[80] = struct{}{}
	c.DstIPs["10.0.0.3"] = struct{}{}

	assert.Len(t, r.Ports, 1)
	assert.Len(t, r.DstIPs, 1)
	assert.Len(t, c.Ports, 2)
}

func TestSeverityJSON(t *testing.T) {
	data, err := json.Marshal(SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, `"CRITICAL"`, string(data))

	var s Severity
	require.NoError(t, json.Unmarshal([]byte(`"medium"`), &s))
	assert.Equal(t, SeverityMedium, s)

	assert.Error(t, json.Unmarshal([]byte(`"SEVERE"`), &s))
	assert.Error(t, json.Unmarshal([]byte(`3`), &s))
}

func TestSeverityYAML(t *testing.T) {
	var v struct {
		Levels []Severity `yaml:"levels"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("levels: [high, CRITICAL]"), &v))
	assert.Equal(t, []Severity{SeverityHigh, SeverityCritical}, v.Levels)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(out), "HIGH")

	assert.Error(t, yaml.Unmarshal([]byte("levels: [extreme]"), &v))
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "LOW", Severity(0).String())
	assert.Equal(t, "Severity(9)", Severity(9).String())
}

func TestThreatJSONShape(t *testing.T) {
	th := Threat{
		ID:         "a",
		ThreatType: ThreatPortScan,
		Severity:   SeverityHigh,
		SrcIP:      "10.0.0.5",
		DstPort:    Port(22),
		Protocol:   "TCP",
	}
	data, err := json.Marshal(th)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "Port Scan", m["threat_type"])
	assert.Equal(t, "HIGH", m["severity"])
	assert.Nil(t, m["dst_ip"])
	assert.Equal(t, float64(22), m["dst_port"])
	_, hasMitre := m["mitre_technique_id"]
	assert.False(t, hasMitre)
	assert.False(t, th.Enriched())
}
