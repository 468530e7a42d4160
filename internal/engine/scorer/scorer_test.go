package scorer

import (
	"testing"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/ml"
	"Go2NetGuard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flood = model.FeatureVector{
	PacketCount: 5000, ByteCount: 500000, UniquePorts: 2, UniqueDstIPs: 1,
	PacketsPerSecond: 2000, BytesPerSecond: 100000, SynCount: 0, DurationSeconds: 1,
}

func trainedModel(t *testing.T) *ml.Model {
	t.Helper()
	m, err := ml.Train(ml.Baseline(1000, 11), ml.Options{Trees: 50, SampleSize: 128, Contamination: 0.02, Seed: 11}, 1)
	require.NoError(t, err)
	return m
}

func TestScoreWithoutModel(t *testing.T) {
	s := New(DefaultBands())
	assert.False(t, s.Loaded())

	v := s.Score(flood)
	assert.Equal(t, Verdict{Confidence: ConfidenceUnknown}, v)
	assert.Nil(t, s.Evaluate("10.0.0.5", flood, 80, "TCP"))
}

func TestConfidenceBands(t *testing.T) {
	s := New(DefaultBands())
	cases := []struct {
		score   float64
		anomaly bool
		want    Confidence
	}{
		{-0.30, true, ConfidenceHigh},
		{-0.16, true, ConfidenceHigh},
		{-0.15, true, ConfidenceMedium},
		{-0.12, true, ConfidenceMedium},
		{-0.10, true, ConfidenceLow},
		{-0.01, true, ConfidenceLow},
		{0, false, ConfidenceNormal},
		{0.08, false, ConfidenceNormal},
	}
	for _, c := range cases {
		v := s.classify(c.score)
		assert.Equal(t, c.anomaly, v.IsAnomaly, "score %f", c.score)
		assert.Equal(t, c.want, v.Confidence, "score %f", c.score)
	}
}

func TestEvaluateAppliesCutoff(t *testing.T) {
	m := trainedModel(t)

	probe := New(DefaultBands())
	probe.Swap(m)
	v := probe.Score(flood)
	require.True(t, v.IsAnomaly)

	loose := New(Bands{High: -0.15, Medium: -0.10, Cutoff: v.Score + 0.01})
	loose.Swap(m)
	threat := loose.Evaluate("10.0.0.5", flood, 443, "")
	require.NotNil(t, threat)
	assert.Equal(t, model.ThreatMLAnomaly, threat.ThreatType)
	assert.Equal(t, model.SeverityMedium, threat.Severity)
	assert.Equal(t, "10.0.0.5", threat.SrcIP)
	assert.Equal(t, "OTHER", threat.Protocol)
	require.NotNil(t, threat.DstPort)
	assert.Equal(t, uint16(443), *threat.DstPort)
	assert.Equal(t, uint64(5000), threat.PacketCount)
	assert.Equal(t, flood, threat.RawFeatures)
	assert.Contains(t, threat.Description, "ML anomaly detected")

	strict := New(Bands{High: -0.15, Medium: -0.10, Cutoff: v.Score - 0.01})
	strict.Swap(m)
	assert.Nil(t, strict.Evaluate("10.0.0.5", flood, 443, "TCP"))

	verdict, none := strict.EvaluateVerdict("10.0.0.5", flood, 443, "TCP")
	assert.Nil(t, none)
	assert.True(t, verdict.IsAnomaly)
}

func TestLoadMissingArtifactDisables(t *testing.T) {
	s := New(DefaultBands())
	require.NoError(t, s.Load(t.TempDir()))
	assert.False(t, s.Loaded())
}

func TestLoadAndSwap(t *testing.T) {
	dir := t.TempDir()
	m := trainedModel(t)
	require.NoError(t, ml.NewArtifactStore(dir).Save(m))

	s := New(DefaultBands())
	require.NoError(t, s.Load(dir))
	require.True(t, s.Loaded())
	assert.Equal(t, 1, s.Model().Version)

	s.Swap(nil)
	assert.False(t, s.Loaded())
	assert.Equal(t, ConfidenceUnknown, s.Score(flood).Confidence)
}

func TestBandsFromConfig(t *testing.T) {
	assert.Equal(t, DefaultBands(), BandsFromConfig(config.Default().Detection.Anomaly))
}
