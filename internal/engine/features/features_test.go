package features

import (
	"testing"
	"time"

	"Go2NetGuard/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := model.NewFlowRecord("10.0.0.5", start)
	rec.PacketCount = 100
	rec.ByteCount = 6400
	rec.SynCount = 7
	rec.Ports[22] = struct{}{}
	rec.Ports[80] = struct{}{}
	rec.DstIPs["10.0.0.1"] = struct{}{}

	fv := Extract(rec, start.Add(4*time.Second))

	assert.Equal(t, 100.0, fv.PacketCount)
	assert.Equal(t, 6400.0, fv.ByteCount)
	assert.Equal(t, 2.0, fv.UniquePorts)
	assert.Equal(t, 1.0, fv.UniqueDstIPs)
	assert.Equal(t, 7.0, fv.SynCount)
	assert.InDelta(t, 4.0, fv.DurationSeconds, 1e-9)
	assert.InDelta(t, 25.0, fv.PacketsPerSecond, 1e-9)
	assert.InDelta(t, 1600.0, fv.BytesPerSecond, 1e-9)
}

func TestExtractFloorsDuration(t *testing.T) {
	now := time.Now()
	rec := model.NewFlowRecord("10.0.0.5", now)
	rec.PacketCount = 1

	fv := Extract(rec, now)
	assert.Equal(t, MinDuration, fv.DurationSeconds)
	assert.InDelta(t, 1000.0, fv.PacketsPerSecond, 1e-6)

	// A clock that went backwards must not produce a negative window.
	fv = Extract(rec, now.Add(-time.Second))
	assert.Equal(t, MinDuration, fv.DurationSeconds)
}
