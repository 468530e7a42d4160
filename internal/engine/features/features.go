// Package features turns a flow record into the fixed-width vector shared by
// the rule engine, the anomaly scorer and the retraining samples.
package features

import (
	"time"

	"Go2NetGuard/internal/model"
)

// MinDuration floors the window length so rates stay finite.
const MinDuration = 0.001

// Extract derives the feature vector of rec as observed at now.
func Extract(rec *model.FlowRecord, now time.Time) model.FeatureVector {
	duration := now.Sub(rec.WindowStart).Seconds()
	if duration < MinDuration {
		duration = MinDuration
	}
	packets := float64(rec.PacketCount)
	bytes := float64(rec.ByteCount)
	return model.FeatureVector{
		PacketCount:      packets,
		ByteCount:        bytes,
		UniquePorts:      float64(len(rec.Ports)),
		UniqueDstIPs:     float64(len(rec.DstIPs)),
		PacketsPerSecond: packets / duration,
		BytesPerSecond:   bytes / duration,
		SynCount:         float64(rec.SynCount),
		DurationSeconds:  duration,
	}
}
