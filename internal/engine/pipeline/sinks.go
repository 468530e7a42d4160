package pipeline

import (
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
)

// LogSink writes each threat to the log.
type LogSink struct{}

// HandleThreat implements model.ThreatSink.
func (LogSink) HandleThreat(t model.Threat) error {
	logger.Warnf("THREAT: %s | %s | %s | %s", t.ThreatType, t.Severity, t.SrcIP, t.Description)
	return nil
}

// SinkFunc adapts a function to model.ThreatSink.
type SinkFunc func(t model.Threat) error

// HandleThreat implements model.ThreatSink.
func (f SinkFunc) HandleThreat(t model.Threat) error {
	return f(t)
}
