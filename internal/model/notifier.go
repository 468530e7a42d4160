package model

import "time"

// Event kinds pushed to dashboard clients.
const (
	EventThreat  = "threat"
	EventBlock   = "block"
	EventUnblock = "unblock"
)

// Event is a message pushed to live dashboard clients.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Notifier defines a generic interface for pushing events to subscribers.
type Notifier interface {
	Notify(event Event)
}

// ThreatSink receives every confirmed, enriched threat.
type ThreatSink interface {
	HandleThreat(threat Threat) error
}
