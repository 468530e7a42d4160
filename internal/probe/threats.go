package probe

import (
	"encoding/json"
	"fmt"
	"time"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"

	"github.com/nats-io/nats.go"
)

// ThreatPublisher publishes enriched threats as JSON events.
type ThreatPublisher struct {
	nc      *nats.Conn
	subject string
	owned   bool
}

// NewThreatPublisher dials NATS and publishes to nats.threat_subject.
func NewThreatPublisher(cfg config.NATSConfig) (*ThreatPublisher, error) {
	nc, err := Connect(cfg, "ns-engine-threats")
	if err != nil {
		return nil, err
	}
	return &ThreatPublisher{nc: nc, subject: cfg.ThreatSubject, owned: true}, nil
}

// NewThreatPublisherWithConn publishes over an existing connection, which
// Close leaves open.
func NewThreatPublisherWithConn(nc *nats.Conn, subject string) *ThreatPublisher {
	return &ThreatPublisher{nc: nc, subject: subject}
}

// HandleThreat implements model.ThreatSink.
func (p *ThreatPublisher) HandleThreat(t model.Threat) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode threat: %w", err)
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains the connection if the publisher opened it.
func (p *ThreatPublisher) Close() {
	if p.owned && p.nc != nil {
		p.nc.Drain()
		logger.Infof("Threat publisher connection drained and closed.")
	}
}

// ThreatHandler processes a decoded threat event.
type ThreatHandler func(t model.Threat)

// ThreatSubscriber consumes threat events.
type ThreatSubscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	warn    *logger.Throttle
}

// NewThreatSubscriber dials NATS for the threat subject.
func NewThreatSubscriber(cfg config.NATSConfig, name string) (*ThreatSubscriber, error) {
	nc, err := Connect(cfg, name)
	if err != nil {
		return nil, err
	}
	return &ThreatSubscriber{nc: nc, subject: cfg.ThreatSubject, warn: logger.NewThrottle(10 * time.Second)}, nil
}

// Start subscribes and hands each decoded threat to handler.
func (s *ThreatSubscriber) Start(handler ThreatHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		t, err := DecodeThreat(msg.Data)
		if err != nil {
			s.warn.Warnf("Dropping undecodable threat event: %v", err)
			return
		}
		handler(t)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	logger.Infof("Subscribed to '%s'. Waiting for threats...", s.subject)
	return nil
}

// Close unsubscribes and closes the connection.
func (s *ThreatSubscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		logger.Infof("NATS connection closed.")
	}
}

// DecodeThreat parses a JSON threat event.
func DecodeThreat(data []byte) (model.Threat, error) {
	var t model.Threat
	if err := json.Unmarshal(data, &t); err != nil {
		return model.Threat{}, err
	}
	if t.SrcIP == "" || t.ThreatType == "" {
		return model.Threat{}, fmt.Errorf("threat event missing src_ip or threat_type")
	}
	return t, nil
}
