package probe

import (
	"time"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"

	"github.com/nats-io/nats.go"
)

// PacketHandler is a function that processes received packet metadata.
type PacketHandler func(meta *model.PacketMeta)

// Subscriber is responsible for subscribing to a NATS subject and processing messages.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	warn    *logger.Throttle
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := Connect(cfg, "ns-engine")
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, subject: cfg.PacketSubject, warn: logger.NewThrottle(10 * time.Second)}, nil
}

// Start subscribes to the packet subject and hands every decoded message to handler.
func (s *Subscriber) Start(handler PacketHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		meta, err := UnmarshalPacket(msg.Data)
		if err != nil {
			s.warn.Warnf("Dropping undecodable packet message: %v", err)
			return
		}
		handler(meta)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	logger.Infof("Subscribed to '%s'. Waiting for messages...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		logger.Infof("NATS connection closed.")
	}
}
