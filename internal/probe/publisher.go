package probe

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing packet metadata to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := Connect(cfg, "ns-probe")
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, subject: cfg.PacketSubject}, nil
}

// Publish encodes meta and publishes it to the configured subject.
func (p *Publisher) Publish(meta *model.PacketMeta) error {
	return p.nc.Publish(p.subject, MarshalPacket(meta))
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		logger.Infof("NATS connection drained and closed.")
	}
}
