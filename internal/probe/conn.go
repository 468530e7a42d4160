package probe

import (
	"fmt"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/logger"

	"github.com/nats-io/nats.go"
)

// Connect dials NATS with reconnect handling. The first connection attempt
// is retried in the background, so a broker that starts after the process
// is tolerated.
func Connect(cfg config.NATSConfig, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Infof("Connecting to NATS server at %s", cfg.URL)
	return nc, nil
}
