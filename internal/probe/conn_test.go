package probe

import (
	"bytes"
	"os"
	"testing"
	"time"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectLogsThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.SetDefault(logger.New(&buf, logger.Info))
	t.Cleanup(func() { logger.SetDefault(logger.New(os.Stdout, logger.Info)) })

	// Nothing listens here; the connection keeps retrying in the background.
	nc, err := Connect(config.NATSConfig{
		URL:           "nats://127.0.0.1:1",
		ReconnectWait: 10 * time.Millisecond,
		MaxReconnects: 1,
	}, "conn-test")
	require.NoError(t, err)
	nc.Close()

	assert.Contains(t, buf.String(), "[INFO] Connecting to NATS server at nats://127.0.0.1:1")
}
