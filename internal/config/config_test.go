package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"Go2NetGuard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Detection.AlertCooldown)
	assert.Equal(t, 15, cfg.Detection.Rules.PortScanThreshold)
	assert.Equal(t, []model.Severity{model.SeverityHigh, model.SeverityCritical}, cfg.Response.BlockSeverities)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
capture:
  source: pcap
  pcap_file: /tmp/trace.pcap
detection:
  alert_cooldown: 5s
  rules:
    port_scan_threshold: 25
response:
  block_severities: [critical]
  firewall:
    backend: simulate
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "pcap", cfg.Capture.Source)
	assert.Equal(t, "/tmp/trace.pcap", cfg.Capture.PcapFile)
	assert.Equal(t, 5*time.Second, cfg.Detection.AlertCooldown)
	assert.Equal(t, 25, cfg.Detection.Rules.PortScanThreshold)
	assert.Equal(t, []model.Severity{model.SeverityCritical}, cfg.Response.BlockSeverities)
	assert.Equal(t, "simulate", cfg.Response.Firewall.Backend)

	// untouched keys keep their defaults
	assert.Equal(t, 30, cfg.Detection.Rules.PortScanHighThreshold)
	assert.Equal(t, 4, cfg.Detection.NumWorkers)
	assert.Equal(t, "gonguard.packets.meta", cfg.NATS.PacketSubject)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "detection: [not, a, map]"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "response:\n  block_severities: [urgent]\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown source", func(c *Config) { c.Capture.Source = "kafka" }},
		{"live without interface", func(c *Config) { c.Capture.Source = "live" }},
		{"pcap without file", func(c *Config) { c.Capture.Source = "pcap" }},
		{"no workers", func(c *Config) { c.Detection.NumWorkers = 0 }},
		{"no flows", func(c *Config) { c.Detection.MaxFlows = 0 }},
		{"negative cooldown", func(c *Config) { c.Detection.AlertCooldown = -time.Second }},
		{"no block capacity", func(c *Config) { c.Response.MaxBlocked = 0 }},
		{"zero block duration", func(c *Config) { c.Response.BlockDuration = 0 }},
		{"unknown firewall", func(c *Config) { c.Response.Firewall.Backend = "pf" }},
		{"unknown audit", func(c *Config) { c.Response.Audit.Backend = "s3" }},
		{"zero retrain interval", func(c *Config) { c.Adaptive.RetrainInterval = 0 }},
		{"contamination too high", func(c *Config) { c.Model.Contamination = 0.5 }},
		{"tiny sample size", func(c *Config) { c.Model.SampleSize = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateSkipsRetrainIntervalWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.Adaptive.Enabled = false
	cfg.Adaptive.RetrainInterval = 0
	assert.NoError(t, cfg.Validate())
}
