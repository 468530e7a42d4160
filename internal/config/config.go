package config

import (
	"fmt"
	"os"
	"time"

	"Go2NetGuard/internal/model"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	NATS       NATSConfig       `yaml:"nats"`
	Capture    CaptureConfig    `yaml:"capture"`
	Detection  DetectionConfig  `yaml:"detection"`
	Response   ResponseConfig   `yaml:"response"`
	Adaptive   AdaptiveConfig   `yaml:"adaptive"`
	Model      ModelConfig      `yaml:"model"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// NATSConfig holds the message bus connection and subjects.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	PacketSubject string        `yaml:"packet_subject"`
	ThreatSubject string        `yaml:"threat_subject"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// CaptureConfig selects where the engine gets packets from.
type CaptureConfig struct {
	// Source is one of "nats", "live" or "pcap".
	Source      string `yaml:"source"`
	Interface   string `yaml:"interface"`
	PcapFile    string `yaml:"pcap_file"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	Promiscuous bool   `yaml:"promiscuous"`
	BPFFilter   string `yaml:"bpf_filter"`
}

// DetectionConfig holds the flow store, rule and scorer tunables.
type DetectionConfig struct {
	NumWorkers          int           `yaml:"num_workers"`
	SizeOfPacketChannel int           `yaml:"size_of_packet_channel"`
	MaxFlows            int           `yaml:"max_flows"`
	FlowIdleTimeout     time.Duration `yaml:"flow_idle_timeout"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	AlertCooldown       time.Duration `yaml:"alert_cooldown"`
	MinPacketsForML     uint64        `yaml:"min_packets_for_ml"`
	NormalSampleEvery   uint64        `yaml:"normal_sample_every"`
	Rules               RulesConfig   `yaml:"rules"`
	Anomaly             AnomalyConfig `yaml:"anomaly"`
}

// RulesConfig holds the deterministic rule thresholds.
type RulesConfig struct {
	PortScanThreshold      int     `yaml:"port_scan_threshold"`
	PortScanHighThreshold  int     `yaml:"port_scan_high_threshold"`
	DDoSPacketsPerSecond   float64 `yaml:"ddos_packets_per_second"`
	// DDoSMinPackets is the packet count a window needs before the DDoS
	// rate can fire. 0 fires on the rate alone, as the bare rule reads.
	DDoSMinPackets         int     `yaml:"ddos_min_packets"`
	BruteForceSynThreshold int     `yaml:"brute_force_syn_threshold"`
	BruteForceMaxPorts     int     `yaml:"brute_force_max_ports"`
	DNSPayloadThreshold    int     `yaml:"dns_payload_threshold"`
}

// AnomalyConfig holds the score bands of the anomaly scorer.
type AnomalyConfig struct {
	HighConfidence   float64 `yaml:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence"`
	Cutoff           float64 `yaml:"cutoff"`
}

// ResponseConfig controls automated blocking.
type ResponseConfig struct {
	Enabled           bool             `yaml:"enabled"`
	BlockSeverities   []model.Severity `yaml:"block_severities"`
	BlockDuration     time.Duration    `yaml:"block_duration"`
	MaxBlocked        int              `yaml:"max_blocked"`
	Whitelist         []string         `yaml:"whitelist"`
	BlockablePrefixes []string         `yaml:"blockable_prefixes"`
	Firewall          FirewallConfig   `yaml:"firewall"`
	Audit             AuditConfig      `yaml:"audit"`
}

// FirewallConfig selects the firewall backend.
type FirewallConfig struct {
	// Backend is one of "iptables", "nftables" or "simulate".
	Backend  string `yaml:"backend"`
	Chain    string `yaml:"chain"`
	NFTTable string `yaml:"nft_table"`
}

// AuditConfig selects where response actions are recorded.
type AuditConfig struct {
	// Backend is one of "file", "redis" or "memory".
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
	RedisKey   string `yaml:"redis_key"`
}

// AdaptiveConfig controls the retraining loop.
type AdaptiveConfig struct {
	Enabled          bool          `yaml:"enabled"`
	RetrainInterval  time.Duration `yaml:"retrain_interval"`
	MinNewSamples    int           `yaml:"min_new_samples"`
	MaxThreatSamples int           `yaml:"max_threat_samples"`
	MaxNormalSamples int           `yaml:"max_normal_samples"`
	BaselineSamples  int           `yaml:"baseline_samples"`
	HistoryTail      int           `yaml:"history_tail"`
	DataDir          string        `yaml:"data_dir"`
}

// ModelConfig controls the anomaly model and its artifacts.
type ModelConfig struct {
	ArtifactDir   string  `yaml:"artifact_dir"`
	Trees         int     `yaml:"trees"`
	SampleSize    int     `yaml:"sample_size"`
	Contamination float64 `yaml:"contamination"`
	Seed          int64   `yaml:"seed"`
	Bootstrap     bool    `yaml:"bootstrap"`
}

// ClickHouseConfig holds connection details for threat persistence.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig holds connection details for the redis audit backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// APIConfig holds listen addresses for the API servers.
type APIConfig struct {
	HTTPListenAddr string `yaml:"http_listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
	// EngineURL is where ns-api reaches the engine's response endpoints.
	EngineURL string `yaml:"engine_url"`
}

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Enabled: true, Level: "info", Console: true},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			PacketSubject: "gonguard.packets.meta",
			ThreatSubject: "gonguard.threats",
			ReconnectWait: 5 * time.Second,
			MaxReconnects: 10,
		},
		Capture: CaptureConfig{
			Source:      "nats",
			SnapshotLen: 1600,
			Promiscuous: true,
			BPFFilter:   "ip",
		},
		Detection: DetectionConfig{
			NumWorkers:          4,
			SizeOfPacketChannel: 10000,
			MaxFlows:            100000,
			FlowIdleTimeout:     10 * time.Minute,
			SweepInterval:       time.Minute,
			AlertCooldown:       30 * time.Second,
			MinPacketsForML:     20,
			NormalSampleEvery:   500,
			Rules: RulesConfig{
				PortScanThreshold:      15,
				PortScanHighThreshold:  30,
				DDoSPacketsPerSecond:   500,
				DDoSMinPackets:         10,
				BruteForceSynThreshold: 20,
				BruteForceMaxPorts:     3,
				DNSPayloadThreshold:    200,
			},
			Anomaly: AnomalyConfig{
				HighConfidence:   -0.15,
				MediumConfidence: -0.10,
				Cutoff:           -0.25,
			},
		},
		Response: ResponseConfig{
			Enabled:         true,
			BlockSeverities: []model.Severity{model.SeverityHigh, model.SeverityCritical},
			BlockDuration:   15 * time.Minute,
			MaxBlocked:      100,
			Whitelist:       []string{"127.0.0.1", "0.0.0.0", "8.8.8.8", "8.8.4.4", "1.1.1.1"},
			BlockablePrefixes: []string{
				"10.0.0.0/8", "192.168.0.0/16", "172.16.0.0/12",
			},
			Firewall: FirewallConfig{Backend: "iptables", Chain: "INPUT", NFTTable: "gonguard"},
			Audit:    AuditConfig{Backend: "file", Path: "data/response_log.json", MaxEntries: 1000, RedisKey: "gonguard:response_log"},
		},
		Adaptive: AdaptiveConfig{
			Enabled:          true,
			RetrainInterval:  5 * time.Minute,
			MinNewSamples:    10,
			MaxThreatSamples: 5000,
			MaxNormalSamples: 10000,
			BaselineSamples:  5000,
			HistoryTail:      10,
			DataDir:          "data/training",
		},
		Model: ModelConfig{
			ArtifactDir:   "data/models",
			Trees:         200,
			SampleSize:    256,
			Contamination: 0.02,
			Seed:          42,
			Bootstrap:     true,
		},
		ClickHouse: ClickHouseConfig{Host: "127.0.0.1", Port: 9000, Database: "default", Username: "default"},
		Redis:      RedisConfig{Addr: "127.0.0.1:6379"},
		API: APIConfig{
			HTTPListenAddr: ":8080",
			GRPCListenAddr: ":9090",
			EngineURL:      "http://127.0.0.1:8080",
		},
	}
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Keys missing from the file keep their defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	switch c.Capture.Source {
	case "nats", "live", "pcap":
	default:
		return fmt.Errorf("capture.source must be nats, live or pcap, got %q", c.Capture.Source)
	}
	if c.Capture.Source == "live" && c.Capture.Interface == "" {
		return fmt.Errorf("capture.interface is required for live capture")
	}
	if c.Capture.Source == "pcap" && c.Capture.PcapFile == "" {
		return fmt.Errorf("capture.pcap_file is required for pcap capture")
	}
	if c.Detection.NumWorkers <= 0 {
		return fmt.Errorf("detection.num_workers must be positive")
	}
	if c.Detection.MaxFlows <= 0 {
		return fmt.Errorf("detection.max_flows must be positive")
	}
	if c.Detection.AlertCooldown < 0 {
		return fmt.Errorf("detection.alert_cooldown must not be negative")
	}
	if c.Response.MaxBlocked <= 0 {
		return fmt.Errorf("response.max_blocked must be positive")
	}
	if c.Response.BlockDuration <= 0 {
		return fmt.Errorf("response.block_duration must be a positive duration")
	}
	switch c.Response.Firewall.Backend {
	case "iptables", "nftables", "simulate":
	default:
		return fmt.Errorf("response.firewall.backend must be iptables, nftables or simulate, got %q", c.Response.Firewall.Backend)
	}
	switch c.Response.Audit.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("response.audit.backend must be file, redis or memory, got %q", c.Response.Audit.Backend)
	}
	if c.Adaptive.Enabled && c.Adaptive.RetrainInterval <= 0 {
		return fmt.Errorf("adaptive.retrain_interval must be a positive duration")
	}
	if c.Model.Contamination <= 0 || c.Model.Contamination >= 0.5 {
		return fmt.Errorf("model.contamination must be in (0, 0.5)")
	}
	if c.Model.Trees <= 0 || c.Model.SampleSize <= 1 {
		return fmt.Errorf("model.trees and model.sample_size must be positive")
	}
	return nil
}
