// Package rules classifies known attack shapes from a flow's feature vector.
package rules

import (
	"fmt"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
)

// Thresholds holds the rule tunables.
type Thresholds struct {
	PortScanPorts     int
	PortScanHighPorts int
	DDoSPacketsPerSec float64
	// DDoSMinPackets keeps a young window, whose rate is dominated by the
	// duration floor, from tripping the DDoS rule. 0 disables the gate.
	DDoSMinPackets    int
	BruteForceSyns    int
	BruteForceMaxPort int
	DNSPayloadBytes   int
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PortScanPorts:     15,
		PortScanHighPorts: 30,
		DDoSPacketsPerSec: 500,
		DDoSMinPackets:    10,
		BruteForceSyns:    20,
		BruteForceMaxPort: 3,
		DNSPayloadBytes:   200,
	}
}

// Engine evaluates deterministic thresholds. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	t Thresholds
}

// ThresholdsFromConfig maps the rules section onto Thresholds.
func ThresholdsFromConfig(cfg config.RulesConfig) Thresholds {
	return Thresholds{
		PortScanPorts:     cfg.PortScanThreshold,
		PortScanHighPorts: cfg.PortScanHighThreshold,
		DDoSPacketsPerSec: cfg.DDoSPacketsPerSecond,
		DDoSMinPackets:    cfg.DDoSMinPackets,
		BruteForceSyns:    cfg.BruteForceSynThreshold,
		BruteForceMaxPort: cfg.BruteForceMaxPorts,
		DNSPayloadBytes:   cfg.DNSPayloadThreshold,
	}
}

// New creates a rule engine.
func New(t Thresholds) *Engine {
	return &Engine{t: t}
}

// Thresholds returns the engine's configuration.
func (e *Engine) Thresholds() Thresholds {
	return e.t
}

// Evaluate runs every rule against fv and returns one threat per match.
// Rules do not short-circuit each other. The returned threats carry no ID or
// timestamp; the caller stamps them when they are confirmed.
func (e *Engine) Evaluate(src string, fv model.FeatureVector, dstPort uint16, protocol string, dnsPayloadLen int) []model.Threat {
	var threats []model.Threat

	if fv.UniquePorts >= float64(e.t.PortScanPorts) {
		severity := model.SeverityMedium
		if fv.UniquePorts > float64(e.t.PortScanHighPorts) {
			severity = model.SeverityHigh
		}
		threats = append(threats, model.Threat{
			ThreatType:  model.ThreatPortScan,
			Severity:    severity,
			SrcIP:       src,
			Protocol:    "TCP",
			PacketCount: uint64(fv.PacketCount),
			Description: fmt.Sprintf("Port scan detected: %.0f unique ports contacted", fv.UniquePorts),
			RawFeatures: fv,
		})
	}

	if fv.PacketsPerSecond >= e.t.DDoSPacketsPerSec && fv.PacketCount >= float64(e.t.DDoSMinPackets) {
		threats = append(threats, model.Threat{
			ThreatType:  model.ThreatDDoS,
			Severity:    model.SeverityCritical,
			SrcIP:       src,
			Protocol:    orDefault(protocol, "TCP"),
			PacketCount: uint64(fv.PacketCount),
			Description: fmt.Sprintf("DDoS detected: %.0f pkt/s", fv.PacketsPerSecond),
			RawFeatures: fv,
		})
	}

	if fv.SynCount >= float64(e.t.BruteForceSyns) && fv.UniquePorts <= float64(e.t.BruteForceMaxPort) {
		threats = append(threats, model.Threat{
			ThreatType:  model.ThreatBruteForce,
			Severity:    model.SeverityHigh,
			SrcIP:       src,
			DstPort:     model.Port(dstPort),
			Protocol:    "TCP",
			PacketCount: uint64(fv.SynCount),
			Description: fmt.Sprintf("Brute force detected: %.0f SYN attempts", fv.SynCount),
			RawFeatures: fv,
		})
	}

	if dnsPayloadLen > e.t.DNSPayloadBytes {
		threats = append(threats, model.Threat{
			ThreatType:  model.ThreatDNSTunneling,
			Severity:    model.SeverityHigh,
			SrcIP:       src,
			DstPort:     model.Port(53),
			Protocol:    "DNS",
			PacketCount: 1,
			Description: fmt.Sprintf("DNS tunneling suspected: payload %d bytes", dnsPayloadLen),
			RawFeatures: fv,
		})
	}

	return threats
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
