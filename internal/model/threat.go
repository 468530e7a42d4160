package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ThreatType names a detected attack shape.
type ThreatType string

const (
	ThreatPortScan     ThreatType = "Port Scan"
	ThreatDDoS         ThreatType = "DDoS"
	ThreatBruteForce   ThreatType = "Brute Force"
	ThreatDNSTunneling ThreatType = "DNS Tunneling"
	ThreatMLAnomaly    ThreatType = "ML Anomaly"
	ThreatManual       ThreatType = "Manual"
)

// Severity grades a threat. The zero value is SeverityLow.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity accepts the upper- or lower-case severity names.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalJSON encodes the severity as its name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalYAML encodes the severity as its name.
func (s Severity) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML decodes a severity name.
func (s *Severity) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	v, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Threat is a detection event. It is built once by the rule engine or the
// anomaly scorer; enrichment returns a copy with the MITRE fields filled in.
type Threat struct {
	ID          string        `json:"id"`
	DetectedAt  time.Time     `json:"detected_at"`
	ThreatType  ThreatType    `json:"threat_type"`
	Severity    Severity      `json:"severity"`
	SrcIP       string        `json:"src_ip"`
	DstIP       *string       `json:"dst_ip"`
	SrcPort     *uint16       `json:"src_port"`
	DstPort     *uint16       `json:"dst_port"`
	Protocol    string        `json:"protocol"`
	PacketCount uint64        `json:"packet_count"`
	Description string        `json:"description"`
	RawFeatures FeatureVector `json:"raw_features"`

	MitreTechniqueID   string `json:"mitre_technique_id,omitempty"`
	MitreTechniqueName string `json:"mitre_technique_name,omitempty"`
	MitreTactic        string `json:"mitre_tactic,omitempty"`
	MitreTacticID      string `json:"mitre_tactic_id,omitempty"`
	MitreURL           string `json:"mitre_url,omitempty"`
}

// Enriched reports whether the MITRE fields have been filled in.
func (t *Threat) Enriched() bool {
	return t.MitreTechniqueID != ""
}

// Port returns a pointer suitable for the nullable port fields.
func Port(p uint16) *uint16 {
	return &p
}

// BlockStatusBlocked is the status of an active BlockedEntry.
const BlockStatusBlocked = "blocked"

// BlockedEntry records an address currently dropped by the firewall.
type BlockedEntry struct {
	IP          string     `json:"ip"`
	BlockedAt   time.Time  `json:"blocked_at"`
	UnblockAt   time.Time  `json:"unblock_at"`
	ThreatType  ThreatType `json:"threat_type"`
	Severity    Severity   `json:"severity"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
}

// AuditAction is the kind of a response audit entry.
type AuditAction string

const (
	ActionBlock   AuditAction = "BLOCK"
	ActionUnblock AuditAction = "UNBLOCK"
)

// AuditEntry is one persisted response action.
type AuditEntry struct {
	Action      AuditAction `json:"action"`
	IP          string      `json:"ip"`
	ThreatType  ThreatType  `json:"threat_type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Timestamp   time.Time   `json:"timestamp"`
}

// LabelNormal tags training samples taken from benign traffic.
const LabelNormal = "normal"

// TrainingSample is a feature vector tagged for retraining.
type TrainingSample struct {
	Features   FeatureVector `json:"features"`
	Label      string        `json:"label"`
	ThreatType ThreatType    `json:"threat_type,omitempty"`
	Severity   *Severity     `json:"severity,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ModelVersion is one entry of the retraining history.
type ModelVersion struct {
	Version         int       `json:"version"`
	Timestamp       time.Time `json:"timestamp"`
	ThreatSamples   int       `json:"threat_samples"`
	NormalSamples   int       `json:"normal_samples"`
	DetectionRate   float64   `json:"threat_detection_rate"`
	NewSamplesAdded int       `json:"new_samples_added"`
}
