// Package mitre maps threat types to MITRE ATT&CK techniques.
package mitre

import "Go2NetGuard/internal/model"

// Technique is one ATT&CK mapping.
type Technique struct {
	ID           string `json:"technique_id"`
	Name         string `json:"technique_name"`
	Tactic       string `json:"tactic"`
	TacticID     string `json:"tactic_id"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	Subtechnique string `json:"subtechnique"`
}

var techniques = map[model.ThreatType]Technique{
	model.ThreatDDoS: {
		ID:           "T1498",
		Name:         "Network Denial of Service",
		Tactic:       "Impact",
		TacticID:     "TA0040",
		Description:  "Adversary attempts to degrade or block availability of resources",
		URL:          "https://attack.mitre.org/techniques/T1498/",
		Subtechnique: "T1498.001 - Direct Network Flood",
	},
	model.ThreatPortScan: {
		ID:           "T1046",
		Name:         "Network Service Discovery",
		Tactic:       "Discovery",
		TacticID:     "TA0007",
		Description:  "Adversary enumerates services running on remote hosts",
		URL:          "https://attack.mitre.org/techniques/T1046/",
		Subtechnique: "T1046 - Port Scanning",
	},
	model.ThreatBruteForce: {
		ID:           "T1110",
		Name:         "Brute Force",
		Tactic:       "Credential Access",
		TacticID:     "TA0006",
		Description:  "Adversary attempts to gain access by guessing credentials",
		URL:          "https://attack.mitre.org/techniques/T1110/",
		Subtechnique: "T1110.001 - Password Guessing",
	},
	model.ThreatDNSTunneling: {
		ID:           "T1071",
		Name:         "Application Layer Protocol",
		Tactic:       "Command and Control",
		TacticID:     "TA0011",
		Description:  "Adversary uses DNS to communicate and exfiltrate data",
		URL:          "https://attack.mitre.org/techniques/T1071/",
		Subtechnique: "T1071.004 - DNS",
	},
	model.ThreatMLAnomaly: {
		ID:           "T0000",
		Name:         "Unknown / Zero-Day Threat",
		Tactic:       "Unknown",
		TacticID:     "TA0000",
		Description:  "ML model detected anomalous traffic not matching known patterns",
		URL:          "https://attack.mitre.org/",
		Subtechnique: "Detected via Isolation Forest anomaly detection",
	},
}

// Unknown is returned for threat types without a mapping.
var Unknown = Technique{
	ID:           "T0000",
	Name:         "Unknown",
	Tactic:       "Unknown",
	TacticID:     "TA0000",
	Description:  "Unclassified threat",
	URL:          "https://attack.mitre.org/",
	Subtechnique: "N/A",
}

// Lookup returns the technique for t, or Unknown.
func Lookup(t model.ThreatType) Technique {
	if tech, ok := techniques[t]; ok {
		return tech
	}
	return Unknown
}

// Enrich returns a copy of t with the MITRE fields set.
func Enrich(t model.Threat) model.Threat {
	tech := Lookup(t.ThreatType)
	t.MitreTechniqueID = tech.ID
	t.MitreTechniqueName = tech.Name
	t.MitreTactic = tech.Tactic
	t.MitreTacticID = tech.TacticID
	t.MitreURL = tech.URL
	return t
}
