// Package scorer wraps the active anomaly model and turns its scores into
// verdicts and ML anomaly threats.
package scorer

import (
	"errors"
	"fmt"
	"sync/atomic"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/ml"
	"Go2NetGuard/internal/model"
)

// Confidence grades an anomaly verdict.
type Confidence string

const (
	ConfidenceUnknown Confidence = "UNKNOWN"
	ConfidenceHigh    Confidence = "HIGH"
	ConfidenceMedium  Confidence = "MEDIUM"
	ConfidenceLow     Confidence = "LOW"
	ConfidenceNormal  Confidence = "NORMAL"
)

// Verdict is the result of scoring one feature vector.
type Verdict struct {
	IsAnomaly  bool       `json:"is_anomaly"`
	Score      float64    `json:"score"`
	Confidence Confidence `json:"confidence"`
}

// Bands are the score thresholds of the scorer.
type Bands struct {
	High   float64
	Medium float64
	// Cutoff is the stricter threshold a score must also pass before an
	// anomaly becomes a threat.
	Cutoff float64
}

// DefaultBands returns the production thresholds.
func DefaultBands() Bands {
	return Bands{High: -0.15, Medium: -0.10, Cutoff: -0.25}
}

// BandsFromConfig maps the anomaly section onto Bands.
func BandsFromConfig(cfg config.AnomalyConfig) Bands {
	return Bands{High: cfg.HighConfidence, Medium: cfg.MediumConfidence, Cutoff: cfg.Cutoff}
}

// Scorer holds the active model. The model is swapped atomically, so Score
// may run concurrently with retraining.
type Scorer struct {
	bands Bands
	model atomic.Pointer[ml.Model]
}

// New creates a scorer with no model loaded.
func New(bands Bands) *Scorer {
	return &Scorer{bands: bands}
}

// Load activates the model saved in dir. A missing artifact leaves the scorer
// disabled and is not an error.
func (s *Scorer) Load(dir string) error {
	m, err := ml.NewArtifactStore(dir).Load()
	if err != nil {
		if errors.Is(err, ml.ErrNoArtifact) {
			logger.Warnf("No anomaly model in %s, ML detection disabled", dir)
			return nil
		}
		return fmt.Errorf("failed to load anomaly model: %w", err)
	}
	s.Swap(m)
	logger.Infof("Loaded anomaly model v%d trained at %s", m.Version, m.TrainedAt.Format("2006-01-02 15:04:05"))
	return nil
}

// Swap replaces the active model. A nil model disables scoring.
func (s *Scorer) Swap(m *ml.Model) {
	s.model.Store(m)
}

// Loaded reports whether a model is active.
func (s *Scorer) Loaded() bool {
	return s.model.Load() != nil
}

// Model returns the active model, or nil.
func (s *Scorer) Model() *ml.Model {
	return s.model.Load()
}

// Score evaluates fv against the active model.
func (s *Scorer) Score(fv model.FeatureVector) Verdict {
	m := s.model.Load()
	if m == nil {
		return Verdict{Confidence: ConfidenceUnknown}
	}

	return s.classify(m.Decision(fv))
}

func (s *Scorer) classify(score float64) Verdict {
	v := Verdict{IsAnomaly: score < 0, Score: score}
	switch {
	case !v.IsAnomaly:
		v.Confidence = ConfidenceNormal
	case score < s.bands.High:
		v.Confidence = ConfidenceHigh
	case score < s.bands.Medium:
		v.Confidence = ConfidenceMedium
	default:
		v.Confidence = ConfidenceLow
	}
	return v
}

// Evaluate returns an ML anomaly threat when fv is anomalous and its score
// is below the cutoff, otherwise nil.
func (s *Scorer) Evaluate(src string, fv model.FeatureVector, dstPort uint16, protocol string) *model.Threat {
	v, ok := s.check(fv)
	if !ok {
		return nil
	}
	return s.threat(src, fv, dstPort, protocol, v)
}

// EvaluateVerdict is Evaluate that also returns the verdict, so callers can
// act on normal traffic without scoring twice.
func (s *Scorer) EvaluateVerdict(src string, fv model.FeatureVector, dstPort uint16, protocol string) (Verdict, *model.Threat) {
	v, ok := s.check(fv)
	if !ok {
		return v, nil
	}
	return v, s.threat(src, fv, dstPort, protocol, v)
}

func (s *Scorer) check(fv model.FeatureVector) (Verdict, bool) {
	v := s.Score(fv)
	return v, v.IsAnomaly && v.Score < s.bands.Cutoff
}

func (s *Scorer) threat(src string, fv model.FeatureVector, dstPort uint16, protocol string, v Verdict) *model.Threat {
	if protocol == "" {
		protocol = "OTHER"
	}
	return &model.Threat{
		ThreatType:  model.ThreatMLAnomaly,
		Severity:    model.SeverityMedium,
		SrcIP:       src,
		DstPort:     model.Port(dstPort),
		Protocol:    protocol,
		PacketCount: uint64(fv.PacketCount),
		Description: fmt.Sprintf("ML anomaly detected (score: %.3f, confidence: %s)", v.Score, v.Confidence),
		RawFeatures: fv,
	}
}
