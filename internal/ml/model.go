package ml

import (
	"errors"
	"fmt"
	"time"

	"Go2NetGuard/internal/model"
)

// Model is a trained scaler plus forest. A Model is never mutated after
// Train returns, so it is safe to share between goroutines.
type Model struct {
	Version      int
	TrainedAt    time.Time
	FeatureNames []string
	Scaler       Scaler
	Forest       *Forest
}

// Train standardizes X and fits a forest on it.
func Train(X [][]float64, opts Options, version int) (*Model, error) {
	if len(X) == 0 {
		return nil, errNoData
	}
	if len(X[0]) != model.FeatureCount {
		return nil, fmt.Errorf("ml: expected %d features, got %d", model.FeatureCount, len(X[0]))
	}
	scaler := FitScaler(X)
	forest, err := Fit(scaler.TransformAll(X), opts)
	if err != nil {
		return nil, err
	}
	return &Model{
		Version:      version,
		TrainedAt:    time.Now().UTC(),
		FeatureNames: append([]string(nil), model.FeatureNames[:]...),
		Scaler:       scaler,
		Forest:       forest,
	}, nil
}

// Decision returns the anomaly score of fv; negative means anomalous.
func (m *Model) Decision(fv model.FeatureVector) float64 {
	return m.Forest.Decision(m.Scaler.Transform(fv.Slice()))
}

// Predict reports whether fv is anomalous.
func (m *Model) Predict(fv model.FeatureVector) bool {
	return m.Decision(fv) < 0
}

// DetectionRate is the fraction of rows the model flags as anomalous.
// It returns 0 for an empty set.
func (m *Model) DetectionRate(rows [][]float64) float64 {
	if len(rows) == 0 {
		return 0
	}
	hits := 0
	for _, row := range rows {
		if m.Forest.Predict(m.Scaler.Transform(row)) {
			hits++
		}
	}
	return float64(hits) / float64(len(rows))
}

func (m *Model) validate() error {
	if m.Forest == nil || len(m.Forest.Trees) == 0 {
		return errors.New("ml: model has no trees")
	}
	if len(m.Scaler.Mean) != model.FeatureCount || len(m.Scaler.Std) != model.FeatureCount {
		return fmt.Errorf("ml: scaler width %d does not match %d features", len(m.Scaler.Mean), model.FeatureCount)
	}
	return nil
}
