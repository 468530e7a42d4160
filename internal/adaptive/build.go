package adaptive

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/ml"
)

// ModelOptions maps the model section onto training options.
func ModelOptions(cfg config.ModelConfig) ml.Options {
	return ml.Options{
		Trees:         cfg.Trees,
		SampleSize:    cfg.SampleSize,
		Contamination: cfg.Contamination,
		Seed:          uint64(cfg.Seed),
	}
}

// OptionsFromConfig maps the adaptive and model sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RetrainInterval:  cfg.Adaptive.RetrainInterval,
		MinNewSamples:    cfg.Adaptive.MinNewSamples,
		MaxThreatSamples: cfg.Adaptive.MaxThreatSamples,
		MaxNormalSamples: cfg.Adaptive.MaxNormalSamples,
		BaselineSamples:  cfg.Adaptive.BaselineSamples,
		HistoryTail:      cfg.Adaptive.HistoryTail,
		DataDir:          cfg.Adaptive.DataDir,
		Model:            ModelOptions(cfg.Model),
	}
}
