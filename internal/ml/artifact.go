package ml

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"Go2NetGuard/internal/logger"
)

const (
	activeArtifact  = "model.gob"
	summaryArtifact = "summary.json"
)

// ErrNoArtifact is returned by Load when no model has been saved yet.
var ErrNoArtifact = errors.New("ml: no model artifact")

// SummaryData holds the metadata written next to the active artifact.
type SummaryData struct {
	Version   int      `json:"version"`
	TrainedAt string   `json:"trained_at"`
	Trees     int      `json:"trees"`
	Offset    float64  `json:"offset"`
	Features  []string `json:"features"`
	Timestamp string   `json:"timestamp"`
}

// ArtifactStore persists models under Dir.
type ArtifactStore struct {
	Dir string
}

// NewArtifactStore creates a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{Dir: dir}
}

// Save writes m as the active artifact and a versioned backup. The active
// file is replaced by rename, so readers never see a partial model.
func (s *ArtifactStore) Save(m *Model) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "model-*.gob.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := gob.NewEncoder(tmp).Encode(m); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model to gob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}

	backup := filepath.Join(s.Dir, fmt.Sprintf("model_v%d.gob", m.Version))
	if err := copyFile(tmpPath, backup); err != nil {
		logger.Warnf("Failed to write model backup %s: %v", backup, err)
	}
	if err := os.Rename(tmpPath, s.activePath()); err != nil {
		return fmt.Errorf("failed to activate model file: %w", err)
	}

	if err := s.writeSummary(m); err != nil {
		logger.Warnf("Failed to write model summary: %v", err)
	}
	return nil
}

// Load reads the active artifact.
func (s *ArtifactStore) Load() (*Model, error) {
	file, err := os.Open(s.activePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoArtifact
		}
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var m Model
	if err := gob.NewDecoder(file).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode model gob: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Bootstrap returns the active model, training and saving one from the
// synthetic baseline if none exists.
func (s *ArtifactStore) Bootstrap(baselineSamples int, opts Options) (*Model, error) {
	m, err := s.Load()
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrNoArtifact) {
		return nil, err
	}

	logger.Infof("No model artifact in %s, training initial model on %d baseline samples", s.Dir, baselineSamples)
	m, err = Train(Baseline(baselineSamples, opts.Seed), opts, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to train initial model: %w", err)
	}
	if err := s.Save(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *ArtifactStore) activePath() string {
	return filepath.Join(s.Dir, activeArtifact)
}

func (s *ArtifactStore) writeSummary(m *Model) error {
	summary := SummaryData{
		Version:   m.Version,
		TrainedAt: m.TrainedAt.Format(time.RFC3339),
		Trees:     len(m.Forest.Trees),
		Offset:    m.Forest.Offset,
		Features:  m.FeatureNames,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	summaryFile, err := os.Create(filepath.Join(s.Dir, summaryArtifact))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
