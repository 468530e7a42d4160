package adaptive

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
)

const (
	threatFile  = "confirmed_threats.json"
	normalFile  = "normal_traffic.json"
	metricsFile = "model_metrics.json"
)

// Flush writes the samples and the retraining history to DataDir if they
// changed. Failures are logged and the data stays in memory.
func (m *Manager) Flush() {
	if m.opts.DataDir == "" {
		return
	}
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	if !m.dirty {
		m.mu.Unlock()
		return
	}
	threats := append([]model.TrainingSample(nil), m.threats...)
	normals := append([]model.TrainingSample(nil), m.normals...)
	history := append([]model.ModelVersion(nil), m.history...)
	m.dirty = false
	m.mu.Unlock()

	ok := true
	if err := os.MkdirAll(m.opts.DataDir, 0755); err != nil {
		logger.Warnf("Failed to create training data directory: %v", err)
		ok = false
	} else {
		ok = saveJSON(filepath.Join(m.opts.DataDir, threatFile), threats) && ok
		ok = saveJSON(filepath.Join(m.opts.DataDir, normalFile), normals) && ok
		ok = saveJSON(filepath.Join(m.opts.DataDir, metricsFile), history) && ok
	}
	if !ok {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
	}
}

func (m *Manager) load() {
	if m.opts.DataDir == "" {
		return
	}
	loadJSON(filepath.Join(m.opts.DataDir, threatFile), &m.threats)
	loadJSON(filepath.Join(m.opts.DataDir, normalFile), &m.normals)
	loadJSON(filepath.Join(m.opts.DataDir, metricsFile), &m.history)

	if len(m.threats) > m.opts.MaxThreatSamples {
		m.threats = m.threats[len(m.threats)-m.opts.MaxThreatSamples:]
	}
	if len(m.normals) > m.opts.MaxNormalSamples {
		m.normals = m.normals[len(m.normals)-m.opts.MaxNormalSamples:]
	}
}

func saveJSON(path string, v interface{}) bool {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Warnf("Failed to encode %s: %v", path, err)
		return false
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logger.Warnf("Failed to write %s: %v", path, err)
		return false
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Warnf("Failed to write %s: %v", path, err)
		return false
	}
	return true
}

func loadJSON(path string, v interface{}) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("Failed to read %s: %v", path, err)
		}
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warnf("Ignoring unreadable %s: %v", path, err)
	}
}
