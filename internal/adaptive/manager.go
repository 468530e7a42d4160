// Package adaptive collects confirmed threats and benign traffic samples and
// periodically retrains the anomaly model on them.
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/ml"
	"Go2NetGuard/internal/model"
)

// ErrInsufficientSamples is returned by Retrain when too few threat samples
// arrived since the last retrain. Nothing is changed in that case.
var ErrInsufficientSamples = errors.New("adaptive: not enough new samples")

const persistInterval = 30 * time.Second

// Options configures a Manager.
type Options struct {
	RetrainInterval  time.Duration
	MinNewSamples    int
	MaxThreatSamples int
	MaxNormalSamples int
	BaselineSamples  int
	HistoryTail      int
	DataDir          string
	Model            ml.Options
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		RetrainInterval:  5 * time.Minute,
		MinNewSamples:    10,
		MaxThreatSamples: 5000,
		MaxNormalSamples: 10000,
		BaselineSamples:  5000,
		HistoryTail:      10,
		DataDir:          "data/training",
		Model:            ml.DefaultOptions(),
	}
}

// ModelHolder is where retrained models are activated.
type ModelHolder interface {
	Swap(m *ml.Model)
	Model() *ml.Model
}

// RetrainResult describes a completed (or skipped) retrain.
type RetrainResult struct {
	Version         int           `json:"version"`
	DetectionRate   float64       `json:"threat_detection_rate"`
	TrainingSamples int           `json:"training_samples"`
	ThreatSamples   int           `json:"threat_samples"`
	NewSamples      int           `json:"new_samples"`
	Duration        time.Duration `json:"duration"`
}

// Metrics is the externally visible state of the manager.
type Metrics struct {
	CurrentVersion    int                  `json:"current_version"`
	ThreatSamples     int                  `json:"threat_samples"`
	NormalSamples     int                  `json:"normal_samples"`
	RetrainingHistory []model.ModelVersion `json:"retraining_history"`
	NewSinceRetrain   int                  `json:"new_since_retrain"`
	// NextRetrainIn is the number of threat samples still needed.
	NextRetrainIn        int     `json:"next_retrain_in"`
	NextRetrainInSeconds float64 `json:"next_retrain_in_seconds"`
}

// Manager owns the training samples and the retraining loop.
type Manager struct {
	opts    Options
	store   *ml.ArtifactStore
	holder  ModelHolder
	metrics *metrics.Metrics
	now     func() time.Time

	mu          sync.Mutex
	threats     []model.TrainingSample
	normals     []model.TrainingSample
	history     []model.ModelVersion
	version     int
	newSince    int
	nextRetrain time.Time
	dirty       bool

	// retrainMu serializes retrains so two never race on the version.
	retrainMu sync.Mutex
	// flushMu orders snapshot and write so an older snapshot never lands last.
	flushMu sync.Mutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager creates a manager and loads any samples persisted in
// opts.DataDir.
func NewManager(opts Options, store *ml.ArtifactStore, holder ModelHolder, m *metrics.Metrics) *Manager {
	def := DefaultOptions()
	if opts.MaxThreatSamples <= 0 {
		opts.MaxThreatSamples = def.MaxThreatSamples
	}
	if opts.MaxNormalSamples <= 0 {
		opts.MaxNormalSamples = def.MaxNormalSamples
	}
	if opts.HistoryTail <= 0 {
		opts.HistoryTail = def.HistoryTail
	}
	if opts.BaselineSamples <= 0 {
		opts.BaselineSamples = def.BaselineSamples
	}
	if opts.RetrainInterval <= 0 {
		opts.RetrainInterval = def.RetrainInterval
	}

	mgr := &Manager{
		opts:    opts,
		store:   store,
		holder:  holder,
		metrics: m,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	mgr.load()

	mgr.version = len(mgr.history) + 1
	if holder != nil {
		if active := holder.Model(); active != nil && active.Version > mgr.version {
			mgr.version = active.Version
		}
	}
	logger.Infof("Adaptive trainer initialized | version: %d | threat samples: %d | normal samples: %d",
		mgr.version, len(mgr.threats), len(mgr.normals))
	return mgr
}

// AddThreatSample records the features of a confirmed threat.
func (m *Manager) AddThreatSample(t model.Threat) {
	severity := t.Severity
	sample := model.TrainingSample{
		Features:   t.RawFeatures,
		Label:      string(t.ThreatType),
		ThreatType: t.ThreatType,
		Severity:   &severity,
		Timestamp:  m.now().UTC(),
	}

	m.mu.Lock()
	m.threats = appendBounded(m.threats, sample, m.opts.MaxThreatSamples)
	m.newSince++
	m.dirty = true
	total := len(m.threats)
	m.mu.Unlock()

	logger.Debugf("Threat sample saved | total: %d | type: %s", total, t.ThreatType)
}

// AddNormalSample records the features of traffic judged benign.
func (m *Manager) AddNormalSample(fv model.FeatureVector) {
	sample := model.TrainingSample{
		Features:  fv,
		Label:     model.LabelNormal,
		Timestamp: m.now().UTC(),
	}

	m.mu.Lock()
	m.normals = appendBounded(m.normals, sample, m.opts.MaxNormalSamples)
	m.dirty = true
	m.mu.Unlock()
}

// Retrain fits a new model on the baseline plus the collected benign
// samples, evaluates it on the collected threats, persists and activates
// it. The sample lock is not held while training.
func (m *Manager) Retrain(ctx context.Context) (RetrainResult, error) {
	m.retrainMu.Lock()
	defer m.retrainMu.Unlock()

	m.mu.Lock()
	if m.newSince < m.opts.MinNewSamples {
		res := RetrainResult{Version: m.version, NewSamples: m.newSince}
		m.mu.Unlock()
		logger.Infof("Not enough new samples (%d/%d), skipping retrain", res.NewSamples, m.opts.MinNewSamples)
		m.metrics.Retrain("skipped", 0, 0)
		return res, ErrInsufficientSamples
	}
	threatRows := featureRows(m.threats)
	normalRows := featureRows(m.normals)
	consumed := m.newSince
	nextVersion := m.version + 1
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return RetrainResult{}, err
	}

	start := m.now()
	logger.Infof("Starting adaptive retraining | threat samples: %d | normal samples: %d", len(threatRows), len(normalRows))

	opts := m.opts.Model
	opts.Seed += uint64(nextVersion)
	rows := append(ml.Baseline(m.opts.BaselineSamples, opts.Seed), normalRows...)

	trained, err := ml.Train(rows, opts, nextVersion)
	if err != nil {
		m.metrics.Retrain("failed", 0, 0)
		return RetrainResult{}, fmt.Errorf("failed to train model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return RetrainResult{}, err
	}
	rate := trained.DetectionRate(threatRows)

	if m.store != nil {
		if err := m.store.Save(trained); err != nil {
			m.metrics.Retrain("failed", 0, 0)
			return RetrainResult{}, fmt.Errorf("failed to save model: %w", err)
		}
	}
	if m.holder != nil {
		m.holder.Swap(trained)
	}

	m.mu.Lock()
	m.version = nextVersion
	m.newSince -= consumed
	m.history = append(m.history, model.ModelVersion{
		Version:         nextVersion,
		Timestamp:       trained.TrainedAt,
		ThreatSamples:   len(threatRows),
		NormalSamples:   len(rows),
		DetectionRate:   rate,
		NewSamplesAdded: consumed,
	})
	m.dirty = true
	m.mu.Unlock()
	m.Flush()

	res := RetrainResult{
		Version:         nextVersion,
		DetectionRate:   rate,
		TrainingSamples: len(rows),
		ThreatSamples:   len(threatRows),
		NewSamples:      consumed,
		Duration:        m.now().Sub(start),
	}
	m.metrics.Retrain("success", nextVersion, rate)
	logger.Infof("Retrained! Version: %d | Detection rate: %.1f%% | took %s", nextVersion, rate*100, res.Duration)
	return res, nil
}

// Metrics returns a snapshot of the manager state.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	tail := m.history
	if len(tail) > m.opts.HistoryTail {
		tail = tail[len(tail)-m.opts.HistoryTail:]
	}
	var seconds float64
	if !m.nextRetrain.IsZero() {
		seconds = max(0, m.nextRetrain.Sub(m.now()).Seconds())
	}
	return Metrics{
		CurrentVersion:       m.version,
		ThreatSamples:        len(m.threats),
		NormalSamples:        len(m.normals),
		RetrainingHistory:    append([]model.ModelVersion{}, tail...),
		NewSinceRetrain:      m.newSince,
		NextRetrainIn:        max(0, m.opts.MinNewSamples-m.newSince),
		NextRetrainInSeconds: seconds,
	}
}

// Start runs the periodic retrain loop until Stop or ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.nextRetrain = m.now().Add(m.opts.RetrainInterval)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
	logger.Infof("Auto-retrain scheduled every %s", m.opts.RetrainInterval)
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	retrainTicker := time.NewTicker(m.opts.RetrainInterval)
	defer retrainTicker.Stop()
	persistTicker := time.NewTicker(persistInterval)
	defer persistTicker.Stop()

	for {
		select {
		case <-retrainTicker.C:
			m.mu.Lock()
			m.nextRetrain = m.now().Add(m.opts.RetrainInterval)
			m.mu.Unlock()

			if _, err := m.Retrain(ctx); err != nil && !errors.Is(err, ErrInsufficientSamples) {
				logger.Errorf("Retrain error: %v", err)
			}
		case <-persistTicker.C:
			m.Flush()
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

// Stop ends the retrain loop and persists pending samples.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		m.Flush()
	})
}

func appendBounded(samples []model.TrainingSample, s model.TrainingSample, max int) []model.TrainingSample {
	samples = append(samples, s)
	if len(samples) > max {
		samples = append([]model.TrainingSample(nil), samples[len(samples)-max:]...)
	}
	return samples
}

func featureRows(samples []model.TrainingSample) [][]float64 {
	rows := make([][]float64, len(samples))
	for i, s := range samples {
		rows[i] = s.Features.Slice()
	}
	return rows
}
