// Package pipeline runs the per-packet detection path: flow accounting,
// rules, anomaly scoring, enrichment, sampling and response.
package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/engine/flowstore"
	"Go2NetGuard/internal/engine/rules"
	"Go2NetGuard/internal/engine/scorer"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/mitre"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/response"

	"github.com/google/uuid"
)

// ErrStopped is returned by InputWait after Stop.
var ErrStopped = errors.New("pipeline: stopped")

// Options holds the pipeline tunables.
type Options struct {
	NumWorkers        int
	QueueSize         int
	AlertCooldown     time.Duration
	MinPacketsForML   uint64
	NormalSampleEvery uint64
	FlowIdleTimeout   time.Duration
	SweepInterval     time.Duration
}

// OptionsFromConfig maps the detection section onto Options.
func OptionsFromConfig(cfg config.DetectionConfig) Options {
	return Options{
		NumWorkers:        cfg.NumWorkers,
		QueueSize:         cfg.SizeOfPacketChannel,
		AlertCooldown:     cfg.AlertCooldown,
		MinPacketsForML:   cfg.MinPacketsForML,
		NormalSampleEvery: cfg.NormalSampleEvery,
		FlowIdleTimeout:   cfg.FlowIdleTimeout,
		SweepInterval:     cfg.SweepInterval,
	}
}

// SampleCollector receives training samples.
type SampleCollector interface {
	AddThreatSample(t model.Threat)
	AddNormalSample(fv model.FeatureVector)
}

// Responder acts on confirmed threats.
type Responder interface {
	Handle(t model.Threat) *response.Result
}

// Components are the collaborators of a Pipeline. Store and Rules are
// required; the rest may be nil.
type Components struct {
	Store     *flowstore.Store
	Rules     *rules.Engine
	Scorer    *scorer.Scorer
	Adaptive  SampleCollector
	Responder Responder
	Sinks     []model.ThreatSink
	Metrics   *metrics.Metrics
}

// Pipeline processes packets on a pool of workers. Packets of one source
// always land on the same worker, so per-source processing is ordered.
type Pipeline struct {
	opts Options
	c    Components

	now   func() time.Time
	newID func() string

	queues   []chan *model.PacketMeta
	mu       sync.RWMutex
	stopped  bool
	workerWg sync.WaitGroup

	done      chan struct{}
	janitorWg sync.WaitGroup

	cleanSeen atomic.Uint64
	dropWarn  *logger.Throttle
	sinkWarn  *logger.Throttle
}

// New creates a pipeline. Call Start before Input.
func New(opts Options, c Components) *Pipeline {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	p := &Pipeline{
		opts:     opts,
		c:        c,
		now:      time.Now,
		newID:    uuid.NewString,
		done:     make(chan struct{}),
		dropWarn: logger.NewThrottle(10 * time.Second),
		sinkWarn: logger.NewThrottle(10 * time.Second),
	}
	perWorker := opts.QueueSize / opts.NumWorkers
	if perWorker < 1 {
		perWorker = 1
	}
	p.queues = make([]chan *model.PacketMeta, opts.NumWorkers)
	for i := range p.queues {
		p.queues[i] = make(chan *model.PacketMeta, perWorker)
	}
	return p
}

// AddSink registers another threat sink. It must be called before Start.
func (p *Pipeline) AddSink(s model.ThreatSink) {
	p.c.Sinks = append(p.c.Sinks, s)
}

// Start launches the workers and the flow janitor.
func (p *Pipeline) Start() {
	p.workerWg.Add(len(p.queues))
	for _, q := range p.queues {
		go p.worker(q)
	}
	if p.opts.SweepInterval > 0 && p.opts.FlowIdleTimeout > 0 {
		p.janitorWg.Add(1)
		go p.runJanitor()
	}
	logger.Infof("Pipeline started with %d workers.", len(p.queues))
}

// Stop drains the queued packets and stops the janitor.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	logger.Infof("Waiting for pipeline workers to finish...")
	p.workerWg.Wait()
	close(p.done)
	p.janitorWg.Wait()
	logger.Infof("Pipeline stopped.")
}

func (p *Pipeline) queueFor(meta *model.PacketMeta) chan *model.PacketMeta {
	key := meta.SrcIP
	if v4 := key.To4(); v4 != nil {
		key = v4
	}
	h := fnv.New32a()
	h.Write(key)
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

// Input enqueues meta without blocking. It reports false when the packet was
// dropped because its worker is saturated or the pipeline is stopped.
func (p *Pipeline) Input(meta *model.PacketMeta) bool {
	if meta == nil || !flowstore.ValidSource(meta.SrcIP) {
		p.c.Metrics.PacketMalformed()
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.queueFor(meta) <- meta:
		return true
	default:
		p.c.Metrics.PacketDropped()
		p.dropWarn.Warnf("Packet queue full, dropping packets from %s", meta.SrcIP)
		return false
	}
}

// InputWait enqueues meta, waiting for room. Offline replay uses it so no
// packet is dropped.
func (p *Pipeline) InputWait(ctx context.Context, meta *model.PacketMeta) error {
	if meta == nil || !flowstore.ValidSource(meta.SrcIP) {
		p.c.Metrics.PacketMalformed()
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queueFor(meta) <- meta:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) worker(q chan *model.PacketMeta) {
	defer p.workerWg.Done()
	for meta := range q {
		p.Process(meta)
	}
}

// Process runs one packet through the detection path and returns the
// threats it emitted.
func (p *Pipeline) Process(meta *model.PacketMeta) []model.Threat {
	if meta == nil || !flowstore.ValidSource(meta.SrcIP) {
		p.c.Metrics.PacketMalformed()
		return nil
	}
	p.c.Metrics.PacketProcessed()

	src := meta.SrcIP.String()
	p.c.Store.Update(meta)
	fv := p.c.Store.Features(src)
	proto := meta.ProtocolName()

	candidates := p.c.Rules.Evaluate(src, fv, meta.DstPort, proto, meta.DNSQueryLen)
	if len(candidates) == 0 {
		v, t, scored := p.score(src, fv, meta.DstPort, proto)
		if t == nil {
			// Only flows the model has judged benign become normal samples.
			if scored && !v.IsAnomaly {
				p.sampleNormal(fv)
			}
			return nil
		}
		candidates = append(candidates, *t)
	}

	// One cooldown decision covers every threat raised by this packet.
	if !p.c.Store.TryAlert(src, p.opts.AlertCooldown) {
		p.c.Metrics.AlertSuppressed()
		return nil
	}

	detectedAt := p.now()
	emitted := make([]model.Threat, 0, len(candidates))
	for _, t := range candidates {
		t.ID = p.newID()
		t.DetectedAt = detectedAt
		t = mitre.Enrich(t)
		p.emit(t)
		emitted = append(emitted, t)
	}
	p.c.Store.Reset(src)
	return emitted
}

// score runs the anomaly model once the flow has enough packets and is not
// cooling down. scored is false when the model was not consulted.
func (p *Pipeline) score(src string, fv model.FeatureVector, dstPort uint16, proto string) (v scorer.Verdict, t *model.Threat, scored bool) {
	if p.c.Scorer == nil || !p.c.Scorer.Loaded() {
		return v, nil, false
	}
	if uint64(fv.PacketCount) < p.opts.MinPacketsForML {
		return v, nil, false
	}
	if !p.c.Store.ShouldAlert(src, p.opts.AlertCooldown) {
		return v, nil, false
	}
	v, t = p.c.Scorer.EvaluateVerdict(src, fv, dstPort, proto)
	return v, t, true
}

func (p *Pipeline) sampleNormal(fv model.FeatureVector) {
	if p.c.Adaptive == nil || p.opts.NormalSampleEvery == 0 {
		return
	}
	if p.cleanSeen.Add(1)%p.opts.NormalSampleEvery == 0 {
		p.c.Adaptive.AddNormalSample(fv)
	}
}

func (p *Pipeline) emit(t model.Threat) {
	p.c.Metrics.ThreatEmitted(string(t.ThreatType), t.Severity.String())
	if p.c.Adaptive != nil {
		p.c.Adaptive.AddThreatSample(t)
	}
	if p.c.Responder != nil {
		if res := p.c.Responder.Handle(t); res != nil {
			logger.Debugf("Response for %s: %s %s", t.SrcIP, res.Status, res.Reason)
		}
	}
	for _, s := range p.c.Sinks {
		if err := s.HandleThreat(t); err != nil {
			p.sinkWarn.Warnf("Failed to deliver threat %s: %v", t.ID, err)
		}
	}
}

func (p *Pipeline) runJanitor() {
	defer p.janitorWg.Done()
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.done:
			logger.Debugf("Flow janitor shutting down.")
			return
		}
	}
}

func (p *Pipeline) sweep() {
	n := p.c.Store.Sweep(p.opts.FlowIdleTimeout)
	p.c.Metrics.FlowsSwept(n)
	p.c.Metrics.SetTrackedFlows(p.c.Store.Len())
	if n > 0 {
		logger.Debugf("Swept %d idle flows, %d tracked", n, p.c.Store.Len())
	}
}
