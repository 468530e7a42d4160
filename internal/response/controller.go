// Package response blocks the sources of severe threats at the host
// firewall and lifts the blocks when they expire.
package response

import (
	"errors"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/response/firewall"
)

// Result statuses.
const (
	StatusBlocked        = model.BlockStatusBlocked
	StatusAlreadyBlocked = "already_blocked"
	StatusSkipped        = "skipped"
	StatusFailed         = "failed"
	StatusUnblocked      = "unblocked"
	StatusNotBlocked     = "not_blocked"
)

// Reasons attached to skipped results.
const (
	ReasonWhitelisted     = "whitelisted"
	ReasonMaxLimitReached = "max_limit_reached"
)

// Result is the outcome of a block or unblock request.
type Result struct {
	Status    string     `json:"status"`
	IP        string     `json:"ip"`
	Reason    string     `json:"reason,omitempty"`
	UnblockAt *time.Time `json:"unblock_at,omitempty"`
}

// Exempter decides whether an address may never be blocked.
type Exempter interface {
	IsExempt(ip string) bool
}

// Options configures a Controller.
type Options struct {
	BlockSeverities []model.Severity
	BlockDuration   time.Duration
	MaxBlocked      int
}

// DefaultOptions blocks HIGH and CRITICAL sources for 15 minutes, at most
// 100 at a time.
func DefaultOptions() Options {
	return Options{
		BlockSeverities: []model.Severity{model.SeverityHigh, model.SeverityCritical},
		BlockDuration:   15 * time.Minute,
		MaxBlocked:      100,
	}
}

type blockRecord struct {
	entry model.BlockedEntry
	gen   uint64
	timer *time.Timer
}

type expiry struct {
	ip  string
	gen uint64
}

// Controller owns the table of blocked addresses. One mutex guards the
// table and is held across firewall calls, so the capacity check, the rule
// install and the insert happen as one step.
type Controller struct {
	mu      sync.Mutex
	blocked map[string]*blockRecord
	nextGen uint64

	firewall  model.Firewall
	whitelist Exempter
	audit     model.AuditLog
	notifier  model.Notifier
	metrics   *metrics.Metrics

	severities map[model.Severity]bool
	duration   time.Duration
	maxBlocked int
	now        func() time.Time

	expired  chan expiry
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	warnSim  sync.Once
}

// NewController starts a controller and its expiry loop. notifier and m
// may be nil.
func NewController(opts Options, fw model.Firewall, wl Exempter, audit model.AuditLog, notifier model.Notifier, m *metrics.Metrics) *Controller {
	if opts.MaxBlocked <= 0 {
		opts.MaxBlocked = DefaultOptions().MaxBlocked
	}
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = DefaultOptions().BlockDuration
	}
	c := &Controller{
		blocked:    make(map[string]*blockRecord),
		firewall:   fw,
		whitelist:  wl,
		audit:      audit,
		notifier:   notifier,
		metrics:    m,
		severities: make(map[model.Severity]bool, len(opts.BlockSeverities)),
		duration:   opts.BlockDuration,
		maxBlocked: opts.MaxBlocked,
		now:        time.Now,
		expired:    make(chan expiry, 64),
		done:       make(chan struct{}),
	}
	for _, s := range opts.BlockSeverities {
		c.severities[s] = true
	}

	c.wg.Add(1)
	go c.expiryLoop()
	return c
}

// Handle blocks the source of t if its severity is eligible. It returns nil
// when no action was attempted.
func (c *Controller) Handle(t model.Threat) *Result {
	if t.SrcIP == "" || !c.severities[t.Severity] {
		return nil
	}
	res := c.Block(t.SrcIP, t.ThreatType, t.Severity, t.Description)
	return &res
}

// Block drops traffic from ip until the block duration elapses.
func (c *Controller) Block(ip string, threatType model.ThreatType, severity model.Severity, description string) Result {
	ip = canonicalIP(ip)
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.block(ip, threatType, severity, description)
	c.metrics.ResponseAction(res.Status, len(c.blocked))
	return res
}

func (c *Controller) block(ip string, threatType model.ThreatType, severity model.Severity, description string) Result {
	if c.whitelist != nil && c.whitelist.IsExempt(ip) {
		return Result{Status: StatusSkipped, IP: ip, Reason: ReasonWhitelisted}
	}
	if _, ok := c.blocked[ip]; ok {
		return Result{Status: StatusAlreadyBlocked, IP: ip}
	}
	if len(c.blocked) >= c.maxBlocked {
		return Result{Status: StatusSkipped, IP: ip, Reason: ReasonMaxLimitReached}
	}

	if err := c.apply(c.firewall.Block, ip); err != nil {
		logger.Errorf("Failed to block %s: %v", ip, err)
		return Result{Status: StatusFailed, IP: ip}
	}

	now := c.now().UTC()
	unblockAt := now.Add(c.duration)
	c.nextGen++
	rec := &blockRecord{
		entry: model.BlockedEntry{
			IP:          ip,
			BlockedAt:   now,
			UnblockAt:   unblockAt,
			ThreatType:  threatType,
			Severity:    severity,
			Description: description,
			Status:      StatusBlocked,
		},
		gen: c.nextGen,
	}
	gen := rec.gen
	rec.timer = time.AfterFunc(c.duration, func() {
		select {
		case c.expired <- expiry{ip: ip, gen: gen}:
		case <-c.done:
		}
	})
	c.blocked[ip] = rec

	c.record(model.ActionBlock, ip, threatType, severity, description, now)
	c.notify(model.EventBlock, rec.entry)
	logger.Warnf("AUTO-BLOCKED: %s | %s | %s | unblocks in %s", ip, threatType, severity, c.duration)
	return Result{Status: StatusBlocked, IP: ip, UnblockAt: &unblockAt}
}

// Unblock lifts the block on ip.
func (c *Controller) Unblock(ip string) Result {
	ip = canonicalIP(ip)
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.unblock(ip, "manual unblock")
	c.metrics.ResponseAction(res.Status, len(c.blocked))
	return res
}

func (c *Controller) unblock(ip, description string) Result {
	rec, ok := c.blocked[ip]
	if !ok {
		return Result{Status: StatusNotBlocked, IP: ip}
	}
	if err := c.apply(c.firewall.Unblock, ip); err != nil {
		logger.Errorf("Failed to unblock %s: %v", ip, err)
		return Result{Status: StatusFailed, IP: ip}
	}

	rec.timer.Stop()
	delete(c.blocked, ip)
	c.record(model.ActionUnblock, ip, rec.entry.ThreatType, rec.entry.Severity, description, c.now().UTC())
	c.notify(model.EventUnblock, rec.entry)
	logger.Infof("UNBLOCKED: %s (%s)", ip, description)
	return Result{Status: StatusUnblocked, IP: ip}
}

// canonicalIP keys the block table by one spelling per host: the dotted
// form for IPv4 and IPv4-mapped addresses, the compressed form otherwise.
// Unparsable input is returned unchanged for the whitelist to reject.
func canonicalIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.String()
	}
	return parsed.String()
}

// unblockIfMatches lifts the block on ip only if it is still the block
// generation the expiring timer was created for.
func (c *Controller) unblockIfMatches(ip string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.blocked[ip]
	if !ok || rec.gen != gen {
		return
	}
	res := c.unblock(ip, "auto unblock")
	c.metrics.ResponseAction(res.Status, len(c.blocked))
}

func (c *Controller) expiryLoop() {
	defer c.wg.Done()
	for {
		select {
		case e := <-c.expired:
			c.unblockIfMatches(e.ip, e.gen)
		case <-c.done:
			return
		}
	}
}

// apply runs a firewall operation, treating a missing firewall as success.
func (c *Controller) apply(op func(string) error, ip string) error {
	err := op(ip)
	if errors.Is(err, firewall.ErrUnavailable) {
		c.warnSim.Do(func() {
			logger.Warnf("Firewall unavailable, running in simulation mode")
		})
		return nil
	}
	return err
}

func (c *Controller) record(action model.AuditAction, ip string, threatType model.ThreatType, severity model.Severity, description string, at time.Time) {
	if c.audit == nil {
		return
	}
	c.audit.Append(model.AuditEntry{
		Action:      action,
		IP:          ip,
		ThreatType:  threatType,
		Severity:    severity,
		Description: description,
		Timestamp:   at,
	})
}

func (c *Controller) notify(kind string, entry model.BlockedEntry) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(model.Event{Type: kind, Timestamp: c.now().UTC(), Data: entry})
}

// Blocked returns a snapshot of the current blocks, oldest first.
func (c *Controller) Blocked() []model.BlockedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.BlockedEntry, 0, len(c.blocked))
	for _, rec := range c.blocked {
		out = append(out, rec.entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockedAt.Equal(out[j].BlockedAt) {
			return out[i].IP < out[j].IP
		}
		return out[i].BlockedAt.Before(out[j].BlockedAt)
	})
	return out
}

// IsBlocked reports whether ip is currently blocked.
func (c *Controller) IsBlocked(ip string) bool {
	ip = canonicalIP(ip)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.blocked[ip]
	return ok
}

// Logs returns up to limit audit entries, newest first.
func (c *Controller) Logs(limit int) []model.AuditEntry {
	if c.audit == nil {
		return []model.AuditEntry{}
	}
	return c.audit.Recent(limit)
}

// Stop halts the expiry loop and lifts every remaining block so no drop
// rule outlives the process.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()

		c.mu.Lock()
		defer c.mu.Unlock()
		for ip := range c.blocked {
			c.unblock(ip, "shutdown")
		}
		logger.Infof("Response controller stopped.")
	})
}
