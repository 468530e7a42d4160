package response

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/response/audit"
	"Go2NetGuard/internal/response/firewall"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op string
	ip string
}

type fakeFirewall struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeFirewall) Block(ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"block", ip})
	return f.err
}

func (f *fakeFirewall) Unblock(ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"unblock", ip})
	return f.err
}

func (f *fakeFirewall) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingNotifier) Notify(e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func testWhitelist(t *testing.T) *Whitelist {
	t.Helper()
	wl, err := NewWhitelist(config.Default().Response.Whitelist, config.Default().Response.BlockablePrefixes)
	require.NoError(t, err)
	wl.ownAddrs = func() ([]net.Addr, error) {
		return []net.Addr{&net.IPNet{IP: net.ParseIP("192.168.1.1"), Mask: net.CIDRMask(24, 32)}}, nil
	}
	return wl
}

func newTestController(t *testing.T, fw model.Firewall, opts Options) (*Controller, *audit.MemoryLog) {
	t.Helper()
	log := audit.NewMemoryLog(100)
	c := NewController(opts, fw, testWhitelist(t), log, nil, nil)
	t.Cleanup(c.Stop)
	return c, log
}

func TestBlockAndUnblock(t *testing.T) {
	fw := &fakeFirewall{}
	c, log := newTestController(t, fw, DefaultOptions())

	res := c.Block("10.0.0.5", model.ThreatDDoS, model.SeverityCritical, "flood")
	assert.Equal(t, StatusBlocked, res.Status)
	require.NotNil(t, res.UnblockAt)
	assert.True(t, c.IsBlocked("10.0.0.5"))

	entries := c.Blocked()
	require.Len(t, entries, 1)
	assert.Equal(t, "10.0.0.5", entries[0].IP)
	assert.Equal(t, model.ThreatDDoS, entries[0].ThreatType)
	assert.Equal(t, StatusBlocked, entries[0].Status)
	assert.Equal(t, 15*time.Minute, entries[0].UnblockAt.Sub(entries[0].BlockedAt))

	res = c.Block("10.0.0.5", model.ThreatDDoS, model.SeverityCritical, "flood")
	assert.Equal(t, StatusAlreadyBlocked, res.Status)

	res = c.Unblock("10.0.0.5")
	assert.Equal(t, StatusUnblocked, res.Status)
	assert.False(t, c.IsBlocked("10.0.0.5"))

	assert.Equal(t, StatusNotBlocked, c.Unblock("10.0.0.5").Status)
	assert.Equal(t, []call{{"block", "10.0.0.5"}, {"unblock", "10.0.0.5"}}, fw.Calls())

	logs := log.Recent(0)
	require.Len(t, logs, 2)
	assert.Equal(t, model.ActionUnblock, logs[0].Action)
	assert.Equal(t, model.ActionBlock, logs[1].Action)
	assert.Equal(t, model.SeverityCritical, logs[0].Severity)
}

func TestOneEntryPerAddress(t *testing.T) {
	fw := &fakeFirewall{}
	c, _ := newTestController(t, fw, DefaultOptions())

	assert.Equal(t, StatusBlocked, c.Block("10.0.0.5", model.ThreatDDoS, model.SeverityCritical, "flood").Status)
	res := c.Block("::ffff:10.0.0.5", model.ThreatManual, model.SeverityHigh, "manual")
	assert.Equal(t, StatusAlreadyBlocked, res.Status)
	assert.Equal(t, "10.0.0.5", res.IP)
	assert.Len(t, c.Blocked(), 1)
	assert.True(t, c.IsBlocked("::ffff:10.0.0.5"))

	assert.Equal(t, StatusUnblocked, c.Unblock(" ::FFFF:10.0.0.5").Status)
	assert.Empty(t, c.Blocked())
	assert.Equal(t, []call{{"block", "10.0.0.5"}, {"unblock", "10.0.0.5"}}, fw.Calls())
}

func TestWhitelistedNeverReachesFirewall(t *testing.T) {
	fw := &fakeFirewall{}
	c, log := newTestController(t, fw, DefaultOptions())

	for _, ip := range []string{"8.8.8.8", "1.1.1.1", "127.0.0.1", "203.0.113.9", "192.168.1.1", "not-an-ip", ""} {
		res := c.Block(ip, model.ThreatDDoS, model.SeverityCritical, "")
		assert.Equal(t, StatusSkipped, res.Status, ip)
		assert.Equal(t, ReasonWhitelisted, res.Reason, ip)
	}
	assert.Empty(t, fw.Calls())
	assert.Empty(t, c.Blocked())
	assert.Empty(t, log.Recent(0))
}

func TestMaxBlockedLimit(t *testing.T) {
	fw := &fakeFirewall{}
	c, _ := newTestController(t, fw, DefaultOptions())

	for i := 0; i < 100; i++ {
		ip := fmt.Sprintf("10.1.%d.%d", i/250, i%250+1)
		require.Equal(t, StatusBlocked, c.Block(ip, model.ThreatPortScan, model.SeverityHigh, "").Status, ip)
	}
	res := c.Block("10.9.9.9", model.ThreatPortScan, model.SeverityHigh, "")
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, ReasonMaxLimitReached, res.Reason)
	assert.Len(t, c.Blocked(), 100)
	assert.Len(t, fw.Calls(), 100)
}

func TestConcurrentBlocksRespectLimit(t *testing.T) {
	fw := &fakeFirewall{}
	c, _ := newTestController(t, fw, Options{
		BlockSeverities: []model.Severity{model.SeverityHigh},
		BlockDuration:   time.Minute,
		MaxBlocked:      10,
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Block(fmt.Sprintf("10.2.0.%d", i+1), model.ThreatDDoS, model.SeverityHigh, "")
		}(i)
	}
	wg.Wait()
	assert.Len(t, c.Blocked(), 10)
	assert.Len(t, fw.Calls(), 10)
}

func TestHandleSeverityGate(t *testing.T) {
	c, _ := newTestController(t, &fakeFirewall{}, DefaultOptions())

	assert.Nil(t, c.Handle(model.Threat{SrcIP: "10.0.0.1", Severity: model.SeverityMedium, ThreatType: model.ThreatMLAnomaly}))
	assert.Nil(t, c.Handle(model.Threat{SrcIP: "", Severity: model.SeverityCritical}))

	res := c.Handle(model.Threat{SrcIP: "10.0.0.1", Severity: model.SeverityHigh, ThreatType: model.ThreatBruteForce})
	require.NotNil(t, res)
	assert.Equal(t, StatusBlocked, res.Status)
}

func TestFirewallFailure(t *testing.T) {
	fw := &fakeFirewall{err: errors.New("permission denied")}
	c, log := newTestController(t, fw, DefaultOptions())

	res := c.Block("10.0.0.7", model.ThreatDDoS, model.SeverityCritical, "")
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, c.IsBlocked("10.0.0.7"))
	assert.Empty(t, log.Recent(0))
}

func TestFirewallUnavailableIsSimulatedSuccess(t *testing.T) {
	fw := &fakeFirewall{err: firewall.ErrUnavailable}
	c, _ := newTestController(t, fw, DefaultOptions())

	assert.Equal(t, StatusBlocked, c.Block("10.0.0.8", model.ThreatDDoS, model.SeverityCritical, "").Status)
	assert.Equal(t, StatusUnblocked, c.Unblock("10.0.0.8").Status)
}

func TestBlockExpires(t *testing.T) {
	fw := &fakeFirewall{}
	c, log := newTestController(t, fw, Options{
		BlockSeverities: []model.Severity{model.SeverityHigh},
		BlockDuration:   20 * time.Millisecond,
		MaxBlocked:      5,
	})

	require.Equal(t, StatusBlocked, c.Block("10.0.0.9", model.ThreatDDoS, model.SeverityHigh, "").Status)
	assert.Eventually(t, func() bool { return !c.IsBlocked("10.0.0.9") }, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return len(log.Recent(0)) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "auto unblock", log.Recent(1)[0].Description)
}

func TestStaleExpiryDoesNotUndoReblock(t *testing.T) {
	fw := &fakeFirewall{}
	c, _ := newTestController(t, fw, DefaultOptions())

	require.Equal(t, StatusBlocked, c.Block("10.0.0.10", model.ThreatDDoS, model.SeverityHigh, "").Status)
	c.mu.Lock()
	staleGen := c.blocked["10.0.0.10"].gen
	c.mu.Unlock()

	require.Equal(t, StatusUnblocked, c.Unblock("10.0.0.10").Status)
	require.Equal(t, StatusBlocked, c.Block("10.0.0.10", model.ThreatDDoS, model.SeverityHigh, "").Status)

	// A timer from the first block firing now must not lift the second.
	c.unblockIfMatches("10.0.0.10", staleGen)
	assert.True(t, c.IsBlocked("10.0.0.10"))

	// Nor does a stale timer for an address that is no longer blocked.
	require.Equal(t, StatusUnblocked, c.Unblock("10.0.0.10").Status)
	calls := len(fw.Calls())
	c.unblockIfMatches("10.0.0.10", staleGen)
	assert.Len(t, fw.Calls(), calls)
}

func TestStopReleasesBlocks(t *testing.T) {
	fw := &fakeFirewall{}
	c := NewController(DefaultOptions(), fw, testWhitelist(t), audit.NewMemoryLog(10), nil, nil)

	c.Block("10.0.0.11", model.ThreatDDoS, model.SeverityHigh, "")
	c.Block("10.0.0.12", model.ThreatDDoS, model.SeverityHigh, "")
	c.Stop()
	c.Stop()

	assert.Empty(t, c.Blocked())
	assert.Len(t, fw.Calls(), 4)
}

func TestNotifierReceivesEvents(t *testing.T) {
	n := &recordingNotifier{}
	c := NewController(DefaultOptions(), &fakeFirewall{}, testWhitelist(t), nil, n, nil)
	defer c.Stop()

	c.Block("10.0.0.13", model.ThreatDDoS, model.SeverityHigh, "")
	c.Unblock("10.0.0.13")

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.events, 2)
	assert.Equal(t, model.EventBlock, n.events[0].Type)
	assert.Equal(t, model.EventUnblock, n.events[1].Type)
	assert.Empty(t, c.Logs(10))
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Response.Firewall.Backend = "simulate"
	cfg.Response.Audit.Backend = "file"
	cfg.Response.Audit.Path = filepath.Join(t.TempDir(), "response_log.json")

	c, err := NewFromConfig(cfg, nil, nil)
	require.NoError(t, err)
	defer c.Stop()

	assert.Equal(t, StatusBlocked, c.Block("172.16.4.4", model.ThreatPortScan, model.SeverityHigh, "scan").Status)
	logs := c.Logs(5)
	require.Len(t, logs, 1)
	assert.Equal(t, "172.16.4.4", logs[0].IP)

	cfg.Response.BlockablePrefixes = []string{"bogus"}
	_, err = NewFromConfig(cfg, nil, nil)
	assert.Error(t, err)
}
