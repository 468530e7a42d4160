package flowstore

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"Go2NetGuard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestUpdateAggregatesPerSource(t *testing.T) {
	clock := newFakeClock()
	s := New(1000, time.Minute, WithClock(clock.Now))

	s.Observe("10.0.0.5", "10.0.0.1", 40000, 22, 60, model.FlagSYN)
	s.Observe("10.0.0.5", "10.0.0.2", 40001, 80, 40, model.FlagSYN|model.FlagACK)
	s.Observe("10.0.0.5", "10.0.0.2", 40001, 80, 100, model.FlagACK)
	s.Observe("10.0.0.9", "10.0.0.1", 5000, 53, 80, 0)

	rec, ok := s.Record("10.0.0.5")
	require.True(t, ok)
	assert.EqualValues(t, 3, rec.PacketCount)
	assert.EqualValues(t, 200, rec.ByteCount)
	assert.Len(t, rec.Ports, 2)
	assert.Len(t, rec.DstIPs, 2)
	assert.EqualValues(t, 1, rec.SynCount, "only SYN without ACK counts")
	assert.False(t, rec.WindowStart.After(rec.LastSeen))

	assert.Equal(t, 2, s.Len())
}

func TestUpdateFromPacketMeta(t *testing.T) {
	s := New(10, time.Minute)
	s.Update(&model.PacketMeta{
		SrcIP: net.ParseIP("192.168.1.7"), DstIP: net.ParseIP("192.168.1.1"),
		DstPort: 443, Length: 1500, TCPFlags: model.FlagSYN,
	})
	s.Update(&model.PacketMeta{}) // no source: skipped
	s.Update(nil)

	fv := s.Features("192.168.1.7")
	assert.Equal(t, 1.0, fv.PacketCount)
	assert.Equal(t, 1.0, fv.SynCount)
	assert.Equal(t, 1, s.Len())
}

func TestShouldAlertCooldown(t *testing.T) {
	clock := newFakeClock()
	s := New(100, 30*time.Second, WithClock(clock.Now))
	s.Observe("10.0.0.5", "10.0.0.1", 1, 22, 10, 0)

	require.True(t, s.ShouldAlert("10.0.0.5", 30*time.Second))
	s.MarkAlerted("10.0.0.5")

	clock.Advance(10 * time.Second)
	assert.False(t, s.ShouldAlert("10.0.0.5", 30*time.Second))

	clock.Advance(20 * time.Second)
	assert.True(t, s.ShouldAlert("10.0.0.5", 30*time.Second))
}

func TestTryAlertIsSingleShotWithinCooldown(t *testing.T) {
	clock := newFakeClock()
	s := New(100, time.Minute, WithClock(clock.Now))
	s.Observe("10.0.0.5", "10.0.0.1", 1, 22, 10, 0)

	assert.True(t, s.TryAlert("10.0.0.5", time.Minute))
	assert.False(t, s.TryAlert("10.0.0.5", time.Minute))
	clock.Advance(time.Minute)
	assert.True(t, s.TryAlert("10.0.0.5", time.Minute))

	rec, _ := s.Record("10.0.0.5")
	assert.EqualValues(t, 2, rec.AlertCount)
	assert.False(t, s.TryAlert("10.9.9.9", time.Minute), "unknown sources have nothing to alert on")
}

func TestResetKeepsLastAlert(t *testing.T) {
	clock := newFakeClock()
	s := New(100, time.Minute, WithClock(clock.Now))
	for port := uint16(1); port <= 20; port++ {
		s.Observe("10.0.0.5", "10.0.0.1", 1000, port, 64, model.FlagSYN)
	}
	s.MarkAlerted("10.0.0.5")
	before, _ := s.Record("10.0.0.5")

	clock.Advance(5 * time.Second)
	s.Reset("10.0.0.5")

	after, ok := s.Record("10.0.0.5")
	require.True(t, ok)
	assert.Zero(t, after.PacketCount)
	assert.Zero(t, after.ByteCount)
	assert.Zero(t, after.SynCount)
	assert.Empty(t, after.Ports)
	assert.Empty(t, after.DstIPs)
	assert.Equal(t, before.LastAlert, after.LastAlert)
	assert.Equal(t, clock.Now(), after.WindowStart)
	assert.False(t, s.ShouldAlert("10.0.0.5", time.Minute))
}

func TestEvictionSparesCoolingDownRecords(t *testing.T) {
	clock := newFakeClock()
	s := New(2, time.Minute, WithShards(1), WithClock(clock.Now))

	s.Observe("10.0.0.1", "10.0.0.100", 1, 22, 10, 0)
	s.MarkAlerted("10.0.0.1")
	clock.Advance(time.Second)
	s.Observe("10.0.0.2", "10.0.0.100", 1, 22, 10, 0)
	clock.Advance(time.Second)

	// Table full: the oldest record is cooling down, so 10.0.0.2 goes.
	s.Observe("10.0.0.3", "10.0.0.100", 1, 22, 10, 0)
	_, ok := s.Record("10.0.0.1")
	assert.True(t, ok)
	_, ok = s.Record("10.0.0.2")
	assert.False(t, ok)
	assert.False(t, s.ShouldAlert("10.0.0.1", time.Minute))

	// Once the cooldown is over the old record is evictable again.
	clock.Advance(2 * time.Minute)
	s.Observe("10.0.0.4", "10.0.0.100", 1, 22, 10, 0)
	_, ok = s.Record("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestSweep(t *testing.T) {
	clock := newFakeClock()
	s := New(100, time.Minute, WithClock(clock.Now))
	s.Observe("10.0.0.1", "10.0.0.100", 1, 22, 10, 0)
	s.Observe("10.0.0.2", "10.0.0.100", 1, 22, 10, 0)
	s.MarkAlerted("10.0.0.2")
	clock.Advance(30 * time.Second)
	s.Observe("10.0.0.3", "10.0.0.100", 1, 22, 10, 0)

	removed := s.Sweep(20 * time.Second)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, s.Len())
	assert.Len(t, s.Snapshot(), 2)
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	s := New(10000, time.Minute)
	const workers, perWorker = 8, 500

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Observe("10.0.0.5", fmt.Sprintf("10.0.1.%d", w), 1, uint16(i%50), 1, 0)
			}
		}(w)
	}
	wg.Wait()

	rec, ok := s.Record("10.0.0.5")
	require.True(t, ok)
	assert.EqualValues(t, workers*perWorker, rec.PacketCount)
	assert.Len(t, rec.Ports, 50)
	assert.Len(t, rec.DstIPs, workers)
}
