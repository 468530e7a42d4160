// Package flowstore keeps one aggregate record per source address.
package flowstore

import (
	"hash/fnv"
	"net"
	"sync"
	"time"

	"Go2NetGuard/internal/engine/features"
	"Go2NetGuard/internal/model"
)

const defaultShardCount = 256

// shard is a part of the sharded map, containing its own map and a mutex.
type shard struct {
	mu    sync.Mutex
	flows map[string]*model.FlowRecord
}

// Store is a sharded, capacity-bounded table of flow records keyed by source
// address. Mutations of one key are serialized by its shard lock, so the store
// can be fed from several capture workers at once.
type Store struct {
	shards      []*shard
	shardCount  uint32
	perShardCap int
	// cooldown protects records from eviction while their alert cooldown runs.
	cooldown time.Duration
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithShards overrides the number of shards.
func WithShards(n uint32) Option {
	return func(s *Store) {
		if n > 0 && n < 32768 {
			s.shardCount = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store holding roughly maxFlows records.
func New(maxFlows int, cooldown time.Duration, opts ...Option) *Store {
	s := &Store{
		shardCount: defaultShardCount,
		cooldown:   cooldown,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if maxFlows < int(s.shardCount) {
		s.shardCount = uint32(max(maxFlows, 1))
	}
	s.perShardCap = max(maxFlows/int(s.shardCount), 1)
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{flows: make(map[string]*model.FlowRecord)}
	}
	return s
}

// getShard returns the appropriate shard for a given key.
func (s *Store) getShard(key string) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return s.shards[hasher.Sum32()%s.shardCount]
}

// Update folds one packet into the record of its source address.
// Packets without a usable source are ignored.
func (s *Store) Update(meta *model.PacketMeta) {
	if meta == nil || len(meta.SrcIP) == 0 {
		return
	}
	dst := ""
	if len(meta.DstIP) > 0 {
		dst = meta.DstIP.String()
	}
	s.Observe(meta.SrcIP.String(), dst, meta.SrcPort, meta.DstPort, meta.Length, meta.TCPFlags)
}

// Observe mutates or creates the record for src.
func (s *Store) Observe(src, dst string, srcPort, dstPort uint16, payloadLen int, tcpFlags uint8) {
	if src == "" {
		return
	}
	now := s.now()
	sh := s.getShard(src)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.flows[src]
	if !ok {
		if len(sh.flows) >= s.perShardCap {
			s.evictOne(sh, now)
		}
		rec = model.NewFlowRecord(src, now)
		sh.flows[src] = rec
	}

	rec.PacketCount++
	if payloadLen > 0 {
		rec.ByteCount += uint64(payloadLen)
	}
	rec.Ports[dstPort] = struct{}{}
	if dst != "" {
		rec.DstIPs[dst] = struct{}{}
	}
	if now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
	if tcpFlags&model.FlagSYN != 0 && tcpFlags&model.FlagACK == 0 {
		rec.SynCount++
	}
}

// evictOne drops the least recently seen record of sh that is not inside its
// alert cooldown. When every record is cooling down the shard is allowed to
// grow past its share. The caller holds sh.mu.
func (s *Store) evictOne(sh *shard, now time.Time) {
	var victim string
	var oldest time.Time
	for key, rec := range sh.flows {
		if s.inCooldown(rec, now) {
			continue
		}
		if victim == "" || rec.LastSeen.Before(oldest) {
			victim, oldest = key, rec.LastSeen
		}
	}
	if victim != "" {
		delete(sh.flows, victim)
	}
}

func (s *Store) inCooldown(rec *model.FlowRecord, now time.Time) bool {
	return !rec.LastAlert.IsZero() && now.Sub(rec.LastAlert) < s.cooldown
}

// Features returns the current feature vector of src. An unknown source
// yields an empty vector.
func (s *Store) Features(src string) model.FeatureVector {
	now := s.now()
	sh := s.getShard(src)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.flows[src]
	if !ok {
		return features.Extract(model.NewFlowRecord(src, now), now)
	}
	return features.Extract(rec, now)
}

// Record returns a copy of the record of src.
func (s *Store) Record(src string) (model.FlowRecord, bool) {
	sh := s.getShard(src)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if rec, ok := sh.flows[src]; ok {
		return rec.Clone(), true
	}
	return model.FlowRecord{}, false
}

// ShouldAlert returns false iff src alerted less than cooldown ago.
func (s *Store) ShouldAlert(src string, cooldown time.Duration) bool {
	now := s.now()
	sh := s.getShard(src)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.flows[src]
	if !ok || rec.LastAlert.IsZero() {
		return true
	}
	return now.Sub(rec.LastAlert) >= cooldown
}

// MarkAlerted stamps the alert time of src and counts the alert.
func (s *Store) MarkAlerted(src string) {
	now := s.now()
	sh := s.getShard(src)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if rec, ok := sh.flows[src]; ok {
		rec.LastAlert = now
		rec.AlertCount++
	}
}

// TryAlert is ShouldAlert followed by MarkAlerted under one lock.
func (s *Store) TryAlert(src string, cooldown time.Duration) bool {
	now := s.now()
	sh := s.getShard(src)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.flows[src]
	if !ok {
		return false
	}
	if !rec.LastAlert.IsZero() && now.Sub(rec.LastAlert) < cooldown {
		return false
	}
	rec.LastAlert = now
	rec.AlertCount++
	return true
}

// Reset starts a fresh analysis window for src. Traffic counters are zeroed;
// the alert time and the lifetime alert count are kept.
func (s *Store) Reset(src string) {
	now := s.now()
	sh := s.getShard(src)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.flows[src]
	if !ok {
		return
	}
	fresh := model.NewFlowRecord(src, now)
	fresh.LastAlert = rec.LastAlert
	fresh.AlertCount = rec.AlertCount
	sh.flows[src] = fresh
}

// Sweep evicts records idle for longer than idle, keeping those inside their
// alert cooldown. It returns the number of records removed.
func (s *Store) Sweep(idle time.Duration) int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, rec := range sh.flows {
			if now.Sub(rec.LastSeen) > idle && !s.inCooldown(rec, now) {
				delete(sh.flows, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked sources.
func (s *Store) Len() int {
	count := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		count += len(sh.flows)
		sh.mu.Unlock()
	}
	return count
}

// Snapshot returns deep copies of all records.
func (s *Store) Snapshot() []model.FlowRecord {
	var wg sync.WaitGroup
	parts := make([][]model.FlowRecord, s.shardCount)
	wg.Add(int(s.shardCount))
	for i := range s.shards {
		go func(i int) {
			defer wg.Done()
			sh := s.shards[i]
			sh.mu.Lock()
			out := make([]model.FlowRecord, 0, len(sh.flows))
			for _, rec := range sh.flows {
				out = append(out, rec.Clone())
			}
			sh.mu.Unlock()
			parts[i] = out
		}(i)
	}
	wg.Wait()

	var all []model.FlowRecord
	for _, p := range parts {
		all = append(all, p...)
	}
	return all
}

// ValidSource reports whether ip is usable as a flow key.
func ValidSource(ip net.IP) bool {
	return len(ip) == net.IPv4len || len(ip) == net.IPv6len
}
