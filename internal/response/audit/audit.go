// Package audit stores the history of block and unblock actions.
package audit

import (
	"sync"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/factory"
	"Go2NetGuard/internal/model"
)

// DefaultMaxEntries bounds every backend when no cap is configured.
const DefaultMaxEntries = 1000

func init() {
	factory.RegisterAuditLog("file", func(cfg *config.Config) (model.AuditLog, error) {
		return NewFileLog(cfg.Response.Audit.Path, cfg.Response.Audit.MaxEntries)
	})
	factory.RegisterAuditLog("redis", func(cfg *config.Config) (model.AuditLog, error) {
		return NewRedisLog(RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			Key:        cfg.Response.Audit.RedisKey,
			MaxEntries: cfg.Response.Audit.MaxEntries,
		})
	})
	factory.RegisterAuditLog("memory", func(cfg *config.Config) (model.AuditLog, error) {
		return NewMemoryLog(cfg.Response.Audit.MaxEntries), nil
	})
}

// MemoryLog keeps entries in a bounded slice.
type MemoryLog struct {
	mu      sync.Mutex
	max     int
	entries []model.AuditEntry
}

// NewMemoryLog creates an in-memory log holding up to max entries.
func NewMemoryLog(max int) *MemoryLog {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &MemoryLog{max: max}
}

// Append adds an entry, dropping the oldest beyond the cap.
func (m *MemoryLog) Append(entry model.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = trim(append(m.entries, entry), m.max)
}

// Recent returns up to limit entries, newest first.
func (m *MemoryLog) Recent(limit int) []model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.entries, limit)
}

// trim keeps the last max entries of an oldest-first slice.
func trim(entries []model.AuditEntry, max int) []model.AuditEntry {
	if len(entries) <= max {
		return entries
	}
	return append([]model.AuditEntry(nil), entries[len(entries)-max:]...)
}

// newestFirst returns the last limit entries of an oldest-first slice in
// reverse order. A non-positive limit returns everything.
func newestFirst(entries []model.AuditEntry, limit int) []model.AuditEntry {
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]model.AuditEntry, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		out = append(out, entries[i])
	}
	return out
}
