package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
)

// FileLog keeps the audit trail as a JSON array on disk, oldest first.
type FileLog struct {
	mu   sync.Mutex
	path string
	max  int
}

// NewFileLog creates a log at path, creating its directory if needed.
func NewFileLog(path string, max int) (*FileLog, error) {
	if path == "" {
		return nil, errors.New("audit log path is empty")
	}
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	return &FileLog{path: path, max: max}, nil
}

// Append rewrites the file with entry added. Errors are logged, not returned.
func (f *FileLog) Append(entry model.AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		logger.Warnf("Audit log read error, starting a new log: %v", err)
		entries = nil
	}
	entries = trim(append(entries, entry), f.max)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		logger.Warnf("Audit log encode error: %v", err)
		return
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logger.Warnf("Audit log write error: %v", err)
		return
	}
	if err := os.Rename(tmp, f.path); err != nil {
		logger.Warnf("Audit log write error: %v", err)
	}
}

// Recent returns up to limit entries, newest first. Unreadable files yield
// an empty result.
func (f *FileLog) Recent(limit int) []model.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		logger.Warnf("Audit log read error: %v", err)
		return []model.AuditEntry{}
	}
	return newestFirst(entries, limit)
}

func (f *FileLog) read() ([]model.AuditEntry, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var entries []model.AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
