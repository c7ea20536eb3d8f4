package audit

import (
	"context"
	"strconv"
	"sync"

	"skyguard/internal/db"
	"skyguard/internal/types"
)

// DefaultMemoryRetention is the ring size used when none is configured.
const DefaultMemoryRetention = 100

// MemoryStore keeps the most recent entries in a fixed-size ring. It suits
// single-instance deployments that do not need durable audit history.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []types.AuditLogEntry
	next    int
	full    bool
	seq     int64
}

// NewMemoryStore creates a MemoryStore holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryRetention
	}
	return &MemoryStore{entries: make([]types.AuditLogEntry, capacity)}
}

// Insert appends e, evicting the oldest entry when the ring is full.
func (s *MemoryStore) Insert(_ context.Context, e *types.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e.ID = "mem-" + strconv.FormatInt(s.seq, 10)
	s.entries[s.next] = *e
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// List returns matching entries newest first.
func (s *MemoryStore) List(_ context.Context, f db.AuditFilter) ([]types.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.next
	if s.full {
		n = len(s.entries)
	}
	var matched []types.AuditLogEntry
	for i := 0; i < n; i++ {
		idx := (s.next - 1 - i + len(s.entries)) % len(s.entries)
		e := s.entries[idx]
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.UserID != "" && (e.UserID == nil || *e.UserID != f.UserID) {
			continue
		}
		matched = append(matched, e)
	}

	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// Len returns the number of retained entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return len(s.entries)
	}
	return s.next
}
