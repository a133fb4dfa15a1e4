package repository

import (
	"context"
	"sync"

	"github.com/okian/critic/internal/domain/model"
)

// defaultCapacity bounds the ring when no option overrides it.
const defaultCapacity = 10000

// MemoryStore keeps the most recent diagnostics in a fixed-size ring.
// It doubles as a diagnostics sink, so the worker pool can feed it directly
// while HTTP handlers read history out of it.
type MemoryStore struct {
	mu       sync.RWMutex
	ring     []model.Diagnostic
	next     int
	size     int
	capacity int
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory diagnostic store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		capacity: defaultCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ring = make([]model.Diagnostic, s.capacity)
	return s
}

// Name identifies the store when registered as a sink.
func (s *MemoryStore) Name() string {
	return "memory"
}

// Write satisfies the sink contract by delegating to Append.
func (s *MemoryStore) Write(ctx context.Context, d model.Diagnostic) error {
	return s.Append(ctx, d)
}

// Append stores a diagnostic, evicting the oldest record once the ring is full.
func (s *MemoryStore) Append(_ context.Context, d model.Diagnostic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.next] = d
	s.next = (s.next + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}
	return nil
}

// Recent returns up to limit diagnostics for a session, newest first.
// An empty sessionID matches every session.
func (s *MemoryStore) Recent(_ context.Context, sessionID string, limit int) ([]model.Diagnostic, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hint := limit
	if s.size < hint {
		hint = s.size
	}
	out := make([]model.Diagnostic, 0, hint)
	// Walk backwards from the newest slot so matches come out newest first.
	for i := 1; i <= s.size && len(out) < limit; i++ {
		idx := (s.next - i + s.capacity) % s.capacity
		d := s.ring[idx]
		if sessionID != "" && d.SessionID != sessionID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Count returns the number of diagnostics currently held.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size, nil
}
