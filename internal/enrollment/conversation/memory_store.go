package conversation

import (
	"context"
	"sync"
	"time"

	"enrollment-chat/internal/common/metrics"
)

type memoryEntry struct {
	state     *StoredState
	expiresAt time.Time
}

// MemoryStore keeps conversation state in-process. Suitable for a single
// replica; use the Redis store when state must survive the process or be
// shared.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store. A non-positive ttl disables
// expiry. Expired entries are dropped lazily on access.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, conversationID string) (*StoredState, error) {
	s.mu.RLock()
	entry, ok := s.entries[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if s.ttl > 0 && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a Put may have refreshed it.
		if cur, ok := s.entries[conversationID]; ok && s.now().After(cur.expiresAt) {
			delete(s.entries, conversationID)
			metrics.ConversationsActive.Set(float64(len(s.entries)))
		}
		s.mu.Unlock()
		return nil, nil
	}

	copied := *entry.state
	copied.State = entry.state.State.Clone()
	return &copied, nil
}

func (s *MemoryStore) Put(ctx context.Context, conversationID string, state *StoredState) error {
	copied := *state
	copied.State = state.State.Clone()

	s.mu.Lock()
	s.entries[conversationID] = memoryEntry{
		state:     &copied,
		expiresAt: s.now().Add(s.ttl),
	}
	metrics.ConversationsActive.Set(float64(len(s.entries)))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[conversationID]; !ok {
		return false, nil
	}
	delete(s.entries, conversationID)
	metrics.ConversationsActive.Set(float64(len(s.entries)))
	return true, nil
}

// Len returns the number of live entries, for tests and diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
