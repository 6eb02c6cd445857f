package stores

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	record  ChallengeRecord
	purgeAt time.Time
}

// MemoryChallengeStore is a process-local challenge store. Entries past
// their purge instant are dropped lazily on access and by Sweep.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryChallengeStore(now func() time.Time) *MemoryChallengeStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryChallengeStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (s *MemoryChallengeStore) Put(_ context.Context, id string, record *ChallengeRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = memoryEntry{
		record:  *record,
		purgeAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryChallengeStore) Check(
	_ context.Context,
	id string,
	providedHash [32]byte,
	maxAttempts int,
	now time.Time,
) (ChallengeStatus, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return StatusNotFound, 0, nil
	}
	if !s.now().Before(entry.purgeAt) {
		delete(s.entries, id)
		return StatusNotFound, 0, nil
	}

	status, left := EvaluateChallenge(&entry.record, providedHash, maxAttempts, now)
	switch status {
	case StatusMatched:
		delete(s.entries, id)
	case StatusMismatch:
		s.entries[id] = entry
	}

	return status, left, nil
}

// Sweep removes every entry whose purge instant has passed and returns how
// many were removed.
func (s *MemoryChallengeStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, entry := range s.entries {
		if !now.Before(entry.purgeAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, purgeable ones included.
func (s *MemoryChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
