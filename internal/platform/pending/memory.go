package pending

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/easy-khana/api/internal/domain"
)

// MemoryStore keeps staged checkouts in process memory. It suits tests and single-instance
// local runs; entries do not survive restarts.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.PendingPayment
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]domain.PendingPayment)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, entry domain.PendingPayment) error {
	key, err := normaliseKey(entry.TransactionID)
	if err != nil {
		return err
	}
	entry.TransactionID = key
	entry.Items = slices.Clone(entry.Items)
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, transactionID, owner string, now time.Time) (domain.PendingPayment, error) {
	key, err := normaliseKey(transactionID)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return domain.PendingPayment{}, ErrNotFound
	}
	if !ownedBy(entry, owner) {
		return domain.PendingPayment{}, ErrNotOwner
	}
	delete(s.entries, key)
	if expired(entry, now) {
		return domain.PendingPayment{}, ErrNotFound
	}
	return entry, nil
}

// SweepExpired implements Store.
func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if limit > 0 && removed >= limit {
			break
		}
		if expired(entry, now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of staged entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
