package memstorage

import (
	"context"
	"sync"
	"time"

	"github.com/keywarden/keywarden/internal/service"
)

// PendingResetStore holds pending hwid-reset selections in process
// memory. Expiry is checked lazily at Take, matching the redis-backed
// store's TTL behavior without a timer.
type PendingResetStore struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]service.PendingReset
	now     func() time.Time
}

func NewPendingResetStore(window time.Duration) *PendingResetStore {
	return &PendingResetStore{
		window:  window,
		entries: make(map[string]service.PendingReset),
		now:     time.Now,
	}
}

var _ service.PendingResetStore = (*PendingResetStore)(nil)

// SetClock overrides the store clock. Test hook only.
func (s *PendingResetStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *PendingResetStore) Put(ctx context.Context, userID string, p service.PendingReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = p
	return nil
}

func (s *PendingResetStore) Take(ctx context.Context, userID string) (service.PendingReset, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[userID]
	if !ok {
		return service.PendingReset{}, false, nil
	}
	delete(s.entries, userID)

	if s.now().Sub(p.CreatedAt) > s.window {
		return service.PendingReset{}, false, nil
	}
	return p, true, nil
}

func (s *PendingResetStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}
