package memory

import (
	"context"
	"sort"
	"sync"

	"token-presale-ledger/internal/domain"
	"token-presale-ledger/internal/storage"
)

// PurchaseEventStore is an in-memory implementation of storage.PurchaseEventStore.
type PurchaseEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PurchaseEvent // keyed by event_id
}

// NewPurchaseEventStore creates a new in-memory purchase event store.
func NewPurchaseEventStore() *PurchaseEventStore {
	return &PurchaseEventStore{
		data: make(map[string]*domain.PurchaseEvent),
	}
}

// Insert adds a purchase event. Returns ErrDuplicateKey if event_id exists.
func (s *PurchaseEventStore) Insert(_ context.Context, ev *domain.PurchaseEvent) error {
	if ev == nil || ev.EventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[ev.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	evCopy := *ev
	s.data[ev.EventID] = &evCopy
	return nil
}

// GetBySale retrieves all events for a sale, ordered by timestamp ASC.
func (s *PurchaseEventStore) GetBySale(_ context.Context, saleAddress string) ([]*domain.PurchaseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PurchaseEvent
	for _, ev := range s.data {
		if ev.SaleAddress == saleAddress {
			evCopy := *ev
			result = append(result, &evCopy)
		}
	}

	sortEvents(result)
	return result, nil
}

// GetByBuyer retrieves all events for a buyer, ordered by timestamp ASC.
func (s *PurchaseEventStore) GetByBuyer(_ context.Context, buyer string) ([]*domain.PurchaseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PurchaseEvent
	for _, ev := range s.data {
		if ev.Buyer == buyer {
			evCopy := *ev
			result = append(result, &evCopy)
		}
	}

	sortEvents(result)
	return result, nil
}

func sortEvents(events []*domain.PurchaseEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].EventID < events[j].EventID
	})
}

// Verify interface compliance at compile time.
var _ storage.PurchaseEventStore = (*PurchaseEventStore)(nil)
