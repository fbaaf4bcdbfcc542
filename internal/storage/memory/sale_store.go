package memory

import (
	"context"
	"sort"
	"sync"

	"token-presale-ledger/internal/domain"
	"token-presale-ledger/internal/storage"
)

// SaleStore is an in-memory implementation of storage.SaleStore.
type SaleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SaleRecord // keyed by admin
}

// NewSaleStore creates a new in-memory sale store.
func NewSaleStore() *SaleStore {
	return &SaleStore{
		data: make(map[string]*domain.SaleRecord),
	}
}

// Create persists a new sale record. Returns ErrDuplicateKey if one exists.
func (s *SaleStore) Create(_ context.Context, rec *domain.SaleRecord) error {
	if rec == nil || rec.Admin == "" || rec.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.Admin]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recCopy := *rec
	s.data[rec.Admin] = &recCopy
	return nil
}

// GetByAdmin retrieves the sale record owned by an admin identity.
func (s *SaleStore) GetByAdmin(_ context.Context, admin string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[admin]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *rec
	return &recCopy, nil
}

// Update replaces the stored record. Returns ErrNotFound if absent.
func (s *SaleStore) Update(_ context.Context, rec *domain.SaleRecord) error {
	if rec == nil || rec.Admin == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.Admin]; !exists {
		return storage.ErrNotFound
	}

	recCopy := *rec
	s.data[rec.Admin] = &recCopy
	return nil
}

// List retrieves all sale records, ordered by creation time ASC.
func (s *SaleStore) List(_ context.Context) ([]*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SaleRecord, 0, len(s.data))
	for _, rec := range s.data {
		recCopy := *rec
		result = append(result, &recCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Admin < result[j].Admin
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.SaleStore = (*SaleStore)(nil)
