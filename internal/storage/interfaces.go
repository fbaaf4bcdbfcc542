package storage

import (
	"context"

	"token-presale-ledger/internal/domain"
)

// SaleStore provides access to sale record storage. Every ledger operation
// runs against exactly one record; updates replace the full record so a
// failed operation leaves nothing half-written.
type SaleStore interface {
	// Create persists a new sale record. Returns ErrDuplicateKey if a
	// record already exists for the admin or the derived address.
	Create(ctx context.Context, rec *domain.SaleRecord) error

	// GetByAdmin retrieves the sale record owned by an admin identity.
	// Returns ErrNotFound if no sale exists for that admin.
	GetByAdmin(ctx context.Context, admin string) (*domain.SaleRecord, error)

	// Update replaces the stored record. Returns ErrNotFound if the record
	// was never created.
	Update(ctx context.Context, rec *domain.SaleRecord) error

	// List retrieves all sale records, ordered by creation time ASC.
	List(ctx context.Context) ([]*domain.SaleRecord, error)
}

// PurchaseEventStore is an append-only archive of purchase notifications.
type PurchaseEventStore interface {
	// Insert adds a purchase event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, ev *domain.PurchaseEvent) error

	// GetBySale retrieves all events for a sale, ordered by timestamp ASC.
	GetBySale(ctx context.Context, saleAddress string) ([]*domain.PurchaseEvent, error)

	// GetByBuyer retrieves all events for a buyer, ordered by timestamp ASC.
	GetByBuyer(ctx context.Context, buyer string) ([]*domain.PurchaseEvent, error)
}
