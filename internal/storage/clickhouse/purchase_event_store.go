package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"token-presale-ledger/internal/domain"
	"token-presale-ledger/internal/storage"
)

// PurchaseEventStore implements storage.PurchaseEventStore using ClickHouse.
// MergeTree does not enforce uniqueness, so duplicates are rejected with an
// explicit existence check before insert.
type PurchaseEventStore struct {
	conn *Conn
}

// NewPurchaseEventStore creates a new PurchaseEventStore.
func NewPurchaseEventStore(conn *Conn) *PurchaseEventStore {
	return &PurchaseEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PurchaseEventStore = (*PurchaseEventStore)(nil)

// Insert adds a purchase event. Returns ErrDuplicateKey if event_id exists.
func (s *PurchaseEventStore) Insert(ctx context.Context, ev *domain.PurchaseEvent) error {
	if ev == nil || ev.EventID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, ev.EventID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO purchase_events (
			event_id, sale_address, buyer, rail, stable_mint,
			tokens, amount_paid, price_used, payment_mode, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		ev.EventID, ev.SaleAddress, ev.Buyer, ev.Rail, ev.StableMint,
		ev.Tokens, ev.AmountPaid, ev.PriceUsed, uint8(ev.Mode), ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySale retrieves all events for a sale, ordered by timestamp ASC.
func (s *PurchaseEventStore) GetBySale(ctx context.Context, saleAddress string) ([]*domain.PurchaseEvent, error) {
	query := `
		SELECT event_id, sale_address, buyer, rail, stable_mint,
		       tokens, amount_paid, price_used, payment_mode, timestamp
		FROM purchase_events
		WHERE sale_address = ?
		ORDER BY timestamp ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, saleAddress)
	if err != nil {
		return nil, fmt.Errorf("query by sale: %w", err)
	}
	defer rows.Close()

	return scanPurchaseEvents(rows)
}

// GetByBuyer retrieves all events for a buyer, ordered by timestamp ASC.
func (s *PurchaseEventStore) GetByBuyer(ctx context.Context, buyer string) ([]*domain.PurchaseEvent, error) {
	query := `
		SELECT event_id, sale_address, buyer, rail, stable_mint,
		       tokens, amount_paid, price_used, payment_mode, timestamp
		FROM purchase_events
		WHERE buyer = ?
		ORDER BY timestamp ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, buyer)
	if err != nil {
		return nil, fmt.Errorf("query by buyer: %w", err)
	}
	defer rows.Close()

	return scanPurchaseEvents(rows)
}

// exists checks if an event with the given id exists.
func (s *PurchaseEventStore) exists(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT count(*) FROM purchase_events WHERE event_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, eventID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanPurchaseEvents(rows driver.Rows) ([]*domain.PurchaseEvent, error) {
	var result []*domain.PurchaseEvent
	for rows.Next() {
		var (
			ev   domain.PurchaseEvent
			mode uint8
		)
		err := rows.Scan(
			&ev.EventID, &ev.SaleAddress, &ev.Buyer, &ev.Rail, &ev.StableMint,
			&ev.Tokens, &ev.AmountPaid, &ev.PriceUsed, &mode, &ev.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan purchase event: %w", err)
		}
		ev.Mode = domain.PaymentMode(mode)
		result = append(result, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase events: %w", err)
	}
	return result, nil
}
