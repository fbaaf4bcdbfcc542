package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-presale-ledger/internal/domain"
	"token-presale-ledger/internal/storage"
)

// SaleStore implements storage.SaleStore using PostgreSQL.
//
// Raw uint64 amounts are stored as NUMERIC(20,0); pgx maps them through
// the scan helpers below so the full uint64 range survives the round trip.
type SaleStore struct {
	pool *Pool
}

// NewSaleStore creates a new SaleStore.
func NewSaleStore(pool *Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SaleStore = (*SaleStore)(nil)

// Raw amounts are selected as text so uint64 values above int64 range
// survive the scan.
const saleSelectColumns = `
	address, admin, bump,
	usd_price_cents::text, native_price_lamports::text,
	sale_start, private_duration, public_duration,
	stage, total_sold_raw::text, hardcap_raw::text, pool_finalized,
	sale_wallet, proceeds_wallet,
	created_at, updated_at
`

// Create persists a new sale record. Returns ErrDuplicateKey if a record
// already exists for the admin or derived address.
func (s *SaleStore) Create(ctx context.Context, rec *domain.SaleRecord) error {
	if rec == nil || rec.Admin == "" || rec.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sales (
			address, admin, bump,
			usd_price_cents, native_price_lamports,
			sale_start, private_duration, public_duration,
			stage, total_sold_raw, hardcap_raw, pool_finalized,
			sale_wallet, proceeds_wallet,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8,
			$9, $10::numeric, $11::numeric, $12, $13, $14, $15, $16
		)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.Address,
		rec.Admin,
		int16(rec.Bump),
		numeric(rec.USDPriceCents),
		numeric(rec.NativePriceLamports),
		rec.SaleStart,
		rec.PrivateDuration,
		rec.PublicDuration,
		int16(rec.Stage),
		numeric(rec.TotalSoldRaw),
		numeric(rec.HardcapRaw),
		rec.PoolFinalized,
		rec.SaleWallet,
		rec.ProceedsWallet,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// GetByAdmin retrieves the sale record owned by an admin identity.
func (s *SaleStore) GetByAdmin(ctx context.Context, admin string) (*domain.SaleRecord, error) {
	query := `SELECT ` + saleSelectColumns + ` FROM sales WHERE admin = $1`

	row := s.pool.QueryRow(ctx, query, admin)
	rec, err := scanSale(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sale by admin: %w", err)
	}
	return rec, nil
}

// Update replaces the stored record. Returns ErrNotFound if absent.
func (s *SaleStore) Update(ctx context.Context, rec *domain.SaleRecord) error {
	if rec == nil || rec.Admin == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE sales SET
			usd_price_cents = $2::numeric,
			native_price_lamports = $3::numeric,
			sale_start = $4,
			private_duration = $5,
			public_duration = $6,
			stage = $7,
			total_sold_raw = $8::numeric,
			pool_finalized = $9,
			updated_at = $10
		WHERE admin = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		rec.Admin,
		numeric(rec.USDPriceCents),
		numeric(rec.NativePriceLamports),
		rec.SaleStart,
		rec.PrivateDuration,
		rec.PublicDuration,
		int16(rec.Stage),
		numeric(rec.TotalSoldRaw),
		rec.PoolFinalized,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves all sale records, ordered by creation time ASC.
func (s *SaleStore) List(ctx context.Context) ([]*domain.SaleRecord, error) {
	query := `SELECT ` + saleSelectColumns + ` FROM sales ORDER BY created_at ASC, admin ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var result []*domain.SaleRecord
	for rows.Next() {
		rec, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}
	return result, nil
}

// scanSale scans a sale record from a row.
func scanSale(row pgx.Row) (*domain.SaleRecord, error) {
	var (
		rec                   domain.SaleRecord
		bump, stage           int16
		usdPrice, nativePrice string
		totalSold, hardcap    string
	)

	err := row.Scan(
		&rec.Address,
		&rec.Admin,
		&bump,
		&usdPrice,
		&nativePrice,
		&rec.SaleStart,
		&rec.PrivateDuration,
		&rec.PublicDuration,
		&stage,
		&totalSold,
		&hardcap,
		&rec.PoolFinalized,
		&rec.SaleWallet,
		&rec.ProceedsWallet,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Bump = uint8(bump)
	rec.Stage = domain.Stage(stage)
	if rec.USDPriceCents, err = parseNumeric(usdPrice); err != nil {
		return nil, err
	}
	if rec.NativePriceLamports, err = parseNumeric(nativePrice); err != nil {
		return nil, err
	}
	if rec.TotalSoldRaw, err = parseNumeric(totalSold); err != nil {
		return nil, err
	}
	if rec.HardcapRaw, err = parseNumeric(hardcap); err != nil {
		return nil, err
	}
	return &rec, nil
}
