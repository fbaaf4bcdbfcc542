// Package presale implements the token sale ledger: the stage state
// machine, price-to-token conversion, hardcap and inventory accounting,
// and finalization. Every operation validates against the stored sale
// record, performs any settlement, and only then commits the mutation;
// a failure at any step leaves the record exactly as it was.
package presale

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"token-presale-ledger/internal/amount"
	"token-presale-ledger/internal/authority"
	"token-presale-ledger/internal/domain"
	"token-presale-ledger/internal/events"
	"token-presale-ledger/internal/idhash"
	"token-presale-ledger/internal/storage"
)

const secondsPerDay = 86400

// Settlement moves value between parties. Transfers are atomic: either the
// call succeeds and the funds moved, or it fails and nothing moved.
type Settlement interface {
	// TransferNative moves lamports from one wallet to another,
	// authorized by the sender.
	TransferNative(ctx context.Context, from, to string, lamports uint64) error

	// TransferToken moves raw token units between accounts of the given
	// mint, authorized by the supplied capability.
	TransferToken(ctx context.Context, mint, from, to string, amountRaw uint64, auth authority.SigningAuthority) error
}

// Inventory reports the current balance of a custody token account.
type Inventory interface {
	TokenBalance(ctx context.Context, mint, wallet string) (uint64, error)
}

// Config holds the static sale environment.
type Config struct {
	// ProgramID anchors sale address derivation.
	ProgramID string
	// TokenMint is the asset being sold.
	TokenMint domain.MintInfo
	// StableMints is the allow-list of accepted stable assets.
	StableMints []domain.MintInfo
}

// Service executes sale ledger operations.
type Service struct {
	store       storage.SaleStore
	bank        Settlement
	inventory   Inventory
	sink        events.Sink
	logger      *log.Logger
	now         func() int64
	cfg         Config
	stableMints map[string]domain.MintInfo
}

// Options contains configuration for creating a Service.
type Options struct {
	Store      storage.SaleStore
	Settlement Settlement
	Inventory  Inventory
	Sink       events.Sink // optional
	Logger     *log.Logger // optional
	Now        func() int64 // optional, defaults to wall clock
	Config     Config
}

// New creates a sale ledger service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}

	stableMints := make(map[string]domain.MintInfo, len(opts.Config.StableMints))
	for _, m := range opts.Config.StableMints {
		stableMints[m.Address] = m
	}

	return &Service{
		store:       opts.Store,
		bank:        opts.Settlement,
		inventory:   opts.Inventory,
		sink:        opts.Sink,
		logger:      logger,
		now:         now,
		cfg:         opts.Config,
		stableMints: stableMints,
	}
}

// InitializeParams carries the admin-supplied sale configuration.
type InitializeParams struct {
	Admin               string
	USDPriceCents       uint64 // cents per whole token
	NativePriceLamports uint64 // lamports per whole token
	PrivateDays         int64
	PublicDays          int64
	HardcapTokens       uint64 // user units
	SaleWallet          string
	ProceedsWallet      string
}

// Initialize creates the sale record for an admin. The record address and
// the finalize signing authority derive from the admin identity.
func (s *Service) Initialize(ctx context.Context, p InitializeParams) (*domain.SaleRecord, error) {
	if p.Admin == "" || p.SaleWallet == "" || p.ProceedsWallet == "" {
		return nil, storage.ErrInvalidInput
	}
	if p.PrivateDays < 0 || p.PublicDays < 0 {
		return nil, ErrInvalidDuration
	}

	address, bump, err := authority.DeriveSaleAddress(s.cfg.ProgramID, p.Admin)
	if err != nil {
		return nil, fmt.Errorf("derive sale address: %w", err)
	}

	hardcapRaw, ok := amount.ToRawUnits(p.HardcapTokens, s.cfg.TokenMint.Decimals)
	if !ok {
		return nil, ErrAmountOverflow
	}

	now := s.now()
	rec := &domain.SaleRecord{
		Address:             address,
		Admin:               p.Admin,
		Bump:                bump,
		USDPriceCents:       p.USDPriceCents,
		NativePriceLamports: p.NativePriceLamports,
		SaleStart:           now,
		PrivateDuration:     p.PrivateDays * secondsPerDay,
		PublicDuration:      p.PublicDays * secondsPerDay,
		Stage:               domain.StageNotStarted,
		HardcapRaw:          hardcapRaw,
		SaleWallet:          p.SaleWallet,
		ProceedsWallet:      p.ProceedsWallet,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrSaleExists
		}
		return nil, fmt.Errorf("create sale: %w", err)
	}

	s.logger.Printf("sale initialized: admin=%s address=%s usd_cents=%d lamports=%d hardcap_tokens=%d",
		p.Admin, address, p.USDPriceCents, p.NativePriceLamports, p.HardcapTokens)
	return rec, nil
}

// AdvanceStage moves the sale to its next stage. Only the admin may
// advance, and timed transitions require their window to have elapsed.
// The host supplies the current timestamp; transitions are evaluated
// lazily, never by a background timer.
func (s *Service) AdvanceStage(ctx context.Context, caller string, now int64) (domain.Stage, error) {
	rec, err := s.loadAdminSale(ctx, caller)
	if err != nil {
		return 0, err
	}

	switch rec.Stage {
	case domain.StageNotStarted:
		rec.SaleStart = now
		rec.Stage = domain.StagePrivate
	case domain.StagePrivate:
		if now < rec.PrivateEndsAt() {
			return 0, ErrPrivateSaleNotOver
		}
		rec.Stage = domain.StagePublic
	case domain.StagePublic:
		if now < rec.PublicEndsAt() {
			return 0, ErrPublicSaleNotOver
		}
		rec.Stage = domain.StageEnded
	default:
		return 0, ErrSaleAlreadyEnded
	}

	rec.UpdatedAt = now
	if err := s.store.Update(ctx, rec); err != nil {
		return 0, fmt.Errorf("update sale: %w", err)
	}

	s.logger.Printf("sale %s advanced to %s at %d", rec.Address, rec.Stage, now)
	s.publish(ctx, &domain.StageEvent{
		SaleAddress: rec.Address,
		Admin:       rec.Admin,
		Stage:       rec.Stage,
		Timestamp:   now,
	})
	return rec.Stage, nil
}

// UpdateDuration replaces both stage durations. Allowed until the sale
// ends. The sale start is deliberately left untouched: extending a
// duration stretches a window that may already be partly elapsed.
func (s *Service) UpdateDuration(ctx context.Context, caller string, privateDays, publicDays int64) error {
	if privateDays < 0 || publicDays < 0 {
		return ErrInvalidDuration
	}

	rec, err := s.loadAdminSale(ctx, caller)
	if err != nil {
		return err
	}
	if rec.Stage == domain.StageEnded {
		return ErrSaleAlreadyEnded
	}

	rec.PrivateDuration = privateDays * secondsPerDay
	rec.PublicDuration = publicDays * secondsPerDay
	rec.UpdatedAt = s.now()
	if err := s.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("update sale: %w", err)
	}

	s.logger.Printf("sale %s durations updated: private=%dd public=%dd", rec.Address, privateDays, publicDays)
	return nil
}

// UpdatePrice atomically replaces both unit prices. Allowed only while the
// sale is active.
func (s *Service) UpdatePrice(ctx context.Context, caller string, usdCents, nativeLamports uint64) error {
	rec, err := s.loadAdminSale(ctx, caller)
	if err != nil {
		return err
	}
	if !rec.Stage.Active() {
		return ErrPresaleNotActive
	}

	rec.USDPriceCents = usdCents
	rec.NativePriceLamports = nativeLamports
	now := s.now()
	rec.UpdatedAt = now
	if err := s.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("update sale: %w", err)
	}

	s.publish(ctx, &domain.PriceUpdateEvent{
		SaleAddress:         rec.Address,
		Admin:               rec.Admin,
		USDPriceCents:       usdCents,
		NativePriceLamports: nativeLamports,
		Stage:               rec.Stage,
		Timestamp:           now,
	})
	return nil
}

// PurchaseWithNative processes a native-coin purchase. The payment amount
// is in lamports; tokens are credited in whole user units, flooring the
// division, with the remainder retained by the payer.
func (s *Service) PurchaseWithNative(ctx context.Context, saleAdmin, payer string, mode domain.PaymentMode, lamports uint64) (*domain.PurchaseEvent, error) {
	rec, err := s.loadSale(ctx, saleAdmin)
	if err != nil {
		return nil, err
	}
	if !rec.Stage.Active() {
		return nil, ErrPresaleNotActive
	}

	tokens, raw, err := quote(lamports, rec.NativePriceLamports, s.cfg.TokenMint.Decimals)
	if err != nil {
		return nil, err
	}
	if err := s.checkSupply(ctx, rec, raw); err != nil {
		return nil, err
	}

	// Settlement happens before the ledger mutation; a transfer failure
	// aborts the purchase with no state recorded.
	switch mode {
	case domain.PaymentOnChain:
		if err := s.bank.TransferNative(ctx, payer, rec.ProceedsWallet, lamports); err != nil {
			return nil, err
		}
	case domain.PaymentExternal:
		s.logger.Printf("external settlement assumed for %d lamports from %s", lamports, payer)
	default:
		return nil, ErrInvalidPaymentType
	}

	ev := &domain.PurchaseEvent{
		SaleAddress: rec.Address,
		Buyer:       payer,
		Rail:        domain.RailNative,
		Tokens:      tokens,
		AmountPaid:  lamports,
		PriceUsed:   rec.NativePriceLamports,
		Mode:        mode,
	}
	if err := s.commitPurchase(ctx, rec, raw, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PurchaseWithStable processes a stable-asset purchase. The asset must be
// on the allow-list; one stable user unit is valued at 100 cents
// regardless of the asset's own decimals.
func (s *Service) PurchaseWithStable(ctx context.Context, saleAdmin, payer string, mode domain.PaymentMode, stableMint string, amountUserUnits uint64) (*domain.PurchaseEvent, error) {
	mintInfo, ok := s.stableMints[stableMint]
	if !ok {
		return nil, ErrInvalidStableToken
	}
	if amountUserUnits < 1 {
		return nil, ErrInvalidPrice
	}

	rec, err := s.loadSale(ctx, saleAdmin)
	if err != nil {
		return nil, err
	}
	if !rec.Stage.Active() {
		return nil, ErrPresaleNotActive
	}

	cents, ok := amount.CheckedMul(amountUserUnits, 100)
	if !ok {
		return nil, ErrAmountOverflow
	}
	tokens, raw, err := quote(cents, rec.USDPriceCents, s.cfg.TokenMint.Decimals)
	if err != nil {
		return nil, err
	}
	if err := s.checkSupply(ctx, rec, raw); err != nil {
		return nil, err
	}

	switch mode {
	case domain.PaymentOnChain:
		stableRaw, ok := amount.ToRawUnits(amountUserUnits, mintInfo.Decimals)
		if !ok {
			return nil, ErrAmountOverflow
		}
		if err := s.bank.TransferToken(ctx, stableMint, payer, rec.ProceedsWallet, stableRaw, authority.Wallet(payer)); err != nil {
			return nil, err
		}
	case domain.PaymentExternal:
		s.logger.Printf("external settlement assumed for %d stable units from %s", amountUserUnits, payer)
	default:
		return nil, ErrInvalidPaymentType
	}

	ev := &domain.PurchaseEvent{
		SaleAddress: rec.Address,
		Buyer:       payer,
		Rail:        domain.RailStable,
		StableMint:  stableMint,
		Tokens:      tokens,
		AmountPaid:  amountUserUnits,
		PriceUsed:   rec.USDPriceCents,
		Mode:        mode,
	}
	if err := s.commitPurchase(ctx, rec, raw, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// RemainingBalance reports the unreserved sale inventory in user units.
// Read-only, callable by anyone.
func (s *Service) RemainingBalance(ctx context.Context, saleAdmin string) (uint64, error) {
	rec, err := s.loadSale(ctx, saleAdmin)
	if err != nil {
		return 0, err
	}

	balance, err := s.inventory.TokenBalance(ctx, s.cfg.TokenMint.Address, rec.SaleWallet)
	if err != nil {
		return 0, fmt.Errorf("query sale wallet balance: %w", err)
	}

	remainingRaw := amount.SaturatingSub(balance, rec.TotalSoldRaw)
	return amount.ToUserUnits(remainingRaw, s.cfg.TokenMint.Decimals), nil
}

// Finalize sweeps unsold inventory from the sale wallet to the given
// destination, authorized by the sale's own derived signing authority,
// and permanently closes the sale. A second call fails with
// ErrLiquidityPoolAlreadyCreated and performs no transfer.
func (s *Service) Finalize(ctx context.Context, caller, destination string) error {
	if destination == "" {
		return ErrInvalidDestination
	}

	rec, err := s.loadAdminSale(ctx, caller)
	if err != nil {
		return err
	}
	if rec.Stage != domain.StageEnded {
		return ErrPresaleActive
	}
	if rec.PoolFinalized {
		return ErrLiquidityPoolAlreadyCreated
	}

	balance, err := s.inventory.TokenBalance(ctx, s.cfg.TokenMint.Address, rec.SaleWallet)
	if err != nil {
		return fmt.Errorf("query sale wallet balance: %w", err)
	}
	unsoldRaw := amount.SaturatingSub(balance, rec.TotalSoldRaw)

	if unsoldRaw > 0 {
		auth, err := authority.SaleAuthority(s.cfg.ProgramID, rec.Admin, rec.Bump)
		if err != nil {
			return fmt.Errorf("derive sale authority: %w", err)
		}
		if err := s.bank.TransferToken(ctx, s.cfg.TokenMint.Address, rec.SaleWallet, destination, unsoldRaw, auth); err != nil {
			return err
		}
	}

	now := s.now()
	rec.PoolFinalized = true
	rec.UpdatedAt = now
	if err := s.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("update sale: %w", err)
	}

	unsoldTokens := amount.ToUserUnits(unsoldRaw, s.cfg.TokenMint.Decimals)
	s.logger.Printf("sale %s finalized: %d unsold tokens moved to %s", rec.Address, unsoldTokens, destination)
	s.publish(ctx, &domain.FinalizeEvent{
		SaleAddress: rec.Address,
		Admin:       rec.Admin,
		Unsold:      unsoldTokens,
		Destination: destination,
		Timestamp:   now,
	})
	return nil
}

// quote converts a payment into whole tokens and raw units. The division
// floors; remainders below one whole token are neither credited nor
// refunded.
func quote(paid, pricePerToken uint64, tokenDecimals uint8) (tokens, raw uint64, err error) {
	if pricePerToken == 0 {
		return 0, 0, ErrInvalidPrice
	}
	tokens = paid / pricePerToken
	if tokens == 0 {
		return 0, 0, ErrInvalidPrice
	}
	raw, ok := amount.ToRawUnits(tokens, tokenDecimals)
	if !ok {
		return 0, 0, ErrAmountOverflow
	}
	return tokens, raw, nil
}

// checkSupply enforces the hardcap and the unreserved-inventory bound.
// The hardcap comparison saturates so a wraparound cannot bypass it.
func (s *Service) checkSupply(ctx context.Context, rec *domain.SaleRecord, raw uint64) error {
	if amount.SaturatingAdd(rec.TotalSoldRaw, raw) > rec.HardcapRaw {
		return ErrHardcapReached
	}

	balance, err := s.inventory.TokenBalance(ctx, s.cfg.TokenMint.Address, rec.SaleWallet)
	if err != nil {
		return fmt.Errorf("query sale wallet balance: %w", err)
	}
	if amount.SaturatingSub(balance, rec.TotalSoldRaw) < raw {
		return ErrInsufficientTokens
	}
	return nil
}

// commitPurchase records the sold amount and emits the purchase event.
// Called only after settlement succeeded.
func (s *Service) commitPurchase(ctx context.Context, rec *domain.SaleRecord, raw uint64, ev *domain.PurchaseEvent) error {
	sold, ok := amount.CheckedAdd(rec.TotalSoldRaw, raw)
	if !ok {
		return ErrAmountOverflow
	}

	now := s.now()
	rec.TotalSoldRaw = sold
	rec.UpdatedAt = now
	if err := s.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("update sale: %w", err)
	}

	ev.Timestamp = now
	ev.EventID = idhash.ComputePurchaseEventID(ev.SaleAddress, ev.Buyer, ev.Rail, ev.AmountPaid, now)
	s.logger.Printf("buyer %s purchased %d tokens on sale %s (%s, mode=%s)",
		ev.Buyer, ev.Tokens, ev.SaleAddress, ev.Rail, ev.Mode)
	s.publish(ctx, ev)
	return nil
}

// loadAdminSale loads the sale owned by the caller. Admin-scoped
// operations address the record through the caller identity, so a
// non-admin caller simply has no record and is rejected as unauthorized.
func (s *Service) loadAdminSale(ctx context.Context, caller string) (*domain.SaleRecord, error) {
	rec, err := s.store.GetByAdmin(ctx, caller)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load sale: %w", err)
	}
	return rec, nil
}

// loadSale loads a sale by its admin identity for buyer-facing operations.
func (s *Service) loadSale(ctx context.Context, saleAdmin string) (*domain.SaleRecord, error) {
	rec, err := s.store.GetByAdmin(ctx, saleAdmin)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("load sale: %w", err)
	}
	return rec, nil
}

// publish delivers an event to the sink, if any. Sink failures are logged
// and never fail the already committed operation.
func (s *Service) publish(ctx context.Context, ev domain.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, ev); err != nil {
		s.logger.Printf("publish %s event: %v", ev.EventType(), err)
	}
}
