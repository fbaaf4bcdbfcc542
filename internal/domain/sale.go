package domain

// Stage is the discrete phase of a sale. Stages only advance forward.
type Stage uint8

const (
	StageNotStarted Stage = 0
	StagePrivate    Stage = 1
	StagePublic     Stage = 2
	StageEnded      Stage = 3
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageNotStarted:
		return "NOT_STARTED"
	case StagePrivate:
		return "PRIVATE"
	case StagePublic:
		return "PUBLIC"
	case StageEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Active reports whether purchases are accepted in this stage.
func (s Stage) Active() bool {
	return s == StagePrivate || s == StagePublic
}

// PaymentMode selects how a purchase is settled.
type PaymentMode uint8

const (
	// PaymentOnChain settles the payment through the transfer collaborator
	// before the purchase is recorded.
	PaymentOnChain PaymentMode = 0
	// PaymentExternal records the purchase without moving funds; settlement
	// is trusted to have happened off-ledger.
	PaymentExternal PaymentMode = 1
)

// String returns the payment mode name.
func (m PaymentMode) String() string {
	switch m {
	case PaymentOnChain:
		return "ON_CHAIN"
	case PaymentExternal:
		return "EXTERNAL"
	default:
		return "UNKNOWN"
	}
}

// MintInfo describes a token asset: its address and decimal scaling.
type MintInfo struct {
	Address  string // base58 mint address
	Decimals uint8  // 10^Decimals raw units per user unit
}

// SaleRecord holds the full persisted state of one token sale.
// One record exists per admin; its address is derived from the admin key.
type SaleRecord struct {
	Address string // derived sale account address
	Admin   string // configuring authority, immutable
	Bump    uint8  // derivation bump for the sale signing authority

	USDPriceCents       uint64 // cents per whole token (stable rail)
	NativePriceLamports uint64 // lamports per whole token (native rail)

	SaleStart       int64 // unix seconds, set when the sale enters PRIVATE
	PrivateDuration int64 // seconds
	PublicDuration  int64 // seconds

	Stage         Stage
	TotalSoldRaw  uint64 // cumulative sold, smallest units
	HardcapRaw    uint64 // maximum sellable, smallest units, immutable
	PoolFinalized bool   // one-shot, set by finalize

	SaleWallet     string // custody account holding sale inventory
	ProceedsWallet string // destination for buyer payments

	CreatedAt int64 // unix seconds
	UpdatedAt int64 // unix seconds
}

// PrivateEndsAt returns the timestamp at which the private stage may close.
func (r *SaleRecord) PrivateEndsAt() int64 {
	return r.SaleStart + r.PrivateDuration
}

// PublicEndsAt returns the timestamp at which the public stage may close.
func (r *SaleRecord) PublicEndsAt() int64 {
	return r.SaleStart + r.PrivateDuration + r.PublicDuration
}
