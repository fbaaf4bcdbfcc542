package domain

// Event type names, used as the discriminator on the wire and in storage.
const (
	EventTypePurchase    = "PURCHASE"
	EventTypePriceUpdate = "PRICE_UPDATE"
	EventTypeStage       = "STAGE_ADVANCE"
	EventTypeFinalize    = "FINALIZE"
)

// Payment rails.
const (
	RailNative = "native"
	RailStable = "stable"
)

// Event is a structured notification emitted after a committed mutation.
type Event interface {
	EventType() string
}

// PurchaseEvent is emitted for every successful purchase on either rail.
type PurchaseEvent struct {
	EventID     string      `json:"event_id"`
	SaleAddress string      `json:"sale_address"`
	Buyer       string      `json:"buyer"`
	Rail        string      `json:"rail"`        // "native" | "stable"
	StableMint  string      `json:"stable_mint"` // empty on the native rail
	Tokens      uint64      `json:"tokens"`      // purchased, user units
	AmountPaid  uint64      `json:"amount_paid"` // lamports or stable user units
	PriceUsed   uint64      `json:"price_used"`  // lamports/token or cents/token
	Mode        PaymentMode `json:"payment_mode"`
	Timestamp   int64       `json:"timestamp"` // unix seconds
}

func (e *PurchaseEvent) EventType() string { return EventTypePurchase }

// PriceUpdateEvent is emitted when the admin replaces the sale prices.
type PriceUpdateEvent struct {
	SaleAddress         string `json:"sale_address"`
	Admin               string `json:"admin"`
	USDPriceCents       uint64 `json:"usd_price_cents"`
	NativePriceLamports uint64 `json:"native_price_lamports"`
	Stage               Stage  `json:"stage"`
	Timestamp           int64  `json:"timestamp"`
}

func (e *PriceUpdateEvent) EventType() string { return EventTypePriceUpdate }

// StageEvent is emitted when the sale advances to a new stage.
type StageEvent struct {
	SaleAddress string `json:"sale_address"`
	Admin       string `json:"admin"`
	Stage       Stage  `json:"stage"`
	Timestamp   int64  `json:"timestamp"`
}

func (e *StageEvent) EventType() string { return EventTypeStage }

// FinalizeEvent is emitted once, when unsold inventory is swept.
type FinalizeEvent struct {
	SaleAddress string `json:"sale_address"`
	Admin       string `json:"admin"`
	Unsold      uint64 `json:"unsold_tokens"` // user units
	Destination string `json:"destination"`
	Timestamp   int64  `json:"timestamp"`
}

func (e *FinalizeEvent) EventType() string { return EventTypeFinalize }
