// Package api exposes the sale ledger over HTTP. Mutating routes identify
// the caller through the X-Caller-Address header; identity verification is
// delegated to the fronting gateway.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"token-presale-ledger/internal/domain"
	"token-presale-ledger/internal/observability"
	"token-presale-ledger/internal/presale"
	"token-presale-ledger/internal/storage"
)

// callerHeader carries the verified caller address.
const callerHeader = "X-Caller-Address"

// Server routes HTTP requests to the ledger service.
type Server struct {
	svc     *presale.Service
	sales   storage.SaleStore
	events  storage.PurchaseEventStore
	metrics *observability.Metrics
	logger  *log.Logger
}

// Options contains configuration for creating a Server.
type Options struct {
	Service    *presale.Service
	SaleStore  storage.SaleStore
	EventStore storage.PurchaseEventStore // optional, disables event queries when nil
	Metrics    *observability.Metrics     // optional
	Logger     *log.Logger
}

// NewServer creates an HTTP API server.
func NewServer(opts Options) *Server {
	return &Server{
		svc:     opts.Service,
		sales:   opts.SaleStore,
		events:  opts.EventStore,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Routes registers all API routes on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sales", s.instrument("create_sale", s.handleCreateSale))
	mux.HandleFunc("GET /v1/sales", s.instrument("list_sales", s.handleListSales))
	mux.HandleFunc("GET /v1/sales/{admin}", s.instrument("get_sale", s.handleGetSale))
	mux.HandleFunc("GET /v1/sales/{admin}/remaining", s.instrument("remaining", s.handleRemaining))
	mux.HandleFunc("POST /v1/sales/{admin}/purchases/native", s.instrument("purchase_native", s.handlePurchaseNative))
	mux.HandleFunc("POST /v1/sales/{admin}/purchases/stable", s.instrument("purchase_stable", s.handlePurchaseStable))

	mux.HandleFunc("POST /v1/sale/stage", s.instrument("advance_stage", s.handleAdvanceStage))
	mux.HandleFunc("PUT /v1/sale/price", s.instrument("update_price", s.handleUpdatePrice))
	mux.HandleFunc("PUT /v1/sale/duration", s.instrument("update_duration", s.handleUpdateDuration))
	mux.HandleFunc("POST /v1/sale/finalize", s.instrument("finalize", s.handleFinalize))

	if s.events != nil {
		mux.HandleFunc("GET /v1/sales/{admin}/events", s.instrument("sale_events", s.handleSaleEvents))
		mux.HandleFunc("GET /v1/buyers/{buyer}/events", s.instrument("buyer_events", s.handleBuyerEvents))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler with request duration metrics.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.RequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	}
}

type createSaleRequest struct {
	USDPriceCents       uint64 `json:"usd_price_cents"`
	NativePriceLamports uint64 `json:"native_price_lamports"`
	PrivateDays         int64  `json:"private_days"`
	PublicDays          int64  `json:"public_days"`
	HardcapTokens       uint64 `json:"hardcap_tokens"`
	SaleWallet          string `json:"sale_wallet"`
	ProceedsWallet      string `json:"proceeds_wallet"`
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req createSaleRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.svc.Initialize(r.Context(), presale.InitializeParams{
		Admin:               caller,
		USDPriceCents:       req.USDPriceCents,
		NativePriceLamports: req.NativePriceLamports,
		PrivateDays:         req.PrivateDays,
		PublicDays:          req.PublicDays,
		HardcapTokens:       req.HardcapTokens,
		SaleWallet:          req.SaleWallet,
		ProceedsWallet:      req.ProceedsWallet,
	})
	if err != nil {
		s.writeError(w, "create_sale", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, saleResponse(rec))
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	recs, err := s.sales.List(r.Context())
	if err != nil {
		s.writeError(w, "list_sales", err)
		return
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, saleResponse(rec))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sales": out})
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sales.GetByAdmin(r.Context(), r.PathValue("admin"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, "get_sale", presale.ErrSaleNotFound)
			return
		}
		s.writeError(w, "get_sale", err)
		return
	}
	s.writeJSON(w, http.StatusOK, saleResponse(rec))
}

func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request) {
	remaining, err := s.svc.RemainingBalance(r.Context(), r.PathValue("admin"))
	if err != nil {
		s.writeError(w, "remaining", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"remaining_tokens": remaining})
}

type purchaseNativeRequest struct {
	PaymentMode uint8  `json:"payment_mode"`
	Lamports    uint64 `json:"lamports"`
}

func (s *Server) handlePurchaseNative(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req purchaseNativeRequest
	if !s.decode(w, r, &req) {
		return
	}

	ev, err := s.svc.PurchaseWithNative(r.Context(), r.PathValue("admin"), caller,
		domain.PaymentMode(req.PaymentMode), req.Lamports)
	if err != nil {
		s.writeError(w, "purchase_native", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ev)
}

type purchaseStableRequest struct {
	PaymentMode uint8  `json:"payment_mode"`
	StableMint  string `json:"stable_mint"`
	Amount      uint64 `json:"amount"`
}

func (s *Server) handlePurchaseStable(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req purchaseStableRequest
	if !s.decode(w, r, &req) {
		return
	}

	ev, err := s.svc.PurchaseWithStable(r.Context(), r.PathValue("admin"), caller,
		domain.PaymentMode(req.PaymentMode), req.StableMint, req.Amount)
	if err != nil {
		s.writeError(w, "purchase_stable", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ev)
}

type advanceStageRequest struct {
	// Now overrides the evaluation timestamp; zero means wall clock.
	Now int64 `json:"now,omitempty"`
}

func (s *Server) handleAdvanceStage(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req advanceStageRequest
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}
	now := req.Now
	if now == 0 {
		now = time.Now().Unix()
	}

	stage, err := s.svc.AdvanceStage(r.Context(), caller, now)
	if err != nil {
		s.writeError(w, "advance_stage", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"stage": stage.String()})
}

type updatePriceRequest struct {
	USDPriceCents       uint64 `json:"usd_price_cents"`
	NativePriceLamports uint64 `json:"native_price_lamports"`
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req updatePriceRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.svc.UpdatePrice(r.Context(), caller, req.USDPriceCents, req.NativePriceLamports); err != nil {
		s.writeError(w, "update_price", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateDurationRequest struct {
	PrivateDays int64 `json:"private_days"`
	PublicDays  int64 `json:"public_days"`
}

func (s *Server) handleUpdateDuration(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req updateDurationRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.svc.UpdateDuration(r.Context(), caller, req.PrivateDays, req.PublicDays); err != nil {
		s.writeError(w, "update_duration", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type finalizeRequest struct {
	Destination string `json:"destination"`
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req finalizeRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.svc.Finalize(r.Context(), caller, req.Destination); err != nil {
		s.writeError(w, "finalize", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaleEvents(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sales.GetByAdmin(r.Context(), r.PathValue("admin"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, "sale_events", presale.ErrSaleNotFound)
			return
		}
		s.writeError(w, "sale_events", err)
		return
	}

	evs, err := s.events.GetBySale(r.Context(), rec.Address)
	if err != nil {
		s.writeError(w, "sale_events", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (s *Server) handleBuyerEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := s.events.GetByBuyer(r.Context(), r.PathValue("buyer"))
	if err != nil {
		s.writeError(w, "buyer_events", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

// caller extracts the verified caller address from the request.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := r.Header.Get(callerHeader)
	if caller == "" {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "missing " + callerHeader + " header",
		})
		return "", false
	}
	return caller, true
}

// decode parses the JSON request body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func saleResponse(rec *domain.SaleRecord) map[string]any {
	return map[string]any{
		"address":               rec.Address,
		"admin":                 rec.Admin,
		"stage":                 rec.Stage.String(),
		"usd_price_cents":       rec.USDPriceCents,
		"native_price_lamports": rec.NativePriceLamports,
		"sale_start":            rec.SaleStart,
		"private_duration":      rec.PrivateDuration,
		"public_duration":       rec.PublicDuration,
		"total_sold_raw":        strconv.FormatUint(rec.TotalSoldRaw, 10),
		"hardcap_raw":           strconv.FormatUint(rec.HardcapRaw, 10),
		"pool_finalized":        rec.PoolFinalized,
		"sale_wallet":           rec.SaleWallet,
		"proceeds_wallet":       rec.ProceedsWallet,
		"created_at":            rec.CreatedAt,
		"updated_at":            rec.UpdatedAt,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

// writeError maps a ledger error to an HTTP status and records it.
func (s *Server) writeError(w http.ResponseWriter, operation string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, presale.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, presale.ErrSaleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, presale.ErrSaleExists),
		errors.Is(err, presale.ErrLiquidityPoolAlreadyCreated),
		errors.Is(err, presale.ErrPresaleNotActive),
		errors.Is(err, presale.ErrPresaleActive),
		errors.Is(err, presale.ErrSaleAlreadyEnded),
		errors.Is(err, presale.ErrPrivateSaleNotOver),
		errors.Is(err, presale.ErrPublicSaleNotOver),
		errors.Is(err, presale.ErrHardcapReached),
		errors.Is(err, presale.ErrInsufficientTokens):
		status = http.StatusConflict
	case errors.Is(err, presale.ErrInvalidStableToken),
		errors.Is(err, presale.ErrInvalidPaymentType),
		errors.Is(err, presale.ErrInvalidPrice),
		errors.Is(err, presale.ErrInvalidDuration),
		errors.Is(err, presale.ErrInvalidDestination),
		errors.Is(err, presale.ErrAmountOverflow),
		errors.Is(err, storage.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Printf("%s: %v", operation, err)
		s.writeJSON(w, status, map[string]string{"error": "internal error"})
	} else {
		s.writeJSON(w, status, map[string]string{"error": err.Error()})
	}

	if s.metrics != nil {
		s.metrics.RecordOperationError(operation, strconv.Itoa(status))
	}
}
