package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"

	"token-presale-ledger/internal/domain"
	"token-presale-ledger/internal/events"
	"token-presale-ledger/internal/presale"
	bankmem "token-presale-ledger/internal/settlement/memory"
	storemem "token-presale-ledger/internal/storage/memory"
)

func testKey(fill byte) string {
	return base58.Encode(bytes.Repeat([]byte{fill}, 32))
}

var (
	programID = testKey(1)
	adminAddr = testKey(2)
	buyerAddr = testKey(3)
	tokenMint = domain.MintInfo{Address: testKey(4), Decimals: 9}
	usdcMint  = domain.MintInfo{Address: testKey(5), Decimals: 6}
)

type env struct {
	srv  *httptest.Server
	bank *bankmem.Bank
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	saleStore := storemem.NewSaleStore()
	eventStore := storemem.NewPurchaseEventStore()
	bank := bankmem.NewBank(programID)

	svc := presale.New(presale.Options{
		Store:      saleStore,
		Settlement: bank,
		Inventory:  bank,
		Sink:       events.NewArchiveSink(eventStore),
		Logger:     logger,
		Config: presale.Config{
			ProgramID:   programID,
			TokenMint:   tokenMint,
			StableMints: []domain.MintInfo{usdcMint},
		},
	})

	mux := http.NewServeMux()
	NewServer(Options{
		Service:    svc,
		SaleStore:  saleStore,
		EventStore: eventStore,
		Logger:     logger,
	}).Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &env{srv: srv, bank: bank}
}

func (e *env) do(t *testing.T, method, path, caller string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// createSale initializes a sale, seeds inventory and advances it to PRIVATE.
func (e *env) createSale(t *testing.T) {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/v1/sales", adminAddr, map[string]any{
		"usd_price_cents":       10,
		"native_price_lamports": 182_000_000,
		"private_days":          7,
		"public_days":           14,
		"hardcap_tokens":        1000,
		"sale_wallet":           "sale-wallet",
		"proceeds_wallet":       "proceeds-wallet",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create sale: status %d", resp.StatusCode)
	}

	var sale struct {
		Address string `json:"address"`
	}
	decodeBody(t, resp, &sale)

	e.bank.SetTokenBalance(tokenMint.Address, "sale-wallet", 1000*1_000_000_000)
	e.bank.SetTokenAuthority(tokenMint.Address, "sale-wallet", sale.Address)

	resp = e.do(t, http.MethodPost, "/v1/sale/stage", adminAddr, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advance stage: status %d", resp.StatusCode)
	}
}

func TestCreateAndGetSale(t *testing.T) {
	e := newEnv(t)
	e.createSale(t)

	resp := e.do(t, http.MethodGet, "/v1/sales/"+adminAddr, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	var sale struct {
		Admin   string `json:"admin"`
		Stage   string `json:"stage"`
		Hardcap string `json:"hardcap_raw"`
	}
	decodeBody(t, resp, &sale)
	if sale.Admin != adminAddr {
		t.Errorf("admin = %s, want %s", sale.Admin, adminAddr)
	}
	if sale.Stage != "PRIVATE" {
		t.Errorf("stage = %s, want PRIVATE", sale.Stage)
	}
	if sale.Hardcap != "1000000000000" {
		t.Errorf("hardcap_raw = %s", sale.Hardcap)
	}
}

func TestCreateSale_MissingCaller(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/v1/sales", "", map[string]any{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}

func TestCreateSale_Duplicate(t *testing.T) {
	e := newEnv(t)
	e.createSale(t)

	resp := e.do(t, http.MethodPost, "/v1/sales", adminAddr, map[string]any{
		"hardcap_tokens":  1,
		"sale_wallet":     "sale-wallet",
		"proceeds_wallet": "proceeds-wallet",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409", resp.StatusCode)
	}
}

func TestGetSale_NotFound(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/v1/sales/"+testKey(9), "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestPurchaseNative(t *testing.T) {
	e := newEnv(t)
	e.createSale(t)
	e.bank.SetNativeBalance(buyerAddr, 2_000_000_000)

	resp := e.do(t, http.MethodPost, "/v1/sales/"+adminAddr+"/purchases/native", buyerAddr, map[string]any{
		"payment_mode": 0,
		"lamports":     1_820_000_000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201", resp.StatusCode)
	}

	var ev domain.PurchaseEvent
	decodeBody(t, resp, &ev)
	if ev.Tokens != 10 {
		t.Errorf("tokens = %d, want 10", ev.Tokens)
	}
	if ev.Buyer != buyerAddr {
		t.Errorf("buyer = %s, want %s", ev.Buyer, buyerAddr)
	}

	// Archived event is queryable through the API.
	resp = e.do(t, http.MethodGet, "/v1/buyers/"+buyerAddr+"/events", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("buyer events: status %d", resp.StatusCode)
	}
	var listing struct {
		Events []*domain.PurchaseEvent `json:"events"`
	}
	decodeBody(t, resp, &listing)
	if len(listing.Events) != 1 {
		t.Errorf("archived %d events, want 1", len(listing.Events))
	}
}

func TestPurchaseNative_PaymentTooSmall(t *testing.T) {
	e := newEnv(t)
	e.createSale(t)

	resp := e.do(t, http.MethodPost, "/v1/sales/"+adminAddr+"/purchases/native", buyerAddr, map[string]any{
		"payment_mode": 1,
		"lamports":     100,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestPurchaseStable(t *testing.T) {
	e := newEnv(t)
	e.createSale(t)
	e.bank.SetTokenBalance(usdcMint.Address, buyerAddr, 5_000_000)

	resp := e.do(t, http.MethodPost, "/v1/sales/"+adminAddr+"/purchases/stable", buyerAddr, map[string]any{
		"payment_mode": 0,
		"stable_mint":  usdcMint.Address,
		"amount":       5,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201", resp.StatusCode)
	}

	var ev domain.PurchaseEvent
	decodeBody(t, resp, &ev)
	if ev.Tokens != 50 {
		t.Errorf("tokens = %d, want 50", ev.Tokens)
	}
}

func TestPurchaseStable_UnknownMint(t *testing.T) {
	e := newEnv(t)
	e.createSale(t)

	resp := e.do(t, http.MethodPost, "/v1/sales/"+adminAddr+"/purchases/stable", buyerAddr, map[string]any{
		"payment_mode": 1,
		"stable_mint":  testKey(9),
		"amount":       5,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestUpdatePrice_WrongCaller(t *testing.T) {
	e := newEnv(t)
	e.createSale(t)

	resp := e.do(t, http.MethodPut, "/v1/sale/price", buyerAddr, map[string]any{
		"usd_price_cents":       20,
		"native_price_lamports": 30,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", resp.StatusCode)
	}
}

func TestAdvanceStage_TooEarly(t *testing.T) {
	e := newEnv(t)
	e.createSale(t) // PRIVATE, 7 day window

	resp := e.do(t, http.MethodPost, "/v1/sale/stage", adminAddr, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409", resp.StatusCode)
	}
}

func TestRemaining(t *testing.T) {
	e := newEnv(t)
	e.createSale(t)

	resp := e.do(t, http.MethodGet, "/v1/sales/"+adminAddr+"/remaining", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	var body struct {
		Remaining uint64 `json:"remaining_tokens"`
	}
	decodeBody(t, resp, &body)
	if body.Remaining != 1000 {
		t.Errorf("remaining = %d, want 1000", body.Remaining)
	}
}

func TestFinalize_Flow(t *testing.T) {
	e := newEnv(t)
	e.createSale(t)

	// While active.
	resp := e.do(t, http.MethodPost, "/v1/sale/finalize", adminAddr, map[string]any{"destination": "pool"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("finalize while active: status %d, want 409", resp.StatusCode)
	}

	// End the sale by advancing past both windows.
	farFuture := int64(4_000_000_000)
	for i := 0; i < 2; i++ {
		resp = e.do(t, http.MethodPost, "/v1/sale/stage", adminAddr, map[string]any{"now": farFuture})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("advance stage %d: status %d", i, resp.StatusCode)
		}
	}

	resp = e.do(t, http.MethodPost, "/v1/sale/finalize", adminAddr, map[string]any{"destination": "pool"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("finalize: status %d, want 204", resp.StatusCode)
	}

	// Repeat finalize conflicts.
	resp = e.do(t, http.MethodPost, "/v1/sale/finalize", adminAddr, map[string]any{"destination": "pool"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("repeat finalize: status %d, want 409", resp.StatusCode)
	}
}
