package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/mr-tron/base58"

	"token-presale-ledger/internal/authority"
)

func testKey(fill byte) string {
	return base58.Encode(bytes.Repeat([]byte{fill}, 32))
}

func TestBank_TransferNative(t *testing.T) {
	bank := NewBank(testKey(1))
	bank.SetNativeBalance("alice", 1000)

	if err := bank.TransferNative(context.Background(), "alice", "bob", 400); err != nil {
		t.Fatalf("TransferNative failed: %v", err)
	}
	if got := bank.NativeBalance("alice"); got != 600 {
		t.Errorf("alice balance = %d, want 600", got)
	}
	if got := bank.NativeBalance("bob"); got != 400 {
		t.Errorf("bob balance = %d, want 400", got)
	}
}

func TestBank_TransferNativeInsufficient(t *testing.T) {
	bank := NewBank(testKey(1))
	bank.SetNativeBalance("alice", 100)

	err := bank.TransferNative(context.Background(), "alice", "bob", 400)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := bank.NativeBalance("alice"); got != 100 {
		t.Errorf("alice balance changed after failed transfer: %d", got)
	}
}

func TestBank_TransferTokenWalletAuthority(t *testing.T) {
	bank := NewBank(testKey(1))
	bank.SetTokenBalance("mintA", "alice", 500)

	err := bank.TransferToken(context.Background(), "mintA", "alice", "bob", 200, authority.Wallet("alice"))
	if err != nil {
		t.Fatalf("TransferToken failed: %v", err)
	}

	got, _ := bank.TokenBalance(context.Background(), "mintA", "bob")
	if got != 200 {
		t.Errorf("bob balance = %d, want 200", got)
	}
}

func TestBank_TransferTokenWrongAuthority(t *testing.T) {
	bank := NewBank(testKey(1))
	bank.SetTokenBalance("mintA", "alice", 500)

	err := bank.TransferToken(context.Background(), "mintA", "alice", "bob", 200, authority.Wallet("mallory"))
	if !errors.Is(err, ErrBadAuthority) {
		t.Fatalf("expected ErrBadAuthority, got %v", err)
	}
	got, _ := bank.TokenBalance(context.Background(), "mintA", "alice")
	if got != 500 {
		t.Errorf("alice balance changed after rejected transfer: %d", got)
	}
}

func TestBank_TransferTokenDerivedAuthority(t *testing.T) {
	programID := testKey(1)
	admin := testKey(2)

	saleAddr, bump, err := authority.DeriveSaleAddress(programID, admin)
	if err != nil {
		t.Fatalf("DeriveSaleAddress failed: %v", err)
	}

	bank := NewBank(programID)
	bank.SetTokenBalance("mintA", "custody", 1000)
	bank.SetTokenAuthority("mintA", "custody", saleAddr)

	// The custody wallet itself can no longer move the funds.
	err = bank.TransferToken(context.Background(), "mintA", "custody", "pool", 1000, authority.Wallet("custody"))
	if !errors.Is(err, ErrBadAuthority) {
		t.Fatalf("expected ErrBadAuthority for wallet authority, got %v", err)
	}

	auth, err := authority.SaleAuthority(programID, admin, bump)
	if err != nil {
		t.Fatalf("SaleAuthority failed: %v", err)
	}
	if err := bank.TransferToken(context.Background(), "mintA", "custody", "pool", 1000, auth); err != nil {
		t.Fatalf("TransferToken with derived authority failed: %v", err)
	}

	got, _ := bank.TokenBalance(context.Background(), "mintA", "pool")
	if got != 1000 {
		t.Errorf("pool balance = %d, want 1000", got)
	}
}

func TestBank_TransferTokenForgedDerivedAuthority(t *testing.T) {
	programID := testKey(1)
	admin := testKey(2)

	saleAddr, _, err := authority.DeriveSaleAddress(programID, admin)
	if err != nil {
		t.Fatalf("DeriveSaleAddress failed: %v", err)
	}

	bank := NewBank(programID)
	bank.SetTokenBalance("mintA", "custody", 1000)
	bank.SetTokenAuthority("mintA", "custody", saleAddr)

	forged := authority.SigningAuthority{
		Address: saleAddr,
		Seeds:   [][]byte{[]byte("presale"), bytes.Repeat([]byte{9}, 32)},
		Bump:    255,
	}
	err = bank.TransferToken(context.Background(), "mintA", "custody", "pool", 1, forged)
	if !errors.Is(err, ErrBadAuthority) {
		t.Fatalf("expected ErrBadAuthority for forged seeds, got %v", err)
	}
}
