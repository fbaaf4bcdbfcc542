// Package memory provides an in-memory settlement bank. It backs local
// development and tests; production deployments settle against the chain
// and supply their own implementation.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"token-presale-ledger/internal/authority"
)

// Settlement errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBadAuthority      = errors.New("authority does not control the source account")
)

type accountKey struct {
	mint   string
	wallet string
}

type tokenAccount struct {
	balance   uint64
	authority string // address allowed to move funds out
}

// Bank is a mutex-guarded in-memory ledger of native and token balances.
// Transfers validate fully before mutating, so a failed transfer changes
// nothing.
type Bank struct {
	mu        sync.Mutex
	programID string
	native    map[string]uint64
	tokens    map[accountKey]*tokenAccount
}

// NewBank creates an empty bank. The program id scopes verification of
// derived authorities.
func NewBank(programID string) *Bank {
	return &Bank{
		programID: programID,
		native:    make(map[string]uint64),
		tokens:    make(map[accountKey]*tokenAccount),
	}
}

// SetNativeBalance seeds a wallet's native balance.
func (b *Bank) SetNativeBalance(wallet string, lamports uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.native[wallet] = lamports
}

// NativeBalance returns a wallet's native balance.
func (b *Bank) NativeBalance(wallet string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.native[wallet]
}

// SetTokenBalance seeds a token account. The wallet itself is the default
// authority over the account.
func (b *Bank) SetTokenBalance(mint, wallet string, amountRaw uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.account(mint, wallet)
	acct.balance = amountRaw
}

// SetTokenAuthority reassigns control of a token account, as done for a
// custody wallet whose funds only the sale's derived authority may move.
func (b *Bank) SetTokenAuthority(mint, wallet, authorityAddress string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.account(mint, wallet)
	acct.authority = authorityAddress
}

// TokenBalance returns the raw balance of a token account.
func (b *Bank) TokenBalance(_ context.Context, mint, wallet string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if acct, ok := b.tokens[accountKey{mint, wallet}]; ok {
		return acct.balance, nil
	}
	return 0, nil
}

// TransferNative moves lamports between wallets.
func (b *Bank) TransferNative(_ context.Context, from, to string, lamports uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.native[from] < lamports {
		return fmt.Errorf("%w: wallet %s holds %d lamports, need %d", ErrInsufficientFunds, from, b.native[from], lamports)
	}
	b.native[from] -= lamports
	b.native[to] += lamports
	return nil
}

// TransferToken moves raw token units between accounts of a mint. The
// authority must control the source account: a plain wallet authority must
// match it, and a derived authority must re-derive to it under the bank's
// program id.
func (b *Bank) TransferToken(_ context.Context, mint, from, to string, amountRaw uint64, auth authority.SigningAuthority) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, ok := b.tokens[accountKey{mint, from}]
	if !ok || src.balance < amountRaw {
		var held uint64
		if ok {
			held = src.balance
		}
		return fmt.Errorf("%w: account %s/%s holds %d, need %d", ErrInsufficientFunds, mint, from, held, amountRaw)
	}

	if auth.Derived() {
		if !authority.Verify(b.programID, auth) {
			return fmt.Errorf("%w: derivation check failed for %s", ErrBadAuthority, auth.Address)
		}
	}
	if auth.Address != src.authority {
		return fmt.Errorf("%w: %s is not the authority of %s/%s", ErrBadAuthority, auth.Address, mint, from)
	}

	dst := b.account(mint, to)
	src.balance -= amountRaw
	dst.balance += amountRaw
	return nil
}

// account returns the token account, creating it if absent. Callers hold
// the mutex.
func (b *Bank) account(mint, wallet string) *tokenAccount {
	key := accountKey{mint, wallet}
	acct, ok := b.tokens[key]
	if !ok {
		acct = &tokenAccount{authority: wallet}
		b.tokens[key] = acct
	}
	return acct
}
