// Package authority derives sale account addresses and the signing
// authority the ledger uses to move custody funds during finalization.
//
// Derivation follows the Solana PDA algorithm: sha256 over the seeds, a
// bump byte, the program id and the "ProgramDerivedAddress" marker, with
// the bump searched downward from 255 until the hash is off the ed25519
// curve. The result is reproducible from the admin identity alone, so the
// transfer collaborator can verify it without an interactive signature.
package authority

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// SaleSeed is the constant seed prefix for sale account derivation.
const SaleSeed = "presale"

// SigningAuthority is the capability presented to the transfer collaborator
// to authorize a movement of funds. For a wallet it is simply the wallet's
// verified address; for a sale account it carries the derivation seeds that
// prove the address belongs to the program.
type SigningAuthority struct {
	Address string
	Seeds   [][]byte // empty for plain wallet authorities
	Bump    uint8
}

// Derived reports whether this authority is program-derived.
func (a SigningAuthority) Derived() bool {
	return len(a.Seeds) > 0
}

// Wallet returns a plain wallet authority for a verified caller address.
func Wallet(address string) SigningAuthority {
	return SigningAuthority{Address: address}
}

// DeriveSaleAddress derives the sale account address for an admin under the
// given program id. Returns the address and the bump used.
func DeriveSaleAddress(programID, admin string) (string, uint8, error) {
	programBytes, err := base58.Decode(programID)
	if err != nil {
		return "", 0, fmt.Errorf("decode program id: %w", err)
	}
	adminBytes, err := base58.Decode(admin)
	if err != nil {
		return "", 0, fmt.Errorf("decode admin address: %w", err)
	}
	if len(programBytes) != 32 || len(adminBytes) != 32 {
		return "", 0, fmt.Errorf("program id and admin must be 32-byte keys")
	}

	seeds := [][]byte{[]byte(SaleSeed), adminBytes}
	addr, bump, ok := derive(seeds, programBytes)
	if !ok {
		return "", 0, fmt.Errorf("no valid bump for admin %s", admin)
	}
	return addr, bump, nil
}

// SaleAuthority reconstructs the signing authority for a sale account from
// its admin and the stored bump. The transfer collaborator re-derives the
// address from the seeds to verify the capability.
func SaleAuthority(programID, admin string, bump uint8) (SigningAuthority, error) {
	programBytes, err := base58.Decode(programID)
	if err != nil {
		return SigningAuthority{}, fmt.Errorf("decode program id: %w", err)
	}
	adminBytes, err := base58.Decode(admin)
	if err != nil {
		return SigningAuthority{}, fmt.Errorf("decode admin address: %w", err)
	}

	seeds := [][]byte{[]byte(SaleSeed), adminBytes}
	addr := deriveWithBump(seeds, programBytes, bump)
	if addr == "" {
		return SigningAuthority{}, fmt.Errorf("bump %d does not yield an off-curve address", bump)
	}
	return SigningAuthority{Address: addr, Seeds: seeds, Bump: bump}, nil
}

// Verify checks that a derived authority reproduces its claimed address
// under the given program id.
func Verify(programID string, auth SigningAuthority) bool {
	if !auth.Derived() {
		return false
	}
	programBytes, err := base58.Decode(programID)
	if err != nil {
		return false
	}
	return deriveWithBump(auth.Seeds, programBytes, auth.Bump) == auth.Address
}

// derive searches for the highest bump producing an off-curve address.
func derive(seeds [][]byte, programID []byte) (string, uint8, bool) {
	for bump := 255; bump > 0; bump-- {
		if addr := deriveWithBump(seeds, programID, uint8(bump)); addr != "" {
			return addr, uint8(bump), true
		}
	}
	return "", 0, false
}

// deriveWithBump computes the candidate address for one bump value.
// Returns "" when the hash lands on the curve and cannot be used.
func deriveWithBump(seeds [][]byte, programID []byte, bump uint8) string {
	data := make([]byte, 0, 96)
	for _, seed := range seeds {
		data = append(data, seed...)
	}
	data = append(data, bump)
	data = append(data, programID...)
	data = append(data, []byte("ProgramDerivedAddress")...)

	hash := sha256.Sum256(data)
	if isOnCurve(hash[:]) {
		return ""
	}
	return base58.Encode(hash[:])
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
