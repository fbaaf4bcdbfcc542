package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputePurchaseEventID computes a deterministic purchase event id.
// Formula: SHA256(sale_address|buyer|rail|amount_paid|timestamp)
// Returns hex-encoded hash (64 characters).
func ComputePurchaseEventID(
	saleAddress string,
	buyer string,
	rail string,
	amountPaid uint64,
	timestamp int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		saleAddress,
		buyer,
		rail,
		amountPaid,
		timestamp,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
