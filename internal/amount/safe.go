// Package amount provides checked uint64 arithmetic for raw token amounts.
// All sale accounting goes through these helpers; nothing in the ledger is
// allowed to wrap silently.
package amount

import "math"

// CheckedAdd returns a + b and whether the addition stayed in range.
func CheckedAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// CheckedSub returns a - b and whether the subtraction stayed in range.
func CheckedSub(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// CheckedMul returns a * b and whether the multiplication stayed in range.
func CheckedMul(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	result := a * b
	if result/a != b {
		return 0, false
	}
	return result, true
}

// SaturatingAdd returns a + b, clamped to MaxUint64 on overflow.
// Used for the hardcap comparison so a wraparound can never bypass it.
func SaturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// SaturatingSub returns a - b, clamped to zero on underflow.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// PowerOfTen returns 10^decimals and whether it fits in uint64.
// uint64 holds up to 10^19.
func PowerOfTen(decimals uint8) (uint64, bool) {
	if decimals > 19 {
		return 0, false
	}
	result := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		result *= 10
	}
	return result, true
}

// ToUserUnits converts raw smallest units to whole user units, flooring.
func ToUserUnits(raw uint64, decimals uint8) uint64 {
	scale, ok := PowerOfTen(decimals)
	if !ok {
		return 0
	}
	return raw / scale
}

// ToRawUnits converts whole user units to raw smallest units.
// Returns false if the scaled value overflows uint64.
func ToRawUnits(userUnits uint64, decimals uint8) (uint64, bool) {
	scale, ok := PowerOfTen(decimals)
	if !ok {
		return 0, false
	}
	return CheckedMul(userUnits, scale)
}
