package common

import (
	"errors"
	"math/bits"
)

// ErrArithmeticOverflow is returned when an amount computation would exceed the
// uint64 minor-unit domain. Computations fail closed, they never wrap.
var ErrArithmeticOverflow = errors.New("arithmetic overflow")

// BasisPoints is the denominator for all bps-expressed rates.
const BasisPoints = 10_000

// SecondsPerDay converts integer-day durations into unix-second offsets.
const SecondsPerDay int64 = 86_400

// CheckedAdd returns a+b or fails on overflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or fails when the result would go negative.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

// CheckedMul returns a*b or fails on overflow.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

// MulDiv computes a*b/den with full 128-bit intermediate precision, truncating
// toward zero. It fails when den is zero or the quotient exceeds uint64.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrArithmeticOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, ErrArithmeticOverflow
	}
	quo, _ := bits.Div64(hi, lo, den)
	return quo, nil
}

// ApplyBps scales amount by rate basis points (amount*bps/10000).
func ApplyBps(amount uint64, bps uint32) (uint64, error) {
	return MulDiv(amount, uint64(bps), BasisPoints)
}
