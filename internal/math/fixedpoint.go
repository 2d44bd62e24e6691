// internal/math/fixedpoint.go
package math

import (
	"math/big"
	"math/bits"
	"sync"

	"RangeLedger/internal/errs"
)

// WAD is the fixed-point scale of logarithm results (18 decimals).
const WAD uint64 = 1_000_000_000_000_000_000

var wadBig = new(big.Int).SetUint64(WAD)

type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
	RoundHalfEven // Banker's rounding
)

// Widened intermediates for multiply-then-divide
var wideIntPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getWide() *big.Int {
	return wideIntPool.Get().(*big.Int)
}

func putWide(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	wideIntPool.Put(v)
}

// Add returns a + b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, errs.ErrOverflow
	}
	return sum, nil
}

// Sub returns a - b or ErrUnderflow.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, errs.ErrUnderflow
	}
	return diff, nil
}

// Mul returns a * b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, errs.ErrOverflow
	}
	return lo, nil
}

// Div returns floor(a / b) or ErrDivisionByZero.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, errs.ErrDivisionByZero
	}
	return a / b, nil
}

// MulDiv computes a * b / d through a 128-bit intermediate, rounding as requested.
// Fails with ErrOverflow when the final result does not fit in 64 bits.
func MulDiv(a, b, d uint64, mode RoundingMode) (uint64, error) {
	if d == 0 {
		return 0, errs.ErrDivisionByZero
	}

	numerator := getWide()
	defer putWide(numerator)
	numerator.SetUint64(a)
	factor := getWide()
	defer putWide(factor)
	factor.SetUint64(b)
	numerator.Mul(numerator, factor)

	denom := getWide()
	defer putWide(denom)
	denom.SetUint64(d)

	return divideWide(numerator, denom, mode)
}

// divideWide performs numerator / denominator with rounding, into a uint64.
func divideWide(numerator, denominator *big.Int, mode RoundingMode) (uint64, error) {
	quotient := getWide()
	remainder := getWide()
	defer putWide(quotient)
	defer putWide(remainder)

	quotient.QuoRem(numerator, denominator, remainder)

	if remainder.Sign() != 0 {
		switch mode {
		case RoundUp:
			quotient.Add(quotient, big.NewInt(1))
		case RoundHalfEven:
			twice := getWide()
			twice.Lsh(remainder, 1)
			cmp := twice.Cmp(denominator)
			putWide(twice)
			if cmp > 0 || (cmp == 0 && quotient.Bit(0) == 1) {
				quotient.Add(quotient, big.NewInt(1))
			}
		}
	}

	if !quotient.IsUint64() {
		return 0, errs.ErrOverflow
	}
	return quotient.Uint64(), nil
}

// MulWad computes v * w / WAD for a WAD-scaled w (e.g. a logarithm).
func MulWad(v uint64, w *big.Int, mode RoundingMode) (uint64, error) {
	if w.Sign() < 0 {
		return 0, errs.ErrUnderflow
	}
	product := getWide()
	defer putWide(product)
	product.SetUint64(v)
	product.Mul(product, w)
	return divideWide(product, wadBig, mode)
}

// RatioWad returns num / den as a WAD value, rounded down.
func RatioWad(num, den uint64) (uint64, error) {
	return MulDiv(num, WAD, den, RoundDown)
}
