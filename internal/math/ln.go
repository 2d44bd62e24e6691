// internal/math/ln.go
package math

import (
	"math/big"
	"math/bits"

	"RangeLedger/internal/errs"
)

// Logarithm protocol constants. Changing any of these changes every price.
const (
	// LnSeriesTerms is the number of odd atanh terms summed after range reduction.
	LnSeriesTerms = 30

	// LnUpperMargin is added (in WAD ulps) to the lower bound to obtain a strict upper bound.
	// A result scaled by (T-x) therefore carries at most about (T-x)*LnUpperMargin*1e-18
	// units of error, so buy costs are only guaranteed below q once the exact
	// reduction is at least one unit.
	LnUpperMargin = 2
)

var (
	// lnScale is the internal precision of the series (36 decimals).
	lnScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)

	// ln2Scaled is floor(ln(2) * 1e36).
	ln2Scaled, _ = new(big.Int).SetString("693147180559945309417232121458176568", 10)

	// lnScaleToWad converts the internal scale down to WAD.
	lnScaleToWad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// LnRatio returns a lower bound of ln(a/b) as a WAD value, for a >= b > 0.
//
// a/b is reduced to 2^k * r with r in [1, 2); ln(r) = 2*atanh((r-1)/(r+1)) is
// summed over LnSeriesTerms odd terms at 1e36 precision, k*ln(2) is added and
// the total is truncated to 1e18. Every intermediate truncation rounds toward
// zero, so the result never exceeds the exact logarithm and differs from it by
// less than one WAD ulp.
func LnRatio(a, b uint64) (*big.Int, error) {
	if b == 0 {
		return nil, errs.ErrDivisionByZero
	}
	if a < b {
		return nil, errs.ErrUnderflow
	}
	if a == b {
		return new(big.Int), nil
	}

	num := new(big.Int).SetUint64(a)

	// Largest k with b * 2^k <= a.
	k := bits.Len64(a) - bits.Len64(b)
	den := new(big.Int).Lsh(new(big.Int).SetUint64(b), uint(k))
	if den.Cmp(num) > 0 {
		k--
		den.Rsh(den, 1)
	}

	// z = (a - den) / (a + den), scaled
	diff := new(big.Int).Sub(num, den)
	total := new(big.Int).Add(num, den)
	z := new(big.Int).Mul(diff, lnScale)
	z.Quo(z, total)

	zSquared := new(big.Int).Mul(z, z)
	zSquared.Quo(zSquared, lnScale)

	sum := new(big.Int)
	term := new(big.Int).Set(z)
	part := new(big.Int)
	for i := 0; i < LnSeriesTerms; i++ {
		part.Quo(term, big.NewInt(int64(2*i+1)))
		sum.Add(sum, part)
		term.Mul(term, zSquared)
		term.Quo(term, lnScale)
	}
	sum.Lsh(sum, 1)

	if k > 0 {
		sum.Add(sum, new(big.Int).Mul(ln2Scaled, big.NewInt(int64(k))))
	}

	return sum.Quo(sum, lnScaleToWad), nil
}

// LnRatioUpper returns a strict upper bound of ln(a/b) as a WAD value.
// For a == b the logarithm is exactly zero and zero is returned.
func LnRatioUpper(a, b uint64) (*big.Int, error) {
	lower, err := LnRatio(a, b)
	if err != nil {
		return nil, err
	}
	if a == b {
		return lower, nil
	}
	return lower.Add(lower, big.NewInt(LnUpperMargin)), nil
}
