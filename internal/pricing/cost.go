// Package pricing implements the range-bet bonding curve.
//
// Throughout, x is the quantity already issued in the traded bin, q the trade
// quantity and total the aggregate supply across all bins of the market. The
// marginal price of a bin is x/total; integrating it over a trade gives
//
//	buy:  q + (x - total) * ln((total+q) / total)
//	sell: q - (total - x) * ln(total / (total-q))
//
// Rounding always favours the market: buy costs round up, sell revenues round down.
package pricing

import (
	"RangeLedger/internal/errs"
	fpmath "RangeLedger/internal/math"
)

// BuyCost returns the collateral required to mint q tokens into a bin holding x
// when the market's total supply is total.
func BuyCost(x, q, total uint64) (uint64, error) {
	if x > total {
		return 0, errs.ErrInvalidBinState
	}
	if q == 0 {
		return 0, nil
	}
	// Empty market, or the bin already holds everything: price is exactly 1.
	if total == 0 || x == total {
		return q, nil
	}

	after, err := fpmath.Add(total, q)
	if err != nil {
		return 0, err
	}
	ln, err := fpmath.LnRatio(after, total)
	if err != nil {
		return 0, err
	}

	// Lower bound of ln, floored product: the subtracted term is never overstated.
	reduction, err := fpmath.MulWad(total-x, ln, fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	return fpmath.Sub(q, reduction)
}

// SellRevenue returns the collateral paid out for burning q tokens from a bin
// holding x when the market's total supply is total.
func SellRevenue(x, q, total uint64) (uint64, error) {
	if x > total {
		return 0, errs.ErrInvalidBinState
	}
	if q == 0 {
		return 0, nil
	}
	if x == 0 {
		return 0, errs.ErrEmptyBin
	}
	if q > x {
		return 0, errs.ErrInsufficientBinBalance
	}
	if x == total {
		return q, nil
	}

	// q <= x < total, so remaining > 0
	remaining := total - q
	ln, err := fpmath.LnRatioUpper(total, remaining)
	if err != nil {
		return 0, err
	}

	reduction, err := fpmath.MulWad(total-x, ln, fpmath.RoundUp)
	if err != nil {
		return 0, err
	}
	if reduction >= q {
		return 0, nil
	}
	return q - reduction, nil
}

// MarginalPrice returns x/total as a WAD value, 0 for an empty market.
func MarginalPrice(x, total uint64) (uint64, error) {
	if total == 0 {
		return 0, nil
	}
	if x > total {
		return 0, errs.ErrInvalidBinState
	}
	return fpmath.RatioWad(x, total)
}
