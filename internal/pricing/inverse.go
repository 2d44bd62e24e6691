package pricing

import (
	"fmt"
	stdmath "math"

	"RangeLedger/internal/errs"
	fpmath "RangeLedger/internal/math"
)

// MaxBuyQuantity returns the largest q with BuyCost(x, q, total) <= budget.
func MaxBuyQuantity(x, total, budget uint64) (uint64, error) {
	if x > total {
		return 0, errs.ErrInvalidBinState
	}
	hi := stdmath.MaxUint64 - total
	if total == 0 || x == total {
		return min(budget, hi), nil
	}

	fits := func(q uint64) bool {
		cost, err := BuyCost(x, q, total)
		return err == nil && cost <= budget
	}
	return fpmath.MaxSatisfying(0, hi, fits), nil
}

// MaxUniformBatchQuantity returns the largest q such that buying q in every
// listed bin, in order, costs at most budget.
func MaxUniformBatchQuantity(bins []uint64, indices []uint32, total, budget uint64) (uint64, error) {
	if len(indices) == 0 {
		return 0, errs.ErrNoTokensToBuy
	}
	for _, idx := range indices {
		if int(idx) >= len(bins) {
			return 0, fmt.Errorf("bin %d: %w", idx, errs.ErrBinIndexOutOfRange)
		}
		if bins[idx] > total {
			return 0, errs.ErrInvalidBinState
		}
	}

	legs := make([]Leg, len(indices))
	for i, idx := range indices {
		legs[i].Bin = idx
	}

	fits := func(q uint64) bool {
		for i := range legs {
			legs[i].Quantity = q
		}
		quote, err := BatchBuyCost(bins, total, legs)
		return err == nil && quote.Total <= budget
	}

	hi := (stdmath.MaxUint64 - total) / uint64(len(indices))
	return fpmath.MaxSatisfying(0, hi, fits), nil
}

// MaxUniformBatchQuantityScalar is MaxUniformBatchQuantity for n distinct bins
// that each hold x.
func MaxUniformBatchQuantityScalar(x uint64, n int, total, budget uint64) (uint64, error) {
	if n <= 0 {
		return 0, errs.ErrNoTokensToBuy
	}
	held, err := fpmath.Mul(x, uint64(n))
	if err != nil || held > total {
		return 0, errs.ErrInvalidBinState
	}

	bins := make([]uint64, n)
	indices := make([]uint32, n)
	for i := range bins {
		bins[i] = x
		indices[i] = uint32(i)
	}
	return MaxUniformBatchQuantity(bins, indices, total, budget)
}
