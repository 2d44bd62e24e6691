package pricing

import (
	"fmt"

	"RangeLedger/internal/errs"
	fpmath "RangeLedger/internal/math"
)

// Leg is one (bin, quantity) step of a multi-bin trade.
type Leg struct {
	Bin      uint32
	Quantity uint64
}

// Quote is the priced outcome of a batch: the sum and each leg's share, in order.
type Quote struct {
	Total   uint64
	Amounts []uint64
}

// BatchBuyCost prices legs in order. Each leg sees the bins and total supply
// left behind by every earlier leg, including earlier legs on the same bin.
// bins is not modified.
func BatchBuyCost(bins []uint64, total uint64, legs []Leg) (Quote, error) {
	return walk(bins, total, legs, true)
}

// BatchSellRevenue is the sell-side counterpart of BatchBuyCost.
func BatchSellRevenue(bins []uint64, total uint64, legs []Leg) (Quote, error) {
	return walk(bins, total, legs, false)
}

func walk(bins []uint64, total uint64, legs []Leg, buy bool) (Quote, error) {
	for _, leg := range legs {
		if int(leg.Bin) >= len(bins) {
			return Quote{}, fmt.Errorf("bin %d: %w", leg.Bin, errs.ErrBinIndexOutOfRange)
		}
	}

	// Only touched bins diverge from the input.
	touched := make(map[uint32]uint64, len(legs))
	quote := Quote{Amounts: make([]uint64, len(legs))}

	for i, leg := range legs {
		x, ok := touched[leg.Bin]
		if !ok {
			x = bins[leg.Bin]
		}

		var (
			amount uint64
			err    error
		)
		if buy {
			amount, err = BuyCost(x, leg.Quantity, total)
			if err == nil {
				x, err = fpmath.Add(x, leg.Quantity)
			}
			if err == nil {
				total, err = fpmath.Add(total, leg.Quantity)
			}
		} else {
			amount, err = SellRevenue(x, leg.Quantity, total)
			if err == nil {
				x -= leg.Quantity
				total -= leg.Quantity
			}
		}
		if err != nil {
			return Quote{}, fmt.Errorf("leg %d (bin %d): %w", i, leg.Bin, err)
		}

		touched[leg.Bin] = x
		quote.Amounts[i] = amount
		if quote.Total, err = fpmath.Add(quote.Total, amount); err != nil {
			return Quote{}, err
		}
	}

	return quote, nil
}
