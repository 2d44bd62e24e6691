package pricing_test

import (
	"errors"
	"testing"

	"RangeLedger/internal/errs"
	"RangeLedger/internal/pricing"
)

func TestMaxBuyQuantity_IsExactBoundary(t *testing.T) {
	tests := []struct {
		name           string
		x, total, cash uint64
	}{
		{"untouched bin", 0, 100 * unit, 9_453_489_190},
		{"partial bin", 30 * unit, 100 * unit, 7 * unit},
		{"small budget", 1, 1000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := pricing.MaxBuyQuantity(tt.x, tt.total, tt.cash)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			cost, err := pricing.BuyCost(tt.x, q, tt.total)
			if err != nil {
				t.Fatalf("cost(q): %v", err)
			}
			if cost > tt.cash {
				t.Errorf("cost(%d) = %d exceeds budget %d", q, cost, tt.cash)
			}
			next, err := pricing.BuyCost(tt.x, q+1, tt.total)
			if err == nil && next <= tt.cash {
				t.Errorf("cost(%d) = %d still fits budget %d", q+1, next, tt.cash)
			}
		})
	}
}

func TestMaxBuyQuantity_OneToOne(t *testing.T) {
	q, err := pricing.MaxBuyQuantity(0, 0, 42)
	if err != nil || q != 42 {
		t.Errorf("empty market: got (%d, %v), want (42, nil)", q, err)
	}
	q, err = pricing.MaxBuyQuantity(9, 9, 42)
	if err != nil || q != 42 {
		t.Errorf("full bin: got (%d, %v), want (42, nil)", q, err)
	}
}

func TestMaxBuyQuantity_UntouchedBinBuysMore(t *testing.T) {
	q, err := pricing.MaxBuyQuantity(0, 100*unit, 9_453_489_190)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q < 50*unit {
		t.Errorf("got %d, want >= %d", q, 50*unit)
	}
}

func TestMaxUniformBatchQuantity_Boundary(t *testing.T) {
	bins := []uint64{10 * unit, 0, 5 * unit}
	indices := []uint32{0, 1, 2}
	total := 15 * unit
	budget := 20 * unit

	q, err := pricing.MaxUniformBatchQuantity(bins, indices, total, budget)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	legs := func(n uint64) []pricing.Leg {
		return []pricing.Leg{{0, n}, {1, n}, {2, n}}
	}
	quote, err := pricing.BatchBuyCost(bins, total, legs(q))
	if err != nil || quote.Total > budget {
		t.Errorf("q=%d: total %d, err %v", q, quote.Total, err)
	}
	quote, err = pricing.BatchBuyCost(bins, total, legs(q+1))
	if err == nil && quote.Total <= budget {
		t.Errorf("q=%d still fits: total %d", q+1, quote.Total)
	}
}

func TestMaxUniformBatchQuantity_Errors(t *testing.T) {
	if _, err := pricing.MaxUniformBatchQuantity([]uint64{0}, nil, 0, 10); !errors.Is(err, errs.ErrNoTokensToBuy) {
		t.Errorf("got %v, want ErrNoTokensToBuy", err)
	}
	if _, err := pricing.MaxUniformBatchQuantity([]uint64{0}, []uint32{1}, 0, 10); !errors.Is(err, errs.ErrBinIndexOutOfRange) {
		t.Errorf("got %v, want ErrBinIndexOutOfRange", err)
	}
}

func TestMaxUniformBatchQuantityScalar_MatchesVector(t *testing.T) {
	scalar, err := pricing.MaxUniformBatchQuantityScalar(2*unit, 3, 10*unit, 4*unit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vector, err := pricing.MaxUniformBatchQuantity(
		[]uint64{2 * unit, 2 * unit, 2 * unit, 4 * unit}, []uint32{0, 1, 2}, 10*unit, 4*unit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scalar != vector {
		t.Errorf("got %d, want %d", scalar, vector)
	}
}

func TestMaxUniformBatchQuantityScalar_HeldExceedsSupply(t *testing.T) {
	if _, err := pricing.MaxUniformBatchQuantityScalar(5, 3, 10, 1); !errors.Is(err, errs.ErrInvalidBinState) {
		t.Errorf("got %v, want ErrInvalidBinState", err)
	}
}
