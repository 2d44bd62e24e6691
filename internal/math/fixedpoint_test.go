package math_test

import (
	"errors"
	stdmath "math"
	"math/big"
	"testing"

	"RangeLedger/internal/errs"
	fpmath "RangeLedger/internal/math"
)

// ============================================================================
// Test: checked arithmetic
// ============================================================================

func TestAdd_Overflow(t *testing.T) {
	if _, err := fpmath.Add(stdmath.MaxUint64, 1); !errors.Is(err, errs.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	sum, err := fpmath.Add(stdmath.MaxUint64-1, 1)
	if err != nil || sum != stdmath.MaxUint64 {
		t.Errorf("got (%d, %v), want (%d, nil)", sum, err, uint64(stdmath.MaxUint64))
	}
}

func TestSub_Underflow(t *testing.T) {
	if _, err := fpmath.Sub(1, 2); !errors.Is(err, errs.ErrUnderflow) {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
	diff, err := fpmath.Sub(5, 5)
	if err != nil || diff != 0 {
		t.Errorf("got (%d, %v), want (0, nil)", diff, err)
	}
}

func TestMul_Overflow(t *testing.T) {
	if _, err := fpmath.Mul(1<<32, 1<<32); !errors.Is(err, errs.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	p, err := fpmath.Mul(1<<31, 1<<32)
	if err != nil || p != 1<<63 {
		t.Errorf("got (%d, %v), want (%d, nil)", p, err, uint64(1<<63))
	}
}

func TestDiv_ByZero(t *testing.T) {
	if _, err := fpmath.Div(1, 0); !errors.Is(err, errs.ErrDivisionByZero) {
		t.Errorf("got %v, want ErrDivisionByZero", err)
	}
}

// ============================================================================
// Test: MulDiv
// ============================================================================

func TestMulDiv_Rounding(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		mode    fpmath.RoundingMode
		want    uint64
	}{
		{"down", 7, 3, 2, fpmath.RoundDown, 10},
		{"up", 7, 3, 2, fpmath.RoundUp, 11},
		{"half even to even", 7, 3, 2, fpmath.RoundHalfEven, 10},
		{"half even up", 5, 3, 2, fpmath.RoundHalfEven, 8},
		{"half even below half", 10, 1, 3, fpmath.RoundHalfEven, 3},
		{"exact up", 6, 4, 3, fpmath.RoundUp, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.MulDiv(tt.a, tt.b, tt.d, tt.mode)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	got, err := fpmath.MulDiv(stdmath.MaxUint64, stdmath.MaxUint64, stdmath.MaxUint64, fpmath.RoundDown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != stdmath.MaxUint64 {
		t.Errorf("got %d, want %d", got, uint64(stdmath.MaxUint64))
	}
}

func TestMulDiv_ResultOverflow(t *testing.T) {
	if _, err := fpmath.MulDiv(stdmath.MaxUint64, 2, 1, fpmath.RoundDown); !errors.Is(err, errs.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	if _, err := fpmath.MulDiv(1, 1, 0, fpmath.RoundDown); !errors.Is(err, errs.ErrDivisionByZero) {
		t.Errorf("got %v, want ErrDivisionByZero", err)
	}
}

func TestMulWad(t *testing.T) {
	half := new(big.Int).SetUint64(fpmath.WAD / 2)
	got, err := fpmath.MulWad(101, half, fpmath.RoundDown)
	if err != nil || got != 50 {
		t.Errorf("got (%d, %v), want (50, nil)", got, err)
	}
	got, err = fpmath.MulWad(101, half, fpmath.RoundUp)
	if err != nil || got != 51 {
		t.Errorf("got (%d, %v), want (51, nil)", got, err)
	}
}

func TestRatioWad(t *testing.T) {
	got, err := fpmath.RatioWad(1, 4)
	if err != nil || got != fpmath.WAD/4 {
		t.Errorf("got (%d, %v), want (%d, nil)", got, err, fpmath.WAD/4)
	}
}
