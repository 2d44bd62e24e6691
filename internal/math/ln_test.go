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
// Test: LnRatio
// ============================================================================

func TestLnRatio_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want string
	}{
		{"equal", 7, 7, "0"},
		{"ln2", 2, 1, "693147180559945309"},
		{"ln2 scaled operands", 300_000_000_000, 150_000_000_000, "693147180559945309"},
		{"ln3", 3, 1, "1098612288668109691"},
		{"ln10", 10, 1, "2302585092994045684"},
		{"ln1.5", 150_000_000_000, 100_000_000_000, "405465108108164381"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.LnRatio(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLnRatio_Domain(t *testing.T) {
	if _, err := fpmath.LnRatio(1, 0); !errors.Is(err, errs.ErrDivisionByZero) {
		t.Errorf("got %v, want ErrDivisionByZero", err)
	}
	if _, err := fpmath.LnRatio(1, 2); !errors.Is(err, errs.ErrUnderflow) {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
}

func TestLnRatio_FullRange(t *testing.T) {
	// ln(2^64 - 1) is about 44.36 and does not fit a uint64 WAD
	got, err := fpmath.LnRatio(stdmath.MaxUint64, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String()[:4] != "4436" || len(got.String()) != 20 {
		t.Errorf("got %s, want ~44.36e18", got)
	}
}

func TestLnRatio_Bracket(t *testing.T) {
	pairs := [][2]uint64{{2, 1}, {3, 1}, {1_000_001, 1_000_000}, {stdmath.MaxUint64, 3}, {5, 4}}
	for _, p := range pairs {
		lower, err := fpmath.LnRatio(p[0], p[1])
		if err != nil {
			t.Fatalf("lower(%d,%d): %v", p[0], p[1], err)
		}
		upper, err := fpmath.LnRatioUpper(p[0], p[1])
		if err != nil {
			t.Fatalf("upper(%d,%d): %v", p[0], p[1], err)
		}
		diff := new(big.Int).Sub(upper, lower)
		if !diff.IsInt64() || diff.Int64() != fpmath.LnUpperMargin {
			t.Errorf("ln(%d/%d): upper %s, lower %s, diff %s", p[0], p[1], upper, lower, diff)
		}
	}
}

func TestLnRatioUpper_Equal(t *testing.T) {
	got, err := fpmath.LnRatioUpper(9, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

func TestLnRatio_Monotone(t *testing.T) {
	const b = 1_000_000_000
	prev, _ := fpmath.LnRatio(b, b)
	for a := uint64(b + 1); a < b+2000; a += 97 {
		got, err := fpmath.LnRatio(a, b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Cmp(prev) < 0 {
			t.Fatalf("ln(%d/%d) = %s decreased from %s", a, b, got, prev)
		}
		prev = got
	}
}
