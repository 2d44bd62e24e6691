package math_test

import (
	stdmath "math"
	"testing"

	fpmath "RangeLedger/internal/math"
)

func TestMaxSatisfying_Boundary(t *testing.T) {
	got := fpmath.MaxSatisfying(0, 1000, func(v uint64) bool { return v*v <= 1000 })
	if got != 31 {
		t.Errorf("got %d, want 31", got)
	}
}

func TestMaxSatisfying_FullRange(t *testing.T) {
	const limit = stdmath.MaxUint64 - 5
	got := fpmath.MaxSatisfying(0, stdmath.MaxUint64, func(v uint64) bool { return v <= limit })
	if got != limit {
		t.Errorf("got %d, want %d", got, uint64(limit))
	}

	got = fpmath.MaxSatisfying(0, stdmath.MaxUint64, func(uint64) bool { return true })
	if got != stdmath.MaxUint64 {
		t.Errorf("got %d, want %d", got, uint64(stdmath.MaxUint64))
	}
}

func TestMaxSatisfying_OnlyLow(t *testing.T) {
	got := fpmath.MaxSatisfying(17, stdmath.MaxUint64, func(v uint64) bool { return v == 17 })
	if got != 17 {
		t.Errorf("got %d, want 17", got)
	}
}

func TestMaxSatisfying_Degenerate(t *testing.T) {
	calls := 0
	got := fpmath.MaxSatisfying(5, 5, func(uint64) bool { calls++; return true })
	if got != 5 || calls != 0 {
		t.Errorf("got (%d, %d calls), want (5, 0 calls)", got, calls)
	}
}
