// internal/math/solver.go
package math

// RootFinderIterations bounds the bisection. 64 halvings resolve any interval
// inside the uint64 range to a single point.
const RootFinderIterations = 64

// MaxSatisfying returns the largest v in [lo, hi] for which fits(v) holds.
//
// fits must be monotone (true up to some boundary, false after it) and fits(lo)
// is assumed true. The search always uses the upper midpoint and stops after
// RootFinderIterations steps or when the interval collapses, whichever is first.
func MaxSatisfying(lo, hi uint64, fits func(uint64) bool) uint64 {
	for i := 0; i < RootFinderIterations && lo < hi; i++ {
		span := hi - lo
		mid := lo + span/2 + span&1
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
