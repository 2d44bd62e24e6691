// internal/state/market.go
package state

import (
	"fmt"

	"RangeLedger/internal/errs"
)

// MaxBinsPerMarket caps the dense bin array of a single market.
const MaxBinsPerMarket = 65536

// MarketStatus is the lifecycle stage derived from the Active/Closed flags.
type MarketStatus int32

const (
	MarketStatusActive MarketStatus = iota
	MarketStatusInactive
	MarketStatusClosed
)

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusActive:
		return "Active"
	case MarketStatusInactive:
		return "Inactive"
	case MarketStatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates lifecycle transitions. Closed is terminal.
func (s MarketStatus) CanTransitionTo(next MarketStatus) bool {
	validTransitions := map[MarketStatus][]MarketStatus{
		MarketStatusActive: {
			MarketStatusActive, // re-activation is a no-op
			MarketStatusInactive,
			MarketStatusClosed,
		},
		MarketStatusInactive: {
			MarketStatusActive,
			MarketStatusInactive,
			MarketStatusClosed,
		},
	}

	for _, allowed := range validTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// Market is one range-bet market: a tick axis cut into dense bins.
// Bin i covers tick MinTick + i*TickSpacing.
type Market struct {
	ID                uint64   `json:"id"`
	TickSpacing       int64    `json:"tick_spacing"`
	MinTick           int64    `json:"min_tick"`
	MaxTick           int64    `json:"max_tick"`
	Bins              []uint64 `json:"bins"`
	TotalSupply       uint64   `json:"total_supply"`
	CollateralBalance uint64   `json:"collateral_balance"`
	Active            bool     `json:"active"`
	Closed            bool     `json:"closed"`
	WinningBin        *uint32  `json:"winning_bin,omitempty"`
	OpenTs            int64    `json:"open_ts"`
	CloseTs           int64    `json:"close_ts"`
}

// NewMarket validates the tick geometry and returns an active, empty market.
func NewMarket(id uint64, tickSpacing, minTick, maxTick, openTs, closeTs int64) (*Market, error) {
	if tickSpacing <= 0 {
		return nil, errs.ErrInvalidTickSpacing
	}
	if minTick%tickSpacing != 0 {
		return nil, errs.ErrMinTickNotMultiple
	}
	if maxTick%tickSpacing != 0 {
		return nil, errs.ErrMaxTickNotMultiple
	}
	if minTick >= maxTick {
		return nil, errs.ErrMinTickGreaterThanMax
	}

	// max > min, so the unsigned difference is exact even across the int64 range
	span := uint64(maxTick) - uint64(minTick)
	count := span/uint64(tickSpacing) + 1
	if count > MaxBinsPerMarket {
		return nil, fmt.Errorf("%d bins: %w", count, errs.ErrTooManyBins)
	}

	return &Market{
		ID:          id,
		TickSpacing: tickSpacing,
		MinTick:     minTick,
		MaxTick:     maxTick,
		Bins:        make([]uint64, count),
		Active:      true,
		OpenTs:      openTs,
		CloseTs:     closeTs,
	}, nil
}

func (m *Market) Status() MarketStatus {
	switch {
	case m.Closed:
		return MarketStatusClosed
	case m.Active:
		return MarketStatusActive
	default:
		return MarketStatusInactive
	}
}

func (m *Market) NumBins() int {
	return len(m.Bins)
}

// CheckBin fails with ErrBinIndexOutOfRange unless idx addresses a bin.
func (m *Market) CheckBin(idx uint32) error {
	if int(idx) >= len(m.Bins) {
		return fmt.Errorf("bin %d of %d: %w", idx, len(m.Bins), errs.ErrBinIndexOutOfRange)
	}
	return nil
}

// TickToBin maps a tick on the market's grid to its bin index.
func (m *Market) TickToBin(tick int64) (uint32, error) {
	if tick < m.MinTick || tick > m.MaxTick || (tick-m.MinTick)%m.TickSpacing != 0 {
		return 0, fmt.Errorf("tick %d: %w", tick, errs.ErrBinIndexOutOfRange)
	}
	return uint32((uint64(tick) - uint64(m.MinTick)) / uint64(m.TickSpacing)), nil
}

// BinToTick returns the lower tick of bin idx.
func (m *Market) BinToTick(idx uint32) int64 {
	return m.MinTick + int64(idx)*m.TickSpacing
}

// EnsureTradable rejects trades on closed or paused markets.
func (m *Market) EnsureTradable() error {
	if m.Closed {
		return errs.ErrMarketClosed
	}
	if !m.Active {
		return errs.ErrMarketNotActive
	}
	return nil
}

// SumBins returns the live sum of all bins; ok is false on overflow.
func (m *Market) SumBins() (sum uint64, ok bool) {
	for _, b := range m.Bins {
		next := sum + b
		if next < sum {
			return 0, false
		}
		sum = next
	}
	return sum, true
}

func (m *Market) Clone() *Market {
	c := *m
	c.Bins = append([]uint64(nil), m.Bins...)
	if m.WinningBin != nil {
		w := *m.WinningBin
		c.WinningBin = &w
	}
	return &c
}

// CanonicalBytes returns deterministic serialization for hashing
func (m *Market) CanonicalBytes() []byte {
	buf := make([]byte, 0, 80+8*len(m.Bins))

	buf = appendUint64LE(buf, m.ID)
	buf = appendUint64LE(buf, uint64(m.TickSpacing))
	buf = appendUint64LE(buf, uint64(m.MinTick))
	buf = appendUint64LE(buf, uint64(m.MaxTick))
	buf = appendUint64LE(buf, m.TotalSupply)
	buf = appendUint64LE(buf, m.CollateralBalance)
	buf = append(buf, boolByte(m.Active), boolByte(m.Closed))

	// winning bin: presence byte + value
	if m.WinningBin != nil {
		buf = append(buf, 1)
		buf = appendUint64LE(buf, uint64(*m.WinningBin))
	} else {
		buf = append(buf, 0)
	}

	buf = appendUint64LE(buf, uint64(m.OpenTs))
	buf = appendUint64LE(buf, uint64(m.CloseTs))

	buf = appendUint64LE(buf, uint64(len(m.Bins)))
	for _, b := range m.Bins {
		buf = appendUint64LE(buf, b)
	}
	return buf
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
