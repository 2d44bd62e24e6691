package core

import (
	"fmt"

	"RangeLedger/internal/errs"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/state"
)

// CloseOrderValidator enforces that markets close in ascending id order with
// no gaps. The expected id lives in the registry, so the validator itself
// holds no state and survives snapshot restore unchanged.
type CloseOrderValidator struct {
	metrics *observability.Metrics
}

func NewCloseOrderValidator(metrics *observability.Metrics) *CloseOrderValidator {
	return &CloseOrderValidator{metrics: metrics}
}

// Validate accepts marketID only if it is LastClosedMarket+1.
func (v *CloseOrderValidator) Validate(reg *state.Registry, marketID uint64) error {
	expected := reg.NextCloseID()

	if marketID == expected {
		return nil
	}

	if marketID < expected {
		// Stale: already behind the closing cursor
		if v.metrics != nil {
			v.metrics.CloseOrderStale.Inc()
		}
		return fmt.Errorf("market %d is behind the close cursor, expected %d: %w",
			marketID, expected, errs.ErrOutOfOrderClose)
	}

	// marketID > expected - gap detected
	if v.metrics != nil {
		v.metrics.CloseOrderGap.Inc()
	}
	return fmt.Errorf("close gap: expected market %d, got %d: %w",
		expected, marketID, errs.ErrOutOfOrderClose)
}

// Pending lists the markets still waiting to close, in the order they must
// be closed. Operators drive sequential closing by walking this list.
func (v *CloseOrderValidator) Pending(store *state.Store) []uint64 {
	reg := store.Registry()
	var out []uint64
	for id := reg.NextCloseID(); id < reg.MarketCount; id++ {
		out = append(out, id)
	}
	return out
}
