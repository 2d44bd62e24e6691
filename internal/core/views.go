package core

import (
	"fmt"

	"RangeLedger/internal/errs"
	"RangeLedger/internal/pricing"
	"RangeLedger/internal/state"

	"github.com/google/uuid"
)

// MaxBinRangeQuery caps QueryBinRange.
const MaxBinRangeQuery = 20

// BinQuote is one row of QueryBinRange.
type BinQuote struct {
	Index    uint32 `json:"index"`
	Tick     int64  `json:"tick"`
	Quantity uint64 `json:"quantity"`
	Price    uint64 `json:"price_wad"` // marginal price x/T, WAD scaled
}

// Views never mutate state and never touch the hash chain.

func (c *DeterministicCore) tradableMarket(id uint64) (*state.Market, error) {
	m, err := c.store.Market(id)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureTradable(); err != nil {
		return nil, err
	}
	return m, nil
}

// CalculateBinCost prices buying q tokens of one bin.
func (c *DeterministicCore) CalculateBinCost(marketID uint64, bin uint32, q uint64) (uint64, error) {
	m, err := c.tradableMarket(marketID)
	if err != nil {
		return 0, err
	}
	if err := m.CheckBin(bin); err != nil {
		return 0, err
	}
	return pricing.BuyCost(m.Bins[bin], q, m.TotalSupply)
}

// CalculateBinSellCost prices selling q tokens of one bin. No lifecycle check.
func (c *DeterministicCore) CalculateBinSellCost(marketID uint64, bin uint32, q uint64) (uint64, error) {
	m, err := c.store.Market(marketID)
	if err != nil {
		return 0, err
	}
	if err := m.CheckBin(bin); err != nil {
		return 0, err
	}
	return pricing.SellRevenue(m.Bins[bin], q, m.TotalSupply)
}

// CalculateXForBin returns the most tokens of one bin that budget buys.
func (c *DeterministicCore) CalculateXForBin(marketID uint64, bin uint32, budget uint64) (uint64, error) {
	m, err := c.tradableMarket(marketID)
	if err != nil {
		return 0, err
	}
	if err := m.CheckBin(bin); err != nil {
		return 0, err
	}
	return pricing.MaxBuyQuantity(m.Bins[bin], m.TotalSupply, budget)
}

// CalculateBatchCost prices a multi-bin buy with supply threaded through the legs.
func (c *DeterministicCore) CalculateBatchCost(marketID uint64, bins []uint32, amounts []uint64) (pricing.Quote, error) {
	m, err := c.tradableMarket(marketID)
	if err != nil {
		return pricing.Quote{}, err
	}
	legs, _, err := legsFor(m, bins, amounts)
	if err != nil {
		return pricing.Quote{}, err
	}
	return pricing.BatchBuyCost(m.Bins, m.TotalSupply, legs)
}

// CalculateBatchSellCost prices a multi-bin sell. No lifecycle check.
func (c *DeterministicCore) CalculateBatchSellCost(marketID uint64, bins []uint32, amounts []uint64) (pricing.Quote, error) {
	m, err := c.store.Market(marketID)
	if err != nil {
		return pricing.Quote{}, err
	}
	legs, _, err := legsFor(m, bins, amounts)
	if err != nil {
		return pricing.Quote{}, err
	}
	return pricing.BatchSellRevenue(m.Bins, m.TotalSupply, legs)
}

// CalculateXForBins returns the largest uniform per-bin quantity budget buys
// across bins.
func (c *DeterministicCore) CalculateXForBins(marketID uint64, bins []uint32, budget uint64) (uint64, error) {
	m, err := c.tradableMarket(marketID)
	if err != nil {
		return 0, err
	}
	return pricing.MaxUniformBatchQuantity(m.Bins, bins, m.TotalSupply, budget)
}

// QueryBinRange returns quantity and marginal price for bins [start, end].
func (c *DeterministicCore) QueryBinRange(marketID uint64, start, end uint32) ([]BinQuote, error) {
	m, err := c.store.Market(marketID)
	if err != nil {
		return nil, err
	}
	if end < start {
		return nil, fmt.Errorf("[%d, %d]: %w", start, end, errs.ErrInvalidRange)
	}
	if uint64(end)-uint64(start)+1 > MaxBinRangeQuery {
		return nil, fmt.Errorf("%d bins, max %d: %w", uint64(end)-uint64(start)+1, MaxBinRangeQuery, errs.ErrRangeTooLarge)
	}
	if err := m.CheckBin(end); err != nil {
		return nil, err
	}

	out := make([]BinQuote, 0, end-start+1)
	for idx := start; idx <= end; idx++ {
		price, err := pricing.MarginalPrice(m.Bins[idx], m.TotalSupply)
		if err != nil {
			return nil, err
		}
		out = append(out, BinQuote{
			Index:    idx,
			Tick:     m.BinToTick(idx),
			Quantity: m.Bins[idx],
			Price:    price,
		})
	}
	return out, nil
}

// GetMarket returns a copy of the market.
func (c *DeterministicCore) GetMarket(marketID uint64) (*state.Market, error) {
	m, err := c.store.Market(marketID)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// ListMarkets returns copies of every market ordered by id.
func (c *DeterministicCore) ListMarkets() []*state.Market {
	markets := c.store.Markets()
	out := make([]*state.Market, len(markets))
	for i, m := range markets {
		out[i] = m.Clone()
	}
	return out
}

// GetPosition returns a copy of the user's position, empty if none exists.
func (c *DeterministicCore) GetPosition(userID uuid.UUID, marketID uint64) (*state.Position, error) {
	if _, err := c.store.Market(marketID); err != nil {
		return nil, err
	}
	if p := c.store.Position(userID, marketID); p != nil {
		return p.Clone(), nil
	}
	return state.NewPosition(userID, marketID), nil
}

// GetRegistry returns a copy of the program registry.
func (c *DeterministicCore) GetRegistry() *state.Registry {
	return c.store.Registry().Clone()
}
