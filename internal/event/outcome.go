package event

import "github.com/google/uuid"

// Outcome is the externally visible result of a committed command. Outcomes
// are published as JSON on the outbound event stream.
type Outcome interface {
	OutcomeName() string
}

type ProgramInitialized struct {
	Owner uuid.UUID `json:"owner"`
}

type MarketCreated struct {
	MarketID    uint64 `json:"market_id"`
	TickSpacing int64  `json:"tick_spacing"`
	MinTick     int64  `json:"min_tick"`
	MaxTick     int64  `json:"max_tick"`
	NumBins     int    `json:"num_bins"`
	OpenTs      int64  `json:"open_ts"`
	CloseTs     int64  `json:"close_ts"`
}

type MarketActivationChanged struct {
	MarketID uint64 `json:"market_id"`
	Active   bool   `json:"active"`
}

type TokensBought struct {
	MarketID  uint64    `json:"market_id"`
	User      uuid.UUID `json:"user"`
	Bins      []uint32  `json:"bins"`
	Amounts   []uint64  `json:"amounts"`
	Costs     []uint64  `json:"costs"`
	TotalCost uint64    `json:"total_cost"`
}

type TokensSold struct {
	MarketID     uint64    `json:"market_id"`
	User         uuid.UUID `json:"user"`
	Bins         []uint32  `json:"bins"`
	Amounts      []uint64  `json:"amounts"`
	Revenues     []uint64  `json:"revenues"`
	TotalRevenue uint64    `json:"total_revenue"`
}

type PositionTransferred struct {
	MarketID uint64    `json:"market_id"`
	From     uuid.UUID `json:"from"`
	To       uuid.UUID `json:"to"`
	Bins     []uint32  `json:"bins"`
	Amounts  []uint64  `json:"amounts"`
}

type MarketClosed struct {
	MarketID   uint64 `json:"market_id"`
	WinningBin uint32 `json:"winning_bin"`
	ClosedAt   int64  `json:"closed_at"`
}

type RewardClaimed struct {
	MarketID   uint64    `json:"market_id"`
	User       uuid.UUID `json:"user"`
	WinningBin uint32    `json:"winning_bin"`
	Tokens     uint64    `json:"tokens"`
	Reward     uint64    `json:"reward"`
}

type CollateralWithdrawn struct {
	MarketID uint64    `json:"market_id"`
	Owner    uuid.UUID `json:"owner"`
	Amount   uint64    `json:"amount"`
}

func (ProgramInitialized) OutcomeName() string      { return "ProgramInitialized" }
func (MarketCreated) OutcomeName() string           { return "MarketCreated" }
func (MarketActivationChanged) OutcomeName() string { return "MarketActivationChanged" }
func (TokensBought) OutcomeName() string            { return "TokensBought" }
func (TokensSold) OutcomeName() string              { return "TokensSold" }
func (PositionTransferred) OutcomeName() string     { return "PositionTransferred" }
func (MarketClosed) OutcomeName() string            { return "MarketClosed" }
func (RewardClaimed) OutcomeName() string           { return "RewardClaimed" }
func (CollateralWithdrawn) OutcomeName() string     { return "CollateralWithdrawn" }
