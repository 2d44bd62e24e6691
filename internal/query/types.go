package query

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketResponse is a market row from the projections, amounts scaled to
// whole tokens.
type MarketResponse struct {
	MarketID          uint64            `json:"market_id"`
	TickSpacing       int64             `json:"tick_spacing"`
	MinTick           int64             `json:"min_tick"`
	MaxTick           int64             `json:"max_tick"`
	NumBins           int               `json:"num_bins"`
	Bins              []decimal.Decimal `json:"bins"`
	TotalSupply       decimal.Decimal   `json:"total_supply"`
	CollateralBalance decimal.Decimal   `json:"collateral_balance"`
	Active            bool              `json:"active"`
	Closed            bool              `json:"closed"`
	WinningBin        *uint32           `json:"winning_bin,omitempty"`
	OpenTs            int64             `json:"open_ts"`
	CloseTs           int64             `json:"close_ts"`
	LastSequence      int64             `json:"last_sequence"`
	AsOfSequence      int64             `json:"as_of_sequence"`
}

// PositionBin is one non-zero bin holding.
type PositionBin struct {
	Index  uint32          `json:"index"`
	Amount decimal.Decimal `json:"amount"`
}

// PositionResponse groups a user's holdings in one market.
type PositionResponse struct {
	UserID       uuid.UUID     `json:"user_id"`
	MarketID     uint64        `json:"market_id"`
	Bins         []PositionBin `json:"bins"`
	LastSequence int64         `json:"last_sequence"`
	AsOfSequence int64         `json:"as_of_sequence"`
}

// EventLogEntry is one committed command from the event log.
type EventLogEntry struct {
	Sequence       int64  `json:"sequence"`
	EventType      string `json:"event_type"`
	IdempotencyKey string `json:"idempotency_key"`
	Actor          string `json:"actor"`
	StateHash      string `json:"state_hash"`
	Timestamp      int64  `json:"timestamp"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string          `json:"journal_id"`
	BatchID       string          `json:"batch_id"`
	EventRef      string          `json:"event_ref"`
	Sequence      int64           `json:"sequence"`
	DebitAccount  string          `json:"debit_account"`
	CreditAccount string          `json:"credit_account"`
	AssetID       uint16          `json:"asset_id"`
	Amount        decimal.Decimal `json:"amount"`
	JournalType   string          `json:"journal_type"`
	Timestamp     int64           `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy         bool            `json:"is_healthy"`
	HashChainBreaks   []int64         `json:"hash_chain_breaks,omitempty"`
	VaultMismatches   []VaultMismatch `json:"vault_mismatches,omitempty"`
	LatestSequence    int64           `json:"latest_sequence"`
	WatermarkSequence int64           `json:"watermark_sequence"`
	ProjectionLag     int64           `json:"projection_lag"`
}

// VaultMismatch is a market whose projected collateral differs from the sum
// of its vault journals.
type VaultMismatch struct {
	MarketID  uint64          `json:"market_id"`
	Projected decimal.Decimal `json:"projected"`
	Journaled decimal.Decimal `json:"journaled"`
}
