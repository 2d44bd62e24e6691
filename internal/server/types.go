package server

import (
	"encoding/json"

	"RangeLedger/internal/core"
	"RangeLedger/internal/event"
	"RangeLedger/internal/query"
	"RangeLedger/internal/state"
)

// --- Commands ---

// SubmitCommandRequest carries one JSON command. EventType accepts either the
// PascalCase name or the snake_case subject token.
type SubmitCommandRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type SubmitCommandResponse struct {
	Sequence  int64         `json:"sequence"`
	StateHash string        `json:"state_hash"`
	Outcome   string        `json:"outcome"`
	Event     event.Outcome `json:"event"`
}

// --- Live views (served by the core) ---

type MarketRequest struct {
	MarketID uint64 `json:"market_id"`
}

type MarketResponse struct {
	Market *state.Market `json:"market"`
	Status string        `json:"status"`
}

type PositionRequest struct {
	UserID   string `json:"user_id"`
	MarketID uint64 `json:"market_id"`
}

type PositionResponse struct {
	Position *state.Position `json:"position"`
}

type BinRangeRequest struct {
	MarketID uint64 `json:"market_id"`
	Start    uint32 `json:"start"`
	End      uint32 `json:"end"`
}

type BinRangeResponse struct {
	Bins []core.BinQuote `json:"bins"`
}

// Quote kinds.
const (
	QuoteBuy    = "buy"
	QuoteSell   = "sell"
	QuoteMaxBuy = "max_buy"
)

// QuoteRequest prices a trade without applying it. Buy and sell use Bins and
// Amounts; max_buy uses Bins and Budget and returns the uniform quantity.
type QuoteRequest struct {
	MarketID uint64   `json:"market_id"`
	Kind     string   `json:"kind"`
	Bins     []uint32 `json:"bins"`
	Amounts  []uint64 `json:"amounts,omitempty"`
	Budget   uint64   `json:"budget,omitempty"`
}

type QuoteResponse struct {
	Total    uint64   `json:"total"`
	Amounts  []uint64 `json:"amounts,omitempty"`
	Quantity uint64   `json:"quantity,omitempty"`
}

type RegistryRequest struct{}

type RegistryResponse struct {
	Registry      *state.Registry `json:"registry"`
	Sequence      int64           `json:"sequence"`
	StateHash     string          `json:"state_hash"`
	PendingCloses []uint64        `json:"pending_closes"`
}

// --- Projection reads ---

type ListMarketsRequest struct {
	PageSize int     `json:"page_size"`
	AfterID  *uint64 `json:"after_id,omitempty"`
}

type ListMarketsResponse struct {
	Markets []query.MarketResponse `json:"markets"`
}

type ListPositionsRequest struct {
	UserID   string  `json:"user_id"`
	MarketID *uint64 `json:"market_id,omitempty"`
}

type ListPositionsResponse struct {
	Positions []query.PositionResponse `json:"positions"`
}

type ListJournalsRequest struct {
	UserID         string `json:"user_id"`
	PageSize       int    `json:"page_size"`
	BeforeSequence *int64 `json:"before_sequence,omitempty"`
}

type ListJournalsResponse struct {
	Journals []query.JournalHistoryEntry `json:"journals"`
}

type ListMarketEventsRequest struct {
	MarketID       uint64 `json:"market_id"`
	PageSize       int    `json:"page_size"`
	BeforeSequence *int64 `json:"before_sequence,omitempty"`
}

type ListMarketEventsResponse struct {
	Events []query.EventLogEntry `json:"events"`
}

// --- Admin ---

type EmptyRequest struct{}

type VerifyIntegrityResponse struct {
	Report *query.IntegrityReport `json:"report"`
}

type EventLogInfoResponse struct {
	LastSequence int64 `json:"last_sequence"`
}

type TakeSnapshotResponse struct {
	Sequence  int64 `json:"sequence"`
	SizeBytes int   `json:"size_bytes"`
}

type RebuildProjectionsResponse struct {
	Sequence int64 `json:"sequence"`
}
