package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for command payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeInitializeProgram
	EventTypeCreateMarket
	EventTypeActivateMarket
	EventTypeBuyTokens
	EventTypeSellTokens
	EventTypeTransferPosition
	EventTypeCloseMarket
	EventTypeClaimReward
	EventTypeWithdrawCollateral
)

// AllEventTypes lists every accepted command, in discriminator order.
var AllEventTypes = []EventType{
	EventTypeInitializeProgram,
	EventTypeCreateMarket,
	EventTypeActivateMarket,
	EventTypeBuyTokens,
	EventTypeSellTokens,
	EventTypeTransferPosition,
	EventTypeCloseMarket,
	EventTypeClaimReward,
	EventTypeWithdrawCollateral,
}

// EventEnvelope wraps every committed command in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Market context (nil for program-level commands)
	MarketID *uint64

	// Command timestamp (NOT wall-clock)
	Timestamp time.Time

	// Signer of the command
	Actor uuid.UUID

	// JSON-encoded command
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface every command implements
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context (nil for program-level commands)
	MarketID() *uint64

	// Actor returns the signer
	Actor() uuid.UUID

	// OccurredAt returns the command timestamp carried by the caller
	OccurredAt() time.Time
}

// Header carries the fields shared by all commands.
type Header struct {
	CommandID uuid.UUID // Idempotency key
	Signer    uuid.UUID
	Timestamp time.Time // Versioned input timestamp (NOT wall-clock)
}

func (h Header) IdempotencyKey() string {
	return h.CommandID.String()
}

func (h Header) Actor() uuid.UUID {
	return h.Signer
}

func (h Header) OccurredAt() time.Time {
	return h.Timestamp
}

func (et EventType) String() string {
	switch et {
	case EventTypeInitializeProgram:
		return "InitializeProgram"
	case EventTypeCreateMarket:
		return "CreateMarket"
	case EventTypeActivateMarket:
		return "ActivateMarket"
	case EventTypeBuyTokens:
		return "BuyTokens"
	case EventTypeSellTokens:
		return "SellTokens"
	case EventTypeTransferPosition:
		return "TransferPosition"
	case EventTypeCloseMarket:
		return "CloseMarket"
	case EventTypeClaimReward:
		return "ClaimReward"
	case EventTypeWithdrawCollateral:
		return "WithdrawCollateral"
	default:
		return "Unknown"
	}
}

// Token is the snake_case name used in subjects and URLs, e.g. "buy_tokens".
func (et EventType) Token() string {
	switch et {
	case EventTypeInitializeProgram:
		return "initialize_program"
	case EventTypeCreateMarket:
		return "create_market"
	case EventTypeActivateMarket:
		return "activate_market"
	case EventTypeBuyTokens:
		return "buy_tokens"
	case EventTypeSellTokens:
		return "sell_tokens"
	case EventTypeTransferPosition:
		return "transfer_position"
	case EventTypeCloseMarket:
		return "close_market"
	case EventTypeClaimReward:
		return "claim_reward"
	case EventTypeWithdrawCollateral:
		return "withdraw_collateral"
	default:
		return "unknown"
	}
}

// ParseEventType accepts either the CamelCase name or the snake_case token.
func ParseEventType(s string) (EventType, bool) {
	for _, et := range AllEventTypes {
		if s == et.String() || s == et.Token() {
			return et, true
		}
	}
	return EventTypeUnknown, false
}
