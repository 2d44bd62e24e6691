package event

import (
	"encoding/json"
	"fmt"
	"time"

	"RangeLedger/internal/errs"

	"github.com/google/uuid"
)

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. The same encoding is
// stored as the envelope payload, so replay decodes exactly what was applied.

type headerJSON struct {
	CommandID   uuid.UUID `json:"command_id"`
	Signer      uuid.UUID `json:"signer"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (h headerJSON) header() (Header, error) {
	if h.CommandID == uuid.Nil {
		return Header{}, fmt.Errorf("command_id is required: %w", errs.ErrInvalidCommand)
	}
	if h.Signer == uuid.Nil {
		return Header{}, fmt.Errorf("signer is required: %w", errs.ErrInvalidCommand)
	}
	return Header{
		CommandID: h.CommandID,
		Signer:    h.Signer,
		Timestamp: time.UnixMicro(h.TimestampUs).UTC(),
	}, nil
}

func toHeaderJSON(h Header) headerJSON {
	return headerJSON{
		CommandID:   h.CommandID,
		Signer:      h.Signer,
		TimestampUs: h.Timestamp.UnixMicro(),
	}
}

type initializeProgramJSON struct {
	headerJSON
}

type createMarketJSON struct {
	headerJSON
	TickSpacing int64 `json:"tick_spacing"`
	MinTick     int64 `json:"min_tick"`
	MaxTick     int64 `json:"max_tick"`
	CloseTs     int64 `json:"close_ts"`
}

type activateMarketJSON struct {
	headerJSON
	Market uint64 `json:"market_id"`
	Active bool   `json:"active"`
}

type tradeJSON struct {
	headerJSON
	Market        uint64    `json:"market_id"`
	Bins          []uint32  `json:"bins"`
	Amounts       []uint64  `json:"amounts"`
	MaxCollateral uint64    `json:"max_collateral,omitempty"`
	MinCollateral uint64    `json:"min_collateral,omitempty"`
	Recipient     uuid.UUID `json:"recipient,omitempty"`
}

type closeMarketJSON struct {
	headerJSON
	Market     uint64 `json:"market_id"`
	WinningBin uint32 `json:"winning_bin"`
}

type marketOnlyJSON struct {
	headerJSON
	Market uint64 `json:"market_id"`
}

// Decode converts a JSON command of the given type into a typed Event.
// eventType accepts either "BuyTokens" or "buy_tokens".
func Decode(eventType string, data []byte) (Event, error) {
	et, ok := ParseEventType(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown event type %q: %w", eventType, errs.ErrInvalidCommand)
	}

	switch et {
	case EventTypeInitializeProgram:
		var j initializeProgramJSON
		if err := unmarshal(et, data, &j); err != nil {
			return nil, err
		}
		h, err := j.header()
		if err != nil {
			return nil, err
		}
		return &InitializeProgram{Header: h}, nil

	case EventTypeCreateMarket:
		var j createMarketJSON
		if err := unmarshal(et, data, &j); err != nil {
			return nil, err
		}
		h, err := j.header()
		if err != nil {
			return nil, err
		}
		return &CreateMarket{
			Header:      h,
			TickSpacing: j.TickSpacing,
			MinTick:     j.MinTick,
			MaxTick:     j.MaxTick,
			CloseTs:     j.CloseTs,
		}, nil

	case EventTypeActivateMarket:
		var j activateMarketJSON
		if err := unmarshal(et, data, &j); err != nil {
			return nil, err
		}
		h, err := j.header()
		if err != nil {
			return nil, err
		}
		return &ActivateMarket{Header: h, Market: j.Market, Active: j.Active}, nil

	case EventTypeBuyTokens, EventTypeSellTokens, EventTypeTransferPosition:
		var j tradeJSON
		if err := unmarshal(et, data, &j); err != nil {
			return nil, err
		}
		h, err := j.header()
		if err != nil {
			return nil, err
		}
		switch et {
		case EventTypeBuyTokens:
			return &BuyTokens{Header: h, Market: j.Market, Bins: j.Bins, Amounts: j.Amounts, MaxCollateral: j.MaxCollateral}, nil
		case EventTypeSellTokens:
			return &SellTokens{Header: h, Market: j.Market, Bins: j.Bins, Amounts: j.Amounts, MinCollateral: j.MinCollateral}, nil
		default:
			if j.Recipient == uuid.Nil {
				return nil, fmt.Errorf("recipient is required: %w", errs.ErrInvalidCommand)
			}
			return &TransferPosition{Header: h, Market: j.Market, Bins: j.Bins, Amounts: j.Amounts, Recipient: j.Recipient}, nil
		}

	case EventTypeCloseMarket:
		var j closeMarketJSON
		if err := unmarshal(et, data, &j); err != nil {
			return nil, err
		}
		h, err := j.header()
		if err != nil {
			return nil, err
		}
		return &CloseMarket{Header: h, Market: j.Market, WinningBin: j.WinningBin}, nil

	case EventTypeClaimReward, EventTypeWithdrawCollateral:
		var j marketOnlyJSON
		if err := unmarshal(et, data, &j); err != nil {
			return nil, err
		}
		h, err := j.header()
		if err != nil {
			return nil, err
		}
		if et == EventTypeClaimReward {
			return &ClaimReward{Header: h, Market: j.Market}, nil
		}
		return &WithdrawCollateral{Header: h, Market: j.Market}, nil
	}

	return nil, fmt.Errorf("unhandled event type %s: %w", et, errs.ErrInvalidCommand)
}

func unmarshal(et EventType, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %v: %w", et, err, errs.ErrInvalidCommand)
	}
	return nil
}

// Validate checks the header fields every command must carry.
func Validate(evt Event) error {
	if evt.IdempotencyKey() == uuid.Nil.String() {
		return fmt.Errorf("command_id is required: %w", errs.ErrInvalidCommand)
	}
	if evt.Actor() == uuid.Nil {
		return fmt.Errorf("signer is required: %w", errs.ErrInvalidCommand)
	}
	return nil
}

// Encode is the inverse of Decode.
func Encode(evt Event) ([]byte, error) {
	var v interface{}

	switch e := evt.(type) {
	case *InitializeProgram:
		v = initializeProgramJSON{headerJSON: toHeaderJSON(e.Header)}
	case *CreateMarket:
		v = createMarketJSON{
			headerJSON:  toHeaderJSON(e.Header),
			TickSpacing: e.TickSpacing,
			MinTick:     e.MinTick,
			MaxTick:     e.MaxTick,
			CloseTs:     e.CloseTs,
		}
	case *ActivateMarket:
		v = activateMarketJSON{headerJSON: toHeaderJSON(e.Header), Market: e.Market, Active: e.Active}
	case *BuyTokens:
		v = tradeJSON{headerJSON: toHeaderJSON(e.Header), Market: e.Market, Bins: e.Bins, Amounts: e.Amounts, MaxCollateral: e.MaxCollateral}
	case *SellTokens:
		v = tradeJSON{headerJSON: toHeaderJSON(e.Header), Market: e.Market, Bins: e.Bins, Amounts: e.Amounts, MinCollateral: e.MinCollateral}
	case *TransferPosition:
		v = tradeJSON{headerJSON: toHeaderJSON(e.Header), Market: e.Market, Bins: e.Bins, Amounts: e.Amounts, Recipient: e.Recipient}
	case *CloseMarket:
		v = closeMarketJSON{headerJSON: toHeaderJSON(e.Header), Market: e.Market, WinningBin: e.WinningBin}
	case *ClaimReward:
		v = marketOnlyJSON{headerJSON: toHeaderJSON(e.Header), Market: e.Market}
	case *WithdrawCollateral:
		v = marketOnlyJSON{headerJSON: toHeaderJSON(e.Header), Market: e.Market}
	default:
		return nil, fmt.Errorf("cannot encode %T: %w", evt, errs.ErrInvalidCommand)
	}

	return json.Marshal(v)
}
