package event_test

import (
	"errors"
	"testing"
	"time"

	"RangeLedger/internal/errs"
	"RangeLedger/internal/event"

	"github.com/google/uuid"
)

// ============================================================================
// Test: Decode
// ============================================================================

func TestDecode_BuyTokens(t *testing.T) {
	data := []byte(`{
		"command_id": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"signer": "550e8400-e29b-41d4-a716-446655440000",
		"timestamp_us": 1700000000000000,
		"market_id": 3,
		"bins": [0, 4],
		"amounts": [1000000000, 0],
		"max_collateral": 2000000000
	}`)

	evt, err := event.Decode("buy_tokens", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	buy, ok := evt.(*event.BuyTokens)
	if !ok {
		t.Fatalf("got %T, want *event.BuyTokens", evt)
	}
	if buy.Market != 3 || len(buy.Bins) != 2 || buy.Amounts[0] != 1_000_000_000 || buy.MaxCollateral != 2_000_000_000 {
		t.Errorf("unexpected fields %+v", buy)
	}
	if buy.IdempotencyKey() != "7c9e6679-7425-40de-944b-e07fc1f90ae7" {
		t.Errorf("idempotency key: got %s", buy.IdempotencyKey())
	}
	if !buy.OccurredAt().Equal(time.Unix(1_700_000_000, 0)) {
		t.Errorf("timestamp: got %v", buy.OccurredAt())
	}
	if *buy.MarketID() != 3 {
		t.Errorf("market id: got %d", *buy.MarketID())
	}
}

func TestDecode_AcceptsCamelCaseType(t *testing.T) {
	data := []byte(`{"command_id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","signer":"550e8400-e29b-41d4-a716-446655440000","market_id":1,"winning_bin":5}`)
	evt, err := event.Decode("CloseMarket", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c := evt.(*event.CloseMarket); c.WinningBin != 5 || c.Market != 1 {
		t.Errorf("unexpected fields %+v", c)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		data      string
	}{
		{"unknown type", "deposit", `{}`},
		{"bad json", "buy_tokens", `{`},
		{"missing command id", "claim_reward", `{"signer":"550e8400-e29b-41d4-a716-446655440000","market_id":1}`},
		{"missing signer", "claim_reward", `{"command_id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","market_id":1}`},
		{"bad uuid", "claim_reward", `{"command_id":"nope","signer":"550e8400-e29b-41d4-a716-446655440000"}`},
		{"missing recipient", "transfer_position", `{"command_id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","signer":"550e8400-e29b-41d4-a716-446655440000","bins":[0],"amounts":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := event.Decode(tt.eventType, []byte(tt.data))
			if !errors.Is(err, errs.ErrInvalidCommand) {
				t.Errorf("got %v, want InvalidCommand", err)
			}
		})
	}
}

// ============================================================================
// Test: Encode
// ============================================================================

func TestEncode_RoundTripsEveryCommand(t *testing.T) {
	hdr := event.Header{
		CommandID: uuid.New(),
		Signer:    uuid.New(),
		Timestamp: time.UnixMicro(1_700_000_000_123_456).UTC(),
	}
	cmds := []event.Event{
		&event.InitializeProgram{Header: hdr},
		&event.CreateMarket{Header: hdr, TickSpacing: 60, MinTick: -360, MaxTick: 360, CloseTs: 1_800_000_000},
		&event.ActivateMarket{Header: hdr, Market: 2, Active: true},
		&event.BuyTokens{Header: hdr, Market: 2, Bins: []uint32{1}, Amounts: []uint64{5}, MaxCollateral: 9},
		&event.SellTokens{Header: hdr, Market: 2, Bins: []uint32{1}, Amounts: []uint64{5}, MinCollateral: 1},
		&event.TransferPosition{Header: hdr, Market: 2, Bins: []uint32{1}, Amounts: []uint64{5}, Recipient: uuid.New()},
		&event.CloseMarket{Header: hdr, Market: 2, WinningBin: 7},
		&event.ClaimReward{Header: hdr, Market: 2},
		&event.WithdrawCollateral{Header: hdr, Market: 2},
	}

	for _, cmd := range cmds {
		data, err := event.Encode(cmd)
		if err != nil {
			t.Fatalf("Encode %s: %v", cmd.EventType(), err)
		}
		back, err := event.Decode(cmd.EventType().Token(), data)
		if err != nil {
			t.Fatalf("Decode %s: %v", cmd.EventType(), err)
		}
		if back.EventType() != cmd.EventType() || back.IdempotencyKey() != cmd.IdempotencyKey() || !back.OccurredAt().Equal(cmd.OccurredAt()) {
			t.Errorf("%s lost header fields", cmd.EventType())
		}
		again, _ := event.Encode(back)
		if string(again) != string(data) {
			t.Errorf("%s: encoding is not stable:\n%s\n%s", cmd.EventType(), data, again)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := event.Validate(&event.ClaimReward{}); !errors.Is(err, errs.ErrInvalidCommand) {
		t.Errorf("empty header: got %v", err)
	}
	ok := &event.ClaimReward{Header: event.Header{CommandID: uuid.New(), Signer: uuid.New()}}
	if err := event.Validate(ok); err != nil {
		t.Errorf("valid header: %v", err)
	}
}

func TestParseEventType(t *testing.T) {
	for _, et := range event.AllEventTypes {
		if got, ok := event.ParseEventType(et.Token()); !ok || got != et {
			t.Errorf("token %s: got %v", et.Token(), got)
		}
		if got, ok := event.ParseEventType(et.String()); !ok || got != et {
			t.Errorf("name %s: got %v", et.String(), got)
		}
	}
	if _, ok := event.ParseEventType("trade_fill"); ok {
		t.Error("unknown names must not parse")
	}
}
