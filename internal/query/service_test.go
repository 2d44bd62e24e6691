package query_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"RangeLedger/internal/core"
	"RangeLedger/internal/errs"
	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/persistence"
	"RangeLedger/internal/projection"
	"RangeLedger/internal/query"
	"RangeLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const unit = uint64(1_000_000_000)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		raw      uint64
		decimals int32
		want     string
	}{
		{0, 9, "0.000000000"},
		{unit, 9, "1.000000000"},
		{9_453_489_190, 9, "9.453489190"},
		{18_446_744_073_709_551_615, 9, "18446744073.709551615"},
		{1234, 2, "12.34"},
		{7, 0, "7"},
	}
	for _, tt := range tests {
		if got := query.FormatAmount(tt.raw, tt.decimals); got != tt.want {
			t.Errorf("FormatAmount(%d, %d): got %s, want %s", tt.raw, tt.decimals, got, tt.want)
		}
	}
}

func TestScale(t *testing.T) {
	got := query.Scale(decimal.RequireFromString("45069385566"), 9)
	if !got.Equal(decimal.RequireFromString("45.069385566")) {
		t.Errorf("got %s", got)
	}
}

func TestQueryService_AgainstPostgres(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	persistCh := make(chan core.CoreOutput, 64)
	projCh := make(chan core.CoreOutput, 64)
	c := core.NewDeterministicCore(0, ledger.AssetUSDC, persistCh, projCh, nil, nil, zerolog.New(io.Discard))

	owner, alice := uuid.New(), uuid.New()
	ts := int64(1_700_000_000)
	hdr := func(signer uuid.UUID) event.Header {
		ts++
		return event.Header{CommandID: uuid.New(), Signer: signer, Timestamp: time.Unix(ts, 0).UTC()}
	}
	for _, cmd := range []event.Event{
		&event.InitializeProgram{Header: hdr(owner)},
		&event.CreateMarket{Header: hdr(owner), TickSpacing: 1, MinTick: 0, MaxTick: 4},
		&event.CreateMarket{Header: hdr(owner), TickSpacing: 10, MinTick: 0, MaxTick: 30},
		&event.BuyTokens{Header: hdr(alice), Market: 0, Bins: []uint32{0}, Amounts: []uint64{50 * unit}, MaxCollateral: 100 * unit},
		&event.BuyTokens{Header: hdr(alice), Market: 1, Bins: []uint32{1, 2}, Amounts: []uint64{unit, 2 * unit}, MaxCollateral: 100 * unit},
	} {
		if _, err := c.ProcessEvent(cmd); err != nil {
			t.Fatalf("%s: %v", cmd.EventType(), err)
		}
	}
	close(persistCh)
	close(projCh)

	if err := persistence.NewPersistenceWorker(db, persistCh, 8, time.Millisecond, nil, zerolog.New(io.Discard)).Run(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := projection.NewProjectionWorker(db, projCh, nil, zerolog.New(io.Discard)).Run(ctx); err != nil {
		t.Fatalf("project: %v", err)
	}

	qs := query.NewQueryService(db, query.DefaultTokenDecimals, nil)

	m, err := qs.GetMarket(ctx, 0)
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if m.NumBins != 4 || m.AsOfSequence != 4 {
		t.Errorf("market 0: %+v", m)
	}
	if !m.TotalSupply.Equal(decimal.NewFromInt(50)) {
		t.Errorf("total supply: got %s, want 50", m.TotalSupply)
	}
	if !m.CollateralBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("collateral: got %s, want 50", m.CollateralBalance)
	}

	if _, err := qs.GetMarket(ctx, 9); !errors.Is(err, errs.ErrMarketNotFound) {
		t.Errorf("missing market: got %v, want MarketNotFound", err)
	}

	markets, err := qs.ListMarkets(ctx, 10, nil)
	if err != nil || len(markets) != 2 {
		t.Fatalf("list: %d markets (%v)", len(markets), err)
	}
	after := uint64(0)
	if page, _ := qs.ListMarkets(ctx, 10, &after); len(page) != 1 || page[0].MarketID != 1 {
		t.Errorf("page after 0: %+v", page)
	}

	positions, err := qs.GetPositions(ctx, alice, nil)
	if err != nil || len(positions) != 2 {
		t.Fatalf("positions: %+v (%v)", positions, err)
	}
	if len(positions[1].Bins) != 2 || positions[1].Bins[1].Index != 2 {
		t.Errorf("market 1 position: %+v", positions[1])
	}

	history, err := qs.GetJournalHistory(ctx, alice, 10, nil)
	if err != nil || len(history) != 2 {
		t.Fatalf("journal history: %+v (%v)", history, err)
	}
	if history[0].Sequence != 4 || history[0].JournalType != ledger.JournalTypeBuy.String() {
		t.Errorf("newest journal: %+v", history[0])
	}

	events, err := qs.GetMarketEvents(ctx, 1, 10, nil)
	if err != nil || len(events) != 2 || events[0].EventType != "BuyTokens" {
		t.Errorf("market events: %+v (%v)", events, err)
	}

	report, err := qs.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if !report.IsHealthy || report.ProjectionLag != 0 {
		t.Errorf("integrity report: %+v", report)
	}

	// A tampered projection shows up as a vault mismatch.
	if _, err := db.Exec(`UPDATE projections.markets SET collateral_balance = 1 WHERE market_id = 0`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	report, err = qs.VerifyIntegrity(ctx)
	if err != nil || report.IsHealthy || len(report.VaultMismatches) != 1 {
		t.Errorf("tampered report: %+v (%v)", report, err)
	}
}
