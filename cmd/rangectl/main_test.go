package main

import (
	"bytes"
	"context"
	"testing"

	"RangeLedger/internal/errs"
	"RangeLedger/internal/query"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	markets   []query.MarketResponse
	positions map[uuid.UUID][]query.PositionResponse
	report    *query.IntegrityReport
	pages     int
}

func (f *fakeReader) ListMarkets(_ context.Context, limit int, afterID *uint64) ([]query.MarketResponse, error) {
	f.pages++
	var out []query.MarketResponse
	for _, m := range f.markets {
		if afterID != nil && m.MarketID <= *afterID {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeReader) GetMarket(_ context.Context, id uint64) (*query.MarketResponse, error) {
	for i := range f.markets {
		if f.markets[i].MarketID == id {
			return &f.markets[i], nil
		}
	}
	return nil, errs.ErrMarketNotFound
}

func (f *fakeReader) GetPositions(_ context.Context, user uuid.UUID, _ *uint64) ([]query.PositionResponse, error) {
	return f.positions[user], nil
}

func (f *fakeReader) VerifyIntegrity(context.Context) (*query.IntegrityReport, error) {
	return f.report, nil
}

func market(id uint64) query.MarketResponse {
	winner := uint32(2)
	return query.MarketResponse{
		MarketID:          id,
		TickSpacing:       10,
		MinTick:           0,
		MaxTick:           20,
		NumBins:           3,
		Bins:              []decimal.Decimal{decimal.Zero, decimal.RequireFromString("1.5"), decimal.RequireFromString("12.25")},
		TotalSupply:       decimal.RequireFromString("13.75"),
		CollateralBalance: decimal.RequireFromString("13.75"),
		Closed:            true,
		WinningBin:        &winner,
		LastSequence:      9,
	}
}

func TestRunCommand_Markets(t *testing.T) {
	r := &fakeReader{markets: []query.MarketResponse{market(0), market(1)}}
	var out bytes.Buffer
	require.NoError(t, runCommand(context.Background(), r, &out, []string{"markets"}))
	assert.Contains(t, out.String(), "13.75")
	assert.Contains(t, out.String(), "Closed")
	assert.Equal(t, 1, r.pages)
}

func TestRunCommand_MarketsPagesThroughEverything(t *testing.T) {
	r := &fakeReader{}
	for i := 0; i < query.MaxPageSize+3; i++ {
		r.markets = append(r.markets, market(uint64(i)))
	}
	var out bytes.Buffer
	require.NoError(t, runCommand(context.Background(), r, &out, []string{"markets"}))
	assert.Equal(t, 2, r.pages)
	assert.Contains(t, out.String(), "502")
}

func TestRunCommand_MarketShowsBinBounds(t *testing.T) {
	r := &fakeReader{markets: []query.MarketResponse{market(4)}}
	var out bytes.Buffer
	require.NoError(t, runCommand(context.Background(), r, &out, []string{"market", "4"}))
	assert.Contains(t, out.String(), "12.25")
	assert.Contains(t, out.String(), "20")

	err := runCommand(context.Background(), r, &out, []string{"market", "5"})
	require.ErrorIs(t, err, errs.ErrMarketNotFound)
}

func TestRunCommand_Positions(t *testing.T) {
	user := uuid.New()
	r := &fakeReader{positions: map[uuid.UUID][]query.PositionResponse{
		user: {{UserID: user, MarketID: 3, Bins: []query.PositionBin{{Index: 7, Amount: decimal.RequireFromString("0.000000001")}}}},
	}}
	var out bytes.Buffer
	require.NoError(t, runCommand(context.Background(), r, &out, []string{"positions", user.String()}))
	assert.Contains(t, out.String(), "0.000000001")
}

func TestRunCommand_Integrity(t *testing.T) {
	r := &fakeReader{report: &query.IntegrityReport{
		HashChainBreaks: []int64{41},
		VaultMismatches: []query.VaultMismatch{{MarketID: 2, Projected: decimal.NewFromInt(5), Journaled: decimal.NewFromInt(4)}},
		LatestSequence:  50,
	}}
	var out bytes.Buffer
	require.NoError(t, runCommand(context.Background(), r, &out, []string{"integrity"}))
	assert.Contains(t, out.String(), "healthy: NO")
	assert.Contains(t, out.String(), "sequence 41")
}

func TestRunCommand_BadArguments(t *testing.T) {
	r := &fakeReader{}
	var out bytes.Buffer
	tests := [][]string{
		{"market"},
		{"market", "x"},
		{"positions", "not-a-uuid"},
		{"liquidate"},
	}
	for _, args := range tests {
		assert.Error(t, runCommand(context.Background(), r, &out, args), "%v", args)
	}
}
