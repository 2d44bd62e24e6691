package persistence_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"RangeLedger/internal/core"
	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/persistence"
	"RangeLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const unit = uint64(1_000_000_000)

// runScenario drives a core through init, create, two buys and a close and
// returns it with everything it emitted.
func runScenario(t *testing.T) (*core.DeterministicCore, []core.CoreOutput) {
	t.Helper()
	out := make(chan core.CoreOutput, 64)
	c := core.NewDeterministicCore(0, ledger.AssetUSDC, out, nil, nil, nil, zerolog.New(io.Discard))

	owner, alice := uuid.New(), uuid.New()
	ts := int64(1_700_000_000)
	hdr := func(signer uuid.UUID) event.Header {
		ts++
		return event.Header{CommandID: uuid.New(), Signer: signer, Timestamp: time.Unix(ts, 0).UTC()}
	}

	cmds := []event.Event{
		&event.InitializeProgram{Header: hdr(owner)},
		&event.CreateMarket{Header: hdr(owner), TickSpacing: 60, MinTick: -360, MaxTick: 360},
		&event.BuyTokens{Header: hdr(alice), Market: 0, Bins: []uint32{0}, Amounts: []uint64{100 * unit}, MaxCollateral: 200 * unit},
		&event.BuyTokens{Header: hdr(alice), Market: 0, Bins: []uint32{3}, Amounts: []uint64{50 * unit}, MaxCollateral: 200 * unit},
		&event.CloseMarket{Header: hdr(owner), Market: 0, WinningBin: 3},
	}
	for _, cmd := range cmds {
		if _, err := c.ProcessEvent(cmd); err != nil {
			t.Fatalf("%s: %v", cmd.EventType(), err)
		}
	}

	close(out)
	var outputs []core.CoreOutput
	for o := range out {
		outputs = append(outputs, o)
	}
	return c, outputs
}

// ============================================================================
// Test: Row conversion
// ============================================================================

func TestConvertCoreOutput(t *testing.T) {
	_, outputs := runScenario(t)

	first := persistence.ConvertCoreOutput(outputs[0])
	if first.EventRow.MarketID != nil {
		t.Error("program-level command should have no market id")
	}
	if len(first.JournalRows) != 0 {
		t.Errorf("init journals: got %d, want 0", len(first.JournalRows))
	}

	buy := persistence.ConvertCoreOutput(outputs[2])
	if buy.EventRow.MarketID == nil || *buy.EventRow.MarketID != 0 {
		t.Fatalf("buy market id: got %v", buy.EventRow.MarketID)
	}
	if buy.EventRow.EventType != "BuyTokens" || buy.EventRow.Sequence != 2 {
		t.Errorf("unexpected row %+v", buy.EventRow)
	}
	if len(buy.JournalRows) != 1 {
		t.Fatalf("buy journals: got %d, want 1", len(buy.JournalRows))
	}
	j := buy.JournalRows[0]
	if j.Amount <= 0 || j.Sequence != 2 || j.DebitAccount == j.CreditAccount {
		t.Errorf("unexpected journal %+v", j)
	}
}

func TestEventRow_EnvelopeReplays(t *testing.T) {
	live, outputs := runScenario(t)

	replayed := core.NewDeterministicCore(0, ledger.AssetUSDC, nil, nil, nil, nil, zerolog.New(io.Discard))
	for _, o := range outputs {
		row := persistence.ConvertCoreOutput(o).EventRow
		env, err := row.Envelope()
		if err != nil {
			t.Fatalf("seq %d: %v", row.Sequence, err)
		}
		if err := replayed.Replay(env); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}

	if replayed.GetStateHash() != live.GetStateHash() {
		t.Error("replay from rows should reach the live chain tip")
	}
}

func TestEventRow_EnvelopeRejectsBadRows(t *testing.T) {
	good := persistence.EventRow{
		EventType: "BuyTokens",
		Actor:     uuid.NewString(),
		StateHash: make([]byte, 32),
		PrevHash:  make([]byte, 32),
	}

	bad := []persistence.EventRow{good, good, good}
	bad[0].EventType = "TradeFill"
	bad[1].Actor = "not-a-uuid"
	bad[2].StateHash = []byte{1, 2, 3}

	for _, row := range bad {
		if _, err := row.Envelope(); err == nil {
			t.Errorf("expected error for %+v", row)
		}
	}
}

// ============================================================================
// Test: Snapshot encoding
// ============================================================================

func TestSnapshotData_RestoresThroughJSON(t *testing.T) {
	live, _ := runScenario(t)

	data, err := json.Marshal(persistence.NewSnapshotData(live.CreateSnapshotState(), time.Now()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded persistence.SnapshotData
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	state, err := decoded.CoreState()
	if err != nil {
		t.Fatalf("core state: %v", err)
	}

	restored := core.NewDeterministicCore(0, ledger.AssetUSDC, nil, nil, nil, nil, zerolog.New(io.Discard))
	if err := restored.RestoreFromSnapshot(state); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.GetStateHash() != live.GetStateHash() || restored.GetSequence() != live.GetSequence() {
		t.Error("restored core should continue from the live tip")
	}
	m, err := restored.GetMarket(0)
	if err != nil || !m.Closed || m.WinningBin == nil || *m.WinningBin != 3 {
		t.Errorf("restored market %+v, err %v", m, err)
	}
}

// ============================================================================
// Test: Postgres round trip (skips without a test database)
// ============================================================================

func TestPostgres_WriteLoadAndDedup(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	live, outputs := runScenario(t)
	ctx := context.Background()

	in := make(chan core.CoreOutput, len(outputs))
	for _, o := range outputs {
		in <- o
	}
	close(in)
	worker := persistence.NewPersistenceWorker(db, in, 2, time.Millisecond, nil, zerolog.New(io.Discard))
	if err := worker.Run(ctx); err != nil {
		t.Fatalf("worker: %v", err)
	}

	snapMgr := persistence.NewSnapshotManager(db)
	latest, err := snapMgr.GetLatestSequence(ctx)
	if err != nil || latest != int64(len(outputs)-1) {
		t.Fatalf("latest sequence: got %d (%v), want %d", latest, err, len(outputs)-1)
	}

	rows, err := snapMgr.LoadEventsFrom(ctx, 0, 100)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	replayed := core.NewDeterministicCore(0, ledger.AssetUSDC, nil, nil, nil, nil, zerolog.New(io.Discard))
	for _, row := range rows {
		env, err := row.Envelope()
		if err != nil {
			t.Fatalf("envelope: %v", err)
		}
		if err := replayed.Replay(env); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	if replayed.GetStateHash() != live.GetStateHash() {
		t.Error("replay from Postgres diverged")
	}

	dedup := persistence.NewPostgresIdempotencyChecker(db)
	dup, err := dedup.IsDuplicate("BuyTokens", outputs[2].Envelope.IdempotencyKey)
	if err != nil || !dup {
		t.Errorf("logged key: dup=%v err=%v", dup, err)
	}
	if dup, _ := dedup.IsDuplicate("BuyTokens", uuid.NewString()); dup {
		t.Error("unknown key must not be a duplicate")
	}
	keys, err := dedup.RecentKeys(ctx, 2)
	if err != nil || len(keys) != 2 || keys[1] != "CloseMarket:"+outputs[4].Envelope.IdempotencyKey {
		t.Errorf("recent keys: %v (%v)", keys, err)
	}

	snap := persistence.NewSnapshotData(live.CreateSnapshotState(), time.Now().UTC())
	if _, err := snapMgr.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if got, _ := snapMgr.LoadLatestSnapshot(ctx); got != nil {
		t.Error("unverified snapshots must not be loaded")
	}
	if err := snapMgr.MarkVerified(ctx, snap.Sequence); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	got, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil || got == nil || got.Sequence != snap.Sequence {
		t.Fatalf("load snapshot: %+v (%v)", got, err)
	}
}
