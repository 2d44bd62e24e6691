package main

import (
	"context"
	"io"
	"testing"
	"time"

	"RangeLedger/internal/core"
	"RangeLedger/internal/event"
	"RangeLedger/internal/ingestion"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/persistence"
	"RangeLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

const unit = uint64(1_000_000_000)

type script struct {
	owner, alice uuid.UUID
	ts           int64
}

func newScript() *script {
	return &script{owner: uuid.New(), alice: uuid.New(), ts: 1_700_000_000}
}

func (s *script) hdr(signer uuid.UUID) event.Header {
	s.ts++
	return event.Header{CommandID: uuid.New(), Signer: signer, Timestamp: time.Unix(s.ts, 0).UTC()}
}

func apply(t *testing.T, c *core.DeterministicCore, cmds ...event.Event) {
	t.Helper()
	for _, cmd := range cmds {
		if _, err := c.ProcessEvent(cmd); err != nil {
			t.Fatalf("%s: %v", cmd.EventType(), err)
		}
	}
}

func TestFanOut_PersistsEverythingAndDropsPublishes(t *testing.T) {
	in := make(chan core.CoreOutput, 8)
	c := core.NewDeterministicCore(0, ledger.AssetUSDC, in, nil, nil, nil, zerolog.New(io.Discard))
	s := newScript()
	apply(t, c,
		&event.InitializeProgram{Header: s.hdr(s.owner)},
		&event.CreateMarket{Header: s.hdr(s.owner), TickSpacing: 10, MinTick: 0, MaxTick: 100},
		&event.BuyTokens{Header: s.hdr(s.alice), Market: 0, Bins: []uint32{1}, Amounts: []uint64{unit}, MaxCollateral: 2 * unit},
	)
	close(in)

	persist := make(chan core.CoreOutput, 8)
	publish := make(chan ingestion.PublishableEvent, 1)
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	fanOut(in, persist, publish, metrics)

	var persisted []int64
	for out := range persist {
		persisted = append(persisted, out.Envelope.Sequence)
	}
	if len(persisted) != 3 || persisted[0] != 0 || persisted[2] != 2 {
		t.Errorf("persisted sequences: %v", persisted)
	}

	var published []ingestion.PublishableEvent
	for evt := range publish {
		published = append(published, evt)
	}
	if len(published) != 1 || published[0].Sequence != 0 {
		t.Errorf("published: %+v", published)
	}
	if got := promtest.ToFloat64(metrics.PublishDrops); got != 2 {
		t.Errorf("publish drops: got %v, want 2", got)
	}
}

func TestFanOut_WithoutPublisher(t *testing.T) {
	in := make(chan core.CoreOutput, 1)
	in <- core.CoreOutput{Envelope: &event.EventEnvelope{Sequence: 7}}
	close(in)

	persist := make(chan core.CoreOutput, 1)
	fanOut(in, persist, nil, nil)
	if out, ok := <-persist; !ok || out.Envelope.Sequence != 7 {
		t.Errorf("got %+v", out)
	}
	if _, ok := <-persist; ok {
		t.Error("persist channel should be closed")
	}
}

func TestRecoverCore_SnapshotThenReplay(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	out := make(chan core.CoreOutput, 64)
	live := core.NewDeterministicCore(0, ledger.AssetUSDC, out, nil, nil, nil, logger)
	snaps := persistence.NewSnapshotManager(db)
	admin := &adminHooks{snaps: snaps, db: db, logger: logger}

	s := newScript()
	apply(t, live,
		&event.InitializeProgram{Header: s.hdr(s.owner)},
		&event.CreateMarket{Header: s.hdr(s.owner), TickSpacing: 60, MinTick: -360, MaxTick: 360},
		&event.BuyTokens{Header: s.hdr(s.alice), Market: 0, Bins: []uint32{2}, Amounts: []uint64{10 * unit}, MaxCollateral: 20 * unit},
	)
	seq, _, err := admin.save(ctx, live.CreateSnapshotState())
	if err != nil || seq != 2 {
		t.Fatalf("snapshot: seq=%d err=%v", seq, err)
	}
	lastBuy := &event.BuyTokens{Header: s.hdr(s.alice), Market: 0, Bins: []uint32{4}, Amounts: []uint64{5 * unit}, MaxCollateral: 20 * unit}
	apply(t, live,
		lastBuy,
		&event.CloseMarket{Header: s.hdr(s.owner), Market: 0, WinningBin: 4},
	)
	close(out)

	worker := persistence.NewPersistenceWorker(db, out, 10, time.Millisecond, nil, logger)
	if err := worker.Run(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}

	restored := core.NewDeterministicCore(0, ledger.AssetUSDC, nil, nil, nil, nil, logger)
	keys := persistence.NewPostgresIdempotencyChecker(db)
	if err := recoverCore(ctx, restored, snaps, keys, 100, nil, logger); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if restored.GetSequence() != live.GetSequence() || restored.GetStateHash() != live.GetStateHash() {
		t.Errorf("recovered seq=%d hash=%x, live seq=%d hash=%x",
			restored.GetSequence(), restored.GetStateHash(), live.GetSequence(), live.GetStateHash())
	}

	// warmed keys reject a resubmitted command
	if _, err := restored.ProcessEvent(lastBuy); err == nil {
		t.Error("replayed command id should be a duplicate")
	}
}
