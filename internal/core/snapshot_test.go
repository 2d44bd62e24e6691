package core_test

import (
	"io"
	"testing"

	"RangeLedger/internal/core"
	"RangeLedger/internal/errs"
	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func freshCore() *core.DeterministicCore {
	return core.NewDeterministicCore(0, ledger.AssetUSDC, nil, nil, nil, nil, zerolog.New(io.Discard))
}

func TestSnapshot_RestoreContinuesChain(t *testing.T) {
	h := newHarness(t)
	id, a, _ := h.scenario()

	snap := h.core.CreateSnapshotState()
	if snap.Sequence != h.core.GetSequence()-1 {
		t.Errorf("snapshot sequence: got %d, want %d", snap.Sequence, h.core.GetSequence()-1)
	}

	restored := freshCore()
	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.GetStateHash() != h.core.GetStateHash() || restored.GetSequence() != h.core.GetSequence() {
		t.Fatal("restored core should sit on the same chain tip")
	}

	next := &event.SellTokens{Header: h.header(a), Market: id, Bins: []uint32{0}, Amounts: []uint64{10 * unit}}
	r1, err := h.core.ProcessEvent(next)
	if err != nil {
		t.Fatalf("original: %v", err)
	}
	r2, err := restored.ProcessEvent(next)
	if err != nil {
		t.Fatalf("restored: %v", err)
	}
	if r1.StateHash != r2.StateHash {
		t.Errorf("chains diverged after restore: %x vs %x", r1.StateHash, r2.StateHash)
	}
}

func TestSnapshot_WarmsIdempotency(t *testing.T) {
	h := newHarness(t)
	id := h.createMarket()
	cmd := &event.BuyTokens{Header: h.header(uuid.New()), Market: id, Bins: []uint32{0}, Amounts: []uint64{unit}, MaxCollateral: unit}
	h.mustApply(cmd)

	restored := freshCore()
	if err := restored.RestoreFromSnapshot(h.core.CreateSnapshotState()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	_, err := restored.ProcessEvent(cmd)
	expectCode(t, err, errs.ErrDuplicateCommand)
}

func TestSnapshot_RejectsVaultMismatch(t *testing.T) {
	h := newHarness(t)
	h.scenario()

	snap := h.core.CreateSnapshotState()
	snap.Markets[0].CollateralBalance++

	if err := freshCore().RestoreFromSnapshot(snap); err == nil {
		t.Error("expected restore to fail when collateral disagrees with the vault")
	}
}

func TestReplay_RebuildsIdenticalState(t *testing.T) {
	h := newHarness(t)
	id, a, b := h.scenario()
	h.mustApply(&event.TransferPosition{Header: h.header(a), Market: id, Bins: []uint32{0}, Amounts: []uint64{unit}, Recipient: b})
	if _, err := h.close(id, 0); err != nil {
		t.Fatalf("close: %v", err)
	}
	h.mustApply(&event.ClaimReward{Header: h.header(a), Market: id})

	outputs := drainOutputs(h.persistCh)

	replayed := freshCore()
	for _, o := range outputs {
		if err := replayed.Replay(o.Envelope); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}

	if replayed.GetStateHash() != h.core.GetStateHash() {
		t.Error("replayed chain tip differs")
	}
	want, _ := h.core.GetMarket(id)
	got, _ := replayed.GetMarket(id)
	if got.CollateralBalance != want.CollateralBalance || got.TotalSupply != want.TotalSupply {
		t.Errorf("replayed market %+v, want %+v", got, want)
	}
}

func TestReplay_DetectsTampering(t *testing.T) {
	h := newHarness(t)
	h.createMarket()
	outputs := drainOutputs(h.persistCh)

	replayed := freshCore()
	if err := replayed.Replay(outputs[0].Envelope); err != nil {
		t.Fatalf("replay init: %v", err)
	}

	env := *outputs[1].Envelope
	env.StateHash[0] ^= 0xff
	if err := replayed.Replay(&env); err == nil {
		t.Error("expected a hash mismatch")
	}
}
