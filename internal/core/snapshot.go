package core

import (
	"fmt"

	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/state"
)

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the in-memory state needed for a warm restart.
// persistence.SnapshotData is its serialized form.
type SnapshotState struct {
	Sequence        int64 // last processed sequence
	StateHash       [32]byte
	Registry        *state.Registry
	Markets         []*state.Market
	Positions       []*state.Position
	Balances        []ledger.BalanceEntry
	IdempotencyKeys []string
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	markets := c.store.Markets()
	positions := c.store.Positions()

	snap := &SnapshotState{
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.GetPrevHash(),
		Registry:        c.store.Registry().Clone(),
		Markets:         make([]*state.Market, len(markets)),
		Positions:       make([]*state.Position, len(positions)),
		Balances:        c.balanceTracker.Entries(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
	for i, m := range markets {
		snap.Markets[i] = m.Clone()
	}
	for i, p := range positions {
		snap.Positions[i] = p.Clone()
	}
	return snap
}

// RestoreFromSnapshot replaces the core's state with snap. The snapshot is
// rejected if its markets disagree with its custody balances.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	registry := snap.Registry
	if registry == nil {
		registry = state.NewRegistry()
	}

	c.store.Load(registry, snap.Markets, snap.Positions)
	c.balanceTracker.Restore(snap.Balances)

	assetID := c.journalGen.AssetID()
	for _, m := range c.store.Markets() {
		sum, ok := m.SumBins()
		if !ok || sum != m.TotalSupply {
			return fmt.Errorf("snapshot market %d: total supply %d, bins sum to %d", m.ID, m.TotalSupply, sum)
		}
		if err := c.validator.ValidateVaultMatches(m.ID, assetID, m.CollateralBalance); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}

	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)
	c.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)
	return nil
}

// WarmLRU loads recent idempotency keys ("EventType:key") into the LRU cache.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// Replay re-applies a logged envelope without emitting outputs and checks
// that it lands on the same sequence and state hash.
func (c *DeterministicCore) Replay(env *event.EventEnvelope) error {
	if env.Sequence != c.sequence {
		return fmt.Errorf("replay: envelope sequence %d, core expects %d", env.Sequence, c.sequence)
	}
	if env.PrevHash != c.hasher.GetPrevHash() {
		return fmt.Errorf("replay: seq %d prev hash %x does not match chain tip %x",
			env.Sequence, env.PrevHash[:8], c.GetStateHash())
	}

	evt, err := event.Decode(env.EventType.String(), env.Payload)
	if err != nil {
		return fmt.Errorf("replay: seq %d: %w", env.Sequence, err)
	}

	c.replaying = true
	defer func() { c.replaying = false }()

	receipt, err := c.ProcessEvent(evt)
	if err != nil {
		return fmt.Errorf("replay: seq %d was rejected: %w", env.Sequence, err)
	}
	if receipt.StateHash != env.StateHash {
		return fmt.Errorf("replay: seq %d diverged: hash %x, logged %x",
			env.Sequence, receipt.StateHash[:8], env.StateHash[:8])
	}
	return nil
}
