package ledger

import (
	"cmp"
	"fmt"
	"slices"

	"RangeLedger/internal/errs"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

func (bt *BalanceTracker) VaultBalance(marketID uint64, assetID AssetID) int64 {
	return bt.GetBalance(NewVaultAccountKey(marketID, assetID))
}

// WalletBalance is the user's net collateral received from all markets.
func (bt *BalanceTracker) WalletBalance(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewWalletAccountKey(userID, assetID))
}

// ValidateVaultCovers checks the vault can pay amount out.
func (bt *BalanceTracker) ValidateVaultCovers(marketID uint64, assetID AssetID, amount int64) error {
	have := bt.VaultBalance(marketID, assetID)
	if have < amount {
		return fmt.Errorf("vault %d: have=%d, need=%d: %w", marketID, have, amount, errs.ErrInsufficientCollateral)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// BalanceEntry is the serializable form of one account balance.
type BalanceEntry struct {
	Scope    AccountScope   `json:"scope"`
	EntityID uuid.UUID      `json:"entity_id"`
	SubType  AccountSubType `json:"sub_type"`
	AssetID  AssetID        `json:"asset_id"`
	Balance  int64          `json:"balance"`
}

func (e BalanceEntry) Key() AccountKey {
	return AccountKey{Scope: e.Scope, EntityID: e.EntityID, SubType: e.SubType, AssetID: e.AssetID}
}

// Entries returns every non-zero balance in a stable order (for snapshots).
func (bt *BalanceTracker) Entries() []BalanceEntry {
	out := make([]BalanceEntry, 0, len(bt.balances))
	for k, v := range bt.balances {
		if v == 0 {
			continue
		}
		out = append(out, BalanceEntry{
			Scope:    k.Scope,
			EntityID: k.EntityID,
			SubType:  k.SubType,
			AssetID:  k.AssetID,
			Balance:  v,
		})
	}
	slices.SortFunc(out, func(a, b BalanceEntry) int {
		if c := cmp.Compare(a.Scope, b.Scope); c != 0 {
			return c
		}
		if c := slices.Compare(a.EntityID[:], b.EntityID[:]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SubType, b.SubType); c != 0 {
			return c
		}
		return cmp.Compare(a.AssetID, b.AssetID)
	})
	return out
}

// Restore replaces all balances with entries.
func (bt *BalanceTracker) Restore(entries []BalanceEntry) {
	bt.balances = make(map[AccountKey]int64, len(entries))
	for _, e := range entries {
		bt.balances[e.Key()] = e.Balance
	}
}
