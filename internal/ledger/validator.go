package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateVaultMatches verifies the vault account equals the market's recorded
// collateral balance.
func (v *InvariantValidator) ValidateVaultMatches(marketID uint64, assetID AssetID, collateral uint64) error {
	key := NewVaultAccountKey(marketID, assetID)
	if err := v.tracker.ValidateNonNegative(key); err != nil {
		return err
	}
	balance := v.tracker.GetBalance(key)
	if uint64(balance) != collateral {
		return fmt.Errorf("vault for market %d holds %d, market records %d", marketID, balance, collateral)
	}
	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
