package ledger

import (
	"fmt"
	stdmath "math"

	"RangeLedger/internal/errs"

	"github.com/google/uuid"
)

// journalNamespace seeds deterministic batch and journal ids, so a replayed
// command produces byte-identical journals.
var journalNamespace = uuid.MustParse("6f1c2a9e-4b7d-5e3a-9c18-2d0e5f7a8b41")

// Transfer describes one collateral movement caused by a command.
type Transfer struct {
	EventRef  string // idempotency key of the command
	Sequence  int64
	Timestamp int64 // unix micro
	MarketID  uint64
	Amount    uint64
}

// JournalGenerator creates balanced journal batches from ledger operations
type JournalGenerator struct {
	assetID        AssetID
	balanceTracker *BalanceTracker // pre-checks on outflows
}

func NewJournalGenerator(assetID AssetID, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		assetID:        assetID,
		balanceTracker: tracker,
	}
}

func (jg *JournalGenerator) AssetID() AssetID {
	return jg.assetID
}

// GenerateBuy moves the trade cost: user:wallet -> market:vault.
// A zero amount yields a nil batch.
func (jg *JournalGenerator) GenerateBuy(tr Transfer, userID uuid.UUID) (*Batch, error) {
	return jg.generate(tr, JournalTypeBuy,
		NewVaultAccountKey(tr.MarketID, jg.assetID),
		NewWalletAccountKey(userID, jg.assetID))
}

// GenerateSell pays sale proceeds: market:vault -> user:wallet.
func (jg *JournalGenerator) GenerateSell(tr Transfer, userID uuid.UUID) (*Batch, error) {
	return jg.generateOutflow(tr, JournalTypeSell, NewWalletAccountKey(userID, jg.assetID))
}

// GenerateClaim pays a winning position: market:vault -> user:wallet.
func (jg *JournalGenerator) GenerateClaim(tr Transfer, userID uuid.UUID) (*Batch, error) {
	return jg.generateOutflow(tr, JournalTypeClaim, NewWalletAccountKey(userID, jg.assetID))
}

// GenerateWithdraw sweeps residual collateral: market:vault -> system:treasury.
func (jg *JournalGenerator) GenerateWithdraw(tr Transfer, owner uuid.UUID) (*Batch, error) {
	return jg.generateOutflow(tr, JournalTypeWithdraw, NewTreasuryAccountKey(owner, jg.assetID))
}

func (jg *JournalGenerator) generateOutflow(tr Transfer, jt JournalType, to AccountKey) (*Batch, error) {
	if tr.Amount == 0 {
		return nil, nil
	}
	amount, err := toAmount(tr.Amount)
	if err != nil {
		return nil, err
	}
	// PRE-CHECK: vault must cover the payout
	if err := jg.balanceTracker.ValidateVaultCovers(tr.MarketID, jg.assetID, amount); err != nil {
		return nil, fmt.Errorf("%s pre-check failed: %w", jt, err)
	}
	return jg.generate(tr, jt, to, NewVaultAccountKey(tr.MarketID, jg.assetID))
}

func (jg *JournalGenerator) generate(tr Transfer, jt JournalType, debit, credit AccountKey) (*Batch, error) {
	if tr.Amount == 0 {
		return nil, nil
	}
	amount, err := toAmount(tr.Amount)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewSHA1(journalNamespace, []byte(fmt.Sprintf("%s/%d/batch", tr.EventRef, tr.Sequence)))

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  tr.EventRef,
		Sequence:  tr.Sequence,
		Timestamp: tr.Timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	batch.Journals = append(batch.Journals, Journal{
		JournalID:     uuid.NewSHA1(batchID, []byte(jt.String())),
		BatchID:       batchID,
		EventRef:      tr.EventRef,
		Sequence:      tr.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       jg.assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     tr.Timestamp,
	})

	return batch, nil
}

func toAmount(v uint64) (int64, error) {
	if v > stdmath.MaxInt64 {
		return 0, fmt.Errorf("journal amount %d: %w", v, errs.ErrOverflow)
	}
	return int64(v), nil
}
