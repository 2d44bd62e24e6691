package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeBuy      JournalType = iota // wallet -> vault
	JournalTypeSell                        // vault -> wallet
	JournalTypeClaim                       // vault -> wallet, after close
	JournalTypeWithdraw                    // vault -> treasury, after close
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeBuy:
		return "buy"
	case JournalTypeSell:
		return "sell"
	case JournalTypeClaim:
		return "claim"
	case JournalTypeWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry. It is also the
// custody instruction handed to whatever moves the actual tokens.
type Journal struct {
	JournalID     uuid.UUID   `json:"journal_id"`
	BatchID       uuid.UUID   `json:"batch_id"`
	EventRef      string      `json:"event_ref"` // Idempotency key of source command
	Sequence      int64       `json:"sequence"`
	DebitAccount  AccountKey  `json:"-"` // balance increases
	CreditAccount AccountKey  `json:"-"` // balance decreases
	AssetID       AssetID     `json:"asset_id"`
	Amount        int64       `json:"amount"` // ALWAYS positive
	JournalType   JournalType `json:"journal_type"`
	Timestamp     int64       `json:"timestamp"` // command timestamp, unix micro
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. Each entry moves one positive
// amount from credit to debit, so every entry is balanced by construction.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
