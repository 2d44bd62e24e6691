// internal/state/position.go
package state

import (
	"cmp"
	"slices"

	"RangeLedger/internal/errs"

	"github.com/google/uuid"
)

// BinBalance is a user's holding in one bin. Amount is always > 0.
type BinBalance struct {
	Index  uint32 `json:"index"`
	Amount uint64 `json:"amount"`
}

// PositionKey identifies a position record.
type PositionKey struct {
	UserID   uuid.UUID
	MarketID uint64
}

// Position is a user's per-bin holdings in one market, sorted by bin index.
type Position struct {
	UserID   uuid.UUID    `json:"user_id"`
	MarketID uint64       `json:"market_id"`
	Bins     []BinBalance `json:"bins"`
}

func NewPosition(userID uuid.UUID, marketID uint64) *Position {
	return &Position{UserID: userID, MarketID: marketID}
}

func (p *Position) Key() PositionKey {
	return PositionKey{UserID: p.UserID, MarketID: p.MarketID}
}

func (p *Position) find(idx uint32) (int, bool) {
	return slices.BinarySearchFunc(p.Bins, idx, func(b BinBalance, target uint32) int {
		return cmp.Compare(b.Index, target)
	})
}

// Amount returns the holding in bin idx, 0 if none.
func (p *Position) Amount(idx uint32) uint64 {
	if i, ok := p.find(idx); ok {
		return p.Bins[i].Amount
	}
	return 0
}

// Credit adds amount to bin idx, inserting the entry if needed.
func (p *Position) Credit(idx uint32, amount uint64) error {
	if amount == 0 {
		return nil
	}
	i, ok := p.find(idx)
	if ok {
		next := p.Bins[i].Amount + amount
		if next < amount {
			return errs.ErrOverflow
		}
		p.Bins[i].Amount = next
		return nil
	}
	p.Bins = slices.Insert(p.Bins, i, BinBalance{Index: idx, Amount: amount})
	return nil
}

// Debit removes amount from bin idx. Entries that reach zero are dropped.
func (p *Position) Debit(idx uint32, amount uint64) error {
	if amount == 0 {
		return nil
	}
	i, ok := p.find(idx)
	if !ok || p.Bins[i].Amount < amount {
		return errs.ErrInsufficientUserBalance
	}
	p.Bins[i].Amount -= amount
	if p.Bins[i].Amount == 0 {
		p.Bins = slices.Delete(p.Bins, i, i+1)
	}
	return nil
}

// Remove drops the entry for bin idx and returns what it held.
func (p *Position) Remove(idx uint32) uint64 {
	i, ok := p.find(idx)
	if !ok {
		return 0
	}
	amount := p.Bins[i].Amount
	p.Bins = slices.Delete(p.Bins, i, i+1)
	return amount
}

// IsEmpty returns true if the position holds nothing
func (p *Position) IsEmpty() bool {
	return len(p.Bins) == 0
}

func (p *Position) Clone() *Position {
	c := *p
	c.Bins = slices.Clone(p.Bins)
	return &c
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 32+12*len(p.Bins))

	// user_id (16 bytes UUID binary)
	buf = append(buf, p.UserID[:]...)

	buf = appendUint64LE(buf, p.MarketID)

	buf = appendUint64LE(buf, uint64(len(p.Bins)))
	for _, b := range p.Bins {
		buf = appendUint64LE(buf, uint64(b.Index))
		buf = appendUint64LE(buf, b.Amount)
	}
	return buf
}

func comparePositionKeys(a, b PositionKey) int {
	if c := cmp.Compare(a.MarketID, b.MarketID); c != 0 {
		return c
	}
	return slices.Compare(a.UserID[:], b.UserID[:])
}
