// internal/state/store.go
package state

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"RangeLedger/internal/errs"

	"github.com/google/uuid"
)

// Store holds all committed ledger state. It is owned by a single goroutine
// and is not safe for concurrent use.
type Store struct {
	registry  *Registry
	markets   map[uint64]*Market
	positions map[PositionKey]*Position
}

func NewStore() *Store {
	return &Store{
		registry:  NewRegistry(),
		markets:   make(map[uint64]*Market),
		positions: make(map[PositionKey]*Position),
	}
}

// Registry returns the committed registry. Callers must not mutate it.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Market returns the committed market. Callers must not mutate it.
func (s *Store) Market(id uint64) (*Market, error) {
	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, errs.ErrMarketNotFound)
	}
	return m, nil
}

// Position returns the committed position or nil.
func (s *Store) Position(userID uuid.UUID, marketID uint64) *Position {
	return s.positions[PositionKey{UserID: userID, MarketID: marketID}]
}

// Markets returns all markets ordered by id.
func (s *Store) Markets() []*Market {
	out := slices.Collect(maps.Values(s.markets))
	slices.SortFunc(out, func(a, b *Market) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Positions returns all positions ordered by (market, user).
func (s *Store) Positions() []*Position {
	out := slices.Collect(maps.Values(s.positions))
	slices.SortFunc(out, func(a, b *Position) int { return comparePositionKeys(a.Key(), b.Key()) })
	return out
}

// PositionsForMarket returns the market's positions ordered by user.
func (s *Store) PositionsForMarket(marketID uint64) []*Position {
	var out []*Position
	for key, p := range s.positions {
		if key.MarketID == marketID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *Position) int { return comparePositionKeys(a.Key(), b.Key()) })
	return out
}

// Load replaces the whole store, e.g. from a snapshot.
func (s *Store) Load(registry *Registry, markets []*Market, positions []*Position) {
	s.registry = registry.Clone()
	s.markets = make(map[uint64]*Market, len(markets))
	for _, m := range markets {
		s.markets[m.ID] = m.Clone()
	}
	s.positions = make(map[PositionKey]*Position, len(positions))
	for _, p := range positions {
		s.positions[p.Key()] = p.Clone()
	}
}

// Begin opens a transaction over the store.
func (s *Store) Begin() *Tx {
	return &Tx{
		store:     s,
		markets:   make(map[uint64]*Market),
		positions: make(map[PositionKey]*Position),
	}
}

// Touched lists the records a committed transaction wrote, in canonical order.
type Touched struct {
	Registry  bool
	Markets   []uint64
	Positions []PositionKey
}

// Tx is a copy-on-touch overlay over a Store. Records handed out by a Tx are
// private copies; nothing reaches the Store until Commit. Dropping a Tx
// without committing discards every change.
type Tx struct {
	store     *Store
	registry  *Registry
	markets   map[uint64]*Market
	positions map[PositionKey]*Position
	done      bool
}

// Registry returns a mutable copy of the registry.
func (tx *Tx) Registry() *Registry {
	if tx.registry == nil {
		tx.registry = tx.store.registry.Clone()
	}
	return tx.registry
}

// ReadRegistry returns the registry without staging a copy, for permission
// checks in commands that do not change it. Callers must not mutate it.
func (tx *Tx) ReadRegistry() *Registry {
	if tx.registry != nil {
		return tx.registry
	}
	return tx.store.registry
}

// Market returns a mutable copy of market id.
func (tx *Tx) Market(id uint64) (*Market, error) {
	if m, ok := tx.markets[id]; ok {
		return m, nil
	}
	committed, err := tx.store.Market(id)
	if err != nil {
		return nil, err
	}
	m := committed.Clone()
	tx.markets[id] = m
	return m, nil
}

// PutMarket stages a newly created market.
func (tx *Tx) PutMarket(m *Market) {
	tx.markets[m.ID] = m
}

// Position returns a mutable copy of the position, or nil if none exists.
func (tx *Tx) Position(userID uuid.UUID, marketID uint64) *Position {
	key := PositionKey{UserID: userID, MarketID: marketID}
	if p, ok := tx.positions[key]; ok {
		return p
	}
	committed := tx.store.positions[key]
	if committed == nil {
		return nil
	}
	p := committed.Clone()
	tx.positions[key] = p
	return p
}

// PositionOrCreate returns the position, creating an empty one if needed.
func (tx *Tx) PositionOrCreate(userID uuid.UUID, marketID uint64) *Position {
	if p := tx.Position(userID, marketID); p != nil {
		return p
	}
	p := NewPosition(userID, marketID)
	tx.positions[p.Key()] = p
	return p
}

// Commit publishes every staged record to the store.
func (tx *Tx) Commit() Touched {
	if tx.done {
		panic("FATAL: state transaction committed twice")
	}
	tx.done = true

	var touched Touched
	if tx.registry != nil {
		tx.store.registry = tx.registry
		touched.Registry = true
	}
	for id, m := range tx.markets {
		tx.store.markets[id] = m
		touched.Markets = append(touched.Markets, id)
	}
	for key, p := range tx.positions {
		tx.store.positions[key] = p
		touched.Positions = append(touched.Positions, key)
	}

	slices.Sort(touched.Markets)
	slices.SortFunc(touched.Positions, comparePositionKeys)
	return touched
}

// Rollback discards the transaction. Safe to call after Commit.
func (tx *Tx) Rollback() {
	tx.done = true
	tx.registry = nil
	clear(tx.markets)
	clear(tx.positions)
}
