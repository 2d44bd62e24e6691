// internal/state/registry.go
package state

import (
	"fmt"

	"RangeLedger/internal/errs"

	"github.com/google/uuid"
)

// Registry is the program-wide singleton.
type Registry struct {
	Owner            uuid.UUID `json:"owner"`
	MarketCount      uint64    `json:"market_count"`
	LastClosedMarket int64     `json:"last_closed_market"` // -1 until the first close
	Initialized      bool      `json:"initialized"`
}

func NewRegistry() *Registry {
	return &Registry{LastClosedMarket: -1}
}

func (r *Registry) Initialize(owner uuid.UUID) error {
	if r.Initialized {
		return errs.ErrProgramAlreadyInitialized
	}
	r.Owner = owner
	r.MarketCount = 0
	r.LastClosedMarket = -1
	r.Initialized = true
	return nil
}

// RequireOwner fails unless the program is initialized and actor owns it.
func (r *Registry) RequireOwner(actor uuid.UUID) error {
	if !r.Initialized {
		return errs.ErrProgramNotInitialized
	}
	if actor != r.Owner {
		return fmt.Errorf("actor %s: %w", actor, errs.ErrOwnerOnly)
	}
	return nil
}

// NextMarketID allocates the id of the next market.
func (r *Registry) NextMarketID() uint64 {
	id := r.MarketCount
	r.MarketCount++
	return id
}

// NextCloseID is the only market id CloseMarket will accept.
func (r *Registry) NextCloseID() uint64 {
	return uint64(r.LastClosedMarket + 1)
}

func (r *Registry) Clone() *Registry {
	c := *r
	return &c
}

// CanonicalBytes returns deterministic serialization for hashing
func (r *Registry) CanonicalBytes() []byte {
	buf := make([]byte, 0, 40)
	buf = append(buf, r.Owner[:]...)
	buf = appendUint64LE(buf, r.MarketCount)
	buf = appendUint64LE(buf, uint64(r.LastClosedMarket))
	buf = append(buf, boolByte(r.Initialized))
	return buf
}
