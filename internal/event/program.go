// internal/event/program.go
package event

// InitializeProgram makes the signer the program owner. Accepted once.
type InitializeProgram struct {
	Header
}

func (c *InitializeProgram) EventType() EventType {
	return EventTypeInitializeProgram
}

func (c *InitializeProgram) MarketID() *uint64 {
	return nil // Global command
}

// CreateMarket opens a new market; the id is assigned by the ledger.
type CreateMarket struct {
	Header
	TickSpacing int64
	MinTick     int64
	MaxTick     int64
	CloseTs     int64 // unix seconds
}

func (c *CreateMarket) EventType() EventType {
	return EventTypeCreateMarket
}

func (c *CreateMarket) MarketID() *uint64 {
	return nil // id not known until applied
}

// ActivateMarket pauses or resumes trading.
type ActivateMarket struct {
	Header
	Market uint64
	Active bool
}

func (c *ActivateMarket) EventType() EventType {
	return EventTypeActivateMarket
}

func (c *ActivateMarket) MarketID() *uint64 {
	m := c.Market
	return &m
}

// CloseMarket settles a market on its winning bin.
type CloseMarket struct {
	Header
	Market     uint64
	WinningBin uint32
}

func (c *CloseMarket) EventType() EventType {
	return EventTypeCloseMarket
}

func (c *CloseMarket) MarketID() *uint64 {
	m := c.Market
	return &m
}
