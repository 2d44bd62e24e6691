package event

import (
	"github.com/google/uuid"
)

// BuyTokens mints Amounts[i] tokens in Bins[i] for the signer, paying at most
// MaxCollateral in total.
type BuyTokens struct {
	Header
	Market        uint64
	Bins          []uint32
	Amounts       []uint64
	MaxCollateral uint64
}

func (c *BuyTokens) EventType() EventType {
	return EventTypeBuyTokens
}

func (c *BuyTokens) MarketID() *uint64 {
	m := c.Market
	return &m
}

// SellTokens burns the signer's tokens, receiving at least MinCollateral.
type SellTokens struct {
	Header
	Market        uint64
	Bins          []uint32
	Amounts       []uint64
	MinCollateral uint64
}

func (c *SellTokens) EventType() EventType {
	return EventTypeSellTokens
}

func (c *SellTokens) MarketID() *uint64 {
	m := c.Market
	return &m
}

// TransferPosition moves tokens from the signer to Recipient without touching
// market totals.
type TransferPosition struct {
	Header
	Market    uint64
	Bins      []uint32
	Amounts   []uint64
	Recipient uuid.UUID
}

func (c *TransferPosition) EventType() EventType {
	return EventTypeTransferPosition
}

func (c *TransferPosition) MarketID() *uint64 {
	m := c.Market
	return &m
}
