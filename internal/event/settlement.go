package event

// ClaimReward pays the signer's winning-bin holding out of a closed market.
type ClaimReward struct {
	Header
	Market uint64
}

func (c *ClaimReward) EventType() EventType {
	return EventTypeClaimReward
}

func (c *ClaimReward) MarketID() *uint64 {
	m := c.Market
	return &m
}

// WithdrawCollateral sweeps a closed market's remaining collateral to the owner.
type WithdrawCollateral struct {
	Header
	Market uint64
}

func (c *WithdrawCollateral) EventType() EventType {
	return EventTypeWithdrawCollateral
}

func (c *WithdrawCollateral) MarketID() *uint64 {
	m := c.Market
	return &m
}
