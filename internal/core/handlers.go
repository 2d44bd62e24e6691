package core

import (
	"fmt"

	"RangeLedger/internal/errs"
	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"
	fpmath "RangeLedger/internal/math"
	"RangeLedger/internal/pricing"
	"RangeLedger/internal/state"
)

func (c *DeterministicCore) handleInitializeProgram(a applyCtx, e *event.InitializeProgram) (event.Outcome, *ledger.Batch, error) {
	if err := a.tx.Registry().Initialize(e.Signer); err != nil {
		return nil, nil, err
	}
	return &event.ProgramInitialized{Owner: e.Signer}, nil, nil
}

func (c *DeterministicCore) handleCreateMarket(a applyCtx, e *event.CreateMarket) (event.Outcome, *ledger.Batch, error) {
	reg := a.tx.Registry()
	if err := reg.RequireOwner(e.Signer); err != nil {
		return nil, nil, err
	}

	m, err := state.NewMarket(reg.MarketCount, e.TickSpacing, e.MinTick, e.MaxTick, a.ts.Unix(), e.CloseTs)
	if err != nil {
		return nil, nil, err
	}
	reg.NextMarketID()
	a.tx.PutMarket(m)

	return &event.MarketCreated{
		MarketID:    m.ID,
		TickSpacing: m.TickSpacing,
		MinTick:     m.MinTick,
		MaxTick:     m.MaxTick,
		NumBins:     m.NumBins(),
		OpenTs:      m.OpenTs,
		CloseTs:     m.CloseTs,
	}, nil, nil
}

func (c *DeterministicCore) handleActivateMarket(a applyCtx, e *event.ActivateMarket) (event.Outcome, *ledger.Batch, error) {
	if err := a.tx.ReadRegistry().RequireOwner(e.Signer); err != nil {
		return nil, nil, err
	}
	m, err := a.tx.Market(e.Market)
	if err != nil {
		return nil, nil, err
	}

	next := state.MarketStatusInactive
	if e.Active {
		next = state.MarketStatusActive
	}
	if !m.Status().CanTransitionTo(next) {
		return nil, nil, fmt.Errorf("market %d is %s: %w", m.ID, m.Status(), errs.ErrMarketClosed)
	}
	m.Active = e.Active

	return &event.MarketActivationChanged{MarketID: m.ID, Active: m.Active}, nil, nil
}

// legsFor validates a (bins, amounts) pair against m: equal lengths and every
// index in range, zero-quantity legs included. It returns the legs and the
// summed quantity.
func legsFor(m *state.Market, bins []uint32, amounts []uint64) ([]pricing.Leg, uint64, error) {
	if len(bins) != len(amounts) {
		return nil, 0, fmt.Errorf("%d bins, %d amounts: %w", len(bins), len(amounts), errs.ErrArrayLengthMismatch)
	}

	legs := make([]pricing.Leg, len(bins))
	var total uint64
	for i, idx := range bins {
		if err := m.CheckBin(idx); err != nil {
			return nil, 0, err
		}
		var err error
		if total, err = fpmath.Add(total, amounts[i]); err != nil {
			return nil, 0, err
		}
		legs[i] = pricing.Leg{Bin: idx, Quantity: amounts[i]}
	}
	return legs, total, nil
}

func (c *DeterministicCore) handleBuyTokens(a applyCtx, e *event.BuyTokens) (event.Outcome, *ledger.Batch, error) {
	m, err := a.tx.Market(e.Market)
	if err != nil {
		return nil, nil, err
	}
	if err := m.EnsureTradable(); err != nil {
		return nil, nil, err
	}
	if len(e.Bins) == 0 && len(e.Amounts) == 0 {
		return nil, nil, errs.ErrNoTokensToBuy
	}
	legs, qty, err := legsFor(m, e.Bins, e.Amounts)
	if err != nil {
		return nil, nil, err
	}

	quote, err := pricing.BatchBuyCost(m.Bins, m.TotalSupply, legs)
	if err != nil {
		return nil, nil, err
	}
	if quote.Total > e.MaxCollateral {
		return nil, nil, fmt.Errorf("cost %d exceeds max %d: %w", quote.Total, e.MaxCollateral, errs.ErrSlippageExceeded)
	}

	if qty > 0 {
		pos := a.tx.PositionOrCreate(e.Signer, m.ID)
		for _, leg := range legs {
			// pricing already proved these additions fit
			m.Bins[leg.Bin] += leg.Quantity
			if err := pos.Credit(leg.Bin, leg.Quantity); err != nil {
				return nil, nil, err
			}
		}
		m.TotalSupply += qty
	}
	if m.CollateralBalance, err = fpmath.Add(m.CollateralBalance, quote.Total); err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GenerateBuy(a.transfer(m.ID, quote.Total), e.Signer)
	if err != nil {
		return nil, nil, err
	}

	return &event.TokensBought{
		MarketID:  m.ID,
		User:      e.Signer,
		Bins:      e.Bins,
		Amounts:   e.Amounts,
		Costs:     quote.Amounts,
		TotalCost: quote.Total,
	}, batch, nil
}

func (c *DeterministicCore) handleSellTokens(a applyCtx, e *event.SellTokens) (event.Outcome, *ledger.Batch, error) {
	m, err := a.tx.Market(e.Market)
	if err != nil {
		return nil, nil, err
	}
	if err := m.EnsureTradable(); err != nil {
		return nil, nil, err
	}
	if len(e.Bins) == 0 && len(e.Amounts) == 0 {
		return nil, nil, errs.ErrNoTokensToBuy
	}
	legs, qty, err := legsFor(m, e.Bins, e.Amounts)
	if err != nil {
		return nil, nil, err
	}

	// Bin guards (EmptyBin, InsufficientBinBalance) take precedence over holdings.
	quote, err := pricing.BatchSellRevenue(m.Bins, m.TotalSupply, legs)
	if err != nil {
		return nil, nil, err
	}

	// The seller must hold every leg, counting repeated bins together.
	pos := a.tx.Position(e.Signer, m.ID)
	if qty > 0 {
		want := make(map[uint32]uint64, len(legs))
		for _, leg := range legs {
			want[leg.Bin] += leg.Quantity
		}
		for _, leg := range legs {
			if pos == nil || pos.Amount(leg.Bin) < want[leg.Bin] {
				return nil, nil, fmt.Errorf("bin %d: %w", leg.Bin, errs.ErrInsufficientUserBalance)
			}
		}
	}

	if quote.Total < e.MinCollateral {
		return nil, nil, fmt.Errorf("revenue %d below min %d: %w", quote.Total, e.MinCollateral, errs.ErrSlippageExceeded)
	}
	if quote.Total > m.CollateralBalance {
		return nil, nil, fmt.Errorf("revenue %d, collateral %d: %w", quote.Total, m.CollateralBalance, errs.ErrInsufficientCollateral)
	}

	for _, leg := range legs {
		if leg.Quantity == 0 {
			continue
		}
		m.Bins[leg.Bin] -= leg.Quantity
		if err := pos.Debit(leg.Bin, leg.Quantity); err != nil {
			return nil, nil, err
		}
	}
	m.TotalSupply -= qty
	m.CollateralBalance -= quote.Total

	batch, err := c.journalGen.GenerateSell(a.transfer(m.ID, quote.Total), e.Signer)
	if err != nil {
		return nil, nil, err
	}

	return &event.TokensSold{
		MarketID:     m.ID,
		User:         e.Signer,
		Bins:         e.Bins,
		Amounts:      e.Amounts,
		Revenues:     quote.Amounts,
		TotalRevenue: quote.Total,
	}, batch, nil
}

func (c *DeterministicCore) handleTransferPosition(a applyCtx, e *event.TransferPosition) (event.Outcome, *ledger.Batch, error) {
	m, err := a.tx.Market(e.Market)
	if err != nil {
		return nil, nil, err
	}
	if e.Signer == e.Recipient {
		return nil, nil, errs.ErrSelfTransfer
	}
	legs, qty, err := legsFor(m, e.Bins, e.Amounts)
	if err != nil {
		return nil, nil, err
	}
	if qty == 0 {
		return nil, nil, errs.ErrNoTokensToBuy
	}

	src := a.tx.Position(e.Signer, m.ID)
	if src == nil {
		return nil, nil, fmt.Errorf("sender has no position in market %d: %w", m.ID, errs.ErrInsufficientUserBalance)
	}
	dst := a.tx.PositionOrCreate(e.Recipient, m.ID)

	for _, leg := range legs {
		if err := src.Debit(leg.Bin, leg.Quantity); err != nil {
			return nil, nil, fmt.Errorf("bin %d: %w", leg.Bin, err)
		}
		if err := dst.Credit(leg.Bin, leg.Quantity); err != nil {
			return nil, nil, err
		}
	}

	return &event.PositionTransferred{
		MarketID: m.ID,
		From:     e.Signer,
		To:       e.Recipient,
		Bins:     e.Bins,
		Amounts:  e.Amounts,
	}, nil, nil
}

func (c *DeterministicCore) handleCloseMarket(a applyCtx, e *event.CloseMarket) (event.Outcome, *ledger.Batch, error) {
	reg := a.tx.Registry()
	if err := reg.RequireOwner(e.Signer); err != nil {
		return nil, nil, err
	}
	m, err := a.tx.Market(e.Market)
	if err != nil {
		return nil, nil, err
	}
	if m.Closed {
		return nil, nil, fmt.Errorf("market %d: %w", m.ID, errs.ErrAlreadyClosed)
	}
	if err := c.closeOrder.Validate(reg, m.ID); err != nil {
		return nil, nil, err
	}
	if err := m.CheckBin(e.WinningBin); err != nil {
		return nil, nil, err
	}

	winning := e.WinningBin
	m.Closed = true
	m.WinningBin = &winning
	reg.LastClosedMarket = int64(m.ID)

	return &event.MarketClosed{
		MarketID:   m.ID,
		WinningBin: winning,
		ClosedAt:   a.ts.Unix(),
	}, nil, nil
}

func (c *DeterministicCore) handleClaimReward(a applyCtx, e *event.ClaimReward) (event.Outcome, *ledger.Batch, error) {
	m, err := a.tx.Market(e.Market)
	if err != nil {
		return nil, nil, err
	}
	if !m.Closed || m.WinningBin == nil {
		return nil, nil, fmt.Errorf("market %d: %w", m.ID, errs.ErrMarketIsNotClosed)
	}
	w := *m.WinningBin

	pos := a.tx.Position(e.Signer, m.ID)
	if pos == nil || pos.Amount(w) == 0 {
		return nil, nil, fmt.Errorf("bin %d: %w", w, errs.ErrNotWinningBin)
	}
	tokens := pos.Amount(w)

	// Pro-rata share of what is left; the bin still counts every unclaimed token.
	reward, err := fpmath.MulDiv(tokens, m.CollateralBalance, m.Bins[w], fpmath.RoundDown)
	if err != nil {
		return nil, nil, err
	}

	pos.Remove(w)
	m.Bins[w] -= tokens
	m.TotalSupply -= tokens
	m.CollateralBalance -= reward

	batch, err := c.journalGen.GenerateClaim(a.transfer(m.ID, reward), e.Signer)
	if err != nil {
		return nil, nil, err
	}

	return &event.RewardClaimed{
		MarketID:   m.ID,
		User:       e.Signer,
		WinningBin: w,
		Tokens:     tokens,
		Reward:     reward,
	}, batch, nil
}

func (c *DeterministicCore) handleWithdrawCollateral(a applyCtx, e *event.WithdrawCollateral) (event.Outcome, *ledger.Batch, error) {
	reg := a.tx.ReadRegistry()
	if err := reg.RequireOwner(e.Signer); err != nil {
		return nil, nil, err
	}
	m, err := a.tx.Market(e.Market)
	if err != nil {
		return nil, nil, err
	}
	if !m.Closed {
		return nil, nil, fmt.Errorf("market %d: %w", m.ID, errs.ErrMarketIsNotClosed)
	}
	if m.CollateralBalance == 0 {
		return nil, nil, fmt.Errorf("market %d: %w", m.ID, errs.ErrNoCollateralToWithdraw)
	}

	amount := m.CollateralBalance
	m.CollateralBalance = 0

	batch, err := c.journalGen.GenerateWithdraw(a.transfer(m.ID, amount), reg.Owner)
	if err != nil {
		return nil, nil, err
	}

	return &event.CollateralWithdrawn{
		MarketID: m.ID,
		Owner:    reg.Owner,
		Amount:   amount,
	}, batch, nil
}
