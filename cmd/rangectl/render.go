package main

import (
	"fmt"
	"io"
	"strconv"

	"RangeLedger/internal/query"

	"github.com/olekukonko/tablewriter"
)

func status(m query.MarketResponse) string {
	switch {
	case m.Closed:
		return "Closed"
	case m.Active:
		return "Active"
	default:
		return "Paused"
	}
}

func renderMarkets(w io.Writer, markets []query.MarketResponse) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Status", "Ticks", "Bins", "Supply", "Collateral", "Winner", "Seq")
	for _, m := range markets {
		winner := "-"
		if m.WinningBin != nil {
			winner = strconv.FormatUint(uint64(*m.WinningBin), 10)
		}
		if err := table.Append(
			strconv.FormatUint(m.MarketID, 10),
			status(m),
			fmt.Sprintf("%d..%d step %d", m.MinTick, m.MaxTick, m.TickSpacing),
			strconv.Itoa(m.NumBins),
			m.TotalSupply.String(),
			m.CollateralBalance.String(),
			winner,
			strconv.FormatInt(m.LastSequence, 10),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderMarket(w io.Writer, m *query.MarketResponse) error {
	if err := renderMarkets(w, []query.MarketResponse{*m}); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Bin", "Tick", "Quantity")
	for i, q := range m.Bins {
		if err := table.Append(
			strconv.Itoa(i),
			strconv.FormatInt(m.MinTick+int64(i)*m.TickSpacing, 10),
			q.String(),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderPositions(w io.Writer, positions []query.PositionResponse) error {
	table := tablewriter.NewWriter(w)
	table.Header("Market", "Bin", "Amount", "Seq")
	for _, p := range positions {
		for _, b := range p.Bins {
			if err := table.Append(
				strconv.FormatUint(p.MarketID, 10),
				strconv.FormatUint(uint64(b.Index), 10),
				b.Amount.String(),
				strconv.FormatInt(p.LastSequence, 10),
			); err != nil {
				return err
			}
		}
	}
	return table.Render()
}

func renderIntegrity(w io.Writer, r *query.IntegrityReport) error {
	healthy := "yes"
	if !r.IsHealthy {
		healthy = "NO"
	}
	fmt.Fprintf(w, "healthy: %s  latest: %d  watermark: %d  lag: %d\n",
		healthy, r.LatestSequence, r.WatermarkSequence, r.ProjectionLag)
	for _, seq := range r.HashChainBreaks {
		fmt.Fprintf(w, "hash chain break at sequence %d\n", seq)
	}
	if len(r.VaultMismatches) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("Market", "Projected", "Journaled")
	for _, m := range r.VaultMismatches {
		if err := table.Append(strconv.FormatUint(m.MarketID, 10), m.Projected.String(), m.Journaled.String()); err != nil {
			return err
		}
	}
	return table.Render()
}
