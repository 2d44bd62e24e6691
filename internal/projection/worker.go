package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"RangeLedger/internal/core"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/state"

	"github.com/rs/zerolog"
)

const watermarkName = "main"

// ProjectionWorker keeps projections.markets and projections.positions in
// step with the core. The projection channel drops on overflow, so the
// tables are eventually consistent and can be rebuilt from core state.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput, metrics *observability.Metrics, logger zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
		lastSeq:   -1,
	}
}

// Run applies outputs until ctx is cancelled or the input closes.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			seq := output.Envelope.Sequence
			if seq <= pw.lastSeq {
				continue
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// eventually consistent; the next rebuild repairs it
				pw.logger.Warn().Err(err).Int64("sequence", seq).Msg("projection update failed")
				continue
			}
			pw.lastSeq = seq
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output core.CoreOutput) error {
	start := time.Now()
	seq := output.Envelope.Sequence

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range output.Markets {
		if err := upsertMarket(ctx, tx, m, seq); err != nil {
			return fmt.Errorf("market %d: %w", m.ID, err)
		}
	}
	pw.observe("markets", start)

	posStart := time.Now()
	for _, p := range output.Positions {
		if err := replacePosition(ctx, tx, p, seq); err != nil {
			return fmt.Errorf("position %s/%d: %w", p.UserID, p.MarketID, err)
		}
	}
	pw.observe("positions", posStart)

	if err := setWatermark(ctx, tx, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) observe(name string, start time.Time) {
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

func upsertMarket(ctx context.Context, tx *sql.Tx, m *state.Market, seq int64) error {
	bins, err := json.Marshal(m.Bins)
	if err != nil {
		return err
	}
	var winning sql.NullInt64
	if m.WinningBin != nil {
		winning = sql.NullInt64{Int64: int64(*m.WinningBin), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projections.markets
			(market_id, tick_spacing, min_tick, max_tick, num_bins, bins, total_supply,
			 collateral_balance, active, closed, winning_bin, open_ts, close_ts, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			bins = $6, total_supply = $7, collateral_balance = $8, active = $9, closed = $10,
			winning_bin = $11, last_sequence = $14, updated_at = NOW()
	`,
		int64(m.ID), m.TickSpacing, m.MinTick, m.MaxTick, m.NumBins(), bins,
		strconv.FormatUint(m.TotalSupply, 10), strconv.FormatUint(m.CollateralBalance, 10),
		m.Active, m.Closed, winning, m.OpenTs, m.CloseTs, seq,
	)
	return err
}

// replacePosition rewrites every bin row of one (user, market) position.
func replacePosition(ctx context.Context, tx *sql.Tx, p *state.Position, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM projections.positions WHERE user_id = $1 AND market_id = $2
	`, p.UserID, int64(p.MarketID)); err != nil {
		return err
	}
	for _, b := range p.Bins {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.positions (user_id, market_id, bin_index, amount, last_sequence)
			VALUES ($1, $2, $3, $4, $5)
		`, p.UserID, int64(p.MarketID), int64(b.Index), strconv.FormatUint(b.Amount, 10), seq); err != nil {
			return err
		}
	}
	return nil
}

func setWatermark(ctx context.Context, tx *sql.Tx, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (projection_name, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (projection_name) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, watermarkName, seq)
	return err
}

// Rebuild replaces both projection tables with the given state, typically a
// fresh core snapshot taken after recovery.
func Rebuild(ctx context.Context, db *sql.DB, snap *core.SnapshotState) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`TRUNCATE projections.markets`,
		`TRUNCATE projections.positions`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	for _, m := range snap.Markets {
		if err := upsertMarket(ctx, tx, m, snap.Sequence); err != nil {
			return fmt.Errorf("market %d: %w", m.ID, err)
		}
	}
	for _, p := range snap.Positions {
		if err := replacePosition(ctx, tx, p, snap.Sequence); err != nil {
			return fmt.Errorf("position %s/%d: %w", p.UserID, p.MarketID, err)
		}
	}
	if err := setWatermark(ctx, tx, snap.Sequence); err != nil {
		return err
	}

	return tx.Commit()
}

// Watermark returns the last sequence reflected in the projections, -1 if none.
func Watermark(ctx context.Context, db *sql.DB) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE projection_name = $1
	`, watermarkName).Scan(&seq)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	return seq, err
}
