package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"RangeLedger/internal/errs"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultTokenDecimals matches the 1e9 base unit used for outcome tokens and
// collateral.
const DefaultTokenDecimals = 9

// MaxPageSize caps list queries.
const MaxPageSize = 500

// QueryService provides read-only access to projection tables and the event
// log. Responses carry as_of_sequence: the projection watermark at read time.
type QueryService struct {
	db       *sql.DB
	decimals int32
	metrics  *observability.Metrics
}

func NewQueryService(db *sql.DB, decimals int32, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, decimals: decimals, metrics: metrics}
}

// Scale renders a raw base-unit amount in whole tokens.
func Scale(raw decimal.Decimal, decimals int32) decimal.Decimal {
	return raw.Shift(-decimals)
}

// FormatAmount renders a raw u64 amount with exactly the given decimals.
func FormatAmount(raw uint64, decimals int32) string {
	return Scale(decimal.NewFromUint64(raw), decimals).StringFixed(decimals)
}

func (qs *QueryService) scale(raw decimal.Decimal) decimal.Decimal {
	return Scale(raw, qs.decimals)
}

// observe records request metrics for one query method.
func (qs *QueryService) observe(method string, start time.Time, err error) {
	if qs.metrics == nil {
		return
	}
	qs.metrics.QueryRequests.WithLabelValues(method).Inc()
	qs.metrics.QueryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		qs.metrics.QueryErrors.WithLabelValues(method, errs.CodeOf(err)).Inc()
	}
}

const marketColumns = `
	market_id, tick_spacing, min_tick, max_tick, num_bins, bins, total_supply,
	collateral_balance, active, closed, winning_bin, open_ts, close_ts, last_sequence
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (qs *QueryService) scanMarket(row rowScanner, asOfSeq int64) (*MarketResponse, error) {
	var (
		m       MarketResponse
		bins    []byte
		winning sql.NullInt64
	)
	if err := row.Scan(
		&m.MarketID, &m.TickSpacing, &m.MinTick, &m.MaxTick, &m.NumBins, &bins,
		&m.TotalSupply, &m.CollateralBalance, &m.Active, &m.Closed, &winning,
		&m.OpenTs, &m.CloseTs, &m.LastSequence,
	); err != nil {
		return nil, err
	}

	var raw []uint64
	if err := json.Unmarshal(bins, &raw); err != nil {
		return nil, fmt.Errorf("market %d bins: %w", m.MarketID, err)
	}
	m.Bins = make([]decimal.Decimal, len(raw))
	for i, q := range raw {
		m.Bins[i] = qs.scale(decimal.NewFromUint64(q))
	}
	m.TotalSupply = qs.scale(m.TotalSupply)
	m.CollateralBalance = qs.scale(m.CollateralBalance)
	if winning.Valid {
		w := uint32(winning.Int64)
		m.WinningBin = &w
	}
	m.AsOfSequence = asOfSeq
	return &m, nil
}

// GetMarket returns one projected market.
func (qs *QueryService) GetMarket(ctx context.Context, marketID uint64) (m *MarketResponse, err error) {
	defer func(start time.Time) { qs.observe("GetMarket", start, err) }(time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := qs.db.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM projections.markets WHERE market_id = $1`, int64(marketID))
	m, err = qs.scanMarket(row, asOfSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("market %d: %w", marketID, errs.ErrMarketNotFound)
	}
	return m, err
}

// ListMarkets returns projected markets in id order, starting after afterID
// when given.
func (qs *QueryService) ListMarkets(ctx context.Context, limit int, afterID *uint64) (out []MarketResponse, err error) {
	defer func(start time.Time) { qs.observe("ListMarkets", start, err) }(time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `SELECT ` + marketColumns + ` FROM projections.markets`
	args := []any{}
	argIdx := 1

	if afterID != nil {
		query += fmt.Sprintf(" WHERE market_id > $%d", argIdx)
		args = append(args, int64(*afterID))
		argIdx++
	}

	query += " ORDER BY market_id ASC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := qs.scanMarket(rows, asOfSeq)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// GetPositions returns a user's holdings grouped by market. A nil marketID
// returns every market the user holds.
func (qs *QueryService) GetPositions(ctx context.Context, userID uuid.UUID, marketID *uint64) (out []PositionResponse, err error) {
	defer func(start time.Time) { qs.observe("GetPositions", start, err) }(time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT market_id, bin_index, amount, last_sequence
		FROM projections.positions
		WHERE user_id = $1
	`
	args := []any{userID}
	if marketID != nil {
		query += " AND market_id = $2"
		args = append(args, int64(*marketID))
	}
	query += " ORDER BY market_id ASC, bin_index ASC"

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			mid     uint64
			bin     PositionBin
			lastSeq int64
		)
		if err := rows.Scan(&mid, &bin.Index, &bin.Amount, &lastSeq); err != nil {
			return nil, err
		}
		bin.Amount = qs.scale(bin.Amount)

		if n := len(out); n == 0 || out[n-1].MarketID != mid {
			out = append(out, PositionResponse{
				UserID:       userID,
				MarketID:     mid,
				AsOfSequence: asOfSeq,
			})
		}
		p := &out[len(out)-1]
		p.Bins = append(p.Bins, bin)
		p.LastSequence = max(p.LastSequence, lastSeq)
	}

	return out, rows.Err()
}

// GetMarketEvents returns the committed commands of one market, newest
// first, paging backwards from beforeSequence.
func (qs *QueryService) GetMarketEvents(
	ctx context.Context,
	marketID uint64,
	limit int,
	beforeSequence *int64,
) (entries []EventLogEntry, err error) {
	defer func(start time.Time) { qs.observe("GetMarketEvents", start, err) }(time.Now())

	query := `
		SELECT sequence, event_type, idempotency_key, actor, state_hash, timestamp
		FROM event_log.events
		WHERE market_id = $1
	`
	args := []any{int64(marketID)}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e    EventLogEntry
			hash []byte
			ts   time.Time
		)
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Actor, &hash, &ts); err != nil {
			return nil, err
		}
		e.StateHash = hex.EncodeToString(hash)
		e.Timestamp = ts.Unix()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetJournalHistory returns journal entries touching a user's wallet, newest
// first, paging backwards from beforeSequence.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	beforeSequence *int64,
) (entries []JournalHistoryEntry, err error) {
	defer func(start time.Time) { qs.observe("GetJournalHistory", start, err) }(time.Now())

	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []any{accountPrefix}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e  JournalHistoryEntry
			jt int32
		)
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&jt, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.Amount = qs.scale(e.Amount)
		e.JournalType = ledger.JournalType(jt).String()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the event log and that each
// projected market's collateral equals the net of its vault journals.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (report *IntegrityReport, err error) {
	defer func(start time.Time) { qs.observe("VerifyIntegrity", start, err) }(time.Now())

	report = &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND (e2.sequence IS NULL OR e1.prev_hash <> e2.state_hash)
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			rows.Close()
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Buys debit the vault, payouts credit it; see ledger.BalanceTracker.
	vaultRows, err := qs.db.QueryContext(ctx, `
		WITH deltas AS (
			SELECT split_part(debit_account, ':', 2)::BIGINT AS market_id, amount::NUMERIC AS delta
			FROM event_log.journal WHERE debit_account LIKE 'market:%'
			UNION ALL
			SELECT split_part(credit_account, ':', 2)::BIGINT, -amount::NUMERIC
			FROM event_log.journal WHERE credit_account LIKE 'market:%'
		), vaults AS (
			SELECT market_id, SUM(delta) AS balance FROM deltas GROUP BY market_id
		)
		SELECT m.market_id, m.collateral_balance, COALESCE(v.balance, 0)
		FROM projections.markets m
		LEFT JOIN vaults v ON v.market_id = m.market_id
		WHERE m.collateral_balance <> COALESCE(v.balance, 0)
		ORDER BY m.market_id
	`)
	if err != nil {
		return nil, err
	}
	defer vaultRows.Close()

	for vaultRows.Next() {
		var vm VaultMismatch
		if err := vaultRows.Scan(&vm.MarketID, &vm.Projected, &vm.Journaled); err != nil {
			return nil, err
		}
		vm.Projected = qs.scale(vm.Projected)
		vm.Journaled = qs.scale(vm.Journaled)
		report.VaultMismatches = append(report.VaultMismatches, vm)
	}
	if err := vaultRows.Err(); err != nil {
		return nil, err
	}

	var latest sql.NullInt64
	if err := qs.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&latest); err != nil {
		return nil, err
	}
	report.LatestSequence = -1
	if latest.Valid {
		report.LatestSequence = latest.Int64
	}
	if report.WatermarkSequence, err = qs.getWatermark(ctx); err != nil {
		return nil, err
	}
	report.ProjectionLag = report.LatestSequence - report.WatermarkSequence

	// Vault comparisons are only meaningful once projections have caught up.
	report.IsHealthy = len(report.HashChainBreaks) == 0 &&
		(report.ProjectionLag > 0 || len(report.VaultMismatches) == 0)
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE projection_name = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	return seq, err
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
