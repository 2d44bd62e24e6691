package core

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"RangeLedger/internal/errs"
	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/state"

	"github.com/rs/zerolog"
)

// globalCheckInterval is how often (in sequences) the zero-sum check runs.
const globalCheckInterval = 1000

// DeterministicCore is the single-threaded command processor. It owns the
// market/position state and the custody balances and must only be driven
// from one goroutine (see Runner).
type DeterministicCore struct {
	sequence       int64
	store          *state.Store
	hasher         *StateHasher
	balanceTracker *ledger.BalanceTracker
	journalGen     *ledger.JournalGenerator
	validator      *ledger.InvariantValidator
	idempotency    *IdempotencyChecker
	closeOrder     *CloseOrderValidator
	metrics        *observability.Metrics
	logger         zerolog.Logger

	// replaying suppresses output emission while the log is re-applied
	replaying bool

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is everything downstream workers need for one committed command.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch // nil when no collateral moved
	Outcome    event.Outcome
	StateDelta []byte

	// Post-commit copies of the records the command wrote, for projections.
	Markets   []*state.Market
	Positions []*state.Position
}

// Receipt is returned to the submitter of a committed command.
type Receipt struct {
	Sequence  int64
	StateHash [32]byte
	Outcome   event.Outcome
	Batch     *ledger.Batch
}

func NewDeterministicCore(
	startSequence int64,
	assetID ledger.AssetID,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()

	return &DeterministicCore{
		sequence:       startSequence,
		store:          state.NewStore(),
		hasher:         NewStateHasher(),
		balanceTracker: balanceTracker,
		journalGen:     ledger.NewJournalGenerator(assetID, balanceTracker),
		validator:      ledger.NewInvariantValidator(balanceTracker),
		idempotency:    NewIdempotencyChecker(DefaultLRUCapacity, dbChecker, metrics, logger),
		closeOrder:     NewCloseOrderValidator(metrics),
		metrics:        metrics,
		logger:         logger,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// applyCtx is what a handler sees: the open transaction plus the
// deterministic inputs for journal generation.
type applyCtx struct {
	tx  *state.Tx
	seq int64
	ref string
	ts  time.Time
}

func (a applyCtx) transfer(marketID, amount uint64) ledger.Transfer {
	return ledger.Transfer{
		EventRef:  a.ref,
		Sequence:  a.seq,
		Timestamp: a.ts.UnixMicro(),
		MarketID:  marketID,
		Amount:    amount,
	}
}

// ProcessEvent is the main processing pipeline. A returned error means the
// command was rejected and nothing changed: no state, no balances, no
// sequence, no hash.
func (c *DeterministicCore) ProcessEvent(evt event.Event) (*Receipt, error) {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier). The log holds no duplicates and
	// tier 2 already knows every logged key, so replay skips it.
	if !c.replaying && c.idempotency.IsDuplicate(eventType, idempotencyKey) {
		c.recordRejection(eventType, errs.ErrDuplicateCommand)
		return nil, fmt.Errorf("command %s: %w", idempotencyKey, errs.ErrDuplicateCommand)
	}

	// Step 2: Header check and canonical payload; unknown command types fail here
	if err := event.Validate(evt); err != nil {
		c.recordRejection(eventType, err)
		return nil, err
	}
	payload, err := event.Encode(evt)
	if err != nil {
		c.recordRejection(eventType, err)
		return nil, err
	}

	// Step 3: Dispatch inside a transaction
	a := applyCtx{
		tx:  c.store.Begin(),
		seq: c.sequence,
		ref: idempotencyKey,
		ts:  evt.OccurredAt(),
	}
	outcome, batch, err := c.dispatchEvent(a, evt)
	if err != nil {
		a.tx.Rollback()
		c.logger.Debug().
			Err(err).
			Str("event_type", eventType).
			Str("idempotency_key", idempotencyKey).
			Str("code", errs.CodeOf(err)).
			Msg("command rejected")
		c.recordRejection(eventType, err)
		return nil, err
	}

	// Step 4: Validate batch balance before anything is published
	if batch != nil {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
	}

	// Step 5: Commit state and apply balances
	touched := a.tx.Commit()
	if batch != nil {
		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("FATAL: apply batch after commit: %v", err))
		}
	}

	// Step 6: Post-checks
	if err := c.postCheckInvariants(touched); err != nil {
		c.logger.Error().Err(err).Int64("sequence", c.sequence).Str("event_type", eventType).Msg("invariant violated")
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 7: State digest and hash chain
	hashStart := time.Now()
	stateDigest := c.computeStateDigest(touched, batch)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		MarketID:       evt.MarketID(),
		Timestamp:      evt.OccurredAt(),
		Actor:          evt.Actor(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	// Step 8: Emit outputs
	if !c.replaying {
		output := CoreOutput{
			Envelope:   envelope,
			Batch:      batch,
			Outcome:    outcome,
			StateDelta: stateDigest,
		}
		if c.projectionChan != nil {
			output.Markets, output.Positions = c.changedRecords(touched)
		}
		c.emit(output)
	}

	// Step 9: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	c.recordApplied(eventType, outcome, batch, start)

	receipt := &Receipt{
		Sequence:  c.sequence,
		StateHash: stateHash,
		Outcome:   outcome,
		Batch:     batch,
	}
	c.sequence++
	return receipt, nil
}

// emit hands output to the persistence and projection workers.
// The persist channel blocks (backpressure); the projection channel drops.
func (c *DeterministicCore) emit(output CoreOutput) {
	if c.persistChan != nil {
		select {
		case c.persistChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.PersistBackpressure.Inc()
			}
			c.persistChan <- output
		}
	}

	if c.projectionChan != nil {
		select {
		case c.projectionChan <- output:
		default:
			// Projections can rebuild from the event log
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}
}

func (c *DeterministicCore) changedRecords(touched state.Touched) ([]*state.Market, []*state.Position) {
	markets := make([]*state.Market, 0, len(touched.Markets))
	for _, id := range touched.Markets {
		if m, err := c.store.Market(id); err == nil {
			markets = append(markets, m.Clone())
		}
	}
	positions := make([]*state.Position, 0, len(touched.Positions))
	for _, key := range touched.Positions {
		if p := c.store.Position(key.UserID, key.MarketID); p != nil {
			positions = append(positions, p.Clone())
		}
	}
	return markets, positions
}

// computeStateDigest creates canonical bytes for the state hash: every record
// the command wrote, then every custody account it moved.
func (c *DeterministicCore) computeStateDigest(touched state.Touched, batch *ledger.Batch) []byte {
	digest := make([]byte, 0, 256)

	if touched.Registry {
		digest = append(digest, 'R')
		digest = append(digest, c.store.Registry().CanonicalBytes()...)
	}

	for _, id := range touched.Markets {
		m, err := c.store.Market(id)
		if err != nil {
			panic(fmt.Sprintf("FATAL: touched market %d missing after commit", id))
		}
		digest = append(digest, 'M')
		digest = append(digest, m.CanonicalBytes()...)
	}

	for _, key := range touched.Positions {
		p := c.store.Position(key.UserID, key.MarketID)
		if p == nil {
			panic(fmt.Sprintf("FATAL: touched position %s/%d missing after commit", key.UserID, key.MarketID))
		}
		digest = append(digest, 'P')
		digest = append(digest, p.CanonicalBytes()...)
	}

	if batch != nil {
		accounts := make([]ledger.AccountKey, 0, 2*len(batch.Journals))
		for _, j := range batch.Journals {
			accounts = append(accounts, j.DebitAccount, j.CreditAccount)
		}
		slices.SortFunc(accounts, func(a, b ledger.AccountKey) int {
			return strings.Compare(a.AccountPath(), b.AccountPath())
		})
		accounts = slices.Compact(accounts)

		for _, key := range accounts {
			path := key.AccountPath()
			digest = append(digest, 'A', byte(len(path)))
			digest = append(digest, path...)
			digest = appendInt64LE(digest, c.balanceTracker.GetBalance(key))
		}
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after commit
func (c *DeterministicCore) postCheckInvariants(touched state.Touched) error {
	assetID := c.journalGen.AssetID()

	for _, id := range touched.Markets {
		m, err := c.store.Market(id)
		if err != nil {
			return err
		}
		sum, ok := m.SumBins()
		if !ok || sum != m.TotalSupply {
			return fmt.Errorf("market %d: total supply %d, bins sum to %d (ok=%v)", id, m.TotalSupply, sum, ok)
		}
		if err := c.validator.ValidateVaultMatches(id, assetID, m.CollateralBalance); err != nil {
			return err
		}
	}

	// Periodic zero-sum check over every account
	if c.sequence > 0 && c.sequence%globalCheckInterval == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("at seq %d: %w", c.sequence, err)
		}
	}

	return nil
}

func (c *DeterministicCore) dispatchEvent(a applyCtx, evt event.Event) (event.Outcome, *ledger.Batch, error) {
	switch e := evt.(type) {
	case *event.InitializeProgram:
		return c.handleInitializeProgram(a, e)
	case *event.CreateMarket:
		return c.handleCreateMarket(a, e)
	case *event.ActivateMarket:
		return c.handleActivateMarket(a, e)
	case *event.BuyTokens:
		return c.handleBuyTokens(a, e)
	case *event.SellTokens:
		return c.handleSellTokens(a, e)
	case *event.TransferPosition:
		return c.handleTransferPosition(a, e)
	case *event.CloseMarket:
		return c.handleCloseMarket(a, e)
	case *event.ClaimReward:
		return c.handleClaimReward(a, e)
	case *event.WithdrawCollateral:
		return c.handleWithdrawCollateral(a, e)
	default:
		return nil, nil, fmt.Errorf("unknown event type %T: %w", evt, errs.ErrInvalidCommand)
	}
}

func (c *DeterministicCore) recordRejection(eventType string, err error) {
	if c.metrics == nil {
		return
	}
	code := errs.CodeOf(err)
	c.metrics.CoreEventsRejected.WithLabelValues(eventType, code).Inc()
	if code == errs.ErrSlippageExceeded.Code {
		side := "buy"
		if eventType == event.EventTypeSellTokens.String() {
			side = "sell"
		}
		c.metrics.SlippageRejections.WithLabelValues(side).Inc()
	}
}

func (c *DeterministicCore) recordApplied(eventType string, outcome event.Outcome, batch *ledger.Batch, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
	c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	c.metrics.CoreSequence.Set(float64(c.sequence))
	if c.replaying {
		c.metrics.ReplayEventsTotal.Inc()
	}

	if batch != nil {
		for _, j := range batch.Journals {
			c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
			c.metrics.CollateralFlow.WithLabelValues(j.JournalType.String()).Add(float64(j.Amount))
		}
	}

	switch o := outcome.(type) {
	case *event.MarketCreated:
		c.metrics.MarketsCreated.Inc()
	case *event.MarketClosed:
		c.metrics.MarketsClosed.Inc()
	case *event.TokensBought:
		c.metrics.TokensTraded.WithLabelValues("buy").Add(sumAmounts(o.Amounts))
	case *event.TokensSold:
		c.metrics.TokensTraded.WithLabelValues("sell").Add(sumAmounts(o.Amounts))
	case *event.PositionTransferred:
		c.metrics.TokensTraded.WithLabelValues("transfer").Add(sumAmounts(o.Amounts))
	}
}

func sumAmounts(amounts []uint64) float64 {
	var s float64
	for _, a := range amounts {
		s += float64(a)
	}
	return s
}

// GetSequence returns the next sequence number to be assigned.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// Store exposes committed state for read-only views.
func (c *DeterministicCore) Store() *state.Store {
	return c.store
}

// Balances exposes the custody balances for read-only views.
func (c *DeterministicCore) Balances() *ledger.BalanceTracker {
	return c.balanceTracker
}

// PendingCloses lists markets not yet closed, in required closing order.
func (c *DeterministicCore) PendingCloses() []uint64 {
	return c.closeOrder.Pending(c.store)
}
