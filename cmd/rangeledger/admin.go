package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"RangeLedger/internal/core"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/persistence"
	"RangeLedger/internal/projection"

	"github.com/rs/zerolog"
)

// adminHooks serves the admin snapshot and rebuild calls and the periodic
// snapshot loop. Core state is always captured on the runner goroutine.
type adminHooks struct {
	runner  *core.Runner
	snaps   *persistence.SnapshotManager
	db      *sql.DB
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func (a *adminHooks) capture(ctx context.Context) (*core.SnapshotState, error) {
	var snap *core.SnapshotState
	err := a.runner.View(ctx, func(c *core.DeterministicCore) error {
		snap = c.CreateSnapshotState()
		return nil
	})
	return snap, err
}

// TakeSnapshot persists the current core state. An empty ledger has nothing
// to save and reports sequence -1.
func (a *adminHooks) TakeSnapshot(ctx context.Context) (int64, int, error) {
	snap, err := a.capture(ctx)
	if err != nil {
		return 0, 0, err
	}
	return a.save(ctx, snap)
}

// RebuildProjections rewrites the projection tables from live core state.
func (a *adminHooks) RebuildProjections(ctx context.Context) (int64, error) {
	snap, err := a.capture(ctx)
	if err != nil {
		return 0, err
	}
	if err := projection.Rebuild(ctx, a.db, snap); err != nil {
		return 0, fmt.Errorf("rebuild projections: %w", err)
	}
	a.logger.Info().Int64("sequence", snap.Sequence).Msg("projections rebuilt")
	return snap.Sequence, nil
}

func (a *adminHooks) save(ctx context.Context, snap *core.SnapshotState) (int64, int, error) {
	if snap.Sequence < 0 {
		return -1, 0, nil
	}
	start := time.Now()
	size, err := a.snaps.SaveSnapshot(ctx, persistence.NewSnapshotData(snap, time.Now().UTC()))
	if err != nil {
		return 0, 0, fmt.Errorf("save snapshot: %w", err)
	}
	// taken from live state, so it is verified by construction
	if err := a.snaps.MarkVerified(ctx, snap.Sequence); err != nil {
		a.logger.Warn().Err(err).Int64("sequence", snap.Sequence).Msg("mark snapshot verified failed")
	}
	if a.metrics != nil {
		a.metrics.SnapshotTaken.Inc()
		a.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		a.metrics.SnapshotSizeBytes.Set(float64(size))
		a.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	return snap.Sequence, size, nil
}

// runPeriodic snapshots whenever interval commands have committed since the
// last one, checking every checkEvery.
func (a *adminHooks) runPeriodic(ctx context.Context, interval int64, checkEvery time.Duration) {
	if checkEvery <= 0 {
		checkEvery = 10 * time.Second
	}
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	var last int64 = -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var current int64
			if err := a.runner.View(ctx, func(c *core.DeterministicCore) error {
				current = c.GetSequence() - 1
				return nil
			}); err != nil || current-last < interval {
				continue
			}
			seq, size, err := a.TakeSnapshot(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			last = seq
			a.logger.Info().Int64("sequence", seq).Int("size_bytes", size).Msg("periodic snapshot")
		}
	}
}
