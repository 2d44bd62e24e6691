package main

import (
	"context"
	"fmt"
	"time"

	"RangeLedger/internal/core"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/persistence"

	"github.com/rs/zerolog"
)

const replayBatchSize = 1000

// recoverCore restores the latest verified snapshot, replays every logged
// event after it and warms the idempotency cache. Replay fails hard on any
// divergence from the logged hash chain.
func recoverCore(
	ctx context.Context,
	c *core.DeterministicCore,
	snaps *persistence.SnapshotManager,
	keys *persistence.PostgresIdempotencyChecker,
	warmKeys int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) error {
	snap, err := snaps.LoadLatestSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap != nil {
		state, err := snap.CoreState()
		if err != nil {
			return err
		}
		if err := c.RestoreFromSnapshot(state); err != nil {
			return fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
		}
		logger.Info().Int64("sequence", snap.Sequence).Int("markets", len(snap.Markets)).Msg("restored snapshot")
	} else {
		logger.Info().Msg("no snapshot, cold start")
	}

	start := time.Now()
	replayed, err := replayFrom(ctx, c, snaps, metrics)
	if err != nil {
		return err
	}
	if metrics != nil {
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}

	latest, err := snaps.GetLatestSequence(ctx)
	if err != nil {
		return fmt.Errorf("latest sequence: %w", err)
	}
	if tip := c.GetSequence() - 1; latest > tip {
		return fmt.Errorf("event log reaches %d but replay stopped at %d", latest, tip)
	}
	hash := c.GetStateHash()
	logger.Info().
		Int64("replayed", replayed).
		Int64("sequence", c.GetSequence()).
		Hex("state_hash", hash[:]).
		Dur("elapsed", time.Since(start)).
		Msg("replay complete, chain verified")

	if warmKeys > 0 {
		recent, err := keys.RecentKeys(ctx, warmKeys)
		if err != nil {
			return fmt.Errorf("warm idempotency keys: %w", err)
		}
		c.WarmLRU(recent)
	}
	return nil
}

func replayFrom(ctx context.Context, c *core.DeterministicCore, snaps *persistence.SnapshotManager, metrics *observability.Metrics) (int64, error) {
	var replayed int64
	from := c.GetSequence()
	for {
		rows, err := snaps.LoadEventsFrom(ctx, from, replayBatchSize)
		if err != nil {
			return replayed, fmt.Errorf("load events from %d: %w", from, err)
		}
		if len(rows) == 0 {
			return replayed, nil
		}
		for _, row := range rows {
			env, err := row.Envelope()
			if err != nil {
				return replayed, err
			}
			if err := c.Replay(env); err != nil {
				return replayed, err
			}
			replayed++
			if metrics != nil {
				metrics.ReplayEventsTotal.Inc()
			}
		}
		from = rows[len(rows)-1].Sequence + 1
	}
}
