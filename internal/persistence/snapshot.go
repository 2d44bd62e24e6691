package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"RangeLedger/internal/core"
	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/state"

	"github.com/google/uuid"
)

// SnapshotFormatVersion tags the JSON layout of SnapshotData.
const SnapshotFormatVersion = 1

// SnapshotManager handles creating and loading state snapshots for recovery.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serialized form of core.SnapshotState.
type SnapshotData struct {
	Sequence        int64                 `json:"sequence"`
	StateHash       []byte                `json:"state_hash"`
	Registry        *state.Registry       `json:"registry"`
	Markets         []*state.Market       `json:"markets"`
	Positions       []*state.Position     `json:"positions"`
	Balances        []ledger.BalanceEntry `json:"balances"`
	IdempotencyKeys []string              `json:"idempotency_keys"` // Recent keys for LRU warming
	CreatedAt       time.Time             `json:"created_at"`
}

// NewSnapshotData converts the core's snapshot into its stored form.
func NewSnapshotData(s *core.SnapshotState, createdAt time.Time) *SnapshotData {
	return &SnapshotData{
		Sequence:        s.Sequence,
		StateHash:       append([]byte(nil), s.StateHash[:]...),
		Registry:        s.Registry,
		Markets:         s.Markets,
		Positions:       s.Positions,
		Balances:        s.Balances,
		IdempotencyKeys: s.IdempotencyKeys,
		CreatedAt:       createdAt,
	}
}

// CoreState converts the stored form back into core.SnapshotState.
func (d *SnapshotData) CoreState() (*core.SnapshotState, error) {
	s := &core.SnapshotState{
		Sequence:        d.Sequence,
		Registry:        d.Registry,
		Markets:         d.Markets,
		Positions:       d.Positions,
		Balances:        d.Balances,
		IdempotencyKeys: d.IdempotencyKeys,
	}
	if len(d.StateHash) != len(s.StateHash) {
		return nil, fmt.Errorf("snapshot %d: state hash has %d bytes", d.Sequence, len(d.StateHash))
	}
	copy(s.StateHash[:], d.StateHash)
	return s, nil
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot and returns its encoded size.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.Sequence, data, snap.StateHash, SnapshotFormatVersion, len(data), snap.CreatedAt)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	var data []byte
	var version int
	err := sm.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if version != SnapshotFormatVersion {
		return nil, fmt.Errorf("snapshot format version %d not supported", version)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// MarkVerified marks a snapshot as verified after an integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads up to limit events starting at fromSequence, for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, market_id, actor, payload,
		       state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.MarketID, &e.Actor,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, or -1 if empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := sm.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// Envelope rebuilds the committed envelope from a stored row.
func (e EventRow) Envelope() (*event.EventEnvelope, error) {
	et, ok := event.ParseEventType(e.EventType)
	if !ok {
		return nil, fmt.Errorf("seq %d: unknown event type %q", e.Sequence, e.EventType)
	}
	actor, err := uuid.Parse(e.Actor)
	if err != nil {
		return nil, fmt.Errorf("seq %d: actor: %w", e.Sequence, err)
	}
	if len(e.StateHash) != 32 || len(e.PrevHash) != 32 {
		return nil, fmt.Errorf("seq %d: malformed hash columns", e.Sequence)
	}

	env := &event.EventEnvelope{
		Sequence:       e.Sequence,
		IdempotencyKey: e.IdempotencyKey,
		EventType:      et,
		Timestamp:      e.Timestamp,
		Actor:          actor,
		Payload:        e.Payload,
	}
	if e.MarketID != nil {
		id := uint64(*e.MarketID)
		env.MarketID = &id
	}
	copy(env.StateHash[:], e.StateHash)
	copy(env.PrevHash[:], e.PrevHash)
	return env, nil
}
