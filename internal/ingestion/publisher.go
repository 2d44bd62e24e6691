package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"RangeLedger/internal/core"
	"RangeLedger/internal/event"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundSubjectPrefix roots the outbound stream:
// rangebet.ledger.events.<OutcomeName>.<market>.
const OutboundSubjectPrefix = "rangebet.ledger.events."

// OutboundStream holds every committed outcome.
const OutboundStream = "RANGEBET_LEDGER_EVENTS"

// streamPublisher is the slice of jetstream.JetStream the publisher needs.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes committed outcomes to NATS for downstream consumers.
type OutboundPublisher struct {
	js        streamPublisher
	inputChan <-chan PublishableEvent
	logger    zerolog.Logger
}

// PublishableEvent is a committed command ready for outbound publishing.
type PublishableEvent struct {
	Sequence       int64         `json:"sequence"`
	EventType      string        `json:"event_type"`
	Outcome        string        `json:"outcome"`
	IdempotencyKey string        `json:"idempotency_key"`
	MarketID       *uint64       `json:"market_id,omitempty"`
	Payload        event.Outcome `json:"payload"`
	StateHash      string        `json:"state_hash"`
	Timestamp      time.Time     `json:"timestamp"`
}

// NewPublishableEvent converts a core output into its outbound form.
func NewPublishableEvent(out core.CoreOutput) PublishableEvent {
	env := out.Envelope
	pe := PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		MarketID:       env.MarketID,
		Payload:        out.Outcome,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Timestamp:      env.Timestamp,
	}
	if out.Outcome != nil {
		pe.Outcome = out.Outcome.OutcomeName()
	}
	return pe
}

// Subject returns the outbound subject for the event.
func (pe PublishableEvent) Subject() string {
	name := pe.Outcome
	if name == "" {
		name = pe.EventType
	}
	if pe.MarketID == nil {
		return OutboundSubjectPrefix + name
	}
	return fmt.Sprintf("%s%s.%d", OutboundSubjectPrefix, name, *pe.MarketID)
}

func NewOutboundPublisher(js streamPublisher, inputChan <-chan PublishableEvent, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run publishes until ctx is cancelled or the input channel closes.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				// consumers can fall back to the event log
				op.logger.Warn().Err(err).Int64("sequence", evt.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// sequence doubles as the dedup id so a republish after restart is dropped by the server
	_, err = op.js.Publish(ctx, evt.Subject(), data, jetstream.WithMsgID(fmt.Sprintf("seq-%d", evt.Sequence)))
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       OutboundStream,
		Subjects:   []string{OutboundSubjectPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Str("stream", OutboundStream).Msg("ensured outbound stream")
	return nil
}
