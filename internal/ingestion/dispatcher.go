package ingestion

import (
	"context"
	"errors"
	"time"

	"RangeLedger/internal/core"
	"RangeLedger/internal/errs"
	"RangeLedger/internal/event"
	"RangeLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Submitter applies a command on the core goroutine. *core.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, evt event.Event) (*core.Receipt, error)
}

// Dispatcher drains raw NATS messages, parses them and submits the commands
// to the core in arrival order.
//
// Messages are acked once the core has answered, whether the command was
// committed or rejected: rejections are deterministic and redelivery would
// only reproduce them. Unparseable messages are acked and dropped.
type Dispatcher struct {
	submitter Submitter
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewDispatcher(submitter Submitter, metrics *observability.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{submitter: submitter, metrics: metrics, logger: logger}
}

// Run consumes rawChan until it is closed or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, rawChan <-chan RawEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-rawChan:
			if !ok {
				return nil
			}
			d.handle(ctx, raw)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw RawEvent) {
	start := time.Now()

	evt, err := ParseRawEvent(raw)
	if err != nil {
		d.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping unparseable command")
		ack(raw)
		return
	}

	receipt, err := d.submitter.Submit(ctx, evt)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, core.ErrRunnerStopped):
		// shutting down: let JetStream redeliver to the next writer
		if raw.NakFunc != nil {
			raw.NakFunc()
		}
		return
	case err != nil:
		d.logger.Debug().
			Err(err).
			Str("event_type", evt.EventType().String()).
			Str("idempotency_key", evt.IdempotencyKey()).
			Str("code", errs.CodeOf(err)).
			Msg("command rejected")
	default:
		d.logger.Debug().
			Int64("sequence", receipt.Sequence).
			Str("event_type", evt.EventType().String()).
			Msg("command applied")
	}
	ack(raw)

	if d.metrics != nil {
		d.metrics.NATSPullLatency.WithLabelValues(CommandSubjectPrefix + evt.EventType().Token()).Observe(time.Since(start).Seconds())
		if !raw.ReceivedAt.IsZero() {
			d.metrics.IngestToApply.WithLabelValues(evt.EventType().String()).Observe(time.Since(raw.ReceivedAt).Seconds())
		}
	}
}

func ack(raw RawEvent) {
	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}
