package ingestion

import (
	"context"
	"errors"

	"RangeLedger/internal/core"
	"RangeLedger/internal/event"
	"RangeLedger/internal/observability"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the gRPC ingest limiter refuses a command.
var ErrRateLimited = errors.New("ingest rate limit exceeded")

// GRPCIngestService accepts commands from the gRPC/HTTP surface. NATS remains
// the high-throughput path; this one is throttled so that manual traffic
// cannot starve it.
type GRPCIngestService struct {
	submitter Submitter
	limiter   *rate.Limiter
	metrics   *observability.Metrics
}

// NewGRPCIngestService allows perSecond commands with the given burst.
// perSecond <= 0 disables throttling.
func NewGRPCIngestService(submitter Submitter, perSecond float64, burst int, metrics *observability.Metrics) *GRPCIngestService {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &GRPCIngestService{
		submitter: submitter,
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   metrics,
	}
}

// Inject decodes a JSON command of the given type and applies it.
func (s *GRPCIngestService) Inject(ctx context.Context, eventType string, data []byte) (*core.Receipt, error) {
	evt, err := event.Decode(eventType, data)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, evt)
}

// Submit validates and applies an already typed command.
func (s *GRPCIngestService) Submit(ctx context.Context, evt event.Event) (*core.Receipt, error) {
	if !s.limiter.Allow() {
		if s.metrics != nil {
			s.metrics.IngestRateLimited.WithLabelValues("grpc").Inc()
		}
		return nil, ErrRateLimited
	}
	if err := event.Validate(evt); err != nil {
		return nil, err
	}
	return s.submitter.Submit(ctx, evt)
}
