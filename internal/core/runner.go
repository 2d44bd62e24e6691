package core

import (
	"context"
	"errors"

	"RangeLedger/internal/event"
	"RangeLedger/internal/observability"
)

// ErrRunnerStopped is returned to callers whose request arrives after Run exits.
var ErrRunnerStopped = errors.New("core runner stopped")

type result struct {
	receipt *Receipt
	err     error
}

type request struct {
	evt   event.Event
	view  func(*DeterministicCore) error
	reply chan result
}

// Runner serializes every command and view onto one goroutine, so the core
// needs no locks.
type Runner struct {
	core    *DeterministicCore
	reqs    chan request
	done    chan struct{}
	metrics *observability.Metrics
}

func NewRunner(core *DeterministicCore, queueSize int, metrics *observability.Metrics) *Runner {
	r := &Runner{
		core:    core,
		reqs:    make(chan request, queueSize),
		done:    make(chan struct{}),
		metrics: metrics,
	}
	if metrics != nil {
		metrics.ChannelCapacity.WithLabelValues("core").Set(float64(queueSize))
	}
	return r
}

// Run processes requests until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-r.reqs:
			r.observeQueue()
			if req.view != nil {
				req.reply <- result{err: req.view(r.core)}
				continue
			}
			receipt, err := r.core.ProcessEvent(req.evt)
			req.reply <- result{receipt: receipt, err: err}
		}
	}
}

func (r *Runner) observeQueue() {
	if r.metrics == nil {
		return
	}
	depth := float64(len(r.reqs))
	r.metrics.CoreQueueDepth.Set(depth)
	r.metrics.ChannelSize.WithLabelValues("core").Set(depth)
	if c := cap(r.reqs); c > 0 {
		r.metrics.ChannelUtilization.WithLabelValues("core").Set(depth / float64(c))
	}
}

// Submit applies evt on the core goroutine and waits for the receipt.
func (r *Runner) Submit(ctx context.Context, evt event.Event) (*Receipt, error) {
	res, err := r.do(ctx, request{evt: evt, reply: make(chan result, 1)})
	if err != nil {
		return nil, err
	}
	return res.receipt, res.err
}

// View runs fn on the core goroutine. fn must not retain the core.
func (r *Runner) View(ctx context.Context, fn func(*DeterministicCore) error) error {
	res, err := r.do(ctx, request{view: fn, reply: make(chan result, 1)})
	if err != nil {
		return err
	}
	return res.err
}

func (r *Runner) do(ctx context.Context, req request) (result, error) {
	select {
	case r.reqs <- req:
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-r.done:
		return result{}, ErrRunnerStopped
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		// The core still applies the command; the caller just stops waiting.
		return result{}, ctx.Err()
	case <-r.done:
		return result{}, ErrRunnerStopped
	}
}
