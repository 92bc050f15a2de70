// Package dispatch provides a throughput-bounded dispatcher for completion
// providers. It enforces a sliding-window rate limit and a bounded
// concurrency limit against a wrapped provider, preserves FIFO admission
// order, and aggregates token usage across concurrently completing requests.
//
// The dispatcher itself implements domain.Provider, so it composes with
// other provider decorators through the same capability contract.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// windowSpan is the trailing duration the rate limit is enforced over.
const windowSpan = time.Minute

// Dispatcher states. Running accepts submissions, Stopping drains in-flight
// work, Stopped is terminal.
const (
	stateRunning int32 = iota
	stateStopping
	stateStopped
)

// Config holds the dispatcher limits. Both must be positive; invalid values
// are a construction-time error, never a runtime one.
type Config struct {
	MaxRequestsPerMinute  int `env:"DISPATCH_MAX_REQUESTS_PER_MINUTE" envDefault:"60"`
	MaxConcurrentRequests int `env:"DISPATCH_MAX_CONCURRENT_REQUESTS" envDefault:"8"`
}

// Validate checks the limits.
func (c Config) Validate() error {
	if c.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("%w: max requests per minute must be positive, got %d",
			domain.ErrInvalidConfig, c.MaxRequestsPerMinute)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("%w: max concurrent requests must be positive, got %d",
			domain.ErrInvalidConfig, c.MaxConcurrentRequests)
	}
	return nil
}

// Dispatcher wraps a provider and moves submitted requests from an unbounded
// FIFO queue into a bounded worker pool as the rate window allows. Gating is
// conjunctive: a request is dispatched only when both a window admission and
// a worker slot are available at the same instant.
type Dispatcher struct {
	provider domain.Provider
	cfg      Config
	logger   *zap.Logger

	window *rateWindow
	queue  *admissionQueue
	pool   *workerPool
	usage  *domain.UsageAccumulator

	state    atomic.Int32
	stop     chan struct{}
	loopDone chan struct{}

	now func() time.Time // test hook
}

// New creates a dispatcher around provider and starts its control loop.
func New(provider domain.Provider, cfg Config) (*Dispatcher, error) {
	return newDispatcher(provider, cfg, windowSpan)
}

// newDispatcher takes the window span as a parameter so tests can exercise
// window sliding without minute-long waits.
func newDispatcher(provider domain.Provider, cfg Config, span time.Duration) (*Dispatcher, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider cannot be nil", domain.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		provider: provider,
		cfg:      cfg,
		logger:   observability.FromContext(context.Background()).Named("dispatch"),
		window:   newRateWindow(cfg.MaxRequestsPerMinute, span),
		queue:    newAdmissionQueue(),
		pool:     newWorkerPool(cfg.MaxConcurrentRequests),
		usage:    domain.NewUsageAccumulator(),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
		now:      time.Now,
	}

	go d.loop()
	return d, nil
}

// Complete submits a request and blocks until its result slot is written.
// The returned error is the provider's error verbatim when the provider
// failed, or ErrDispatcherClosed when shutdown won the race.
//
// A caller whose context expires stops waiting, but the dispatched work
// still runs to completion and its usage is still accounted.
func (d *Dispatcher) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if d.state.Load() != stateRunning {
		return nil, domain.ErrDispatcherClosed
	}

	pr := newPendingRequest(ctx, uuid.NewString(), req, d.now())
	if !d.queue.enqueue(pr) {
		return nil, domain.ErrDispatcherClosed
	}

	select {
	case res := <-pr.result:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Name returns the composed identity, e.g. "dispatch(openai)".
func (d *Dispatcher) Name() string {
	return "dispatch(" + d.provider.Name() + ")"
}

// IsModelSupported delegates to the wrapped provider.
func (d *Dispatcher) IsModelSupported(ctx context.Context, model string) bool {
	return d.provider.IsModelSupported(ctx, model)
}

// SupportedModels delegates to the wrapped provider.
func (d *Dispatcher) SupportedModels(ctx context.Context) []string {
	return d.provider.SupportedModels(ctx)
}

// UsageTotals returns the accumulated token usage across all completed
// requests. The dispatcher is itself a UsageReporter, so stacking
// dispatchers keeps delta accounting intact.
func (d *Dispatcher) UsageTotals() domain.UsageTotals {
	return d.usage.Totals()
}

// Shutdown stops admissions, fails whatever is still queued with
// ErrDispatcherClosed, and waits for in-flight work to drain. The drain wait
// is bounded by ctx; on expiry the dispatcher stays in Stopping and an error
// naming the stragglers is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d.state.CompareAndSwap(stateRunning, stateStopping) {
		close(d.stop)
	}

	<-d.loopDone

	d.pool.close()
	if err := d.pool.awaitDrain(ctx); err != nil {
		inFlight := d.pool.inFlight()
		d.logger.Error("shutdown drain exceeded deadline",
			zap.Int64("in_flight", inFlight),
			zap.Error(err))
		return fmt.Errorf("drain timed out with %d requests in flight: %w", inFlight, err)
	}

	d.state.Store(stateStopped)
	d.logger.Info("dispatcher stopped",
		zap.Int64("input_tokens", d.usage.Totals().InputTokens),
		zap.Int64("output_tokens", d.usage.Totals().OutputTokens))
	return nil
}

// loop is the dispatcher control goroutine. It is event-driven: it sleeps
// until the queue gains work, a worker slot frees, or the rate window is
// about to admit again, then dispatches everything currently admissible.
func (d *Dispatcher) loop() {
	defer close(d.loopDone)

	var rateTimer *time.Timer
	defer func() {
		if rateTimer != nil {
			rateTimer.Stop()
		}
	}()

	for {
		rateLimited := d.dispatchReady()

		var rateC <-chan time.Time
		if rateLimited {
			if expiry, ok := d.window.nextExpiry(); ok {
				wait := expiry.Sub(d.now())
				if wait < 0 {
					wait = 0
				}
				if rateTimer == nil {
					rateTimer = time.NewTimer(wait)
				} else {
					if !rateTimer.Stop() {
						select {
						case <-rateTimer.C:
						default:
						}
					}
					rateTimer.Reset(wait)
				}
				rateC = rateTimer.C
			}
		}

		select {
		case <-d.queue.wakeCh():
		case <-d.pool.freedCh():
		case <-rateC:
		case <-d.stop:
			d.failPending()
			return
		}
	}
}

// dispatchReady admits queued requests while both gates allow it. It returns
// true when it stopped because the rate window is full while work is still
// queued, so the loop knows to arm the window-expiry timer.
func (d *Dispatcher) dispatchReady() bool {
	for {
		if d.queue.len() == 0 {
			return false
		}
		if !d.pool.hasFreeSlot() {
			return false
		}

		if !d.window.tryAdmit(d.now()) {
			return true
		}

		pr, ok := d.queue.dequeue()
		if !ok {
			// Admission recorded but the queue emptied underneath us;
			// cannot happen while the loop is the only consumer.
			return false
		}

		if !d.pool.trySubmit(func() { d.run(pr) }) {
			// Slot check passed yet submission failed. Deliver a loud
			// failure rather than leave the caller hanging.
			err := fmt.Errorf("%w: worker pool rejected an admitted request", domain.ErrDispatchInternal)
			d.logger.Error("dispatch failed", zap.String("request_id", pr.id), zap.Error(err))
			pr.deliver(nil, err)
		}
	}
}

// failPending resolves every queued-but-undispatched request with
// ErrDispatcherClosed. Documented shutdown policy: in-flight work drains,
// queued work fails fast.
func (d *Dispatcher) failPending() {
	pending := d.queue.closeAndDrain()
	for _, pr := range pending {
		pr.deliver(nil, domain.ErrDispatcherClosed)
	}
	if len(pending) > 0 {
		d.logger.Info("failed undispatched requests on shutdown",
			zap.Int("count", len(pending)))
	}
}

// run executes one dispatched request on a worker goroutine. The result
// slot is written on every exit path, including provider panics; a caller
// must never be left blocking.
func (d *Dispatcher) run(pr *pendingRequest) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: panic during completion: %v", domain.ErrDispatchInternal, rec)
			d.logger.Error("worker panic",
				zap.String("request_id", pr.id),
				zap.Any("panic", rec))
			pr.deliver(nil, err)
		}
	}()

	reporter, hasTotals := d.provider.(domain.UsageReporter)
	var before domain.UsageTotals
	if hasTotals {
		before = reporter.UsageTotals()
	}

	// The provider call is detached from the caller's cancellation: once
	// admitted, a request runs to completion (trace fields survive).
	resp, err := d.provider.Complete(context.WithoutCancel(pr.ctx), pr.req)
	if err != nil {
		pr.deliver(nil, err)
		return
	}

	// Per-response usage is exact even when completions interleave, so it
	// wins over before/after snapshots of the provider's cumulative
	// counters, which can cross-attribute tokens under concurrency.
	switch {
	case resp != nil && resp.Usage.TotalTokens > 0:
		d.usage.Add(int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
	case hasTotals:
		delta := reporter.UsageTotals().Sub(before)
		d.usage.Add(delta.InputTokens, delta.OutputTokens)
	}

	pr.deliver(resp, nil)
}
