// Package throttle serializes and paces calls to the external nation API.
//
// A Throttle runs at most one call at a time, in strict FIFO order, and keeps
// consecutive calls at least the configured interval apart. When a call fails
// with a RateLimitedError every later call waits out the requested delay and
// the failed call is appended to the back of the queue to be retried.
package throttle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"openletter/internal/throttle/metrics"
)

// backoffMultiplier scales the interval when the upstream gives no usable
// retry-after value.
const backoffMultiplier = 5

// Throttle is safe for concurrent use. The zero value is not usable; use New.
type Throttle struct {
	mu            sync.Mutex
	queue         []*pending
	draining      bool
	interval      time.Duration
	lastCall      time.Time
	nextAvailable time.Time
	backoffUntil  time.Time

	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type pending struct {
	ctx      context.Context
	label    string
	call     func(context.Context) error
	done     chan error
	requeues int
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(t *Throttle) {
		if c != nil {
			t.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Throttle) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Throttle) {
		t.metrics = m
	}
}

// New creates a throttle that spaces calls at least interval apart.
func New(interval time.Duration, opts ...Option) *Throttle {
	t := &Throttle{
		interval: interval,
		clock:    realClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do queues call and blocks until it has run to completion, returning its
// error. Calls rejected with a RateLimitedError are retried transparently. If
// ctx ends first, Do returns ctx.Err() and the call is skipped when reached.
func (t *Throttle) Do(ctx context.Context, label string, call func(context.Context) error) error {
	p := &pending{
		ctx:   ctx,
		label: label,
		call:  call,
		done:  make(chan error, 1),
	}
	t.enqueue(p)

	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call is Do for calls that produce a value.
func Call[T any](ctx context.Context, t *Throttle, label string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := t.Do(ctx, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Pending returns the number of queued calls, excluding the one in flight.
func (t *Throttle) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Reset drops all timing state and fails queued calls with ErrReset.
func (t *Throttle) Reset() {
	t.mu.Lock()
	queued := t.queue
	t.queue = nil
	t.lastCall = time.Time{}
	t.nextAvailable = time.Time{}
	t.backoffUntil = time.Time{}
	t.mu.Unlock()

	for _, p := range queued {
		p.done <- ErrReset
	}
	t.metrics.SetQueueDepth(0)
}

func (t *Throttle) enqueue(p *pending) {
	t.mu.Lock()
	t.queue = append(t.queue, p)
	depth := len(t.queue)
	start := !t.draining
	if start {
		t.draining = true
	}
	t.mu.Unlock()

	t.metrics.SetQueueDepth(depth)
	if start {
		go t.drain()
	}
}

// drain runs queued calls one at a time until the queue is empty.
func (t *Throttle) drain() {
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.draining = false
			t.mu.Unlock()
			return
		}
		p := t.queue[0]
		t.queue[0] = nil
		t.queue = t.queue[1:]
		depth := len(t.queue)
		t.mu.Unlock()

		t.metrics.SetQueueDepth(depth)
		t.run(p)
	}
}

// waitLocked computes how long to wait before the next call may be issued.
func (t *Throttle) waitLocked(now time.Time) time.Duration {
	var wait time.Duration
	if !t.nextAvailable.IsZero() {
		wait = max(wait, t.nextAvailable.Sub(now))
	}
	if !t.lastCall.IsZero() {
		wait = max(wait, t.interval-now.Sub(t.lastCall))
	}
	if !t.backoffUntil.IsZero() {
		wait = max(wait, t.backoffUntil.Sub(now))
	}
	return wait
}

func (t *Throttle) run(p *pending) {
	if err := p.ctx.Err(); err != nil {
		t.metrics.RecordCall(p.label, "cancelled")
		p.done <- err
		return
	}

	t.mu.Lock()
	wait := t.waitLocked(t.clock.Now())
	t.mu.Unlock()

	if wait > 0 {
		t.metrics.ObserveWait(wait.Seconds())
		if err := t.clock.Sleep(p.ctx, wait); err != nil {
			t.metrics.RecordCall(p.label, "cancelled")
			p.done <- err
			return
		}
	}

	err := p.call(p.ctx)
	now := t.clock.Now()

	var rl *RateLimitedError
	switch {
	case err == nil:
		t.mu.Lock()
		t.lastCall = now
		t.backoffUntil = time.Time{}
		t.nextAvailable = now.Add(t.interval)
		t.mu.Unlock()
		t.metrics.RecordCall(p.label, "success")
		p.done <- nil

	case errors.As(err, &rl):
		delay := rl.RetryAfter
		if delay <= 0 {
			delay = backoffMultiplier * t.interval
		}
		p.requeues++

		t.mu.Lock()
		t.lastCall = now
		t.backoffUntil = now.Add(delay)
		t.queue = append(t.queue, p)
		depth := len(t.queue)
		t.mu.Unlock()

		t.metrics.RecordCall(p.label, "rate_limited")
		t.metrics.RecordRequeue(p.label)
		t.metrics.SetQueueDepth(depth)
		t.logger.WarnContext(p.ctx, "upstream rate limited call, requeued",
			"label", p.label,
			"retry_after_ms", delay.Milliseconds(),
			"requeues", p.requeues,
		)

	default:
		t.mu.Lock()
		t.lastCall = now
		t.nextAvailable = now.Add(t.interval)
		t.mu.Unlock()
		t.metrics.RecordCall(p.label, "error")
		p.done <- err
	}
}
