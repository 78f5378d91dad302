// Package queue serializes upstream calls through a single drain loop that
// honors the per-minute rate window.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
	"github.com/fairyhunter13/ai-device-compare/internal/service/ratelimiter"
)

// ErrClosed is returned for requests still queued when the queue shuts down.
var ErrClosed = errors.New("request queue closed")

// estimatePerRequest is the per-item cost used by the wait estimate.
const estimatePerRequest = time.Second

// Request is a queued upstream call. It is owned by the queue from Enqueue until
// its result is delivered and is never re-queued.
type Request struct {
	ID         string
	Priority   domain.Priority
	Kind       domain.Kind
	Payload    domain.Payload
	EnqueuedAt time.Time

	ctx     context.Context
	done    chan result
	counted bool
}

type result struct {
	raw json.RawMessage
	err error
}

// Queue is a priority-ordered, single-consumer request queue.
type Queue struct {
	exec        domain.Executor
	limiter     ratelimiter.Limiter
	gate        domain.QuotaGate
	delay       time.Duration
	callTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	items    []*Request
	draining bool
	closed   bool
	stop     chan struct{}
	idle     chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithInterRequestDelay sets the pause after every dispatch.
func WithInterRequestDelay(d time.Duration) Option {
	return func(q *Queue) { q.delay = d }
}

// WithCallTimeout bounds each executor call. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(q *Queue) { q.callTimeout = d }
}

// WithQuotaGate makes every dispatch wait on the daily quota: a call is refused with
// domain.ErrQuotaExceeded once the gate denies, and a successful counted call is
// recorded with Increment.
func WithQuotaGate(g domain.QuotaGate) Option {
	return func(q *Queue) { q.gate = g }
}

// New creates a queue dispatching to exec under limiter.
func New(exec domain.Executor, limiter ratelimiter.Limiter, opts ...Option) *Queue {
	q := &Queue{
		exec:    exec,
		limiter: limiter,
		delay:   time.Second,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue submits a request and waits for its result. High priority requests are
// placed ahead of every queued normal or low request, behind earlier high ones.
// Cancelling ctx stops the wait only; a request that was accepted still runs and,
// on success, is still counted against the quota.
func (q *Queue) Enqueue(ctx context.Context, kind domain.Kind, payload domain.Payload, priority domain.Priority) (json.RawMessage, error) {
	return q.submit(ctx, kind, payload, priority, true)
}

// Relay runs a call on behalf of a remote caller that does its own quota
// accounting: the quota is still enforced but a success is not counted. Queueable
// kinds wait in the queue, the quick checks go through Direct's path.
func (q *Queue) Relay(ctx context.Context, kind domain.Kind, payload domain.Payload, priority domain.Priority) (json.RawMessage, error) {
	if !kind.Queueable() {
		return q.direct(ctx, kind, payload, false)
	}
	return q.submit(ctx, kind, payload, priority, false)
}

// Direct runs a short call without waiting behind queued requests. It still takes a
// slot of the rate window, waiting for the next window when the current one is
// spent, and is subject to the quota gate.
func (q *Queue) Direct(ctx context.Context, kind domain.Kind, payload domain.Payload) (json.RawMessage, error) {
	return q.direct(ctx, kind, payload, true)
}

func (q *Queue) direct(ctx context.Context, kind domain.Kind, payload domain.Payload, counted bool) (json.RawMessage, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("op=queue.Direct: %w", ErrClosed)
	}
	if err := q.checkQuota(ctx); err != nil {
		return nil, fmt.Errorf("op=queue.Direct: %w", err)
	}

	for {
		granted, wait := q.limiter.TryAcquire(ctx)
		if granted {
			break
		}
		observability.RecordRateLimitDenial()
		observability.LoggerFromContext(ctx).Info("rate window exhausted; direct call waiting",
			slog.String("kind", string(kind)),
			slog.Duration("wait", wait))
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("op=queue.Direct: %w", ctx.Err())
		case <-q.stop:
			t.Stop()
			return nil, fmt.Errorf("op=queue.Direct: %w", ErrClosed)
		}
	}

	req := &Request{
		ID:         uuid.NewString(),
		Priority:   domain.PriorityHigh,
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: q.now(),
		ctx:        observability.Detach(ctx),
		done:       make(chan result, 1),
		counted:    counted,
	}
	go func() { req.done <- q.dispatch(req) }()

	select {
	case res := <-req.done:
		return res.raw, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("op=queue.Direct: %w", ctx.Err())
	}
}

func (q *Queue) submit(ctx context.Context, kind domain.Kind, payload domain.Payload, priority domain.Priority, counted bool) (json.RawMessage, error) {
	if !kind.Queueable() {
		return nil, fmt.Errorf("op=queue.Enqueue: kind %q: %w", kind, domain.ErrInvalidArgument)
	}
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("op=queue.Enqueue: priority %q: %w", priority, domain.ErrInvalidArgument)
	}

	req := &Request{
		ID:         uuid.NewString(),
		Priority:   priority,
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: q.now(),
		ctx:        observability.Detach(ctx),
		done:       make(chan result, 1),
		counted:    counted,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("op=queue.Enqueue: %w", ErrClosed)
	}
	q.insertLocked(req)
	depth := len(q.items)
	startDrain := !q.draining
	if startDrain {
		q.draining = true
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()

	observability.SetQueueDepth(depth)
	observability.LoggerFromContext(ctx).Debug("request enqueued",
		slog.String("queue_id", req.ID),
		slog.String("kind", string(kind)),
		slog.String("priority", string(priority)),
		slog.Int("depth", depth))
	if startDrain {
		go q.drain()
	}

	select {
	case res := <-req.done:
		return res.raw, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("op=queue.Enqueue: %w", ctx.Err())
	}
}

func (q *Queue) insertLocked(req *Request) {
	if req.Priority != domain.PriorityHigh {
		q.items = append(q.items, req)
		return
	}
	i := 0
	for i < len(q.items) && q.items[i].Priority == domain.PriorityHigh {
		i++
	}
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = req
}

// drain is the only consumer. It exits when the queue is empty or closed.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 || q.closed {
			q.draining = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		head := q.items[0]
		q.mu.Unlock()

		// The quota may have run out while this request waited.
		if err := q.checkQuota(head.ctx); err != nil {
			if req, ok := q.pop(); ok {
				observability.LoggerFromContext(req.ctx).Warn("queued request refused at dispatch",
					slog.String("queue_id", req.ID),
					slog.Any("error", err))
				req.done <- result{err: fmt.Errorf("op=queue.dispatch: %w", err)}
			}
			continue
		}

		granted, wait := q.limiter.TryAcquire(head.ctx)
		if !granted {
			observability.RecordRateLimitDenial()
			observability.LoggerFromContext(head.ctx).Info("rate window exhausted; waiting",
				slog.Duration("wait", wait))
			q.sleep(wait)
			continue
		}

		req, ok := q.pop()
		if !ok {
			continue
		}
		req.done <- q.dispatch(req)
		q.sleep(q.delay)
	}
}

// pop removes the head of the queue.
func (q *Queue) pop() (*Request, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	depth := len(q.items)
	q.mu.Unlock()
	observability.SetQueueDepth(depth)
	return req, true
}

func (q *Queue) checkQuota(ctx context.Context) error {
	if q.gate == nil {
		return nil
	}
	allowed, err := q.gate.Allow(ctx)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: try again after the daily reset", domain.ErrQuotaExceeded)
	}
	return nil
}

func (q *Queue) dispatch(req *Request) (res result) {
	ctx, span := observability.StartSpan(req.ctx, "queue.dispatch")
	span.SetAttributes(
		attribute.String("queue.id", req.ID),
		attribute.String("queue.kind", string(req.Kind)),
		attribute.String("queue.priority", string(req.Priority)),
	)
	defer span.End()

	if q.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.callTimeout)
		defer cancel()
	}

	start := q.now()
	observability.ObserveQueueWait(string(req.Priority), start.Sub(req.EnqueuedAt))
	defer func() {
		if r := recover(); r != nil {
			res = result{err: fmt.Errorf("op=queue.dispatch: executor panic: %v", r)}
		}
		outcome := "success"
		if res.err != nil {
			outcome = "error"
			span.RecordError(res.err)
		}
		observability.ObserveAIRequest(string(req.Kind), outcome, q.now().Sub(start))
		observability.LoggerFromContext(ctx).Info("request dispatched",
			slog.String("queue_id", req.ID),
			slog.String("kind", string(req.Kind)),
			slog.String("outcome", outcome),
			slog.Duration("duration", q.now().Sub(start)))
	}()

	raw, err := q.exec.Execute(ctx, req.Kind, req.Payload)
	if err == nil && req.counted && q.gate != nil {
		// req.ctx outlives the caller, so an abandoned call is still counted.
		if ierr := q.gate.Increment(req.ctx); ierr != nil {
			observability.LoggerFromContext(ctx).Warn("quota increment failed", slog.Any("error", ierr))
		}
	}
	return result{raw: raw, err: err}
}

// sleep waits for d or until the queue closes.
func (q *Queue) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-q.stop:
	}
}

// Len returns the number of requests waiting for dispatch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Status returns the coarse snapshot shown to waiting callers. Position is 1 when
// anything is queued and 0 otherwise.
func (q *Queue) Status(ctx context.Context) domain.QueueStatus {
	n := q.Len()
	st := q.limiter.Status(ctx)

	var wait time.Duration
	if n <= st.Remaining {
		wait = time.Duration(n) * estimatePerRequest
	} else {
		wait = st.ResetIn + time.Duration(n-st.Remaining)*estimatePerRequest
	}
	position := 0
	if n > 0 {
		position = 1
	}
	return domain.QueueStatus{
		QueueLength:       n,
		Position:          position,
		RequestsRemaining: st.Remaining,
		TimeUntilReset:    st.ResetIn.Milliseconds(),
		EstimatedWaitTime: wait.Milliseconds(),
	}
}

// Shutdown stops accepting requests, fails every request still waiting with
// ErrClosed and waits for an in-flight dispatch to finish or ctx to end.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stop)
	pending := q.items
	q.items = nil
	idle := q.idle
	draining := q.draining
	q.mu.Unlock()

	for _, r := range pending {
		r.done <- result{err: fmt.Errorf("op=queue.Shutdown: %w", ErrClosed)}
	}
	observability.SetQueueDepth(0)
	if !draining {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
