package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-sense/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Submitter is what producers running outside the dispatch loop receive.
type Submitter interface {
	Submit(event events.Event) error
}

// Bridge hands events from arbitrary goroutines to a single dispatch loop.
// Accepted events are published one at a time, in acceptance order.
type Bridge struct {
	publisher Publisher

	capacity      int
	submitTimeout time.Duration

	queue   chan queuedEvent
	closeCh chan struct{}
	done    chan struct{}

	// submitMu keeps Stop from closing the bridge while a Submit is
	// enqueueing, so nothing lands in the queue after the final drain.
	submitMu  sync.RWMutex
	startOnce sync.Once
	stopOnce  sync.Once

	started atomic.Bool
}

type queuedEvent struct {
	event    events.Event
	queuedAt time.Time
}

func NewBridge(publisher Publisher, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		publisher:     publisher,
		capacity:      defaultQueueCapacity,
		submitTimeout: defaultSubmitTimeout,
		closeCh:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = make(chan queuedEvent, b.capacity)

	return b
}

func (b *Bridge) isClosed() bool {
	select {
	case <-b.closeCh:
		return true
	default:
		return false
	}
}

// Running reports whether the loop is started and accepting submissions.
func (b *Bridge) Running() bool {
	return b.started.Load() && !b.isClosed()
}

// Start launches the dispatch loop. ctx is the base context of every
// publish; cancelling it stops the loop the same way Stop does. Calling
// Start again is a no-op.
func (b *Bridge) Start(ctx context.Context) error {
	if b.isClosed() {
		return ErrBridgeClosed
	}

	b.startOnce.Do(func() {
		b.started.Store(true)
		go b.loop(ctx)
	})

	return nil
}

func (b *Bridge) loop(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			b.Stop()
			b.drain(context.WithoutCancel(ctx))
			return
		case <-b.closeCh:
			b.drain(ctx)
			return
		case queued := <-b.queue:
			b.publish(ctx, queued)
		}
	}
}

// drain publishes whatever was accepted before the bridge closed.
func (b *Bridge) drain(ctx context.Context) {
	for {
		select {
		case queued := <-b.queue:
			b.publish(ctx, queued)
		default:
			return
		}
	}
}

func (b *Bridge) publish(ctx context.Context, queued queuedEvent) {
	queuedTime := time.Since(queued.queuedAt)
	trace.SpanFromContext(ctx).AddEvent("taken out of queue", trace.WithAttributes(
		attribute.String("event.kind", queued.event.Kind().String()),
		attribute.Float64("event.queued_time", queuedTime.Seconds()),
	))

	b.publisher.Publish(ctx, queued.event)
}

// Submit enqueues event for publishing and returns without waiting for any
// handler. It fails with ErrBridgeUnavailable when the loop is not running
// or the queue stayed full for the whole submit timeout. Submit never
// retries; the caller decides whether to drop or resubmit.
func (b *Bridge) Submit(event events.Event) error {
	b.submitMu.RLock()
	defer b.submitMu.RUnlock()

	if !b.Running() {
		return ErrBridgeUnavailable
	}

	queued := queuedEvent{event: event, queuedAt: time.Now()}

	select {
	case b.queue <- queued:
		return nil
	default:
	}

	if b.submitTimeout <= 0 {
		logger.Debug("dispatch queue full, dropping submission", "kind", event.Kind())
		return ErrBridgeUnavailable
	}

	timer := time.NewTimer(b.submitTimeout)
	defer timer.Stop()

	select {
	case b.queue <- queued:
		return nil
	case <-timer.C:
		logger.Warn("dispatch queue full, dropping submission", "kind", event.Kind(), "capacity", b.capacity)
		return ErrBridgeUnavailable
	}
}

// Stop closes the bridge for new submissions. Events already accepted are
// still published before the loop exits.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.submitMu.Lock()
		defer b.submitMu.Unlock()
		close(b.closeCh)
	})
}

// AwaitDone blocks until the loop has exited. It returns immediately if the
// loop was never started.
func (b *Bridge) AwaitDone() {
	if b.started.Load() {
		<-b.done
	}
}

// Pending returns the number of accepted events not yet published.
func (b *Bridge) Pending() int {
	return len(b.queue)
}
