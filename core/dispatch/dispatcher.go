package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-sense/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes a single event. The context is cancelled once the
// publish that invoked the handler stops waiting for it, so work that
// outlives the call must not keep using it.
type Handler func(ctx context.Context, event events.Event) error

// Subscription identifies one registration of a handler.
type Subscription struct {
	ID   string
	Kind events.Kind
	Name string
}

func (s Subscription) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

type registration struct {
	Subscription
	handler Handler
}

// Outcome summarises a single publish.
type Outcome struct {
	Kind        events.Kind
	NoListeners bool
	Handlers    int
	Failed      int
	TimedOut    int
	// Errors holds one HandlerError per failed handler, plus one error
	// for the handlers that timed out.
	Errors []error
}

// Err joins the handler errors, or returns nil when every handler that
// finished succeeded.
func (o Outcome) Err() error {
	return errors.Join(o.Errors...)
}

// Publisher is the publishing half of a Dispatcher.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) Outcome
}

// Subscriber is the subscribing half of a Dispatcher.
type Subscriber interface {
	Subscribe(kind events.Kind, handler Handler, opts ...SubscribeOption) Subscription
	Unsubscribe(subscription Subscription) bool
}

type Dispatcher struct {
	mu       sync.RWMutex
	registry map[events.Kind][]registration

	handlerTimeout time.Duration

	published metric.Int64Counter
	failures  metric.Int64Counter
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:       map[events.Kind][]registration{},
		handlerTimeout: defaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	// Instruments from the global meter never fail with the noop provider,
	// a misconfigured SDK only loses the counters.
	d.published, _ = meter.Int64Counter("dispatch.events.published",
		metric.WithDescription("Events handed to at least one handler"))
	d.failures, _ = meter.Int64Counter("dispatch.handler.failures",
		metric.WithDescription("Handler invocations that returned an error or panicked"))

	return d
}

// Subscribe registers handler for kind. Registering the same handler twice
// is allowed and results in two invocations per publish.
func (d *Dispatcher) Subscribe(kind events.Kind, handler Handler, opts ...SubscribeOption) Subscription {
	subscription := Subscription{ID: uuid.NewString(), Kind: kind}
	for _, opt := range opts {
		opt(&subscription)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	existing := d.registry[kind]
	updated := make([]registration, len(existing), len(existing)+1)
	copy(updated, existing)
	d.registry[kind] = append(updated, registration{Subscription: subscription, handler: handler})

	logger.Debug("subscribed", "kind", kind, "subscription", subscription.label())
	return subscription
}

// Unsubscribe removes exactly the given registration. It reports whether
// the registration was still present. Publishes already in flight keep
// their snapshot and may still invoke it once.
func (d *Dispatcher) Unsubscribe(subscription Subscription) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing := d.registry[subscription.Kind]
	index := slices.IndexFunc(existing, func(r registration) bool { return r.ID == subscription.ID })
	if index < 0 {
		return false
	}

	updated := make([]registration, 0, len(existing)-1)
	updated = append(updated, existing[:index]...)
	updated = append(updated, existing[index+1:]...)
	if len(updated) == 0 {
		delete(d.registry, subscription.Kind)
	} else {
		d.registry[subscription.Kind] = updated
	}

	logger.Debug("unsubscribed", "kind", subscription.Kind, "subscription", subscription.label())
	return true
}

// Subscriptions returns the number of registrations for kind.
func (d *Dispatcher) Subscriptions(kind events.Kind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.registry[kind])
}

// snapshot returns the registrations for kind. Subscribe and Unsubscribe
// replace slices instead of mutating them, so the result stays valid while
// it is iterated without the lock.
func (d *Dispatcher) snapshot(kind events.Kind) []registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.registry[kind]
}

type handlerResult struct {
	err error
}

// Publish invokes every handler subscribed to the event's kind concurrently
// and returns once all of them finished or the handler timeout elapsed.
// Handler failures are logged and collected in the outcome.
func (d *Dispatcher) Publish(ctx context.Context, event events.Event) Outcome {
	kind := event.Kind()
	outcome := Outcome{Kind: kind}

	registrations := d.snapshot(kind)
	if len(registrations) == 0 {
		outcome.NoListeners = true
		logger.DebugContext(ctx, "event published with no listeners", "kind", kind)
		return outcome
	}
	outcome.Handlers = len(registrations)

	ctx, span := tracer.Start(ctx, "publish "+kind.String(), trace.WithAttributes(
		attribute.String("event.kind", kind.String()),
		attribute.Int("event.handlers", len(registrations)),
	))
	defer span.End()

	logger.InfoContext(ctx, "event published", "kind", kind, "handlers", len(registrations))
	d.published.Add(ctx, 1, metric.WithAttributes(attribute.String("event.kind", kind.String())))

	handlerCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.handlerTimeout > 0 {
		handlerCtx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
	}
	defer cancel()

	results := make(chan handlerResult, len(registrations))
	for _, r := range registrations {
		go func() {
			results <- handlerResult{err: d.invoke(handlerCtx, r, event)}
		}()
	}

	for pending := len(registrations); pending > 0; pending-- {
		select {
		case result := <-results:
			if result.err != nil {
				outcome.Failed++
				outcome.Errors = append(outcome.Errors, result.err)
			}
		case <-handlerCtx.Done():
			outcome.TimedOut = pending
			err := fmt.Errorf("%d handler(s) for %s did not finish: %w", pending, kind, handlerCtx.Err())
			outcome.Errors = append(outcome.Errors, err)
			span.RecordError(err)
			logger.WarnContext(ctx, "stopped waiting for event handlers", "kind", kind, "pending", pending, "error", err)
		}
		if outcome.TimedOut > 0 {
			break
		}
	}

	if outcome.Failed > 0 || outcome.TimedOut > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d failed, %d timed out", outcome.Failed, outcome.TimedOut))
	}

	return outcome
}

func (d *Dispatcher) invoke(ctx context.Context, r registration, event events.Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &HandlerError{
				Kind:         event.Kind(),
				Subscription: r.label(),
				Panicked:     true,
				Err:          fmt.Errorf("%v", recovered),
			}
			logger.ErrorContext(ctx, "event handler panicked",
				"kind", event.Kind(), "subscription", r.label(), "error", err, "stack", string(debug.Stack()))
		} else if err != nil {
			err = &HandlerError{Kind: event.Kind(), Subscription: r.label(), Err: err}
			logger.ErrorContext(ctx, "event handler failed",
				"kind", event.Kind(), "subscription", r.label(), "error", err)
		}

		if err != nil {
			trace.SpanFromContext(ctx).RecordError(err)
			d.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("event.kind", event.Kind().String()),
				attribute.String("subscription", r.label()),
			))
		}
	}()

	if r.handler == nil {
		return nil
	}
	return r.handler(ctx, event)
}
