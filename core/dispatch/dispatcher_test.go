package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-sense/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutListenersIsNoop(t *testing.T) {
	d := New()

	var outcome Outcome
	require.NotPanics(t, func() {
		outcome = d.Publish(context.Background(), events.NewUserLost())
	})

	assert.True(t, outcome.NoListeners)
	assert.Equal(t, events.KindUserLost, outcome.Kind)
	assert.Zero(t, outcome.Handlers)
}

func TestPublishInvokesEveryHandlerOnce(t *testing.T) {
	d := New()

	const handlers = 5
	var calls [handlers]atomic.Int32
	for i := range handlers {
		d.Subscribe(events.KindResponseGenerated, func(context.Context, events.Event) error {
			calls[i].Add(1)
			if i%2 == 0 {
				return errors.New("boom")
			}
			return nil
		})
	}

	outcome := d.Publish(context.Background(), events.NewResponseGenerated("hi"))

	assert.Equal(t, handlers, outcome.Handlers)
	assert.Equal(t, 3, outcome.Failed)
	assert.False(t, outcome.NoListeners)
	for i := range handlers {
		assert.Equal(t, int32(1), calls[i].Load(), "handler %d", i)
	}
}

func TestPublishDoesNotInvokeHandlersOfOtherKinds(t *testing.T) {
	d := New()

	var other atomic.Int32
	d.Subscribe(events.KindUserLost, func(context.Context, events.Event) error {
		other.Add(1)
		return nil
	})

	d.Publish(context.Background(), events.NewUserPresenceDetected())
	assert.Zero(t, other.Load())
}

func TestFailingHandlerDoesNotAffectSiblingsOrLaterPublishes(t *testing.T) {
	d := New()

	var failing, healthy, panicking atomic.Int32
	d.Subscribe(events.KindUserIdentified, func(context.Context, events.Event) error {
		failing.Add(1)
		return errors.New("remote peer disconnected")
	}, WithName("broadcaster"))
	d.Subscribe(events.KindUserIdentified, func(context.Context, events.Event) error {
		panicking.Add(1)
		panic("nil map")
	}, WithName("panicking"))
	d.Subscribe(events.KindUserIdentified, func(context.Context, events.Event) error {
		healthy.Add(1)
		return nil
	}, WithName("brain"))

	first := d.Publish(context.Background(), events.NewUserIdentified("Master"))
	second := d.Publish(context.Background(), events.NewUserIdentified("Master"))

	assert.Equal(t, 2, first.Failed)
	assert.Equal(t, 2, second.Failed)
	assert.Equal(t, int32(2), failing.Load())
	assert.Equal(t, int32(2), panicking.Load())
	assert.Equal(t, int32(2), healthy.Load())
}

func TestHandlerReceivesUnmodifiedEvent(t *testing.T) {
	d := New()

	received := make(chan events.Event, 1)
	d.Subscribe(events.KindVoiceCommandDetected, func(_ context.Context, event events.Event) error {
		received <- event
		return nil
	})

	published := events.NewVoiceCommandDetected("status")
	d.Publish(context.Background(), published)

	select {
	case got := <-received:
		assert.Equal(t, published.Kind(), got.Kind())
		assert.Equal(t, published.Timestamp(), got.Timestamp())
		assert.Equal(t, events.Payload{events.KeyText: "status"}, got.Payload())
	default:
		t.Fatal("handler did not receive the event")
	}
}

func TestPublishRunsHandlersConcurrently(t *testing.T) {
	d := New()

	var wg sync.WaitGroup
	wg.Add(2)
	barrier := func(context.Context, events.Event) error {
		wg.Done()
		wg.Wait()
		return nil
	}
	d.Subscribe(events.KindSystemStartup, barrier)
	d.Subscribe(events.KindSystemStartup, barrier)

	done := make(chan Outcome, 1)
	go func() { done <- d.Publish(context.Background(), events.NewSystemStartup()) }()

	select {
	case outcome := <-done:
		assert.Zero(t, outcome.Failed)
	case <-time.After(2 * time.Second):
		t.Fatal("handlers were not run concurrently")
	}
}

func TestFailingHandlerDoesNotBlockPublishBeyondTimeout(t *testing.T) {
	d := New(WithHandlerTimeout(50 * time.Millisecond))

	release := make(chan struct{})
	defer close(release)

	var second atomic.Int32
	d.Subscribe(events.KindUserIdentified, func(ctx context.Context, _ events.Event) error {
		<-release
		return errors.New("never returns in time")
	})
	d.Subscribe(events.KindUserIdentified, func(context.Context, events.Event) error {
		second.Add(1)
		return nil
	})

	start := time.Now()
	outcome := d.Publish(context.Background(), events.NewUserIdentified("Master"))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, outcome.TimedOut)
	assert.Equal(t, int32(1), second.Load())
}

func TestHandlerContextIsCancelledOnTimeout(t *testing.T) {
	d := New(WithHandlerTimeout(20 * time.Millisecond))

	cancelled := make(chan struct{})
	d.Subscribe(events.KindUserLost, func(ctx context.Context, _ events.Event) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})

	d.Publish(context.Background(), events.NewUserLost())

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}
}

func TestDuplicateSubscriptionInvokesHandlerPerEntry(t *testing.T) {
	d := New()

	var calls atomic.Int32
	handler := func(context.Context, events.Event) error {
		calls.Add(1)
		return nil
	}
	first := d.Subscribe(events.KindSpeakingStarted, handler)
	second := d.Subscribe(events.KindSpeakingStarted, handler)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, d.Subscriptions(events.KindSpeakingStarted))

	d.Publish(context.Background(), events.NewSpeakingStarted("hi"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnsubscribeRemovesExactlyThatRegistration(t *testing.T) {
	d := New()

	var calls atomic.Int32
	handler := func(context.Context, events.Event) error {
		calls.Add(1)
		return nil
	}
	first := d.Subscribe(events.KindSpeakingEnded, handler)
	d.Subscribe(events.KindSpeakingEnded, handler)

	assert.True(t, d.Unsubscribe(first))
	assert.False(t, d.Unsubscribe(first))
	assert.Equal(t, 1, d.Subscriptions(events.KindSpeakingEnded))

	d.Publish(context.Background(), events.NewSpeakingEnded("hi"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnsubscribeFromInsideHandler(t *testing.T) {
	d := New()

	var self Subscription
	var selfCalls, otherCalls atomic.Int32
	self = d.Subscribe(events.KindUserPresenceDetected, func(context.Context, events.Event) error {
		selfCalls.Add(1)
		d.Unsubscribe(self)
		return nil
	})
	d.Subscribe(events.KindUserPresenceDetected, func(context.Context, events.Event) error {
		otherCalls.Add(1)
		return nil
	})

	first := d.Publish(context.Background(), events.NewUserPresenceDetected())
	second := d.Publish(context.Background(), events.NewUserPresenceDetected())

	assert.Equal(t, 2, first.Handlers)
	assert.Equal(t, 1, second.Handlers)
	assert.Equal(t, int32(1), selfCalls.Load())
	assert.Equal(t, int32(2), otherCalls.Load())
}

func TestSubscribeDuringPublishDoesNotJoinInFlightPublish(t *testing.T) {
	d := New()

	var late atomic.Int32
	d.Subscribe(events.KindIntentRecognized, func(context.Context, events.Event) error {
		d.Subscribe(events.KindIntentRecognized, func(context.Context, events.Event) error {
			late.Add(1)
			return nil
		})
		return nil
	})

	outcome := d.Publish(context.Background(), events.NewIntentRecognized("status", "status"))

	assert.Equal(t, 1, outcome.Handlers)
	assert.Zero(t, late.Load())
	assert.Equal(t, 2, d.Subscriptions(events.KindIntentRecognized))
}

func TestHandlersMayPublishOtherKinds(t *testing.T) {
	d := New()

	responses := make(chan string, 1)
	d.Subscribe(events.KindVoiceCommandDetected, func(ctx context.Context, event events.Event) error {
		d.Publish(ctx, events.NewResponseGenerated("echo: "+event.Text(events.KeyText)))
		return nil
	})
	d.Subscribe(events.KindResponseGenerated, func(_ context.Context, event events.Event) error {
		responses <- event.Text(events.KeyText)
		return nil
	})

	d.Publish(context.Background(), events.NewVoiceCommandDetected("status"))
	assert.Equal(t, "echo: status", <-responses)
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	d := New()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				sub := d.Subscribe(events.KindUserEmotionDetected, func(context.Context, events.Event) error { return nil })
				d.Unsubscribe(sub)
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				d.Publish(context.Background(), events.NewUserEmotionDetected("happy", 0.9))
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, d.Subscriptions(events.KindUserEmotionDetected))
}

func TestHandlerErrorDescribesFailure(t *testing.T) {
	cause := errors.New("boom")
	err := &HandlerError{Kind: events.KindUserLost, Subscription: "brain", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "brain")
	assert.Contains(t, err.Error(), string(events.KindUserLost))

	panicked := &HandlerError{Kind: events.KindUserLost, Subscription: "brain", Panicked: true, Err: cause}
	assert.Contains(t, panicked.Error(), "panicked")
}

func TestOutcomeCollectsHandlerErrors(t *testing.T) {
	d := New()

	cause := errors.New("camera unplugged")
	d.Subscribe(events.KindSystemShutdown, func(context.Context, events.Event) error { return cause }, WithName("vision.stop"))
	d.Subscribe(events.KindSystemShutdown, func(context.Context, events.Event) error { return nil })

	outcome := d.Publish(context.Background(), events.NewSystemShutdown())

	require.Len(t, outcome.Errors, 1)
	assert.ErrorIs(t, outcome.Err(), cause)

	var handlerErr *HandlerError
	require.ErrorAs(t, outcome.Err(), &handlerErr)
	assert.Equal(t, "vision.stop", handlerErr.Subscription)

	assert.NoError(t, d.Publish(context.Background(), events.NewUserLost()).Err())
}
