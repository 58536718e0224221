package dispatch

import "time"

const (
	defaultHandlerTimeout = 30 * time.Second
	defaultQueueCapacity  = 64
	defaultSubmitTimeout  = 100 * time.Millisecond
)

type Option func(*Dispatcher)

// WithHandlerTimeout bounds how long a publish waits for its handlers. Zero
// waits indefinitely.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout >= 0 {
			d.handlerTimeout = timeout
		}
	}
}

type SubscribeOption func(*Subscription)

// WithName labels a subscription in logs and traces.
func WithName(name string) SubscribeOption {
	return func(s *Subscription) {
		s.Name = name
	}
}

type BridgeOption func(*Bridge)

func WithQueueCapacity(capacity int) BridgeOption {
	return func(b *Bridge) {
		if capacity > 0 {
			b.capacity = capacity
		}
	}
}

// WithSubmitTimeout bounds how long Submit waits for room in a full queue.
func WithSubmitTimeout(timeout time.Duration) BridgeOption {
	return func(b *Bridge) {
		if timeout >= 0 {
			b.submitTimeout = timeout
		}
	}
}
