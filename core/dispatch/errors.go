package dispatch

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-sense/core/events"
)

var (
	// ErrBridgeUnavailable is returned by Submit when the dispatch loop is
	// not running or could not take the event in time.
	ErrBridgeUnavailable = errors.New("dispatch bridge unavailable")
	// ErrBridgeClosed is returned by Start after Stop was called.
	ErrBridgeClosed = errors.New("dispatch bridge closed")
)

// HandlerError describes a handler that failed while processing an event.
// It is only ever logged and recorded, publishers never receive it.
type HandlerError struct {
	Kind         events.Kind
	Subscription string
	Panicked     bool
	Err          error
}

func (e *HandlerError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("handler %s panicked on %s: %v", e.Subscription, e.Kind, e.Err)
	}
	return fmt.Sprintf("handler %s failed on %s: %v", e.Subscription, e.Kind, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
