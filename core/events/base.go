package events

import (
	"fmt"
	"maps"
	"time"

	"github.com/jinzhu/copier"
)

type Kind string

// Valid reports whether k is one of the kinds declared by this package.
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// Kinds lists every declared kind in declaration order.
func Kinds() []Kind {
	return append([]Kind(nil), declaredKinds...)
}

var declaredKinds = []Kind{
	KindSystemStartup,
	KindSystemShutdown,
	KindVoiceCommandDetected,
	KindUserPresenceDetected,
	KindUserIdentified,
	KindUserLost,
	KindUserEmotionDetected,
	KindIntentRecognized,
	KindResponseGenerated,
	KindOSCommand,
	KindSmartHomeCommand,
	KindSpeakingStarted,
	KindSpeakingEnded,
}

var knownKinds = func() map[Kind]struct{} {
	known := make(map[Kind]struct{}, len(declaredKinds))
	for _, kind := range declaredKinds {
		known[kind] = struct{}{}
	}
	return known
}()

// Payload is the producer-defined body of an event. Keys expected for each
// kind are documented next to the kind's constructor.
type Payload map[string]any

// Event is an immutable message: the payload handed to New is copied and
// every accessor returns copies, so handlers running concurrently can share
// one Event value.
type Event struct {
	kind      Kind
	payload   Payload
	createdAt time.Time
}

type Option func(*Event)

func WithTimestamp(timestamp time.Time) Option {
	return func(e *Event) {
		e.createdAt = timestamp
	}
}

// New creates an event of the given kind. It panics when kind is not one of
// the declared kinds.
func New(kind Kind, payload Payload, opts ...Option) Event {
	if !kind.Valid() {
		panic(fmt.Sprintf("events: undeclared kind %q", kind))
	}

	event := Event{kind: kind, payload: clonePayload(payload), createdAt: time.Now()}
	for _, opt := range opts {
		opt(&event)
	}

	return event
}

func (e Event) Kind() Kind           { return e.kind }
func (e Event) Timestamp() time.Time { return e.createdAt }
func (e Event) IsZero() bool         { return e.kind == "" }

// Payload returns a copy of the event payload.
func (e Event) Payload() Payload {
	return clonePayload(e.payload)
}

// Get returns a deep copy of the payload value under key.
func (e Event) Get(key string) (any, bool) {
	value, ok := e.payload[key]
	if !ok {
		return nil, false
	}
	return clonePayload(Payload{key: value})[key], true
}

// Text returns the payload value under key if it is a string.
func (e Event) Text(key string) string {
	value, _ := e.payload[key].(string)
	return value
}

// Number returns the payload value under key if it is a float64.
func (e Event) Number(key string) float64 {
	value, _ := e.payload[key].(float64)
	return value
}

func clonePayload(payload Payload) Payload {
	if len(payload) == 0 {
		return Payload{}
	}

	cloned := make(Payload, len(payload))
	if err := copier.CopyWithOption(&cloned, &payload, copier.Option{DeepCopy: true}); err != nil {
		return maps.Clone(payload)
	}
	return cloned
}
