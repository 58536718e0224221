package broadcast

import (
	"time"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-sense/core/events"
)

// Message is what every connected client receives for a broadcast event.
type Message struct {
	Kind      string         `json:"type" jsonschema:"description=Event kind, e.g. brain.response.generated"`
	Payload   map[string]any `json:"payload,omitempty" jsonschema:"description=Event payload keyed by field name"`
	Timestamp time.Time      `json:"timestamp" jsonschema:"description=When the event was created"`
}

func NewMessage(event events.Event) Message {
	return Message{
		Kind:      event.Kind().String(),
		Payload:   event.Payload(),
		Timestamp: event.Timestamp(),
	}
}

// Control is what clients may send back over the socket.
type Control struct {
	Type string `json:"type" jsonschema:"enum=command,enum=ping,enum=pong,enum=error"`
	Text string `json:"text,omitempty"`
}

// Schema describes both directions of the wire format.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "ema-sense websocket protocol",
		Definitions: jsonschema.Definitions{},
	}
	schema.Definitions["Message"] = reflector.Reflect(&Message{})
	schema.Definitions["Control"] = reflector.Reflect(&Control{})
	return schema
}

// DefaultKinds are the events forwarded to clients unless told otherwise.
func DefaultKinds() []events.Kind {
	return []events.Kind{
		events.KindResponseGenerated,
		events.KindVoiceCommandDetected,
		events.KindSpeakingStarted,
		events.KindSpeakingEnded,
		events.KindUserIdentified,
		events.KindUserEmotionDetected,
	}
}
