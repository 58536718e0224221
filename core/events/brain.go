package events

const (
	// KindIntentRecognized identifies the intent classified for a command.
	KindIntentRecognized Kind = "brain.intent.recognized"
	// KindResponseGenerated identifies a reply meant for the user.
	KindResponseGenerated Kind = "brain.response.generated"
)

const KeyIntent = "intent"

// NewIntentRecognized creates an intent event.
//
// Payload: "intent" (string) and "text" (string) with the original command.
func NewIntentRecognized(intent, text string) Event {
	return New(KindIntentRecognized, Payload{KeyIntent: intent, KeyText: text})
}

// NewResponseGenerated creates a response event.
//
// Payload: "text" (string) with the reply.
func NewResponseGenerated(text string) Event {
	return New(KindResponseGenerated, Payload{KeyText: text})
}
