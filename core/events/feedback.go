package events

const (
	// KindSpeakingStarted marks the start of speech playback.
	KindSpeakingStarted Kind = "feedback.tts.start"
	// KindSpeakingEnded marks the end of speech playback, successful or not.
	KindSpeakingEnded Kind = "feedback.tts.end"
)

// NewSpeakingStarted creates a tts start event. Payload: "text" (string)
// being spoken.
func NewSpeakingStarted(text string) Event {
	return New(KindSpeakingStarted, Payload{KeyText: text})
}

// NewSpeakingEnded creates a tts end event. Payload: "text" (string) that
// was spoken.
func NewSpeakingEnded(text string) Event {
	return New(KindSpeakingEnded, Payload{KeyText: text})
}
