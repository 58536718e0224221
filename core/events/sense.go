package events

const (
	// KindVoiceCommandDetected identifies a finished spoken (or typed) command.
	KindVoiceCommandDetected Kind = "sense.voice.command"
	// KindUserPresenceDetected identifies a user becoming present in view.
	KindUserPresenceDetected Kind = "sense.vision.presence"
	// KindUserIdentified identifies a resolved user identity.
	KindUserIdentified Kind = "sense.vision.identified"
	// KindUserLost identifies a previously present user leaving view.
	KindUserLost Kind = "sense.vision.lost"
	// KindUserEmotionDetected identifies a confident emotion reading.
	KindUserEmotionDetected Kind = "sense.vision.emotion"
)

const (
	KeyText    = "text"
	KeyUser    = "user"
	KeyEmotion = "emotion"
	KeyScore   = "score"
)

// NewVoiceCommandDetected creates a voice command event.
//
// Payload: "text" (string) with the transcript of the command.
func NewVoiceCommandDetected(text string) Event {
	return New(KindVoiceCommandDetected, Payload{KeyText: text})
}

// NewUserPresenceDetected creates a presence event. It carries no payload.
func NewUserPresenceDetected() Event {
	return New(KindUserPresenceDetected, nil)
}

// NewUserIdentified creates an identity event.
//
// Payload: "user" (string) with the resolved user name.
func NewUserIdentified(user string) Event {
	return New(KindUserIdentified, Payload{KeyUser: user})
}

// NewUserLost creates a user lost event. It carries no payload.
func NewUserLost() Event {
	return New(KindUserLost, nil)
}

// NewUserEmotionDetected creates an emotion event.
//
// Payload: "emotion" (string) with the classifier label and "score"
// (float64) with its confidence.
func NewUserEmotionDetected(emotion string, score float64) Event {
	return New(KindUserEmotionDetected, Payload{KeyEmotion: emotion, KeyScore: score})
}
