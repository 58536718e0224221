package brain

import (
	"fmt"
	"strings"
)

const (
	IntentGreeting = "greeting"
	IntentStatus   = "status"
	IntentQuery    = "query"
)

const (
	replyGreeting      = "Greetings, Sir."
	replyStatusOffline = "System operational. Reasoning core is offline."
	replyOffline       = "I heard you, but my higher brain functions are offline."
	replyLLMFailure    = "I am encountering processing errors, Sir."

	defaultEmotion = "Neutral"
	defaultAddress = "Sir"
)

// ClassifyIntent maps a spoken command onto a coarse intent by keyword.
func ClassifyIntent(text string) string {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "hello"):
		return IntentGreeting
	case strings.Contains(text, "status"):
		return IntentStatus
	default:
		return IntentQuery
	}
}

func offlineReply(intent string) string {
	switch intent {
	case IntentGreeting:
		return replyGreeting
	case IntentStatus:
		return replyStatusOffline
	default:
		return replyOffline
	}
}

func commandPrompt(emotion, text string) string {
	return fmt.Sprintf("[User Emotion: %s] User says: %s", emotion, text)
}

func greetingPrompt(user string) string {
	return fmt.Sprintf("The user %s has been identified via Face Auth. Brief welcome.", user)
}

func offlineGreeting(user string) string {
	return fmt.Sprintf("Identity confirmed. Welcome back, %s.", user)
}
