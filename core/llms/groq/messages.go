package groq

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

// Exchange is one completed prompt and the reply the model gave to it.
type Exchange struct {
	Prompt   string
	Response string
}

func toMessages(instructions string, history []Exchange) []message {
	messages := make([]message, 0, 1+2*len(history))
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}
	for _, exchange := range history {
		messages = append(messages,
			message{Role: messageRoleUser, Content: exchange.Prompt},
			message{Role: messageRoleAssistant, Content: exchange.Response},
		)
	}
	return messages
}
