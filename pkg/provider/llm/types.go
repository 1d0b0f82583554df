package llm

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string
}

// UserMessage is shorthand for a single "user"-role message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
