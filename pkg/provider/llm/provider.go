// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o via
// OpenRouter, Groq, or a local Ollama instance) and exposes a uniform
// completion interface. Hifz uses it for three jobs: generating cloze
// questions from a passage, analysing a learner's mistakes, and summarising a
// whole session.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation. Providers without a dedicated system field prepend it as a
	// "system"-role message.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// FinishReason is the backend's reason for ending the reply, normalised
	// to lower case ("stop", "length", ...). Empty when the backend does not
	// report one.
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Truncated reports whether the reply was cut off by the token limit rather
// than finished by the model. A truncated question batch usually ends in
// the middle of a JSON item.
func (r *CompletionResponse) Truncated() bool {
	switch r.FinishReason {
	case FinishLength, "max_tokens":
		return true
	}
	return false
}

// Finish reasons shared by the OpenAI-compatible backends.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines and
// must return promptly when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
