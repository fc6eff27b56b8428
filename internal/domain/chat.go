package domain

// ChatMessage is the provider-agnostic chat message shape used by the
// pipeline and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single text-generation call: one model, the messages
// to send, and the sampling limits for the response.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// UserPrompt wraps a single user-role prompt.
func UserPrompt(content string) []ChatMessage {
	return []ChatMessage{{Role: "user", Content: content}}
}
