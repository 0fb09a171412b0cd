// Package providers talks to OpenAI-wire-compatible chat-completion
// endpoints (OpenAI, Groq, OpenRouter, local vLLM, etc.) on behalf of
// the tick engine's model chain.
package providers

import "context"

// Provider is the interface the tick engine calls against. Only a
// single blocking Chat call is needed; there is no streaming or tool
// use in this surface.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier, used in trace attributes
	// and log lines (e.g. "openai", "openrouter").
	Name() string
}

// ChatRequest is the input to a Chat call.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse is the normalized result of a Chat call.
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Usage tracks token consumption for a single call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
