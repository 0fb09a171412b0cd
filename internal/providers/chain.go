package providers

import (
	"context"
	"fmt"
)

// ChatWithChain tries models in order [primary, ...fallbacks], returning the
// first successful response. Each attempt uses the same client (a single
// endpoint serving every model id); a non-nil error from one model moves on
// to the next. Exhausting the chain returns ErrModelUnavailable.
func ChatWithChain(ctx context.Context, client *Client, models []string, messages []Message, maxTokens int, temperature float64) (*ChatResponse, string, error) {
	var lastErr error
	for _, model := range models {
		if model == "" {
			continue
		}
		resp, err := client.Chat(ctx, ChatRequest{
			Model:       model,
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err == nil {
			return resp, model, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, "", ErrModelUnavailable
	}
	return nil, "", fmt.Errorf("%w: %v", ErrModelUnavailable, lastErr)
}
