package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params are the fixed generation knobs applied to every completion.
type Params struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Provider generates one assistant reply for an ordered message list.
// model selects the concrete model within the provider; providers fall
// back to their configured default when it is empty.
type Provider interface {
	Chat(ctx context.Context, model string, messages []Message) (string, error)
}

// Embedder converts free text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
