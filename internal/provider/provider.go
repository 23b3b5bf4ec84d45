package provider

import (
	"context"
	"errors"
	"strings"

	"ayudapo/internal/chat"
)

// ErrNotConfigured is returned before any network call when the API key is missing.
var ErrNotConfigured = errors.New("provider api key is not configured")

// ChatRequest wraps a single completion call.
type ChatRequest struct {
	Model       string
	Messages    []chat.Message
	Temperature *float64
	MaxTokens   int
}

// StreamCallbacks is the callback set for streaming responses.
type StreamCallbacks struct {
	OnTextChunk func(chunk string)
	OnUsage     func(usage Usage)
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

type ModelInfo struct {
	ID      string
	OwnedBy string
}

// Provider is the LLM backend: chat completion plus embeddings.
type Provider interface {
	// Chat sends a request and returns the full reply; chunks are streamed through cb when set.
	Chat(ctx context.Context, req ChatRequest, cb *StreamCallbacks) (ChatResponse, error)

	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)

	ListModels(ctx context.Context) ([]ModelInfo, error)
	Name() string
	CurrentModel() string
	SetModel(model string) error
}

// CompleteOptions tunes a one-shot completion.
type CompleteOptions struct {
	Temperature *float64
	MaxTokens   int
}

// Complete runs a single system+user exchange without streaming.
func Complete(ctx context.Context, p Provider, system, user string, opts CompleteOptions) (string, error) {
	msgs := make([]chat.Message, 0, 2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, chat.System(system))
	}
	msgs = append(msgs, chat.User(user))
	resp, err := p.Chat(ctx, ChatRequest{
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// Float64 is a small helper for optional request parameters.
func Float64(v float64) *float64 { return &v }
