// Package providertest offers a scripted provider.Provider for tests.
package providertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ayudapo/internal/provider"
)

// Fake records every request and answers with Reply (or the next entry of Replies).
type Fake struct {
	mu       sync.Mutex
	Requests []provider.ChatRequest
	Replies  []string
	Reply    string
	// ReplyFunc, when set, computes the reply from the request.
	ReplyFunc func(req provider.ChatRequest) (string, error)
	Err       error
	// EmbedFunc backs Embed; nil returns an error.
	EmbedFunc func(texts []string) ([][]float32, error)
	model     string
}

func (f *Fake) Chat(ctx context.Context, req provider.ChatRequest, cb *provider.StreamCallbacks) (provider.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return provider.ChatResponse{}, err
	}
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	reply := f.Reply
	if len(f.Replies) > 0 {
		reply = f.Replies[0]
		f.Replies = f.Replies[1:]
	}
	fn, err := f.ReplyFunc, f.Err
	f.mu.Unlock()

	if err != nil {
		return provider.ChatResponse{}, err
	}
	if fn != nil {
		reply, err = fn(req)
		if err != nil {
			return provider.ChatResponse{}, err
		}
	}
	if cb != nil && cb.OnTextChunk != nil {
		for _, part := range strings.SplitAfter(reply, " ") {
			if part != "" {
				cb.OnTextChunk(part)
			}
		}
	}
	return provider.ChatResponse{Content: reply, FinishReason: "stop"}, nil
}

func (f *Fake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.EmbedFunc == nil {
		return nil, fmt.Errorf("fake provider has no embeddings")
	}
	return f.EmbedFunc(texts)
}

func (f *Fake) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{{ID: f.CurrentModel(), OwnedBy: "fake"}}, nil
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) CurrentModel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.model == "" {
		return "fake-model"
	}
	return f.model
}

func (f *Fake) SetModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model is empty")
	}
	f.mu.Lock()
	f.model = model
	f.mu.Unlock()
	return nil
}

// Calls returns a copy of the recorded requests.
func (f *Fake) Calls() []provider.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.ChatRequest(nil), f.Requests...)
}

// LastUserMessage returns the content of the final message of the last request.
func (f *Fake) LastUserMessage() string {
	calls := f.Calls()
	if len(calls) == 0 || len(calls[len(calls)-1].Messages) == 0 {
		return ""
	}
	msgs := calls[len(calls)-1].Messages
	return msgs[len(msgs)-1].Content
}
