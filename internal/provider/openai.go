package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"ayudapo/internal/chat"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible endpoint (Anthropic's compat layer included).
type OpenAIProvider struct {
	client      *openai.Client
	embedClient *openai.Client
	httpClient  *http.Client
	model       string
	cfg         OpenAIConfig
	mu          sync.RWMutex
}

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	TimeoutMS  int
	MaxRetries int

	// Embedding endpoint; empty fields fall back to the chat endpoint.
	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	config.HTTPClient = httpClient

	embedBase := strings.TrimSpace(cfg.EmbeddingBaseURL)
	if embedBase == "" {
		embedBase = cfg.BaseURL
	}
	embedKey := strings.TrimSpace(cfg.EmbeddingAPIKey)
	if embedKey == "" {
		embedKey = cfg.APIKey
	}
	embedConfig := openai.DefaultConfig(embedKey)
	embedConfig.BaseURL = strings.TrimRight(embedBase, "/")
	embedConfig.HTTPClient = httpClient

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		embedClient: openai.NewClientWithConfig(embedConfig),
		httpClient:  httpClient,
		model:       cfg.Model,
		cfg:         cfg,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai-compatible"
}

func (p *OpenAIProvider) CurrentModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *OpenAIProvider) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model is empty")
	}
	p.mu.Lock()
	p.model = model
	p.mu.Unlock()
	return nil
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest, cb *StreamCallbacks) (ChatResponse, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return ChatResponse{}, ErrNotConfigured
	}
	model := req.Model
	if model == "" {
		model = p.CurrentModel()
	}

	// Chunks already handed to the caller cannot be taken back, so a failure
	// after the first chunk is returned as is.
	var emitted bool
	tracked := trackEmitted(cb, &emitted)

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(150*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return ChatResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := p.chatStreamCompat(ctx, compatChatRequest{
			Model:       model,
			Messages:    req.Messages,
			Stream:      true,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}, tracked)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ChatResponse{}, err
		}
		if emitted || isAuthError(err) {
			return ChatResponse{}, err
		}
		// Some gateways reject the hand-rolled SSE request; retry once through the SDK stream.
		sdkResp, sdkErr := p.chatStream(ctx, buildSDKRequest(model, req), tracked)
		if sdkErr == nil {
			return sdkResp, nil
		}
		lastErr = err
		if emitted || !retryable(err) {
			return ChatResponse{}, err
		}
	}
	return ChatResponse{}, fmt.Errorf("provider chat failed after %d retries: %w", p.cfg.MaxRetries, lastErr)
}

// statusError is a non-2xx answer from the chat endpoint.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.code, e.body)
}

func isAuthError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && (se.code == http.StatusUnauthorized || se.code == http.StatusForbidden)
}

// retryable reports whether another attempt may succeed: throttling, timeouts,
// server errors and transport failures. Other 4xx answers are final.
func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true
	}
	switch {
	case se.code == http.StatusTooManyRequests, se.code == http.StatusRequestTimeout:
		return true
	case se.code >= 500:
		return true
	default:
		return false
	}
}

func trackEmitted(cb *StreamCallbacks, emitted *bool) *StreamCallbacks {
	out := &StreamCallbacks{}
	if cb != nil {
		*out = *cb
	}
	next := out.OnTextChunk
	out.OnTextChunk = func(s string) {
		*emitted = true
		if next != nil {
			next(s)
		}
	}
	return out
}

// Embed calls /embeddings in one request; callers batch.
func (p *OpenAIProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	model := strings.TrimSpace(p.cfg.EmbeddingModel)
	if model == "" {
		return nil, fmt.Errorf("embedding model is not configured")
	}
	resp, err := p.embedClient.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(inputs))
	}
	data := append([]openai.Embedding(nil), resp.Data...)
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// --- OpenAI-compatible streaming ---

type compatChatRequest struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	Stream      bool           `json:"stream"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
}

type compatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		Message *struct {
			Content string `json:"content"`
		} `json:"message,omitempty"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (p *OpenAIProvider) chatStreamCompat(ctx context.Context, req compatChatRequest, cb *StreamCallbacks) (ChatResponse, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(p.cfg.BaseURL), "/")
	if baseURL == "" {
		return ChatResponse{}, fmt.Errorf("base_url is empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(p.cfg.APIKey))

	client := p.httpClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return ChatResponse{}, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}

	// Servers that ignore stream=true answer with a single JSON document.
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		return parseNonStream(resp.Body, cb)
	}

	var (
		content      strings.Builder
		finishReason string
		usage        Usage
	)

	// SSE: each line begins with "data: {json}" or "data: [DONE]"
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk compatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != nil && strings.TrimSpace(*choice.FinishReason) != "" {
				finishReason = strings.TrimSpace(*choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				if cb != nil && cb.OnTextChunk != nil {
					cb.OnTextChunk(choice.Delta.Content)
				}
			}
		}
		if chunk.Usage != nil {
			usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
	}
	if err := scanner.Err(); err != nil && content.Len() == 0 {
		return ChatResponse{}, fmt.Errorf("stream scan: %w", err)
	}
	if cb != nil && cb.OnUsage != nil {
		cb.OnUsage(usage)
	}
	return ChatResponse{Content: content.String(), FinishReason: finishReason, Usage: usage}, nil
}

func parseNonStream(r io.Reader, cb *StreamCallbacks) (ChatResponse, error) {
	var doc compatStreamChunk
	if err := json.NewDecoder(io.LimitReader(r, 8*1024*1024)).Decode(&doc); err != nil {
		return ChatResponse{}, fmt.Errorf("decode response: %w", err)
	}
	var out ChatResponse
	for _, choice := range doc.Choices {
		if choice.Message != nil {
			out.Content += choice.Message.Content
		}
		if choice.FinishReason != nil {
			out.FinishReason = *choice.FinishReason
		}
	}
	if doc.Usage != nil {
		out.Usage = Usage{
			PromptTokens:     doc.Usage.PromptTokens,
			CompletionTokens: doc.Usage.CompletionTokens,
			TotalTokens:      doc.Usage.TotalTokens,
		}
	}
	if cb != nil && cb.OnTextChunk != nil && out.Content != "" {
		cb.OnTextChunk(out.Content)
	}
	if cb != nil && cb.OnUsage != nil {
		cb.OnUsage(out.Usage)
	}
	return out, nil
}

func buildSDKRequest(model string, req ChatRequest) openai.ChatCompletionRequest {
	sdkReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
		Stream:   true,
	}
	if req.Temperature != nil {
		sdkReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		sdkReq.MaxTokens = req.MaxTokens
	}
	return sdkReq
}

func (p *OpenAIProvider) chatStream(ctx context.Context, req openai.ChatCompletionRequest, cb *StreamCallbacks) (ChatResponse, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("create stream: %w", err)
	}
	defer stream.Close()

	var (
		content      strings.Builder
		finishReason string
		usage        Usage
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if content.Len() > 0 {
				break
			}
			return ChatResponse{}, fmt.Errorf("recv stream: %w", err)
		}
		for _, choice := range resp.Choices {
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				if cb != nil && cb.OnTextChunk != nil {
					cb.OnTextChunk(choice.Delta.Content)
				}
			}
		}
		if resp.Usage != nil {
			usage = Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
	}
	if cb != nil && cb.OnUsage != nil {
		cb.OnUsage(usage)
	}
	return ChatResponse{Content: content.String(), FinishReason: finishReason, Usage: usage}, nil
}

func convertMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
