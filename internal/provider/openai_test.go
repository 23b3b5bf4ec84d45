package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"ayudapo/internal/chat"
)

func TestChatStreamsSSE(t *testing.T) {
	var got compatChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"Hola"}}]}`)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":" mundo"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	var chunks []string
	var usage Usage
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:    []chat.Message{chat.User("hi")},
		Temperature: Float64(0.7),
		MaxTokens:   2000,
	}, &StreamCallbacks{
		OnTextChunk: func(c string) { chunks = append(chunks, c) },
		OnUsage:     func(u Usage) { usage = u },
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Hola mundo" || resp.FinishReason != "stop" {
		t.Fatalf("resp=%+v", resp)
	}
	if len(chunks) != 2 || usage.TotalTokens != 5 {
		t.Fatalf("chunks=%v usage=%+v", chunks, usage)
	}
	if got.Model != "m" || got.MaxTokens != 2000 || got.Temperature == nil || *got.Temperature != 0.7 {
		t.Fatalf("request=%+v", got)
	}
}

func TestChatAcceptsNonStreamJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"resumen"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	out, err := Complete(context.Background(), p, "sys", "user", CompleteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "resumen" {
		t.Fatalf("out=%q", out)
	}
}

func TestChatWithoutKeyFailsFast(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "m"})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []chat.Message{chat.User("x")}}, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err=%v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("unexpected network calls: %d", calls)
	}
}

func TestChatRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m", MaxRetries: 1})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []chat.Message{chat.User("x")}}, nil)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err=%v", err)
	}
	if n := atomic.LoadInt32(&calls); n < 2 {
		t.Fatalf("calls=%d", n)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer ek" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"model":"e"}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{
		BaseURL: "http://unused.invalid", APIKey: "k", Model: "m",
		EmbeddingBaseURL: srv.URL, EmbeddingAPIKey: "ek", EmbeddingModel: "e",
	})
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vecs=%v", vecs)
	}
}

func TestOpenAIProviderSetModel(t *testing.T) {
	p := &OpenAIProvider{model: "claude-3-7-sonnet-20250219"}
	if err := p.SetModel("claude-3-5-haiku-20241022"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}
	if p.CurrentModel() != "claude-3-5-haiku-20241022" {
		t.Fatalf("CurrentModel()=%q", p.CurrentModel())
	}
	if err := p.SetModel(" "); err == nil {
		t.Fatal("SetModel empty should error")
	}
}

func TestConvertMessages(t *testing.T) {
	converted := convertMessages([]chat.Message{chat.System("s"), chat.User("u"), chat.Assistant("a")})
	if len(converted) != 3 || converted[2].Role != "assistant" || converted[2].Content != "a" {
		t.Fatalf("converted=%+v", converted)
	}
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m", MaxRetries: 3})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []chat.Message{chat.User("x")}}, nil)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err=%v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls=%d, want 1", n)
	}
}

func TestChatBadRequestStopsAfterFallback(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "context too long", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m", MaxRetries: 3})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []chat.Message{chat.User("x")}}, nil)
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err=%v", err)
	}
	// One hand-rolled request plus one SDK attempt, no further rounds.
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls=%d, want 2", n)
	}
}

func TestChatDoesNotReplayAfterPartialStream(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hola\"}}]}\n\n")
		w.(http.Flusher).Flush()
		// Drop the connection mid-stream.
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	var chunks []string
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m", MaxRetries: 3})
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []chat.Message{chat.User("x")}}, &StreamCallbacks{
		OnTextChunk: func(s string) { chunks = append(chunks, s) },
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "Hola" || strings.Join(chunks, "") != "Hola" {
		t.Fatalf("content=%q chunks=%v", resp.Content, chunks)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls=%d, want 1", n)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&statusError{code: 429}, true},
		{&statusError{code: 408}, true},
		{&statusError{code: 502}, true},
		{&statusError{code: 400}, false},
		{&statusError{code: 404}, false},
		{fmt.Errorf("wrapped: %w", &statusError{code: 422}), false},
		{errors.New("http do: connection refused"), true},
	}
	for _, c := range cases {
		if got := retryable(c.err); got != c.want {
			t.Errorf("retryable(%v)=%v want %v", c.err, got, c.want)
		}
	}
}
