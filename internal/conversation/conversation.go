// Package conversation keeps the state of one chat session: the active template and model
// settings, the ordered transcript, and its persistence.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ayudapo/internal/chat"
	"ayudapo/internal/config"
	"ayudapo/internal/contextmgr"
	"ayudapo/internal/logging"
	"ayudapo/internal/provider"
	"ayudapo/internal/storage"
	"ayudapo/internal/templates"
)

// ErrEmptyInput is returned by Send for blank input.
var ErrEmptyInput = errors.New("input is empty")

// TextChunkFunc receives streamed reply text.
type TextChunkFunc func(chunk string)

type Options struct {
	Catalog           *templates.Catalog
	Tokenizer         *contextmgr.Tokenizer
	Store             storage.Store
	Logger            *logging.Logger
	Template          string
	SystemPrompt      string
	// Temperature nil keeps the default; 0 is a valid setting.
	Temperature       *float64
	MaxTokens         int
	HistoryTokenLimit int
	// Owner tags stored sessions (the logged-in user for the HTTP API).
	Owner string
	// Models is the list offered by /models.
	Models []string
	// ConfigBasePath, when set, makes /models persist the choice to the project config.
	ConfigBasePath string
}

// Session is a single chat session.
type Session struct {
	mu sync.Mutex

	provider     provider.Provider
	catalog      *templates.Catalog
	tok          *contextmgr.Tokenizer
	store        storage.Store
	log          *logging.Logger
	template     string
	systemPrompt string
	temperature  float64
	maxTokens    int
	historyLimit int
	owner        string
	models       []string
	configBase   string

	id      string
	title   string
	entries []chat.Entry
	synced  int
}

func New(p provider.Provider, opts Options) *Session {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = templates.Builtin()
	}
	tok := opts.Tokenizer
	if tok == nil {
		tok = contextmgr.DefaultTokenizer()
	}
	s := &Session{
		provider:     p,
		catalog:      catalog,
		tok:          tok,
		store:        opts.Store,
		log:          opts.Logger.Named("conversation"),
		template:     config.DefaultTemplate,
		systemPrompt: strings.TrimSpace(opts.SystemPrompt),
		temperature:  config.DefaultTemperature,
		maxTokens:    config.DefaultMaxTokens,
		historyLimit: opts.HistoryTokenLimit,
		owner:        strings.TrimSpace(opts.Owner),
		models:       append([]string(nil), opts.Models...),
		configBase:   strings.TrimSpace(opts.ConfigBasePath),
	}
	if s.historyLimit <= 0 {
		s.historyLimit = config.DefaultHistoryTokenLimit
	}
	if t, err := catalog.Get(opts.Template); err == nil {
		s.template = t.Name
	}
	if t := opts.Temperature; t != nil && *t >= 0 && *t <= 1 {
		s.temperature = *t
	}
	if opts.MaxTokens >= config.MinMaxTokens && opts.MaxTokens <= config.MaxMaxTokens {
		s.maxTokens = opts.MaxTokens
	}
	return s
}

// Send fills input into the active template, records it, asks the model with the fitted
// history and records the reply. When the call fails the user message stays in the
// transcript and the error is returned.
func (s *Session) Send(ctx context.Context, input string, onChunk TextChunkFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}
	prompt, err := s.catalog.Render(s.template, input)
	if err != nil {
		return "", err
	}
	s.entries = append(s.entries, chat.Entry{
		Role:      chat.RoleUser,
		Content:   input,
		Prompt:    prompt,
		Template:  s.template,
		CreatedAt: nowUTC(),
	})
	if s.title == "" {
		s.title = storage.InferTitle(input)
	}

	if s.provider == nil {
		s.persist()
		return "", provider.ErrNotConfigured
	}

	wire := contextmgr.FitHistory(s.tok, s.wireMessagesLocked(), s.historyLimit)
	var cb *provider.StreamCallbacks
	if onChunk != nil {
		cb = &provider.StreamCallbacks{OnTextChunk: onChunk}
	}
	temp := s.temperature
	start := time.Now()
	resp, err := s.provider.Chat(ctx, provider.ChatRequest{
		Model:       s.provider.CurrentModel(),
		Messages:    wire,
		Temperature: &temp,
		MaxTokens:   s.maxTokens,
	}, cb)
	if err != nil {
		s.persist()
		if !errors.Is(err, provider.ErrNotConfigured) {
			s.log.Warn("completion failed", "session", s.id, "error", err.Error())
		}
		return "", err
	}

	reply := strings.TrimSpace(resp.Content)
	s.entries = append(s.entries, chat.Entry{Role: chat.RoleAssistant, Content: reply, CreatedAt: nowUTC()})
	s.persist()
	s.log.Info("turn completed",
		"session", s.id,
		"template", s.template,
		"messages", len(wire),
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}

// WireMessages returns what the next request would send before history fitting: the system
// prompt (if any), then each entry as the model sees it. Consecutive messages of the same
// role are merged so the request always alternates.
func (s *Session) WireMessages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wireMessagesLocked()
}

func (s *Session) wireMessagesLocked() []chat.Message {
	out := make([]chat.Message, 0, len(s.entries)+1)
	if s.systemPrompt != "" {
		out = append(out, chat.System(s.systemPrompt))
	}
	for _, e := range s.entries {
		msg := e.Wire()
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == msg.Role && msg.Role != chat.RoleSystem {
			out[n-1].Content += "\n\n" + msg.Content
			continue
		}
		out = append(out, msg)
	}
	return out
}

// ContextTokens estimates the tokens the next request would carry.
func (s *Session) ContextTokens() int {
	msgs := s.WireMessages()
	return s.tok.Count(contextmgr.FitHistory(s.tok, msgs, s.historyLimit))
}

func (s *Session) Messages() []chat.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Entry(nil), s.entries...)
}

// LoadMessages replaces the transcript without touching storage.
func (s *Session) LoadMessages(entries []chat.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]chat.Entry(nil), entries...)
	s.synced = len(s.entries)
}

// Reset clears the transcript and detaches from the stored session; the next Send starts a new one.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.synced = 0
	s.id = ""
	s.title = ""
}

// Resume loads a stored session and its messages.
func (s *Session) Resume(id string) (storage.SessionMeta, error) {
	if s.store == nil {
		return storage.SessionMeta{}, fmt.Errorf("session store unavailable")
	}
	meta, err := s.store.LoadSession(id)
	if err != nil {
		return storage.SessionMeta{}, err
	}
	if s.owner != "" && meta.Owner != s.owner {
		return storage.SessionMeta{}, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	entries, err := s.store.LoadMessages(meta.ID)
	if err != nil {
		return storage.SessionMeta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = meta.ID
	s.title = meta.Title
	s.entries = entries
	s.synced = len(entries)
	if t, err := s.catalog.Get(meta.Template); err == nil {
		s.template = t.Name
	}
	if meta.Temperature >= 0 && meta.Temperature <= 1 {
		s.temperature = meta.Temperature
	}
	if meta.MaxTokens >= config.MinMaxTokens && meta.MaxTokens <= config.MaxMaxTokens {
		s.maxTokens = meta.MaxTokens
	}
	if meta.Model != "" && s.provider != nil {
		_ = s.provider.SetModel(meta.Model)
	}
	return meta, nil
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Template() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template
}

// SetTemplate selects a template by name, slug or 1-based index and returns its canonical name.
func (s *Session) SetTemplate(key string) (string, error) {
	t, err := s.catalog.Get(key)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.template = t.Name
	s.mu.Unlock()
	s.saveMeta()
	return t.Name, nil
}

func (s *Session) Catalog() *templates.Catalog { return s.catalog }

func (s *Session) Model() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.CurrentModel()
}

func (s *Session) SetModel(model string) error {
	if s.provider == nil {
		return provider.ErrNotConfigured
	}
	if err := s.provider.SetModel(strings.TrimSpace(model)); err != nil {
		return err
	}
	s.saveMeta()
	return nil
}

// Models returns the configured model list with the current model first when missing.
func (s *Session) Models() []string {
	out := make([]string, 0, len(s.models)+1)
	seen := map[string]bool{}
	if current := s.Model(); current != "" {
		out = append(out, current)
		seen[current] = true
	}
	for _, m := range s.models {
		if m = strings.TrimSpace(m); m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func (s *Session) Temperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperature
}

func (s *Session) SetTemperature(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("temperature %.2f out of range [0, 1]", v)
	}
	s.mu.Lock()
	s.temperature = v
	s.mu.Unlock()
	s.saveMeta()
	return nil
}

func (s *Session) MaxTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxTokens
}

func (s *Session) SetMaxTokens(n int) error {
	if n < config.MinMaxTokens || n > config.MaxMaxTokens {
		return fmt.Errorf("max tokens %d out of range [%d, %d]", n, config.MinMaxTokens, config.MaxMaxTokens)
	}
	s.mu.Lock()
	s.maxTokens = n
	s.mu.Unlock()
	s.saveMeta()
	return nil
}

// persist writes unsynced entries, creating the stored session on first use. Storage errors are
// logged and never fail the turn.
func (s *Session) persist() {
	if s.store == nil || len(s.entries) == s.synced {
		return
	}
	if s.id == "" {
		meta := s.metaLocked()
		meta.ID = storage.NewSessionID()
		if err := s.store.CreateSession(meta); err != nil {
			s.log.Warn("create session failed", "error", err.Error())
			return
		}
		s.id = meta.ID
	}
	if err := s.store.AppendMessages(s.id, s.synced, s.entries[s.synced:]); err != nil {
		s.log.Warn("save messages failed", "session", s.id, "error", err.Error())
		return
	}
	s.synced = len(s.entries)
}

func (s *Session) saveMeta() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil || s.id == "" {
		return
	}
	meta := s.metaLocked()
	meta.ID = s.id
	if err := s.store.SaveSession(meta); err != nil {
		s.log.Warn("save session failed", "session", s.id, "error", err.Error())
	}
}

func (s *Session) metaLocked() storage.SessionMeta {
	model := ""
	if s.provider != nil {
		model = s.provider.CurrentModel()
	}
	return storage.SessionMeta{
		Title:       s.title,
		Owner:       s.owner,
		Template:    s.template,
		Model:       model,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
