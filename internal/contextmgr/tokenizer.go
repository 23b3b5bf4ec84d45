package contextmgr

import (
	"strings"
	"sync"

	"ayudapo/internal/chat"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens with tiktoken and falls back to a heuristic when the BPE is unavailable.
type Tokenizer struct {
	encoder      *tiktoken.Tiktoken
	encodingName string
	fallback     bool
	mu           sync.RWMutex
}

var (
	defaultTokenizer     *Tokenizer
	defaultTokenizerOnce sync.Once
)

// DefaultTokenizer returns the shared cl100k_base tokenizer.
func DefaultTokenizer() *Tokenizer {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer = NewTokenizer("cl100k_base")
	})
	return defaultTokenizer
}

// NewTokenizer creates a tokenizer; offline environments without a BPE cache get the heuristic.
func NewTokenizer(encodingName string) *Tokenizer {
	t := &Tokenizer{encodingName: encodingName}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		t.fallback = true
		return t
	}
	t.encoder = enc
	return t
}

// NewHeuristicTokenizer never touches tiktoken; tests and offline mode use it.
func NewHeuristicTokenizer() *Tokenizer {
	return &Tokenizer{encodingName: "heuristic", fallback: true}
}

func NewTokenizerForModel(model string) *Tokenizer {
	return NewTokenizer(modelToEncoding(model))
}

// Count returns the total token count for a message list, including per-message overhead.
func (t *Tokenizer) Count(messages []chat.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.CountMessage(msg)
	}
	return total
}

// CountMessage counts one message plus the ~4 token envelope chat APIs add.
func (t *Tokenizer) CountMessage(msg chat.Message) int {
	return 4 + t.CountText(msg.Content) + t.CountText(msg.Role)
}

func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicTokenCount(text)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// Truncate cuts text so that it fits in maxTokens. The result is a prefix of text.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if t.CountText(text) <= maxTokens {
		return text
	}
	if !t.fallback {
		t.mu.RLock()
		tokens := t.encoder.Encode(text, nil, nil)
		out := t.encoder.Decode(tokens[:maxTokens])
		t.mu.RUnlock()
		// Decoding a cut in the middle of a multi-byte rune yields U+FFFD; drop it.
		return strings.TrimRight(out, "�")
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if heuristicTokenCount(string(runes[:mid])) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}

func (t *Tokenizer) IsPrecise() bool {
	return !t.fallback
}

func (t *Tokenizer) EncodingName() string {
	return t.encodingName
}

// heuristicTokenCount estimates ~4 chars/token for Latin text and ~1.5 tokens per CJK rune.
func heuristicTokenCount(text string) int {
	if text == "" {
		return 0
	}
	cjkCount := 0
	otherCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		} else {
			otherCount++
		}
	}
	estimate := int(float64(cjkCount)*1.5 + float64(otherCount)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}

// modelToEncoding maps a model name to its tiktoken encoding. Claude has no public BPE;
// cl100k_base is a close enough proxy for budgeting.
func modelToEncoding(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "chatgpt-4o"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}
