package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ayudapo/internal/chat"
	"ayudapo/internal/contextmgr"
	"ayudapo/internal/logging"
	"ayudapo/internal/provider"

	"github.com/google/uuid"
)

const (
	DefaultTopK = 5

	// GroundedSystemPrompt asks for answers restricted to the supplied context.
	GroundedSystemPrompt = `Eres AyudaPO, un copiloto para Product Owners.
Responde únicamente con la información del CONTEXTO. Cita las fuentes con su número entre corchetes, por ejemplo [2].
Si el contexto no contiene la respuesta, dilo claramente en lugar de inventarla.
Responde en el mismo idioma que la pregunta.`
)

// Document is a unit of source text before chunking.
type Document struct {
	ID       string
	Source   string
	Title    string
	Text     string
	Metadata map[string]string
}

type Options struct {
	ChunkSize     int
	ChunkOverlap  int
	TopK          int
	MinScore      float64
	ContextTokens int
	// MMR diversifies hits across sources.
	MMR         bool
	Temperature *float64
	MaxTokens   int
}

// Pipeline wires chunking, embedding, search and the completion call.
type Pipeline struct {
	embedder Embedder
	llm      provider.Provider
	tok      *contextmgr.Tokenizer
	opts     Options
	log      *logging.Logger
}

func NewPipeline(embedder Embedder, llm provider.Provider, tok *contextmgr.Tokenizer, opts Options, log *logging.Logger) *Pipeline {
	if tok == nil {
		tok = contextmgr.DefaultTokenizer()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Pipeline{embedder: embedder, llm: llm, tok: tok, opts: opts, log: log.Named("retrieval")}
}

func (p *Pipeline) Tokenizer() *contextmgr.Tokenizer { return p.tok }
func (p *Pipeline) Options() Options                  { return p.opts }

// BuildIndex chunks every document, embeds all chunks in one batched call and returns the index.
// Chunk IDs are stable: the same source and position always give the same ID.
func (p *Pipeline) BuildIndex(ctx context.Context, docs []Document) (*Index, error) {
	var items []Item
	for _, d := range docs {
		for n, piece := range Chunk(d.Text, p.opts.ChunkSize, p.opts.ChunkOverlap) {
			meta := map[string]string{"chunk": strconv.Itoa(n)}
			for k, v := range d.Metadata {
				meta[k] = v
			}
			if d.ID != "" {
				meta["doc_id"] = d.ID
			}
			items = append(items, Item{
				ID:       ChunkID(d.Source, n),
				Source:   d.Source,
				Title:    d.Title,
				Text:     piece,
				Metadata: meta,
			})
		}
	}
	idx := NewIndex()
	if len(items) == 0 {
		return idx, nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(items) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(items))
	}
	for i := range items {
		items[i].Vector = vecs[i]
	}
	if err := idx.Add(items...); err != nil {
		return nil, err
	}
	p.log.Info("index built", "documents", len(docs), "chunks", len(items), "model", p.embedder.Model())
	return idx, nil
}

// Retrieve embeds query and returns the top-k hits.
func (p *Pipeline) Retrieve(ctx context.Context, idx *Index, query string) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if idx == nil || idx.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	vecs, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	if p.opts.MMR {
		return idx.SearchMMR(vecs[0], p.opts.TopK, p.opts.MinScore, 0.5)
	}
	return idx.Search(vecs[0], p.opts.TopK, p.opts.MinScore)
}

type AskRequest struct {
	Query string
	// System overrides GroundedSystemPrompt.
	System string
	// Instruction is appended after the context; defaults to the query itself.
	Instruction string
	Stream      *provider.StreamCallbacks
}

type Answer struct {
	Text    string
	Hits    []Hit
	Context string
	Usage   provider.Usage
}

// Ask runs the full pattern: retrieve, build context under the token budget, call the LLM.
func (p *Pipeline) Ask(ctx context.Context, idx *Index, req AskRequest) (Answer, error) {
	hits, err := p.Retrieve(ctx, idx, req.Query)
	if err != nil {
		return Answer{}, err
	}
	contextText := BuildContext(p.tok, hits, p.opts.ContextTokens)

	system := req.System
	if strings.TrimSpace(system) == "" {
		system = GroundedSystemPrompt
	}
	instruction := req.Instruction
	if strings.TrimSpace(instruction) == "" {
		instruction = req.Query
	}
	user := "CONTEXTO:\n" + contextText + "\n\nPETICIÓN:\n" + instruction

	resp, err := p.llm.Chat(ctx, provider.ChatRequest{
		Messages:    []chat.Message{chat.System(system), chat.User(user)},
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	}, req.Stream)
	if err != nil {
		return Answer{Hits: hits, Context: contextText}, fmt.Errorf("completion: %w", err)
	}
	p.log.Debug("answered", "hits", len(hits), "context_tokens", p.tok.CountText(contextText))
	return Answer{Text: strings.TrimSpace(resp.Content), Hits: hits, Context: contextText, Usage: resp.Usage}, nil
}

// ChunkID derives a stable UUID from a source and chunk position.
func ChunkID(source string, n int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"#"+strconv.Itoa(n))).String()
}
