package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ayudapo/internal/contextmgr"
	"ayudapo/internal/logging"
	"ayudapo/internal/provider"
	"ayudapo/internal/storage"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

const (
	fileSummaryPrompt = `Eres un arquitecto de software. Resume el siguiente archivo de código para un Product Owner:
propósito, responsabilidades principales y dependencias relevantes. Máximo 5 frases, en español.`

	overviewPrompt = `Eres un arquitecto de software. A partir de los resúmenes por archivo, describe la arquitectura
del repositorio para un Product Owner: módulos, flujos principales, integraciones externas y riesgos técnicos.
Usa markdown con secciones breves, en español.`

	defaultMaxInputTokens = 3000
)

// SummaryStore persists summaries across runs.
type SummaryStore interface {
	GetSummary(ctx context.Context, path, contentHash, model string) (storage.Summary, bool, error)
	PutSummary(ctx context.Context, s storage.Summary) error
}

type FileSummary struct {
	Path    string
	Summary string
	Cached  bool
	Err     error
}

type SummarizerOptions struct {
	Workers        int
	CacheTTL       time.Duration
	MaxInputTokens int
	Store          SummaryStore
	Tokenizer      *contextmgr.Tokenizer
	Logger         *logging.Logger
}

// Summarizer produces per-file summaries with bounded concurrency. Results are cached in
// memory for CacheTTL and, when a store is set, on disk keyed by content hash.
type Summarizer struct {
	llm     provider.Provider
	cache   *cache.Cache
	store   SummaryStore
	tok     *contextmgr.Tokenizer
	workers int
	maxIn   int
	log     *logging.Logger
}

func NewSummarizer(llm provider.Provider, opts SummarizerOptions) *Summarizer {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	maxIn := opts.MaxInputTokens
	if maxIn <= 0 {
		maxIn = defaultMaxInputTokens
	}
	tok := opts.Tokenizer
	if tok == nil {
		tok = contextmgr.DefaultTokenizer()
	}
	return &Summarizer{
		llm:     llm,
		cache:   cache.New(ttl, ttl/6+time.Minute),
		store:   opts.Store,
		tok:     tok,
		workers: workers,
		maxIn:   maxIn,
		log:     opts.Logger.Named("repo"),
	}
}

// Summarize returns one summary per file in input order. A failing file is reported in its
// FileSummary.Err and does not stop the others; an error is returned only when the context
// ends or every file failed.
func (s *Summarizer) Summarize(ctx context.Context, files []File, progress func(done, total int)) ([]FileSummary, error) {
	out := make([]FileSummary, len(files))
	model := s.model()

	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range files {
		i := i
		g.Go(func() error {
			f := files[i]
			text, cached, err := s.summarizeOne(gctx, f, model)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			out[i] = FileSummary{Path: f.Path, Summary: text, Cached: cached, Err: err}
			if err != nil {
				s.log.Warn("summary failed", "path", f.Path, "error", err.Error())
			}
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if progress != nil {
				progress(n, len(files))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	failed := 0
	var firstErr error
	for _, fs := range out {
		if fs.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = fs.Err
			}
		}
	}
	if len(files) > 0 && failed == len(files) {
		return out, fmt.Errorf("all %d summaries failed: %w", failed, firstErr)
	}
	s.log.Info("repository summarized", "files", len(files), "failed", failed)
	return out, nil
}

func (s *Summarizer) summarizeOne(ctx context.Context, f File, model string) (string, bool, error) {
	key := model + "|" + f.Path + "|" + f.Hash
	if v, ok := s.cache.Get(key); ok {
		return v.(string), true, nil
	}
	if s.store != nil {
		if sum, ok, err := s.store.GetSummary(ctx, f.Path, f.Hash, model); err == nil && ok {
			s.cache.Set(key, sum.Text, cache.DefaultExpiration)
			return sum.Text, true, nil
		}
	}

	content := s.tok.Truncate(f.Content, s.maxIn)
	user := fmt.Sprintf("Archivo: %s\n\n```\n%s\n```", f.Path, content)
	text, err := provider.Complete(ctx, s.llm, fileSummaryPrompt, user, provider.CompleteOptions{
		Temperature: provider.Float64(0.2),
		MaxTokens:   400,
	})
	if err != nil {
		return "", false, err
	}
	if strings.TrimSpace(text) == "" {
		return "", false, errors.New("empty summary")
	}
	s.cache.Set(key, text, cache.DefaultExpiration)
	if s.store != nil {
		if err := s.store.PutSummary(ctx, storage.Summary{Path: f.Path, ContentHash: f.Hash, Model: model, Text: text}); err != nil {
			s.log.Warn("summary cache write failed", "path", f.Path, "error", err.Error())
		}
	}
	return text, false, nil
}

// Overview condenses per-file summaries into an architecture description.
func (s *Summarizer) Overview(ctx context.Context, sums []FileSummary) (string, error) {
	var b strings.Builder
	for _, fs := range sums {
		if fs.Err != nil || strings.TrimSpace(fs.Summary) == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", fs.Path, strings.TrimSpace(fs.Summary))
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no summaries to condense")
	}
	body := s.tok.Truncate(b.String(), s.maxIn*4)
	return provider.Complete(ctx, s.llm, overviewPrompt, body, provider.CompleteOptions{
		Temperature: provider.Float64(0.3),
		MaxTokens:   1500,
	})
}

func (s *Summarizer) model() string {
	if s.llm == nil {
		return ""
	}
	return s.llm.CurrentModel()
}
