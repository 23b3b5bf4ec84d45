package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// Embedder turns texts into vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the vector space; vectors from different models are never mixed.
	Model() string
}

// EmbedFunc is the provider call RemoteEmbedder batches over.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// RemoteEmbedder batches calls to a provider embeddings endpoint and runs batches concurrently.
type RemoteEmbedder struct {
	embed       EmbedFunc
	model       string
	batchSize   int
	concurrency int
}

func NewRemoteEmbedder(fn EmbedFunc, model string, batchSize, concurrency int) *RemoteEmbedder {
	if batchSize <= 0 {
		batchSize = 64
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return &RemoteEmbedder{embed: fn, model: model, batchSize: batchSize, concurrency: concurrency}
}

func (e *RemoteEmbedder) Model() string { return e.model }

func (e *RemoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// HashEmbedder is a deterministic, offline bag-of-words embedder: lowercase, accent-free word
// unigrams and bigrams are hashed into dim signed buckets and the result is L2-normalized.
// It keeps search usable without an embeddings endpoint.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Model() string { return fmt.Sprintf("hash-%d", e.dim) }

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	words := Terms(text)
	add := func(term string) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum32()
		idx := int(sum % uint32(e.dim))
		if sum&(1<<31) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	for i, w := range words {
		add(w)
		if i > 0 {
			add(words[i-1] + " " + w)
		}
	}
	return Normalize(v)
}

// Terms lowercases, strips accents and splits on anything that is not a letter or digit.
// Single-letter terms are dropped.
func Terms(text string) []string {
	folded := norm.NFD.String(strings.ToLower(text))
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 1 {
			out = append(out, cur.String())
		}
		cur.Reset()
	}
	for _, r := range folded {
		switch {
		case unicode.Is(unicode.Mn, r):
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

// VectorCache persists embeddings keyed by model and content hash.
type VectorCache interface {
	GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error)
	PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error
}

// CachedEmbedder serves repeated texts from a VectorCache and embeds only the misses.
type CachedEmbedder struct {
	inner Embedder
	cache VectorCache
}

func NewCachedEmbedder(inner Embedder, cache VectorCache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (e *CachedEmbedder) Model() string { return e.inner.Model() }

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.cache == nil || len(texts) == 0 {
		return e.inner.Embed(ctx, texts)
	}
	hashes := make([]string, len(texts))
	for i, t := range texts {
		hashes[i] = ContentHash(t)
	}
	found, err := e.cache.GetEmbeddings(ctx, e.Model(), hashes)
	if err != nil {
		return nil, fmt.Errorf("embedding cache lookup: %w", err)
	}

	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
		queued    = map[string]bool{}
	)
	for i, h := range hashes {
		if v, ok := found[h]; ok {
			out[i] = v
			continue
		}
		if !queued[h] {
			queued[h] = true
			missTexts = append(missTexts, texts[i])
		}
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	fresh := make(map[string][]float32, len(vecs))
	for i, v := range vecs {
		fresh[ContentHash(missTexts[i])] = v
	}
	for _, i := range missIdx {
		out[i] = fresh[hashes[i]]
	}
	if err := e.cache.PutEmbeddings(ctx, e.Model(), fresh); err != nil {
		return nil, fmt.Errorf("embedding cache store: %w", err)
	}
	return out, nil
}

// ContentHash is the hex sha256 of s.
func ContentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
