// Package retrieval implements chunk → embed → cosine top-k → context, the pattern shared by
// repository files, work items, wiki pages and documents.
package retrieval

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrEmptyIndex        = errors.New("index is empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Item is one embedded chunk. Text and Vector live together so they cannot drift apart.
type Item struct {
	ID       string
	Source   string
	Title    string
	Text     string
	Metadata map[string]string
	Vector   []float32
}

type Hit struct {
	Item
	Score float64
	Rank  int
}

// Index is a flat in-memory vector index; safe for concurrent use.
type Index struct {
	mu    sync.RWMutex
	items []Item
	dim   int
}

func NewIndex() *Index {
	return &Index{}
}

// Add appends items. The first vector fixes the dimension; later mismatches are rejected
// and nothing from that call is added.
func (x *Index) Add(items ...Item) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	dim := x.dim
	for _, it := range items {
		if len(it.Vector) == 0 {
			return fmt.Errorf("item %q: %w: empty vector", it.ID, ErrDimensionMismatch)
		}
		if dim == 0 {
			dim = len(it.Vector)
		}
		if len(it.Vector) != dim {
			return fmt.Errorf("item %q: %w: got %d, want %d", it.ID, ErrDimensionMismatch, len(it.Vector), dim)
		}
	}
	x.dim = dim
	x.items = append(x.items, items...)
	return nil
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.items)
}

func (x *Index) Dim() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Items returns a copy of the indexed items in insertion order.
func (x *Index) Items() []Item {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]Item(nil), x.items...)
}

// Sources returns the distinct sources in insertion order.
func (x *Index) Sources() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, it := range x.items {
		if _, ok := seen[it.Source]; ok {
			continue
		}
		seen[it.Source] = struct{}{}
		out = append(out, it.Source)
	}
	return out
}

// Search returns up to k items by descending cosine score, dropping scores below minScore.
// Equal scores keep insertion order. k <= 0 means DefaultTopK.
func (x *Index) Search(query []float32, k int, minScore float64) ([]Hit, error) {
	scored, err := x.score(query)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultTopK
	}
	out := make([]Hit, 0, k)
	for _, h := range scored {
		if h.Score < minScore {
			break
		}
		out = append(out, h)
		if len(out) == k {
			break
		}
	}
	rank(out)
	return out, nil
}

// SearchMMR re-ranks the best 4k candidates with maximal marginal relevance so near-duplicate
// chunks (overlapping windows of one file) do not crowd out other sources.
// lambda weighs relevance against novelty; <= 0 means 0.5.
func (x *Index) SearchMMR(query []float32, k int, minScore, lambda float64) ([]Hit, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	pool, err := x.Search(query, 4*k, minScore)
	if err != nil {
		return nil, err
	}
	if lambda <= 0 || lambda > 1 {
		lambda = 0.5
	}
	if len(pool) <= 1 {
		return pool, nil
	}

	selected := make([]Hit, 0, k)
	used := make([]bool, len(pool))
	selected = append(selected, pool[0])
	used[0] = true
	for len(selected) < k {
		best, bestVal := -1, -1e12
		for i := range pool {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, s := range selected {
				if sim := Cosine(pool[i].Vector, s.Vector); sim > maxSim {
					maxSim = sim
				}
			}
			if val := lambda*pool[i].Score - (1-lambda)*maxSim; val > bestVal {
				best, bestVal = i, val
			}
		}
		if best == -1 {
			break
		}
		used[best] = true
		selected = append(selected, pool[best])
	}
	rank(selected)
	return selected, nil
}

func (x *Index) score(query []float32) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.items) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(query), x.dim)
	}
	hits := make([]Hit, len(x.items))
	for i, it := range x.items {
		hits[i] = Hit{Item: it, Score: Cosine(query, it.Vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

func rank(hits []Hit) {
	for i := range hits {
		hits[i].Rank = i + 1
	}
}
