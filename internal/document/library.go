package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"ayudapo/internal/retrieval"
)

// ErrNoDocuments is returned when nothing readable was loaded.
var ErrNoDocuments = errors.New("no documents loaded")

// Load extracts every path into a retrieval document. Files that yield no text are skipped;
// the first extraction error aborts the load.
func Load(paths []string) ([]retrieval.Document, error) {
	return load(paths, make(map[string]bool, len(paths)))
}

// load names each document after its file; a name already in taken gets a " (n)" suffix
// so chunk IDs stay distinct.
func load(paths []string, taken map[string]bool) ([]retrieval.Document, error) {
	docs := make([]retrieval.Document, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		text, err := Extract(p)
		if err != nil {
			return nil, err
		}
		if text == "" {
			continue
		}
		name := filepath.Base(p)
		source := name
		for n := 2; taken[source]; n++ {
			source = fmt.Sprintf("%s (%d)", name, n)
		}
		taken[source] = true
		docs = append(docs, retrieval.Document{
			ID:       retrieval.ContentHash(text),
			Source:   source,
			Title:    strings.TrimSuffix(name, filepath.Ext(name)),
			Text:     text,
			Metadata: map[string]string{"kind": "document", "path": p},
		})
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

// Library holds loaded documents and their chunk index, built on first use.
type Library struct {
	pipeline *retrieval.Pipeline

	mu    sync.Mutex
	docs  []retrieval.Document
	index *retrieval.Index
}

func NewLibrary(pipeline *retrieval.Pipeline) *Library {
	return &Library{pipeline: pipeline}
}

// Add loads more files; the index is rebuilt on the next query.
func (l *Library) Add(paths ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	taken := make(map[string]bool, len(l.docs)+len(paths))
	for _, d := range l.docs {
		taken[d.Source] = true
	}
	docs, err := load(paths, taken)
	if err != nil {
		return err
	}
	l.docs = append(l.docs, docs...)
	l.index = nil
	return nil
}

func (l *Library) Documents() []retrieval.Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]retrieval.Document(nil), l.docs...)
}

func (l *Library) Pipeline() *retrieval.Pipeline { return l.pipeline }

// Index chunks and embeds the loaded documents.
func (l *Library) Index(ctx context.Context) (*retrieval.Index, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index != nil {
		return l.index, nil
	}
	if len(l.docs) == 0 {
		return nil, ErrNoDocuments
	}
	idx, err := l.pipeline.BuildIndex(ctx, l.docs)
	if err != nil {
		return nil, fmt.Errorf("index documents: %w", err)
	}
	l.index = idx
	return idx, nil
}
