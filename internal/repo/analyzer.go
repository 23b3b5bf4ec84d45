package repo

import (
	"context"
	"fmt"
	"sync"

	"ayudapo/internal/provider"
	"ayudapo/internal/retrieval"
)

const repoSystemPrompt = `Eres AyudaPO, un copiloto para Product Owners que analiza repositorios de código.
Responde únicamente con la información del CONTEXTO (fragmentos de archivos). Cita los archivos con su número entre corchetes.
Si el contexto no basta, dilo claramente. Responde en el mismo idioma que la pregunta.`

// Analyzer answers questions about one repository snapshot.
type Analyzer struct {
	files    []File
	pipeline *retrieval.Pipeline

	mu    sync.Mutex
	index *retrieval.Index
}

func NewAnalyzer(files []File, pipeline *retrieval.Pipeline) *Analyzer {
	return &Analyzer{files: files, pipeline: pipeline}
}

func (a *Analyzer) Files() []File { return a.files }

// Documents maps files to retrieval documents; the path is both source and title.
func Documents(files []File) []retrieval.Document {
	docs := make([]retrieval.Document, 0, len(files))
	for _, f := range files {
		docs = append(docs, retrieval.Document{
			ID:       f.Hash,
			Source:   f.Path,
			Title:    f.Path,
			Text:     f.Content,
			Metadata: map[string]string{"kind": "file"},
		})
	}
	return docs
}

// Index builds the chunk index on first successful use.
func (a *Analyzer) Index(ctx context.Context) (*retrieval.Index, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index != nil {
		return a.index, nil
	}
	idx, err := a.pipeline.BuildIndex(ctx, Documents(a.files))
	if err != nil {
		return nil, fmt.Errorf("index repository: %w", err)
	}
	a.index = idx
	return idx, nil
}

// Ask answers question from the most similar file chunks.
func (a *Analyzer) Ask(ctx context.Context, question string, stream *provider.StreamCallbacks) (retrieval.Answer, error) {
	idx, err := a.Index(ctx)
	if err != nil {
		return retrieval.Answer{}, err
	}
	return a.pipeline.Ask(ctx, idx, retrieval.AskRequest{
		Query:  question,
		System: repoSystemPrompt,
		Stream: stream,
	})
}
