package devops

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ayudapo/internal/retrieval"
)

// Scope selects what Corpus loads.
type Scope int

const (
	ScopeWorkItems Scope = 1 << iota
	ScopeWiki
	ScopeAll = ScopeWorkItems | ScopeWiki
)

// ParseScope accepts "items", "wiki" or "all".
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ScopeAll, nil
	case "items", "workitems", "work-items":
		return ScopeWorkItems, nil
	case "wiki":
		return ScopeWiki, nil
	default:
		return 0, fmt.Errorf("unknown scope %q (use items, wiki or all)", s)
	}
}

// WorkItemDocument renders a work item as a retrieval document.
func WorkItemDocument(w WorkItem) retrieval.Document {
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d: %s\n", w.Type, w.ID, w.Title)
	if w.State != "" {
		fmt.Fprintf(&b, "Estado: %s\n", w.State)
	}
	if len(w.Tags) > 0 {
		fmt.Fprintf(&b, "Etiquetas: %s\n", strings.Join(w.Tags, ", "))
	}
	if w.Description != "" {
		b.WriteString("\n" + w.Description + "\n")
	}
	if w.AcceptanceCriteria != "" {
		b.WriteString("\nCriterios de aceptación:\n" + w.AcceptanceCriteria + "\n")
	}
	return retrieval.Document{
		ID:     strconv.Itoa(w.ID),
		Source: "workitem/" + strconv.Itoa(w.ID),
		Title:  w.Title,
		Text:   b.String(),
		Metadata: map[string]string{
			"kind":  "workitem",
			"type":  w.Type,
			"state": w.State,
			"url":   w.URL,
		},
	}
}

// WikiDocument renders a wiki page as a retrieval document.
func WikiDocument(p WikiPage) retrieval.Document {
	title := p.Path
	if i := strings.LastIndex(title, "/"); i >= 0 {
		title = title[i+1:]
	}
	return retrieval.Document{
		ID:       p.Path,
		Source:   "wiki" + p.Path,
		Title:    title,
		Text:     p.Content,
		Metadata: map[string]string{"kind": "wiki", "path": p.Path, "url": p.URL},
	}
}

// Corpus loads the documents for scope: up to limit recent work items and/or wiki pages.
func (c *Client) Corpus(ctx context.Context, scope Scope, limit int) ([]retrieval.Document, error) {
	var docs []retrieval.Document
	if scope&ScopeWorkItems != 0 {
		items, err := c.RecentWorkItems(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("load work items: %w", err)
		}
		for _, w := range items {
			docs = append(docs, WorkItemDocument(w))
		}
	}
	if scope&ScopeWiki != 0 {
		pages, err := c.WikiPages(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("load wiki: %w", err)
		}
		for _, p := range pages {
			if strings.TrimSpace(p.Content) == "" {
				continue
			}
			docs = append(docs, WikiDocument(p))
		}
	}
	return docs, nil
}

// Searcher runs semantic search over a DevOps corpus.
type Searcher struct {
	client   *Client
	pipeline *retrieval.Pipeline
}

func NewSearcher(client *Client, pipeline *retrieval.Pipeline) *Searcher {
	return &Searcher{client: client, pipeline: pipeline}
}

// Search loads the corpus for scope and returns the chunks most similar to query.
func (s *Searcher) Search(ctx context.Context, query string, scope Scope, limit int) ([]retrieval.Hit, error) {
	idx, err := s.Index(ctx, scope, limit)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Retrieve(ctx, idx, query)
}

// Index loads and indexes the corpus for scope.
func (s *Searcher) Index(ctx context.Context, scope Scope, limit int) (*retrieval.Index, error) {
	docs, err := s.client.Corpus(ctx, scope, limit)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, retrieval.ErrEmptyIndex
	}
	return s.pipeline.BuildIndex(ctx, docs)
}
