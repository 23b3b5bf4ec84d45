// Package copilot answers questions over uploaded documents and turns them into DevOps
// work items and wiki pages.
package copilot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ayudapo/internal/devops"
	"ayudapo/internal/document"
	"ayudapo/internal/logging"
	"ayudapo/internal/provider"
	"ayudapo/internal/retrieval"

	"github.com/google/uuid"
)

// DefaultTag marks every work item created from a draft.
const DefaultTag = "AyudaPO"

const (
	workItemPrompt = `Eres AyudaPO, un copiloto para Product Owners que redacta elementos de trabajo para Azure DevOps.
Usa la información del CONTEXTO cuando exista. No inventes datos que no estén en el contexto o en la petición.
Responde SOLO con un objeto JSON con esta forma:
{"title": "...", "description": "...", "acceptance_criteria": ["Dado ..., cuando ..., entonces ..."], "tags": ["..."]}
Los criterios de aceptación usan el formato dado, cuando y entonces. Responde en el idioma de la petición.`

	wikiPrompt = `Eres AyudaPO, un copiloto para Product Owners que redacta páginas de wiki en Markdown.
Usa la información del CONTEXTO cuando exista y cita las fuentes con su número entre corchetes.
Responde SOLO con un objeto JSON con esta forma:
{"title": "...", "content": "# Título\n\n..."}
Responde en el idioma de la petición.`
)

// Publisher is the part of the DevOps client used to publish drafts.
type Publisher interface {
	CreateWorkItem(ctx context.Context, item devops.NewWorkItem) (devops.WorkItem, error)
	UpsertWikiPage(ctx context.Context, path, content string) (devops.WikiPage, error)
}

type Options struct {
	// WorkItemType defaults to "User Story".
	WorkItemType string
	AreaPath     string
	// WikiParent is the wiki path new pages are created under.
	WikiParent string
	Tags       []string
}

// Copilot combines a document library, the LLM and an optional DevOps publisher.
type Copilot struct {
	library   *document.Library
	llm       provider.Provider
	publisher Publisher
	opts      Options
	log       *logging.Logger
}

func New(library *document.Library, llm provider.Provider, publisher Publisher, opts Options, log *logging.Logger) *Copilot {
	if strings.TrimSpace(opts.WorkItemType) == "" {
		opts.WorkItemType = "User Story"
	}
	return &Copilot{library: library, llm: llm, publisher: publisher, opts: opts, log: log.Named("copilot")}
}

func (c *Copilot) Library() *document.Library { return c.library }

// AskDocuments answers question from the loaded documents.
func (c *Copilot) AskDocuments(ctx context.Context, question string, stream *provider.StreamCallbacks) (retrieval.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return retrieval.Answer{}, fmt.Errorf("question is empty")
	}
	if c.library == nil {
		return retrieval.Answer{}, document.ErrNoDocuments
	}
	idx, err := c.library.Index(ctx)
	if err != nil {
		return retrieval.Answer{}, err
	}
	return c.library.Pipeline().Ask(ctx, idx, retrieval.AskRequest{Query: question, Stream: stream})
}

// generate asks the model with document context when documents are loaded, and without
// context otherwise. It returns the reply and the cited sources.
func (c *Copilot) generate(ctx context.Context, system, instruction string) (string, []string, error) {
	if c.llm == nil {
		return "", nil, provider.ErrNotConfigured
	}
	if c.library != nil && len(c.library.Documents()) > 0 {
		idx, err := c.library.Index(ctx)
		if err != nil {
			return "", nil, err
		}
		ans, err := c.library.Pipeline().Ask(ctx, idx, retrieval.AskRequest{
			Query:       instruction,
			System:      system,
			Instruction: instruction,
		})
		if err != nil {
			return "", nil, err
		}
		return ans.Text, hitSources(ans.Hits), nil
	}
	reply, err := provider.Complete(ctx, c.llm, system, instruction, provider.CompleteOptions{Temperature: provider.Float64(0.3)})
	if err != nil {
		return "", nil, err
	}
	return reply, nil, nil
}

// DraftWorkItem asks the model for a work item that fulfils instruction.
func (c *Copilot) DraftWorkItem(ctx context.Context, instruction string) (WorkItemDraft, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return WorkItemDraft{}, fmt.Errorf("instruction is empty")
	}
	reply, sources, err := c.generate(ctx, workItemPrompt, instruction)
	if err != nil {
		return WorkItemDraft{}, fmt.Errorf("draft work item: %w", err)
	}
	draft, err := ParseWorkItemDraft(reply)
	if err != nil {
		c.log.Warn("unparseable work item draft", "reply_chars", len(reply))
		return WorkItemDraft{}, err
	}
	draft.ID = uuid.NewString()
	draft.Sources = sources
	c.log.Info("work item drafted", "draft", draft.ID, "criteria", len(draft.AcceptanceCriteria))
	return draft, nil
}

// PublishWorkItem creates the draft in DevOps. The tag AyudaPO is always added.
func (c *Copilot) PublishWorkItem(ctx context.Context, draft WorkItemDraft) (devops.WorkItem, error) {
	if c.publisher == nil {
		return devops.WorkItem{}, devops.ErrNotConfigured
	}
	if strings.TrimSpace(draft.Title) == "" {
		return devops.WorkItem{}, fmt.Errorf("%w: title is empty", ErrBadDraft)
	}
	tags := append([]string{}, draft.Tags...)
	tags = append(tags, c.opts.Tags...)
	tags = append(tags, DefaultTag)
	return c.publisher.CreateWorkItem(ctx, devops.NewWorkItem{
		Type:        c.opts.WorkItemType,
		Title:       draft.Title,
		Description: draft.DescriptionHTML(),
		Tags:        tags,
		AreaPath:    c.opts.AreaPath,
	})
}

// DraftWikiPage asks the model for a markdown wiki page.
func (c *Copilot) DraftWikiPage(ctx context.Context, instruction string) (WikiDraft, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return WikiDraft{}, fmt.Errorf("instruction is empty")
	}
	reply, sources, err := c.generate(ctx, wikiPrompt, instruction)
	if err != nil {
		return WikiDraft{}, fmt.Errorf("draft wiki page: %w", err)
	}
	draft, err := ParseWikiDraft(reply)
	if err != nil {
		return WikiDraft{}, err
	}
	draft.ID = uuid.NewString()
	draft.Sources = sources
	c.log.Info("wiki page drafted", "draft", draft.ID, "title", draft.Title)
	return draft, nil
}

// PublishWikiPage writes the draft under the configured parent path.
func (c *Copilot) PublishWikiPage(ctx context.Context, draft WikiDraft) (devops.WikiPage, error) {
	if c.publisher == nil {
		return devops.WikiPage{}, devops.ErrNotConfigured
	}
	if strings.TrimSpace(draft.Title) == "" || strings.TrimSpace(draft.Content) == "" {
		return devops.WikiPage{}, fmt.Errorf("%w: title and content are required", ErrBadDraft)
	}
	return c.publisher.UpsertWikiPage(ctx, devops.JoinWikiPath(c.opts.WikiParent, draft.Title), draft.Content)
}

func hitSources(hits []retrieval.Hit) []string {
	seen := make(map[string]bool, len(hits))
	var out []string
	for _, h := range hits {
		if h.Source == "" || seen[h.Source] {
			continue
		}
		seen[h.Source] = true
		out = append(out, h.Source)
	}
	return out
}

// IsNotConfigured reports whether err means the LLM or DevOps credentials are missing.
func IsNotConfigured(err error) bool {
	return errors.Is(err, provider.ErrNotConfigured) || errors.Is(err, devops.ErrNotConfigured)
}
