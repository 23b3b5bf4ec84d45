package copilot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ayudapo/internal/contextmgr"
	"ayudapo/internal/devops"
	"ayudapo/internal/document"
	"ayudapo/internal/provider"
	"ayudapo/internal/provider/providertest"
	"ayudapo/internal/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	items []devops.NewWorkItem
	pages map[string]string
}

func (f *fakePublisher) CreateWorkItem(_ context.Context, item devops.NewWorkItem) (devops.WorkItem, error) {
	f.items = append(f.items, item)
	return devops.WorkItem{ID: 100 + len(f.items), Type: item.Type, Title: item.Title}, nil
}

func (f *fakePublisher) UpsertWikiPage(_ context.Context, path, content string) (devops.WikiPage, error) {
	if f.pages == nil {
		f.pages = map[string]string{}
	}
	f.pages[path] = content
	return devops.WikiPage{Path: path, Content: content}, nil
}

func newLibrary(t *testing.T, llm provider.Provider) *document.Library {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagos.txt")
	require.NoError(t, os.WriteFile(path, []byte("El checkout acepta Visa y Mastercard. Bizum está pendiente de aprobación legal."), 0o644))
	pipeline := retrieval.NewPipeline(retrieval.NewHashEmbedder(128), llm, contextmgr.NewHeuristicTokenizer(),
		retrieval.Options{ChunkSize: 400, TopK: 3}, nil)
	lib := document.NewLibrary(pipeline)
	require.NoError(t, lib.Add(path))
	return lib
}

func TestAskDocuments(t *testing.T) {
	llm := &providertest.Fake{Reply: "Se aceptan Visa y Mastercard [1]."}
	c := New(newLibrary(t, llm), llm, nil, Options{}, nil)

	ans, err := c.AskDocuments(context.Background(), "¿Qué tarjetas se aceptan?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Se aceptan Visa y Mastercard [1].", ans.Text)
	require.Len(t, ans.Hits, 1)
	assert.Equal(t, "pagos.txt", ans.Hits[0].Source)
	assert.Contains(t, llm.LastUserMessage(), "[1] pagos.txt — pagos")
	assert.Contains(t, llm.LastUserMessage(), "Visa y Mastercard")

	_, err = New(nil, llm, nil, Options{}, nil).AskDocuments(context.Background(), "x", nil)
	require.ErrorIs(t, err, document.ErrNoDocuments)
}

func TestDraftAndPublishWorkItem(t *testing.T) {
	llm := &providertest.Fake{Reply: "```json\n" + `{"title":"Pago con Bizum","description":"Añadir Bizum al checkout.",
		"acceptance_criteria":["Dado un pedido, cuando elijo Bizum, entonces veo la confirmación"],"tags":["Pagos"]}` + "\n```"}
	pub := &fakePublisher{}
	c := New(newLibrary(t, llm), llm, pub, Options{AreaPath: "Delivery App\\Pagos", Tags: []string{"Checkout"}}, nil)

	draft, err := c.DraftWorkItem(context.Background(), "Crea una historia para pagar con Bizum")
	require.NoError(t, err)
	assert.NotEmpty(t, draft.ID)
	assert.Equal(t, "Pago con Bizum", draft.Title)
	assert.Equal(t, []string{"pagos.txt"}, draft.Sources)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, workItemPrompt, calls[0].Messages[0].Content)
	assert.Contains(t, calls[0].Messages[1].Content, "CONTEXTO:")

	item, err := c.PublishWorkItem(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, 101, item.ID)
	require.Len(t, pub.items, 1)
	sent := pub.items[0]
	assert.Equal(t, "User Story", sent.Type)
	assert.Equal(t, "Delivery App\\Pagos", sent.AreaPath)
	assert.Equal(t, []string{"Pagos", "Checkout", DefaultTag}, sent.Tags)
	assert.Contains(t, sent.Description, "<li>Dado un pedido, cuando elijo Bizum, entonces veo la confirmación</li>")
}

func TestDraftWithoutDocumentsUsesPlainCompletion(t *testing.T) {
	llm := &providertest.Fake{Reply: `{"title":"Spike de rendimiento","description":"Medir tiempos.","acceptance_criteria":[],"tags":[]}`}
	c := New(nil, llm, nil, Options{}, nil)

	draft, err := c.DraftWorkItem(context.Background(), "Spike para medir el rendimiento del listado")
	require.NoError(t, err)
	assert.Equal(t, "Spike de rendimiento", draft.Title)
	assert.Empty(t, draft.Sources)
	assert.Equal(t, "Spike para medir el rendimiento del listado", llm.LastUserMessage())

	_, err = c.PublishWorkItem(context.Background(), draft)
	require.ErrorIs(t, err, devops.ErrNotConfigured)
	assert.True(t, IsNotConfigured(err))
}

func TestDraftAndPublishWikiPage(t *testing.T) {
	llm := &providertest.Fake{Reply: `{"title":"Guía/Pagos","content":"# Guía de pagos\n\nVisa y Mastercard [1]."}`}
	pub := &fakePublisher{}
	c := New(newLibrary(t, llm), llm, pub, Options{WikiParent: "/Producto"}, nil)

	draft, err := c.DraftWikiPage(context.Background(), "Documenta los medios de pago")
	require.NoError(t, err)
	assert.Equal(t, "Guía/Pagos", draft.Title)

	page, err := c.PublishWikiPage(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, "/Producto/Guía-Pagos", page.Path)
	assert.Equal(t, "# Guía de pagos\n\nVisa y Mastercard [1].", pub.pages["/Producto/Guía-Pagos"])
}

func TestDraftErrors(t *testing.T) {
	c := New(nil, nil, nil, Options{}, nil)
	_, err := c.DraftWorkItem(context.Background(), "algo")
	require.ErrorIs(t, err, provider.ErrNotConfigured)

	_, err = c.DraftWikiPage(context.Background(), "  ")
	require.Error(t, err)

	llm := &providertest.Fake{Reply: "lo siento"}
	_, err = New(nil, llm, nil, Options{}, nil).DraftWorkItem(context.Background(), "algo")
	require.ErrorIs(t, err, ErrBadDraft)
}
