package copilot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkItemDraftTolerance(t *testing.T) {
	cases := []struct {
		name  string
		reply string
	}{
		{name: "bare json", reply: `{"title":"Pago con Bizum","description":"Permitir Bizum.","acceptance_criteria":["Dado un pedido, cuando pago con Bizum, entonces se confirma"],"tags":["Pagos"]}`},
		{name: "fenced json", reply: "```json\n{\"title\":\"Pago con Bizum\",\"description\":\"Permitir Bizum.\",\"acceptance_criteria\":[\"Dado un pedido, cuando pago con Bizum, entonces se confirma\"],\"tags\":[\"Pagos\"]}\n```"},
		{name: "prose around", reply: "Claro, aquí tienes:\n{\"title\":\"Pago con Bizum\",\"description\":\"Permitir Bizum.\",\"acceptance_criteria\":\"- Dado un pedido, cuando pago con Bizum, entonces se confirma\",\"tags\":\"Pagos\"}\nEspero que sirva."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := ParseWorkItemDraft(tc.reply)
			require.NoError(t, err)
			assert.Equal(t, "Pago con Bizum", d.Title)
			assert.Equal(t, "Permitir Bizum.", d.Description)
			assert.Equal(t, []string{"Dado un pedido, cuando pago con Bizum, entonces se confirma"}, d.AcceptanceCriteria)
			assert.Equal(t, []string{"Pagos"}, d.Tags)
		})
	}
}

func TestParseWorkItemDraftRejects(t *testing.T) {
	_, err := ParseWorkItemDraft("no puedo ayudar con eso")
	require.ErrorIs(t, err, ErrBadDraft)

	_, err = ParseWorkItemDraft(`{"title":"  ","description":"x"}`)
	require.ErrorIs(t, err, ErrBadDraft)
}

func TestParseWikiDraft(t *testing.T) {
	d, err := ParseWikiDraft("{\"title\":\"Pagos\",\"content\":\"# Pagos\\n\\n```go\\nx := 1\\n```\"}")
	require.NoError(t, err)
	assert.Equal(t, "Pagos", d.Title)
	assert.Contains(t, d.Content, "x := 1")

	d, err = ParseWikiDraft("# Guía de envíos\n\nLos envíos tardan 24h.")
	require.NoError(t, err)
	assert.Equal(t, "Guía de envíos", d.Title)
	assert.Contains(t, d.Content, "24h")

	d, err = ParseWikiDraft(`{"content":"## Onboarding\n\nPasos"}`)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", d.Title)

	_, err = ParseWikiDraft("sin título")
	require.ErrorIs(t, err, ErrBadDraft)
}

func TestDraftsKeepCodeFencesInsideStrings(t *testing.T) {
	reply := "```json\n{\"title\":\"Deploy\",\"description\":\"Pasos:\\n```bash\\nmake deploy\\n```\\nListo.\",\"tags\":[\"Ops\"]}\n```"
	d, err := ParseWorkItemDraft(reply)
	require.NoError(t, err)
	assert.Equal(t, "Deploy", d.Title)
	assert.Contains(t, d.Description, "make deploy")
	assert.Contains(t, d.Description, "Listo.")

	wiki := "```json\n{\"title\":\"Runbook\",\"content\":\"# Runbook\\n\\n```bash\\nmake deploy\\n```\\n\\nFin.\"}\n```"
	w, err := ParseWikiDraft(wiki)
	require.NoError(t, err)
	assert.Equal(t, "Runbook", w.Title)
	assert.Contains(t, w.Content, "Fin.")

	w, err = ParseWikiDraft("```markdown\n# Guía\n\nTexto.\n```")
	require.NoError(t, err)
	assert.Equal(t, "Guía", w.Title)
	assert.Equal(t, "# Guía\n\nTexto.", w.Content)
}

func TestDescriptionHTMLEscapes(t *testing.T) {
	d := WorkItemDraft{
		Title:              "t",
		Description:        "Primera <línea>\nsegunda\n\nOtro párrafo",
		AcceptanceCriteria: []string{"Dado A & B", "Cuando C"},
		Sources:            []string{"pagos.docx"},
	}
	got := d.DescriptionHTML()
	assert.Equal(t, "<div><p>Primera &lt;línea&gt;<br/>segunda</p><p>Otro párrafo</p>"+
		"<h4>Criterios de aceptación</h4><ul><li>Dado A &amp; B</li><li>Cuando C</li></ul>"+
		"<p><small>Fuentes: pagos.docx</small></p></div>", got)

	md := d.Markdown()
	assert.Contains(t, md, "## t")
	assert.Contains(t, md, "- Dado A & B")
}
