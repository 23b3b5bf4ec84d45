package devops

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"ayudapo/internal/contextmgr"
	"ayudapo/internal/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{
		Organization: "fdb",
		Project:      "Delivery App",
		PAT:          "secret-pat",
		BaseURL:      srv.URL,
		MaxRetries:   2,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{Organization: "fdb", Project: "p"}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestQueryAndGetWorkItems(t *testing.T) {
	var batchCalls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte(":secret-pat"))
		assert.Equal(t, wantAuth, r.Header.Get("Authorization"))
		assert.Equal(t, "7.1", r.URL.Query().Get("api-version"))

		switch r.URL.Path {
		case "/fdb/Delivery App/_apis/wit/wiql":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, body["query"], "[System.TeamProject] = 'Delivery App'")
			assert.Equal(t, "2", r.URL.Query().Get("$top"))
			_, _ = io.WriteString(w, `{"workItems":[{"id":42},{"id":7}]}`)
		case "/fdb/Delivery App/_apis/wit/workitemsbatch":
			batchCalls.Add(1)
			_, _ = io.WriteString(w, `{"count":2,"value":[
				{"id":7,"fields":{"System.WorkItemType":"Bug","System.Title":"Crash al pagar","System.State":"New",
					"System.AssignedTo":{"displayName":"Ana Pérez"},"System.Tags":"Tilena; Pagos"}},
				{"id":42,"fields":{"System.WorkItemType":"User Story","System.Title":"Pago con tarjeta",
					"System.Description":"<div>Como <b>cliente</b> quiero pagar</div><ul><li>Visa</li><li>Mastercard</li></ul>"}}
			]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	items, err := c.RecentWorkItems(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 42, items[0].ID, "order follows the query")
	assert.Equal(t, "Como cliente quiero pagar\n- Visa\n- Mastercard", items[0].Description)
	assert.Equal(t, "Ana Pérez", items[1].AssignedTo)
	assert.Equal(t, []string{"Tilena", "Pagos"}, items[1].Tags)
	assert.EqualValues(t, 1, batchCalls.Load())
}

func TestGetWorkItemsBatchesBy200(t *testing.T) {
	var sizes []int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []int `json:"ids"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sizes = append(sizes, len(body.IDs))
		_, _ = io.WriteString(w, `{"count":0,"value":[]}`)
	})
	ids := make([]int, 450)
	for i := range ids {
		ids[i] = i + 1
	}
	_, err := c.GetWorkItems(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, []int{200, 200, 50}, sizes)
}

func TestCreateWorkItemPatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fdb/Delivery App/_apis/wit/workitems/$User Story", r.URL.Path)
		assert.Equal(t, "application/json-patch+json", r.Header.Get("Content-Type"))
		var ops []patchOp
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ops))
		byPath := map[string]any{}
		for _, op := range ops {
			assert.Equal(t, "add", op.Op)
			byPath[op.Path] = op.Value
		}
		title, _ := byPath["/fields/System.Title"].(string)
		assert.Len(t, []rune(title), 255)
		assert.Equal(t, "AyudaPO; Pagos", byPath["/fields/System.Tags"])
		assert.Equal(t, "Delivery App", byPath["/fields/System.AreaPath"])
		assert.Equal(t, "2", byPath["/fields/Microsoft.VSTS.Scheduling.StoryPoints"])
		_, _ = io.WriteString(w, `{"id":101,"fields":{"System.Title":"x","System.WorkItemType":"User Story"}}`)
	})
	w, err := c.CreateWorkItem(context.Background(), NewWorkItem{
		Type:        "User Story",
		Title:       strings.Repeat("é", 300),
		Description: "<p>desc</p>",
		Tags:        []string{"AyudaPO", "Pagos", "ayudapo"},
		AreaPath:    "Delivery App",
		Extra:       map[string]string{"Microsoft.VSTS.Scheduling.StoryPoints": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 101, w.ID)
	assert.True(t, strings.HasSuffix(c.WebURL(101), "/_workitems/edit/101"))

	_, err = c.CreateWorkItem(context.Background(), NewWorkItem{Type: "Bug"})
	require.Error(t, err)
}

func TestAPIErrorAndRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path == "/fdb/Delivery App/_apis/wit/wiql" && n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path == "/fdb/Delivery App/_apis/wit/wiql" {
			_, _ = io.WriteString(w, `{"workItems":[]}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"TF400813: not authorized"}`)
	})

	ids, err := c.QueryWorkItems(context.Background(), "SELECT [System.Id] FROM WorkItems", 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.EqualValues(t, 2, calls.Load())

	_, err = c.GetWorkItems(context.Background(), []int{1})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Body, "TF400813")
	assert.EqualValues(t, 3, calls.Load(), "401 is not retried")
}

func TestCreateWorkItemIsNotResentAfterServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.CreateWorkItem(context.Background(), NewWorkItem{Type: "Bug", Title: "Pago duplicado"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCreateWorkItemRetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"id":7,"fields":{"System.Title":"Pago duplicado","System.WorkItemType":"Bug"}}`)
	})
	item, err := c.CreateWorkItem(context.Background(), NewWorkItem{Type: "Bug", Title: "Pago duplicado"})
	require.NoError(t, err)
	assert.Equal(t, 7, item.ID)
	assert.EqualValues(t, 2, calls.Load())
}

func TestWikiListGetUpsert(t *testing.T) {
	var puts []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fdb/Delivery App/_apis/wiki/wikis/Delivery App.wiki/pages", r.URL.Path)
		q := r.URL.Query()
		switch {
		case r.Method == http.MethodGet && q.Get("recursionLevel") == "full":
			_, _ = io.WriteString(w, `{"path":"/","subPages":[
				{"path":"/Producto","subPages":[{"path":"/Producto/Pagos","subPages":[]}]},
				{"path":"/Equipo","subPages":[]}]}`)
		case r.Method == http.MethodGet && q.Get("path") == "/Producto/Pagos":
			w.Header().Set("ETag", `"v1"`)
			_, _ = io.WriteString(w, `{"path":"/Producto/Pagos","content":"# Pagos\nVisa y Mastercard"}`)
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"page not found"}`)
		case r.Method == http.MethodPut:
			puts = append(puts, q.Get("path")+" if-match="+r.Header.Get("If-Match"))
			w.Header().Set("ETag", `"v2"`)
			_, _ = io.WriteString(w, `{"path":"`+q.Get("path")+`","content":"new"}`)
		}
	})
	ctx := context.Background()

	pages, err := c.ListWikiPages(ctx)
	require.NoError(t, err)
	var paths []string
	for _, p := range pages {
		paths = append(paths, p.Path)
	}
	assert.Equal(t, []string{"/Producto", "/Producto/Pagos", "/Equipo"}, paths)

	page, err := c.GetWikiPage(ctx, "Producto/Pagos")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, page.ETag)
	assert.Contains(t, page.Content, "Visa")

	_, err = c.UpsertWikiPage(ctx, "/Producto/Pagos", "new")
	require.NoError(t, err)
	saved, err := c.UpsertWikiPage(ctx, JoinWikiPath("/Producto", "Nueva/Página"), "new")
	require.NoError(t, err)
	assert.Equal(t, `"v2"`, saved.ETag)
	assert.Equal(t, []string{`/Producto/Pagos if-match="v1"`, "/Producto/Nueva-Página if-match="}, puts)

	full, err := c.WikiPages(ctx, 0)
	require.NoError(t, err)
	require.Len(t, full, 1, "pages that fail to load are skipped")
}

func TestHTMLToText(t *testing.T) {
	cases := map[string]string{
		"plain &amp; simple":                                  "plain & simple",
		"<p>Uno</p><p>Dos <i>tres</i></p>":                    "Uno\nDos tres",
		"<div>a<br/>b</div><script>alert(1)</script>":         "a\nb",
		"<table><tr><td>x</td><td>y</td></tr></table>":        "x | y",
		"<ol><li>primero</li><li>segundo &lt;2&gt;</li></ol>": "- primero\n- segundo <2>",
	}
	for in, want := range cases {
		assert.Equal(t, want, HTMLToText(in), in)
	}
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("wiki")
	require.NoError(t, err)
	assert.Equal(t, ScopeWiki, s)
	s, _ = ParseScope("")
	assert.Equal(t, ScopeAll, s)
	_, err = ParseScope("jira")
	assert.Error(t, err)
}

func TestSearcherRanksWorkItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/wiql"):
			_, _ = io.WriteString(w, `{"workItems":[{"id":1},{"id":2}]}`)
		case strings.HasSuffix(r.URL.Path, "/workitemsbatch"):
			_, _ = io.WriteString(w, `{"value":[
				{"id":1,"fields":{"System.WorkItemType":"User Story","System.Title":"Login con Google","System.Description":"autenticación social con google"}},
				{"id":2,"fields":{"System.WorkItemType":"Bug","System.Title":"Pago duplicado","System.Description":"el cobro con tarjeta se duplica"}}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	pipe := retrieval.NewPipeline(retrieval.NewHashEmbedder(256), nil, contextmgr.NewHeuristicTokenizer(),
		retrieval.Options{ChunkSize: 500, TopK: 1}, nil)
	hits, err := NewSearcher(c, pipe).Search(context.Background(), "cobro duplicado con tarjeta", ScopeWorkItems, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "workitem/2", hits[0].Source)
}
