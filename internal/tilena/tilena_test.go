package tilena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ayudapo/internal/devops"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "https://tilena.fooddeliverybrands.com/front/ticket.form.php"

func TestExtract(t *testing.T) {
	ex, err := NewExtractor(baseURL)
	require.NoError(t, err)

	cases := []struct {
		name    string
		body    string
		subject string
		want    Ticket
	}{
		{
			name:    "id and link in body",
			body:    "Nuevo ticket ID: 48213\nVer https://tilena.fooddeliverybrands.com/front/ticket.form.php?id=48213) gracias",
			subject: "[TILENA] Caída del TPV",
			want: Ticket{
				ID:    "48213",
				URL:   "https://tilena.fooddeliverybrands.com/front/ticket.form.php?id=48213",
				Title: "Caída del TPV",
			},
		},
		{
			name:    "id from subject",
			body:    "Sin datos",
			subject: "TILENA ticket #99001 Pedido duplicado",
			want:    Ticket{ID: "99001", URL: baseURL + "?id=99001", Title: "ticket #99001 Pedido duplicado"},
		},
		{
			name:    "short numbers are not ids",
			body:    "id=123",
			subject: "[TILENA]",
			want:    Ticket{ID: UnknownID, URL: baseURL + "?id=Unknown", Title: DefaultTitle},
		},
		{
			name:    "case insensitive id",
			body:    "Incidencia Id=5555 abierta",
			subject: "Aviso",
			want:    Ticket{ID: "5555", URL: baseURL + "?id=5555", Title: "Aviso"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ex.Extract(tc.body, tc.subject))
		})
	}

	_, err = NewExtractor("no es una url")
	require.Error(t, err)
}

func TestDescriptionHTML(t *testing.T) {
	tk := Ticket{ID: "48213", URL: baseURL + "?id=48213&x=1", Title: "t"}
	body := "<script>alert(1)</script>" + strings.Repeat("é", 3000)
	got := tk.DescriptionHTML(body)

	assert.Contains(t, got, "<p><strong>ID Tilena:</strong> #48213</p>")
	assert.Contains(t, got, `href="`+baseURL+`?id=48213&amp;x=1"`)
	assert.Contains(t, got, "&lt;script&gt;")
	assert.NotContains(t, got, "<script>")
	assert.Equal(t, 2000-len("<script>alert(1)</script>"), strings.Count(got, "é"))
	assert.Equal(t, "[Tilena #48213] t", tk.WorkItemTitle())
}

const multipartMail = "From: Tilena <notificaciones@tilena.example.com>\r\n" +
	"To: po@example.com\r\n" +
	"Subject: =?UTF-8?Q?[TILENA]_Ca=C3=ADda_del_TPV?=\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>HTML ID: 11111</p>\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Ticket ID: 48213 en tienda 12\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Disposition: attachment; filename=\"log.txt\"\r\n" +
	"\r\n" +
	"adjunto id=77777\r\n" +
	"--b1--\r\n"

const htmlOnlyMail = "From: tilena@example.com\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<div><p>Ticket #60606</p><ul><li>Tienda 4</li></ul></div>\r\n"

func TestParseMail(t *testing.T) {
	m, err := ParseMail(strings.NewReader(multipartMail))
	require.NoError(t, err)
	assert.Equal(t, "[TILENA] Caída del TPV", m.Subject)
	assert.Equal(t, "notificaciones@tilena.example.com", m.From)
	assert.Equal(t, "Ticket ID: 48213 en tienda 12", m.Body)

	m, err = ParseMail(strings.NewReader(htmlOnlyMail))
	require.NoError(t, err)
	assert.Equal(t, noSubject, m.Subject)
	assert.Contains(t, m.Body, "Ticket #60606")
	assert.Contains(t, m.Body, "- Tienda 4")
	assert.NotContains(t, m.Body, "<p>")
}

func TestParseMailWithoutContentType(t *testing.T) {
	raw := "From: notificaciones@tilena.example.com\r\n" +
		"Subject: Incidencia\r\n" +
		"\r\n" +
		"Ticket ID: 77001 caja bloqueada\r\n"
	m, err := ParseMail(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Incidencia", m.Subject)
	assert.Equal(t, "Ticket ID: 77001 caja bloqueada", m.Body)
}

type fakeMailbox struct {
	mu       sync.Mutex
	mails    map[uint32]Mail
	order    []uint32
	seen     map[uint32]bool
	fetchErr map[uint32]error
	from     string
}

func (f *fakeMailbox) Unseen(_ context.Context, from string) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.from = from
	var out []uint32
	for _, uid := range f.order {
		if !f.seen[uid] {
			out = append(out, uid)
		}
	}
	return out, nil
}

func (f *fakeMailbox) Fetch(_ context.Context, uid uint32) (Mail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[uid]; err != nil {
		return Mail{}, err
	}
	return f.mails[uid], nil
}

func (f *fakeMailbox) MarkSeen(_ context.Context, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[uid] = true
	return nil
}

func (f *fakeMailbox) Close() error { return nil }

func TestSyncCreatesBugsAndMarksSeen(t *testing.T) {
	box := &fakeMailbox{
		mails: map[uint32]Mail{
			1: {UID: 1, Subject: "[TILENA] Caída del TPV", Body: "Ticket ID: 48213"},
			2: {UID: 2, Subject: "[TILENA] Error 500", Body: "Ticket #50000 FAIL"},
			4: {UID: 4, Subject: "Pedido perdido", Body: "id=70707"},
		},
		order:    []uint32{1, 2, 3, 4},
		seen:     map[uint32]bool{},
		fetchErr: map[uint32]error{3: errors.New("connection reset")},
	}

	var (
		mu      sync.Mutex
		patches [][]map[string]any
		nextID  = 900
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fdb/Delivery App/_apis/wit/workitems/$Bug", r.URL.Path)
		assert.Equal(t, "application/json-patch+json", r.Header.Get("Content-Type"))
		var ops []map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ops))
		mu.Lock()
		patches = append(patches, ops)
		nextID++
		id := nextID
		mu.Unlock()
		if strings.Contains(fmt.Sprint(ops[0]["value"]), "Error 500") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"message":"TF401320: rule error"}`)
			return
		}
		_, _ = fmt.Fprintf(w, `{"id":%d,"fields":{"System.Title":%q}}`, id, ops[0]["value"])
	}))
	defer srv.Close()

	client, err := devops.NewClient(devops.Config{
		Organization: "fdb", Project: "Delivery App", PAT: "pat", BaseURL: srv.URL, MaxRetries: 0,
	}, nil)
	require.NoError(t, err)

	s, err := NewSyncer(box, client, SyncOptions{
		SenderFilter:  "tilena",
		TicketBaseURL: baseURL,
		AreaPath:      "Delivery App",
	}, nil)
	require.NoError(t, err)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Found)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Errors)
	assert.Equal(t, []int{901, 903}, res.Created)
	assert.Equal(t, "tilena", box.from)

	assert.True(t, box.seen[1])
	assert.False(t, box.seen[2], "failed work item must leave the email unread")
	assert.False(t, box.seen[3])
	assert.True(t, box.seen[4])

	require.Len(t, patches, 3)
	first := map[string]any{}
	for _, op := range patches[0] {
		first[op["path"].(string)] = op["value"]
	}
	assert.Equal(t, "[Tilena #48213] Caída del TPV", first["/fields/System.Title"])
	assert.Equal(t, "Tilena; AutoCreated; FromEmail", first["/fields/System.Tags"])
	assert.Equal(t, "Delivery App", first["/fields/System.AreaPath"])
	assert.Contains(t, first["/fields/System.Description"], baseURL+"?id=48213")
	assert.Equal(t, "[Tilena #70707] Pedido perdido", patches[2][0]["value"])

	again, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, again.Found)
}
