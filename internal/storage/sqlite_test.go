package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ayudapo/internal/chat"
	"ayudapo/internal/retrieval"
)

var _ retrieval.VectorCache = (*SQLiteStore)(nil)
var _ Store = (*SQLiteStore)(nil)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_SessionCRUD(t *testing.T) {
	store := newTestStore(t)

	meta := SessionMeta{
		ID:          "sess_test_001",
		Title:       "historia de pago",
		Owner:       "ana",
		Template:    "Historia de Usuario",
		Model:       "claude-3-7-sonnet-20250219",
		Temperature: 0.4,
		MaxTokens:   1500,
	}
	if err := store.CreateSession(meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	loaded, err := store.LoadSession("sess_test_001")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.Template != "Historia de Usuario" || loaded.Temperature != 0.4 || loaded.MaxTokens != 1500 {
		t.Fatalf("loaded session unexpected: %+v", loaded)
	}
	if loaded.CreatedAt == "" || loaded.UpdatedAt == "" {
		t.Fatal("timestamps should be set")
	}

	meta.Title = "updated title"
	if err := store.SaveSession(meta); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	loaded2, _ := store.LoadSession("sess_test_001")
	if loaded2.Title != "updated title" {
		t.Fatalf("Title=%q after update, want %q", loaded2.Title, "updated title")
	}

	_ = store.CreateSession(SessionMeta{ID: "sess_test_002", Owner: "luis"})
	all, err := store.ListSessions("")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListSessions count=%d, want 2", len(all))
	}
	mine, _ := store.ListSessions("ana")
	if len(mine) != 1 || mine[0].ID != "sess_test_001" {
		t.Fatalf("owner filter unexpected: %+v", mine)
	}

	if err := store.DeleteSession("sess_test_002"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := store.DeleteSession("sess_test_002"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err=%v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_SaveUnknownSession(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveSession(SessionMeta{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Messages(t *testing.T) {
	store := newTestStore(t)
	_ = store.CreateSession(SessionMeta{ID: "sess_msg_001"})

	entries := []chat.Entry{
		{Role: chat.RoleUser, Content: "pago con tarjeta", Prompt: "Escribe una historia: pago con tarjeta", Template: "Historia de Usuario"},
		{Role: chat.RoleAssistant, Content: "Como cliente quiero pagar con tarjeta..."},
	}
	if err := store.SaveMessages("sess_msg_001", entries); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	loaded, err := store.LoadMessages("sess_msg_001")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadMessages count=%d, want 2", len(loaded))
	}
	if loaded[0].Prompt != entries[0].Prompt || loaded[0].Template != "Historia de Usuario" {
		t.Fatalf("msg[0] unexpected: %+v", loaded[0])
	}
	if loaded[1].Prompt != "" || loaded[1].Content != entries[1].Content {
		t.Fatalf("msg[1] unexpected: %+v", loaded[1])
	}

	// Overwrite save
	if err := store.SaveMessages("sess_msg_001", entries[:1]); err != nil {
		t.Fatalf("SaveMessages overwrite: %v", err)
	}
	loaded2, _ := store.LoadMessages("sess_msg_001")
	if len(loaded2) != 1 {
		t.Fatalf("overwrite count=%d, want 1", len(loaded2))
	}
}

func TestSQLiteStore_AppendMessages(t *testing.T) {
	store := newTestStore(t)
	_ = store.CreateSession(SessionMeta{ID: "sess_append"})

	part1 := []chat.Entry{
		{Role: chat.RoleUser, Content: "hola"},
		{Role: chat.RoleAssistant, Content: "hola, ¿en qué te ayudo?"},
	}
	if err := store.AppendMessages("sess_append", 0, part1); err != nil {
		t.Fatalf("AppendMessages part1: %v", err)
	}
	if err := store.AppendMessages("sess_append", 2, []chat.Entry{{Role: chat.RoleUser, Content: "next"}}); err != nil {
		t.Fatalf("AppendMessages part2: %v", err)
	}
	// rewriting from seq 1 drops everything after it
	if err := store.AppendMessages("sess_append", 1, []chat.Entry{{Role: chat.RoleAssistant, Content: "otra"}}); err != nil {
		t.Fatalf("AppendMessages rewrite: %v", err)
	}

	loaded, err := store.LoadMessages("sess_append")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(loaded) != 2 || loaded[1].Content != "otra" {
		t.Fatalf("messages unexpected: %+v", loaded)
	}
	if err := store.AppendMessages("sess_append", -1, nil); err == nil {
		t.Fatal("negative seq should fail")
	}
}

func TestSQLiteStore_DeleteCascadesMessages(t *testing.T) {
	store := newTestStore(t)
	_ = store.CreateSession(SessionMeta{ID: "sess_cascade"})
	_ = store.SaveMessages("sess_cascade", []chat.Entry{{Role: chat.RoleUser, Content: "x"}})
	if err := store.DeleteSession("sess_cascade"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	loaded, err := store.LoadMessages("sess_cascade")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("messages survived delete: %+v", loaded)
	}
}

func TestSQLiteStore_Embeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	vecs := map[string][]float32{
		"h1": {0.5, -0.25, 1},
		"h2": {0, 1},
	}
	if err := store.PutEmbeddings(ctx, "hash-256", vecs); err != nil {
		t.Fatalf("PutEmbeddings: %v", err)
	}
	got, err := store.GetEmbeddings(ctx, "hash-256", []string{"h1", "h2", "h3"})
	if err != nil {
		t.Fatalf("GetEmbeddings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("hits=%d, want 2", len(got))
	}
	if got["h1"][1] != -0.25 || len(got["h2"]) != 2 {
		t.Fatalf("decoded vectors unexpected: %+v", got)
	}

	other, _ := store.GetEmbeddings(ctx, "text-embedding-3-small", []string{"h1"})
	if len(other) != 0 {
		t.Fatal("embeddings must be scoped by model")
	}

	// upsert replaces
	_ = store.PutEmbeddings(ctx, "hash-256", map[string][]float32{"h1": {9}})
	again, _ := store.GetEmbeddings(ctx, "hash-256", []string{"h1"})
	if len(again["h1"]) != 1 || again["h1"][0] != 9 {
		t.Fatalf("upsert not applied: %+v", again)
	}
}

func TestSQLiteStore_Summaries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetSummary(ctx, "main.go", "abc", "m"); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := store.PutSummary(ctx, Summary{Path: "main.go", ContentHash: "abc", Model: "m", Text: "entrypoint"}); err != nil {
		t.Fatalf("PutSummary: %v", err)
	}
	got, ok, err := store.GetSummary(ctx, "main.go", "abc", "m")
	if err != nil || !ok || got.Text != "entrypoint" {
		t.Fatalf("GetSummary=%+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := store.GetSummary(ctx, "main.go", "changed", "m"); ok {
		t.Fatal("changed content must miss")
	}
	if err := store.PutSummary(ctx, Summary{Path: "", ContentHash: "x"}); err == nil {
		t.Fatal("empty path should fail")
	}
}

func TestSQLiteStore_LoadNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadSession("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{1.5, -2, 0}
	out, ok := decodeVector(encodeVector(in), len(in))
	if !ok || out[0] != 1.5 || out[1] != -2 {
		t.Fatalf("round trip failed: %v", out)
	}
	if _, ok := decodeVector([]byte{1, 2, 3}, 1); ok {
		t.Fatal("short blob should be rejected")
	}
}
