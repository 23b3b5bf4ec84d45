package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ayudapo/internal/chat"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements Store using SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection avoids writer lock contention under WAL.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL DEFAULT '',
		owner       TEXT NOT NULL DEFAULT '',
		template    TEXT NOT NULL DEFAULT '',
		model       TEXT NOT NULL DEFAULT '',
		temperature REAL NOT NULL DEFAULT 0.7,
		max_tokens  INTEGER NOT NULL DEFAULT 2000,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		prompt     TEXT NOT NULL DEFAULT '',
		template   TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		model      TEXT NOT NULL,
		text_hash  TEXT NOT NULL,
		dim        INTEGER NOT NULL,
		vector     BLOB NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY(model, text_hash)
	);

	CREATE TABLE IF NOT EXISTS summaries (
		path         TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		model        TEXT NOT NULL DEFAULT '',
		summary      TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		PRIMARY KEY(path, content_hash, model)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner, updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Session Operations ---

func (s *SQLiteStore) CreateSession(meta SessionMeta) error {
	if strings.TrimSpace(meta.ID) == "" {
		return fmt.Errorf("session id is empty")
	}
	now := nowUTC()
	if strings.TrimSpace(meta.CreatedAt) == "" {
		meta.CreatedAt = now
	}
	if strings.TrimSpace(meta.UpdatedAt) == "" {
		meta.UpdatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, title, owner, template, model, temperature, max_tokens, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Title, meta.Owner, meta.Template, meta.Model,
		meta.Temperature, meta.MaxTokens, meta.CreatedAt, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSession(meta SessionMeta) error {
	meta.UpdatedAt = nowUTC()
	res, err := s.db.Exec(`
		UPDATE sessions SET title=?, owner=?, template=?, model=?, temperature=?, max_tokens=?, updated_at=?
		WHERE id=?`,
		meta.Title, meta.Owner, meta.Template, meta.Model,
		meta.Temperature, meta.MaxTokens, meta.UpdatedAt, meta.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", meta.ID, ErrNotFound)
	}
	return nil
}

const sessionColumns = `id, title, owner, template, model, temperature, max_tokens, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionMeta, error) {
	var meta SessionMeta
	err := row.Scan(&meta.ID, &meta.Title, &meta.Owner, &meta.Template, &meta.Model,
		&meta.Temperature, &meta.MaxTokens, &meta.CreatedAt, &meta.UpdatedAt)
	return meta, err
}

func (s *SQLiteStore) LoadSession(id string) (SessionMeta, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionMeta{}, fmt.Errorf("session id is empty")
	}
	meta, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionMeta{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return SessionMeta{}, fmt.Errorf("load session: %w", err)
	}
	return meta, nil
}

// ListSessions returns sessions newest first. An empty owner lists every session.
func (s *SQLiteStore) ListSessions(owner string) ([]SessionMeta, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if owner = strings.TrimSpace(owner); owner != "" {
		query += ` WHERE owner=?`
		args = append(args, owner)
	}
	rows, err := s.db.Query(query+` ORDER BY updated_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		meta, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

func (s *SQLiteStore) DeleteSession(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Message Operations ---

// SaveMessages replaces the whole transcript of a session.
func (s *SQLiteStore) SaveMessages(sessionID string, entries []chat.Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Clear old messages
	if _, err := tx.Exec("DELETE FROM messages WHERE session_id=?", sessionID); err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}
	if err := insertMessages(tx, sessionID, 0, entries); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendMessages writes entries starting at startSeq, replacing anything stored at or after it.
func (s *SQLiteStore) AppendMessages(sessionID string, startSeq int, entries []chat.Entry) error {
	if startSeq < 0 {
		return fmt.Errorf("negative start seq %d", startSeq)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id=? AND seq>=?", sessionID, startSeq); err != nil {
		return fmt.Errorf("trim messages: %w", err)
	}
	if err := insertMessages(tx, sessionID, startSeq, entries); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMessages(tx *sql.Tx, sessionID string, startSeq int, entries []chat.Entry) error {
	stmt, err := tx.Prepare(`
		INSERT INTO messages (session_id, seq, role, content, prompt, template, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := nowUTC()
	for i, e := range entries {
		created := e.CreatedAt
		if created == "" {
			created = now
		}
		if _, err := stmt.Exec(sessionID, startSeq+i, e.Role, e.Content, e.Prompt, e.Template, created); err != nil {
			return fmt.Errorf("insert message %d: %w", startSeq+i, err)
		}
	}

	// Update session timestamp
	if _, err := tx.Exec("UPDATE sessions SET updated_at=? WHERE id=?", now, sessionID); err != nil {
		return fmt.Errorf("update session timestamp: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadMessages(sessionID string) ([]chat.Entry, error) {
	rows, err := s.db.Query(`
		SELECT role, content, prompt, template, created_at
		FROM messages WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var entries []chat.Entry
	for rows.Next() {
		var e chat.Entry
		if err := rows.Scan(&e.Role, &e.Content, &e.Prompt, &e.Template, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Embedding cache ---

// GetEmbeddings returns the cached vectors for the given content hashes. Misses are absent from the map.
func (s *SQLiteStore) GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	stmt, err := s.db.PrepareContext(ctx, `SELECT dim, vector FROM embeddings WHERE model=? AND text_hash=?`)
	if err != nil {
		return nil, fmt.Errorf("prepare embedding lookup: %w", err)
	}
	defer stmt.Close()

	for _, h := range hashes {
		if _, seen := out[h]; seen {
			continue
		}
		var dim int
		var blob []byte
		err := stmt.QueryRowContext(ctx, model, h).Scan(&dim, &blob)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup embedding: %w", err)
		}
		vec, ok := decodeVector(blob, dim)
		if !ok {
			continue
		}
		out[h] = vec
	}
	return out, nil
}

func (s *SQLiteStore) PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (model, text_hash, dim, vector, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model, text_hash) DO UPDATE SET dim=excluded.dim, vector=excluded.vector, created_at=excluded.created_at`)
	if err != nil {
		return fmt.Errorf("prepare embedding insert: %w", err)
	}
	defer stmt.Close()

	now := nowUTC()
	for h, vec := range vectors {
		if _, err := stmt.ExecContext(ctx, model, h, len(vec), encodeVector(vec), now); err != nil {
			return fmt.Errorf("insert embedding: %w", err)
		}
	}
	return tx.Commit()
}

// --- Summary cache ---

func (s *SQLiteStore) GetSummary(ctx context.Context, path, contentHash, model string) (Summary, bool, error) {
	sum := Summary{Path: path, ContentHash: contentHash, Model: model}
	err := s.db.QueryRowContext(ctx, `
		SELECT summary, updated_at FROM summaries WHERE path=? AND content_hash=? AND model=?`,
		path, contentHash, model).Scan(&sum.Text, &sum.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, fmt.Errorf("load summary: %w", err)
	}
	return sum, true, nil
}

func (s *SQLiteStore) PutSummary(ctx context.Context, sum Summary) error {
	if strings.TrimSpace(sum.Path) == "" || strings.TrimSpace(sum.ContentHash) == "" {
		return fmt.Errorf("summary path and hash are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (path, content_hash, model, summary, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path, content_hash, model) DO UPDATE SET summary=excluded.summary, updated_at=excluded.updated_at`,
		sum.Path, sum.ContentHash, sum.Model, sum.Text, nowUTC())
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// --- Helpers ---

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// vectors are stored as little-endian float32
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte, dim int) ([]float32, bool) {
	if dim <= 0 || len(blob) != dim*4 {
		return nil, false
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, true
}
