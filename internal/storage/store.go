package storage

import (
	"context"

	"ayudapo/internal/chat"
)

// Store is the persistence interface used by the chat front ends and the analysis caches.
type Store interface {
	// Session operations
	CreateSession(meta SessionMeta) error
	SaveSession(meta SessionMeta) error
	LoadSession(id string) (SessionMeta, error)
	ListSessions(owner string) ([]SessionMeta, error)
	DeleteSession(id string) error

	// Message operations
	SaveMessages(sessionID string, entries []chat.Entry) error
	AppendMessages(sessionID string, startSeq int, entries []chat.Entry) error
	LoadMessages(sessionID string) ([]chat.Entry, error)

	// Embedding cache
	GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error)
	PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error

	// Summary cache
	GetSummary(ctx context.Context, path, contentHash, model string) (Summary, bool, error)
	PutSummary(ctx context.Context, s Summary) error

	// Lifecycle
	Close() error
}
