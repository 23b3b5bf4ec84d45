// Package bootstrap turns a loaded config into the shared services every front end uses.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ayudapo/internal/auth"
	"ayudapo/internal/config"
	"ayudapo/internal/contextmgr"
	"ayudapo/internal/conversation"
	"ayudapo/internal/copilot"
	"ayudapo/internal/devops"
	"ayudapo/internal/document"
	"ayudapo/internal/logging"
	"ayudapo/internal/provider"
	"ayudapo/internal/repo"
	"ayudapo/internal/retrieval"
	"ayudapo/internal/storage"
	"ayudapo/internal/templates"
	"ayudapo/internal/tilena"
)

const (
	dbFileName      = "ayudapo.db"
	historyFileName = "repl.history"
	embedWorkers    = 4
)

type Options struct {
	Verbose bool
}

// BuildResult is UI-agnostic; commands take what they need from it and must call Close.
type BuildResult struct {
	Config    config.Config
	Logger    *logging.Logger
	Store     *storage.SQLiteStore
	Provider  provider.Provider
	Tokenizer *contextmgr.Tokenizer
	Catalog   *templates.Catalog
	Embedder  retrieval.Embedder
	// DevOps is nil when organization, project or PAT are missing.
	DevOps *devops.Client
}

// Build initializes logging, storage, templates, the provider and the embedder, in that order.
func Build(cfg config.Config, opts Options) (*BuildResult, error) {
	base := cfg.Storage.BaseDir
	if base == "" {
		return nil, errors.New("storage base dir is empty")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	log, err := logging.New(logging.Options{
		Dir:       filepath.Join(base, "logs"),
		MaxSizeMB: cfg.Storage.LogMaxMB,
		Verbose:   opts.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(base, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	catalog, err := templates.Load(cfg.Chat.TemplatesFile)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	llm := provider.NewOpenAIProvider(provider.OpenAIConfig{
		BaseURL:          cfg.Provider.BaseURL,
		APIKey:           cfg.Provider.APIKey,
		Model:            cfg.Provider.Model,
		TimeoutMS:        cfg.Provider.TimeoutMS,
		MaxRetries:       cfg.Provider.MaxRetries,
		EmbeddingBaseURL: cfg.Provider.EmbeddingBaseURL,
		EmbeddingAPIKey:  cfg.Provider.EmbeddingAPIKey,
		EmbeddingModel:   cfg.Provider.EmbeddingModel,
	})

	res := &BuildResult{
		Config:    cfg,
		Logger:    log,
		Store:     store,
		Provider:  llm,
		Tokenizer: contextmgr.NewTokenizerForModel(cfg.Provider.Model),
		Catalog:   catalog,
	}
	res.Embedder = retrieval.NewCachedEmbedder(res.baseEmbedder(), store)

	client, err := devops.NewClient(devops.Config{
		Organization: cfg.DevOps.Organization,
		Project:      cfg.DevOps.Project,
		PAT:          cfg.DevOps.PAT,
		BaseURL:      cfg.DevOps.BaseURL,
		APIVersion:   cfg.DevOps.APIVersion,
		WikiID:       cfg.DevOps.WikiID,
		MaxRetries:   cfg.Provider.MaxRetries,
	}, log)
	switch {
	case err == nil:
		res.DevOps = client
	case errors.Is(err, devops.ErrNotConfigured):
		log.Debug("azure devops disabled")
	default:
		_ = store.Close()
		return nil, err
	}

	log.Info("bootstrap complete",
		"base_dir", base,
		"model", cfg.Provider.Model,
		"embedder", res.Embedder.Model(),
		"devops", res.DevOps != nil,
	)
	return res, nil
}

// baseEmbedder uses the offline hash embedder when asked to, or when no key
// could authenticate against an embeddings endpoint.
func (r *BuildResult) baseEmbedder() retrieval.Embedder {
	pc := r.Config.Provider
	if r.Config.Retrieval.Embedder == "hash" {
		return retrieval.NewHashEmbedder(r.Config.Retrieval.HashDim)
	}
	if strings.TrimSpace(pc.APIKey) == "" && strings.TrimSpace(pc.EmbeddingAPIKey) == "" {
		r.Logger.Warn("no api key for embeddings, using the offline hash embedder")
		return retrieval.NewHashEmbedder(r.Config.Retrieval.HashDim)
	}
	return retrieval.NewRemoteEmbedder(r.Provider.Embed, r.Config.Provider.EmbeddingModel, r.Config.Retrieval.BatchSize, embedWorkers)
}

func (r *BuildResult) Close() error {
	if r == nil {
		return nil
	}
	r.Logger.Sync()
	if r.Store != nil {
		return r.Store.Close()
	}
	return nil
}

// HistoryPath is where the REPL keeps its readline history.
func (r *BuildResult) HistoryPath() string {
	return filepath.Join(r.Config.Storage.BaseDir, historyFileName)
}

// NewPipeline returns a retrieval pipeline configured from the retrieval section.
func (r *BuildResult) NewPipeline() *retrieval.Pipeline {
	rc := r.Config.Retrieval
	return retrieval.NewPipeline(r.Embedder, r.Provider, r.Tokenizer, retrieval.Options{
		ChunkSize:     rc.ChunkSize,
		ChunkOverlap:  rc.ChunkOverlap,
		TopK:          rc.TopK,
		MinScore:      rc.MinScore,
		ContextTokens: rc.ContextTokenLimit,
		MMR:           true,
		Temperature:   provider.Float64(r.Config.Provider.Temperature),
		MaxTokens:     r.Config.Provider.MaxTokens,
	}, r.Logger)
}

// NewSession starts a conversation for owner with the configured defaults. configBase, when
// set, lets /models persist the chosen model into that project's config.
func (r *BuildResult) NewSession(owner, configBase string) *conversation.Session {
	return conversation.New(r.Provider, conversation.Options{
		Catalog:           r.Catalog,
		Tokenizer:         r.Tokenizer,
		Store:             r.Store,
		Logger:            r.Logger,
		Template:          r.Config.Chat.DefaultTemplate,
		SystemPrompt:      r.Config.Chat.SystemPrompt,
		Temperature:       provider.Float64(r.Config.Provider.Temperature),
		MaxTokens:         r.Config.Provider.MaxTokens,
		HistoryTokenLimit: r.Config.Chat.HistoryTokenLimit,
		Owner:             owner,
		Models:            r.Config.Provider.Models,
		ConfigBasePath:    configBase,
	})
}

// NewCopilot builds a copilot over an empty document library. Publishing needs DevOps.
func (r *BuildResult) NewCopilot() *copilot.Copilot {
	var pub copilot.Publisher
	if r.DevOps != nil {
		pub = r.DevOps
	}
	d := r.Config.DevOps
	return copilot.New(document.NewLibrary(r.NewPipeline()), r.Provider, pub, copilot.Options{
		WorkItemType: d.WorkItemType,
		AreaPath:     d.AreaPath,
		WikiParent:   d.WikiParent,
	}, r.Logger)
}

// Searcher returns a DevOps searcher or devops.ErrNotConfigured.
func (r *BuildResult) Searcher() (*devops.Searcher, error) {
	if r.DevOps == nil {
		return nil, devops.ErrNotConfigured
	}
	return devops.NewSearcher(r.DevOps, r.NewPipeline()), nil
}

// WalkOptions maps the repo section onto the zip walker.
func (r *BuildResult) WalkOptions() repo.WalkOptions {
	return repo.WalkOptions{
		Extensions:   r.Config.Repo.Extensions,
		MaxFileBytes: r.Config.Repo.MaxFileBytes,
		MaxFiles:     r.Config.Repo.MaxFiles,
	}
}

func (r *BuildResult) NewSummarizer() *repo.Summarizer {
	ttl := time.Duration(r.Config.Storage.CacheTTLHours) * time.Hour
	return repo.NewSummarizer(r.Provider, repo.SummarizerOptions{
		Workers:   r.Config.Repo.Workers,
		CacheTTL:  ttl,
		Store:     r.Store,
		Tokenizer: r.Tokenizer,
		Logger:    r.Logger,
	})
}

// Authenticator builds the login service from the auth section.
func (r *BuildResult) Authenticator() (*auth.Authenticator, error) {
	ttl := time.Duration(r.Config.Auth.TokenTTLMinutes) * time.Minute
	return auth.New(r.Config.Auth.Users, r.Config.Auth.JWTSecret, ttl)
}

// TilenaSyncer dials the mailbox and returns a syncer; the caller closes the mailbox.
func (r *BuildResult) TilenaSyncer() (*tilena.Syncer, tilena.Mailbox, error) {
	if r.DevOps == nil {
		return nil, nil, devops.ErrNotConfigured
	}
	m := r.Config.Mail
	mailbox, err := tilena.DialIMAP(tilena.IMAPConfig{
		Host:     m.Host,
		Port:     m.Port,
		User:     m.User,
		Password: m.Password,
	})
	if err != nil {
		return nil, nil, err
	}
	syncer, err := tilena.NewSyncer(mailbox, r.DevOps, tilena.SyncOptions{
		SenderFilter:  m.SenderFilter,
		TicketBaseURL: m.TicketBaseURL,
		AreaPath:      r.Config.DevOps.AreaPath,
	}, r.Logger)
	if err != nil {
		_ = mailbox.Close()
		return nil, nil, err
	}
	return syncer, mailbox, nil
}
