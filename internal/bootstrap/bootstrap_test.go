package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ayudapo/internal/auth"
	"ayudapo/internal/config"
	"ayudapo/internal/copilot"
	"ayudapo/internal/devops"
	"ayudapo/internal/retrieval"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.BaseDir = filepath.Join(t.TempDir(), "data")
	cfg.Retrieval.Embedder = "hash"
	cfg.Retrieval.HashDim = 64
	return cfg
}

func TestBuildEmptyBaseDirFails(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.BaseDir = ""
	if _, err := Build(cfg, Options{}); err == nil {
		t.Fatal("Build with empty base dir should fail")
	}
}

func TestBuildSuccessWithTempDir(t *testing.T) {
	cfg := testConfig(t)
	res, err := Build(cfg, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer res.Close()

	if res.Store == nil || res.Provider == nil || res.Catalog == nil {
		t.Fatal("core services should be set")
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.BaseDir, "ayudapo.db")); err != nil {
		t.Fatalf("database not created: %v", err)
	}
	if res.Embedder.Model() != "hash-64" {
		t.Fatalf("embedder=%q", res.Embedder.Model())
	}
	if res.DevOps != nil {
		t.Fatal("devops should be disabled without credentials")
	}
	if res.HistoryPath() != filepath.Join(cfg.Storage.BaseDir, "repl.history") {
		t.Fatalf("history path=%q", res.HistoryPath())
	}

	sess := res.NewSession("ana", "")
	if sess.Template() != config.DefaultTemplate {
		t.Fatalf("template=%q", sess.Template())
	}
	if sess.Model() != cfg.Provider.Model {
		t.Fatalf("model=%q", sess.Model())
	}
}

func TestBuildEmbeddingsAreCached(t *testing.T) {
	res, err := Build(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer res.Close()

	ctx := context.Background()
	vecs, err := res.Embedder.Embed(ctx, []string{"historia de usuario"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	hash := retrieval.ContentHash("historia de usuario")
	got, err := res.Store.GetEmbeddings(ctx, "hash-64", []string{hash})
	if err != nil {
		t.Fatalf("GetEmbeddings: %v", err)
	}
	if len(got[hash]) != len(vecs[0]) {
		t.Fatalf("vector not cached: %v", got)
	}
}

func TestServicesNeedingConfiguration(t *testing.T) {
	res, err := Build(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer res.Close()

	if _, err := res.Searcher(); !errors.Is(err, devops.ErrNotConfigured) {
		t.Fatalf("Searcher err=%v", err)
	}
	if _, _, err := res.TilenaSyncer(); !errors.Is(err, devops.ErrNotConfigured) {
		t.Fatalf("TilenaSyncer err=%v", err)
	}
	if _, err := res.Authenticator(); !errors.Is(err, auth.ErrNoSecret) {
		t.Fatalf("Authenticator err=%v", err)
	}
	if _, err := res.NewCopilot().PublishWorkItem(context.Background(), copilotDraft()); !errors.Is(err, devops.ErrNotConfigured) {
		t.Fatalf("PublishWorkItem err=%v", err)
	}
}

func TestBuildWithDevOps(t *testing.T) {
	cfg := testConfig(t)
	cfg.DevOps.Organization = "fdb"
	cfg.DevOps.Project = "Pedidos"
	cfg.DevOps.PAT = "pat"
	cfg.Auth.JWTSecret = "s3cret"

	res, err := Build(cfg, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer res.Close()

	if res.DevOps == nil || res.DevOps.Project() != "Pedidos" {
		t.Fatal("devops client should be configured")
	}
	if _, err := res.Searcher(); err != nil {
		t.Fatalf("Searcher: %v", err)
	}
	if _, err := res.Authenticator(); err != nil {
		t.Fatalf("Authenticator: %v", err)
	}
	if opts := res.WalkOptions(); opts.MaxFiles != cfg.Repo.MaxFiles || len(opts.Extensions) == 0 {
		t.Fatalf("walk options=%+v", opts)
	}
}

func copilotDraft() copilot.WorkItemDraft {
	return copilot.WorkItemDraft{Title: "Pago con Bizum"}
}

func TestBuildFallsBackToHashEmbedderWithoutKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.Embedder = "remote"
	cfg.Provider.APIKey = ""
	cfg.Provider.EmbeddingAPIKey = ""
	res, err := Build(cfg, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer res.Close()
	if res.Embedder.Model() != "hash-64" {
		t.Fatalf("embedder=%q, want hash-64", res.Embedder.Model())
	}

	cfg = testConfig(t)
	cfg.Retrieval.Embedder = "remote"
	cfg.Provider.EmbeddingAPIKey = "sk-embed"
	res2, err := Build(cfg, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer res2.Close()
	if res2.Embedder.Model() != cfg.Provider.EmbeddingModel {
		t.Fatalf("embedder=%q, want %q", res2.Embedder.Model(), cfg.Provider.EmbeddingModel)
	}
}
