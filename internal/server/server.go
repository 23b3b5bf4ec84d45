// Package server exposes the copilot over a small JSON API for web front ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ayudapo/internal/auth"
	"ayudapo/internal/conversation"
	"ayudapo/internal/copilot"
	"ayudapo/internal/devops"
	"ayudapo/internal/logging"
	"ayudapo/internal/storage"
	"ayudapo/internal/templates"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const (
	// DefaultMaxUploadBytes caps one document upload request.
	DefaultMaxUploadBytes = 32 << 20
	// DefaultDocumentTTL is how long an idle user's document library is kept.
	DefaultDocumentTTL = 2 * time.Hour
)

// SessionFactory returns a fresh conversation for owner.
type SessionFactory func(owner string) *conversation.Session

// CopilotFactory returns a copilot with an empty document library for owner.
type CopilotFactory func(owner string) *copilot.Copilot

type Deps struct {
	Auth     *auth.Authenticator
	Catalog  *templates.Catalog
	Sessions SessionFactory
	// Store lists stored sessions; optional.
	Store storage.Store
	// Copilots builds one document copilot per user; optional.
	Copilots CopilotFactory
	// Searcher searches Azure DevOps; nil when DevOps is not configured.
	Searcher *devops.Searcher
	// UploadDir receives uploaded documents.
	UploadDir string
	// MaxUploadBytes caps one upload request; 0 means DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// DocumentTTL drops a user's library after this long without use; 0 means DefaultDocumentTTL.
	DocumentTTL time.Duration
	Logger      *logging.Logger
}

type Server struct {
	deps   Deps
	log    *logging.Logger
	router *gin.Engine
	locks  sessionLocks

	copilotMu sync.Mutex
	copilots  *cache.Cache
}

func New(deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, errors.New("server needs an authenticator")
	}
	if deps.Sessions == nil {
		return nil, errors.New("server needs a session factory")
	}
	if deps.Catalog == nil {
		deps.Catalog = templates.Builtin()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if deps.DocumentTTL <= 0 {
		deps.DocumentTTL = DefaultDocumentTTL
	}
	s := &Server{
		deps:     deps,
		log:      deps.Logger.Named("server"),
		copilots: cache.New(deps.DocumentTTL, deps.DocumentTTL/4),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/login", s.login)

	protected := api.Group("")
	protected.Use(s.requireAuth())
	protected.GET("/templates", s.listTemplates)
	protected.GET("/sessions", s.listSessions)
	protected.GET("/sessions/:id", s.getSession)
	protected.POST("/chat", s.chat)
	protected.POST("/documents", s.uploadDocuments)
	protected.POST("/documents/ask", s.askDocuments)
	protected.POST("/devops/search", s.searchDevOps)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// copilotFor returns the user's copilot, creating it on first use. Each access
// restarts the idle timer.
func (s *Server) copilotFor(user string) *copilot.Copilot {
	if s.deps.Copilots == nil {
		return nil
	}
	s.copilotMu.Lock()
	defer s.copilotMu.Unlock()
	if v, ok := s.copilots.Get(user); ok {
		cp := v.(*copilot.Copilot)
		s.copilots.Set(user, cp, cache.DefaultExpiration)
		return cp
	}
	cp := s.deps.Copilots(user)
	if cp == nil {
		return nil
	}
	s.copilots.Set(user, cp, cache.DefaultExpiration)
	return cp
}

// sessionLocks serialises requests on the same stored session. Entries are
// dropped once no request holds or waits for them.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) func() {
	if id == "" {
		return func() {}
	}
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sessionLock)
	}
	e := l.m[id]
	if e == nil {
		e = &sessionLock{}
		l.m[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
