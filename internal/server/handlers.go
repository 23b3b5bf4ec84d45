package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"ayudapo/internal/auth"
	"ayudapo/internal/conversation"
	"ayudapo/internal/devops"
	"ayudapo/internal/document"
	"ayudapo/internal/provider"
	"ayudapo/internal/retrieval"
	"ayudapo/internal/storage"
	"ayudapo/internal/templates"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxSearchLimit = 500

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, errorEnvelope{Error: apiError{Message: msg, Code: code}})
}

func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorEnvelope{Error: apiError{Message: msg, Code: code}})
}

type hitView struct {
	N      int     `json:"n"`
	Source string  `json:"source"`
	Title  string  `json:"title,omitempty"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

func hitViews(hits []retrieval.Hit) []hitView {
	out := make([]hitView, 0, len(hits))
	for i, h := range hits {
		out = append(out, hitView{N: i + 1, Source: h.Source, Title: h.Title, Score: h.Score, Text: h.Text})
	}
	return out
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if err := s.deps.Auth.Authenticate(req.Username, req.Password); err != nil {
		s.log.Warn("login rejected", "user", req.Username)
		respondError(c, http.StatusUnauthorized, "invalid_credentials", auth.ErrInvalidCredentials.Error())
		return
	}
	token, exp, err := s.deps.Auth.IssueToken(strings.TrimSpace(req.Username))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal", "could not issue token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   exp.UTC(),
	})
}

func (s *Server) listTemplates(c *gin.Context) {
	list := s.deps.Catalog.List()
	out := make([]gin.H, 0, len(list))
	for i, t := range list {
		out = append(out, gin.H{"index": i + 1, "name": t.Name, "slug": t.Slug(), "description": t.Description})
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

func (s *Server) listSessions(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []storage.SessionMeta{}})
		return
	}
	list, err := s.deps.Store.ListSessions(currentUser(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal", "could not list sessions")
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, m := range list {
		out = append(out, gin.H{"id": m.ID, "title": m.Title, "template": m.Template, "updated_at": m.UpdatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) getSession(c *gin.Context) {
	sess := s.deps.Sessions(currentUser(c))
	meta, err := sess.Resume(c.Param("id"))
	if err != nil {
		s.sessionError(c, err)
		return
	}
	msgs := make([]gin.H, 0)
	for _, m := range sess.Messages() {
		msgs = append(msgs, gin.H{"role": m.Role, "content": m.Content, "created_at": m.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       meta.ID,
		"title":    meta.Title,
		"template": sess.Template(),
		"messages": msgs,
	})
}

func (s *Server) sessionError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found", "session not found")
		return
	}
	respondError(c, http.StatusInternalServerError, "internal", err.Error())
}

func (s *Server) chat(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		Template  string `json:"template"`
		Message   string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	unlock := s.locks.lock(req.SessionID)
	defer unlock()

	sess := s.deps.Sessions(currentUser(c))
	if id := strings.TrimSpace(req.SessionID); id != "" {
		if _, err := sess.Resume(id); err != nil {
			s.sessionError(c, err)
			return
		}
	}
	if strings.TrimSpace(req.Template) != "" {
		if _, err := sess.SetTemplate(req.Template); err != nil {
			respondError(c, http.StatusBadRequest, "unknown_template", err.Error())
			return
		}
	}

	reply, err := sess.Send(c.Request.Context(), req.Message, nil)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		respondError(c, http.StatusBadRequest, "bad_request", "message is empty")
		return
	case errors.Is(err, templates.ErrUnknownTemplate):
		respondError(c, http.StatusBadRequest, "unknown_template", err.Error())
		return
	case errors.Is(err, provider.ErrNotConfigured):
		respondError(c, http.StatusServiceUnavailable, "not_configured", err.Error())
		return
	case err != nil:
		respondError(c, http.StatusBadGateway, "completion_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID(),
		"template":   sess.Template(),
		"reply":      reply,
	})
}

func (s *Server) uploadDocuments(c *gin.Context) {
	user := currentUser(c)
	cp := s.copilotFor(user)
	if cp == nil || cp.Library() == nil {
		respondError(c, http.StatusServiceUnavailable, "not_configured", "documents are not enabled")
		return
	}
	if c.Request.ContentLength > s.deps.MaxUploadBytes {
		respondError(c, http.StatusRequestEntityTooLarge, "too_large", "upload is too large")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.deps.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "too_large", "upload is too large")
			return
		}
		respondError(c, http.StatusBadRequest, "bad_request", "expected multipart form with files")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		respondError(c, http.StatusBadRequest, "bad_request", "no files uploaded")
		return
	}
	base := s.deps.UploadDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "ayudapo-uploads")
	}
	dir := filepath.Join(base, templates.Slugify(user), uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		respondError(c, http.StatusInternalServerError, "internal", "could not store upload")
		return
	}
	paths := make([]string, 0, len(files))
	names := make([]string, 0, len(files))
	for _, fh := range files {
		name := filepath.Base(filepath.Clean("/" + fh.Filename))
		if name == "/" || name == "." {
			continue
		}
		dst := filepath.Join(dir, name)
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			respondError(c, http.StatusInternalServerError, "internal", "could not store upload")
			return
		}
		paths = append(paths, dst)
		names = append(names, name)
	}
	if err := cp.Library().Add(paths...); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, document.ErrUnsupported) || errors.Is(err, document.ErrNoDocuments) {
			code = http.StatusUnprocessableEntity
		}
		respondError(c, code, "unreadable_document", err.Error())
		return
	}
	s.log.Info("documents uploaded", "user", user, "files", len(paths))
	c.JSON(http.StatusOK, gin.H{"loaded": names, "total": len(cp.Library().Documents())})
}

func (s *Server) askDocuments(c *gin.Context) {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		respondError(c, http.StatusBadRequest, "bad_request", "question is required")
		return
	}
	cp := s.copilotFor(currentUser(c))
	if cp == nil {
		respondError(c, http.StatusServiceUnavailable, "not_configured", "documents are not enabled")
		return
	}
	ans, err := cp.AskDocuments(c.Request.Context(), req.Question, nil)
	switch {
	case errors.Is(err, document.ErrNoDocuments):
		respondError(c, http.StatusConflict, "no_documents", "upload documents first")
		return
	case errors.Is(err, provider.ErrNotConfigured):
		respondError(c, http.StatusServiceUnavailable, "not_configured", err.Error())
		return
	case err != nil:
		respondError(c, http.StatusBadGateway, "completion_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": ans.Text, "sources": hitViews(ans.Hits)})
}

func (s *Server) searchDevOps(c *gin.Context) {
	var req struct {
		Query string `json:"query"`
		Scope string `json:"scope"`
		Limit int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		respondError(c, http.StatusBadRequest, "bad_request", "query is required")
		return
	}
	if s.deps.Searcher == nil {
		respondError(c, http.StatusServiceUnavailable, "not_configured", devops.ErrNotConfigured.Error())
		return
	}
	scope, err := devops.ParseScope(req.Scope)
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Limit <= 0 || req.Limit > maxSearchLimit {
		req.Limit = 100
	}
	hits, err := s.deps.Searcher.Search(c.Request.Context(), req.Query, scope, req.Limit)
	switch {
	case errors.Is(err, retrieval.ErrEmptyIndex):
		c.JSON(http.StatusOK, gin.H{"results": []hitView{}})
		return
	case err != nil:
		var apiErr *devops.APIError
		if errors.As(err, &apiErr) {
			respondError(c, http.StatusBadGateway, "devops_error", apiErr.Error())
			return
		}
		respondError(c, http.StatusBadGateway, "search_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hitViews(hits)})
}
