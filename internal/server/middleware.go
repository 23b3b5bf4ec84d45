package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortError(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		user, err := s.deps.Auth.ParseToken(token)
		if err != nil {
			abortError(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func currentUser(c *gin.Context) string {
	return c.GetString(userKey)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"user", currentUser(c),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
