package httpapi

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/gin-gonic/gin"
)

const userKey = "user"

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// requireAuth resolves the bearer access token and stores the caller under
// userKey.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, common.BearerPrefix) {
			s.writeError(c, common.NewAuthError("Please authenticate", common.ErrInvalidToken))
			return
		}

		user, err := s.sessions.Authenticate(c.Request.Context(), strings.TrimPrefix(header, common.BearerPrefix))
		if err != nil {
			s.writeError(c, err)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// requireRights lets the request through when the caller holds every right,
// or when it addresses the caller's own :userId.
func (s *Server) requireRights(rights ...models.Right) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			s.writeError(c, common.NewAuthError("Please authenticate", common.ErrInvalidToken))
			return
		}

		if user.Role.HasRights(rights...) || (c.Param("userId") != "" && c.Param("userId") == user.ID) {
			c.Next()
			return
		}

		s.writeError(c, common.Forbidden())
	}
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
