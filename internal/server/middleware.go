package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/models"
)

const ctxUserKey = "lettermill.user"

func sessionToken(c *gin.Context) string {
	if token := c.GetHeader(SessionHeader); token != "" {
		return token
	}
	token, err := c.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return token
}

// requireSession resolves the session token to its user record and aborts
// with 401 when there is none.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			respondError(c, common.ErrUnauthenticated)
			c.Abort()
			return
		}

		user, err := s.sessions.Current(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// requireAdmin must run after requireSession.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).Admin {
			respondError(c, common.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireAPIKey guards the external relay endpoints with the shared secret.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.ExternalAPIKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) models.User {
	user, _ := c.MustGet(ctxUserKey).(models.User)
	return user
}
