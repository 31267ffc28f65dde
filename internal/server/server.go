// Package server exposes the HTTP JSON API. Handlers compose the session
// manager, identity registry and mailbox view; every error is converted to a
// JSON body with an "error" field at this boundary.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/config"
	"github.com/lettermill/lettermill/internal/identity"
	"github.com/lettermill/lettermill/internal/mailbox"
	"github.com/lettermill/lettermill/internal/relay"
	"github.com/lettermill/lettermill/internal/session"
	"github.com/lettermill/lettermill/internal/store"
	"github.com/lettermill/lettermill/internal/tokens"
)

// SessionCookie carries the session token; X-Session-Token is accepted as an
// alternative for non-browser clients.
const (
	SessionCookie = "lettermill_session"
	SessionHeader = "X-Session-Token"
	APIKeyHeader  = "X-API-Key"
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	registry *identity.Registry
	sessions *session.Manager
	mailbox  *mailbox.View
	resets   *tokens.Store
	sender   relay.Sender
	engine   *gin.Engine
}

func New(cfg *config.Config, st store.Store, reg *identity.Registry, sm *session.Manager, mv *mailbox.View, rt *tokens.Store, sender relay.Sender) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		registry: reg,
		sessions: sm,
		mailbox:  mv,
		resets:   rt,
		sender:   sender,
		engine:   gin.Default(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.POST("/register", s.handleRegister)
		api.POST("/login", s.handleLogin)
		api.POST("/logout", s.handleLogout)

		api.POST("/forgot-password", s.handleForgotPassword)
		api.GET("/validate-reset-token", s.handleValidateResetToken)
		api.POST("/reset-password", s.handleResetPassword)

		quick := api.Group("/quick-login")
		{
			quick.GET("/accounts", s.handleQuickLoginAccounts)
			quick.POST("/validate", s.handleQuickLoginValidate)
		}

		authed := api.Group("")
		authed.Use(s.requireSession())
		{
			authed.GET("/user-info", s.handleUserInfo)
			authed.GET("/emails/:folder", s.handleListEmails)
			authed.GET("/email/:id", s.handleGetEmail)
			authed.POST("/send-email", s.handleSendEmail)
			authed.POST("/save-draft", s.handleSaveDraft)
			authed.DELETE("/email/:id/delete", s.handleDeleteEmail)
			authed.POST("/email/:id/star", s.handleStarEmail)
			authed.POST("/search", s.handleSearch)
		}

		admin := api.Group("/admin")
		admin.Use(s.requireSession(), s.requireAdmin())
		{
			admin.POST("/broadcast", s.handleBroadcast)
		}

		external := api.Group("/external")
		external.Use(s.requireAPIKey())
		{
			external.POST("/check-user", s.handleCheckUser)
			external.POST("/send-verification", s.handleSendVerification)
			external.POST("/send-advanced-verification", s.handleSendAdvancedVerification)
			external.POST("/send-reset-password", s.handleSendResetPassword)
			external.POST("/send-notification", s.handleSendNotification)
		}
	}
}

// Handler exposes the engine for tests and for http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"service":   "lettermill",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// respondError maps the shared error taxonomy onto HTTP status codes. The
// account-disabled case carries a distinguished "banned" flag.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrInvalidCredentials), errors.Is(err, common.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrAccountDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "banned": true})
	case errors.Is(err, common.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrDeliveryFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
