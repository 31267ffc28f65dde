package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/models"
	"github.com/lettermill/lettermill/internal/relay"
)

// Quick login: a public account picker for the landing page. Returns only
// public profile fields.

func (s *Server) handleQuickLoginAccounts(c *gin.Context) {
	users, err := s.store.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	// Most recently used accounts first.
	sort.SliceStable(users, func(i, j int) bool {
		li, lj := users[i].LastLogin, users[j].LastLogin
		switch {
		case li == nil:
			return false
		case lj == nil:
			return true
		default:
			return li.After(*lj)
		}
	})

	accounts := make([]models.Profile, 0, len(users))
	for _, user := range users {
		accounts = append(accounts, user.Profile())
	}

	c.JSON(http.StatusOK, gin.H{"accounts": accounts, "count": len(accounts)})
}

func (s *Server) handleQuickLoginValidate(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		respondError(c, common.ErrValidation)
		return
	}

	user, err := s.registry.Find(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"exists": false})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exists":           true,
		"user":             user.Profile(),
		"require_security": user.HasSecurityQuestions(),
	})
}

// Password reset flow. Forgot-password deliberately returns the same success
// body whether or not the email is registered, so the endpoint cannot be used
// to enumerate accounts.

func (s *Server) handleForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		respondError(c, common.ErrValidation)
		return
	}

	if _, err := s.registry.Find(c.Request.Context(), req.Email); err == nil {
		token := s.resets.Issue(req.Email)
		body := fmt.Sprintf("A password reset was requested for your account.\n\nReset token: %s\n\nThe token expires in one hour. If you did not request this, ignore this message.", token)

		// Best effort: deliver the token to the user's own inbox and, when a
		// relay is configured, to their real mailbox. Neither failure is
		// surfaced to the caller.
		if _, err := s.store.AddMessage(c.Request.Context(), models.Message{
			From:    s.cfg.AdminEmail,
			To:      req.Email,
			Subject: "Password reset",
			Body:    body,
			Folder:  models.FolderInbox,
		}); err != nil {
			log.Printf("Error storing reset message for %s: %v", req.Email, err)
		}
		if err := s.sender.Send(c.Request.Context(), relay.Delivery{
			To:      req.Email,
			Subject: "Password reset",
			Body:    body,
		}); err != nil {
			log.Printf("Relay delivery of reset token to %s failed: %v", req.Email, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "If the account exists, a reset email has been sent",
	})
}

func (s *Server) handleValidateResetToken(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, common.ErrValidation)
		return
	}

	email, err := s.resets.Peek(token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "email": email})
}

func (s *Server) handleResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" || req.NewPassword == "" {
		respondError(c, common.ErrValidation)
		return
	}

	email, err := s.resets.Consume(req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.registry.SetPassword(c.Request.Context(), email, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// External relay endpoints: API-key-authenticated surfaces that let third
// party sites deliver mail to registered users. The recipient must exist.

func (s *Server) handleCheckUser(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		respondError(c, common.ErrValidation)
		return
	}

	user, err := s.registry.Find(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"exists": false})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exists": true, "user_info": user.Profile()})
}

// deliverExternal stores the message in the recipient's inbox and, when a
// relay is configured, pushes it outbound as well. The recipient must be a
// registered user; relay failures fail the request.
func (s *Server) deliverExternal(c *gin.Context, toEmail, siteName, subject, body string, verification bool) {
	if _, err := s.registry.Find(c.Request.Context(), toEmail); err != nil {
		respondError(c, err)
		return
	}

	if err := s.sender.Send(c.Request.Context(), relay.Delivery{
		To:      toEmail,
		Subject: subject,
		Body:    body,
	}); err != nil {
		log.Printf("Relay delivery to %s failed: %v", toEmail, err)
		respondError(c, err)
		return
	}

	msg, err := s.store.AddMessage(c.Request.Context(), models.Message{
		From:         siteName,
		To:           toEmail,
		Subject:      subject,
		Body:         body,
		Folder:       models.FolderInbox,
		Verification: verification,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "email_id": msg.ID})
}

type verificationRequest struct {
	ToEmail          string `json:"to_email"`
	SiteName         string `json:"site_name"`
	VerificationCode string `json:"verification_code"`
	VerificationURL  string `json:"verification_url"`
	ExpiresIn        int    `json:"expires_in"`
	Type             string `json:"type"`
	Theme            string `json:"theme"`
}

func (s *Server) handleSendVerification(c *gin.Context) {
	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToEmail == "" || req.VerificationCode == "" {
		respondError(c, common.ErrValidation)
		return
	}
	if req.SiteName == "" {
		req.SiteName = "External site"
	}

	subject := fmt.Sprintf("%s: your verification code", req.SiteName)
	body := fmt.Sprintf("Your verification code for %s is: %s", req.SiteName, req.VerificationCode)
	if req.VerificationURL != "" {
		body += fmt.Sprintf("\n\nVerify here: %s", req.VerificationURL)
	}
	if req.ExpiresIn > 0 {
		body += fmt.Sprintf("\n\nThis code expires in %d seconds.", req.ExpiresIn)
	}

	s.deliverExternal(c, req.ToEmail, req.SiteName, subject, body, true)
}

func (s *Server) handleSendAdvancedVerification(c *gin.Context) {
	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToEmail == "" || req.VerificationCode == "" {
		respondError(c, common.ErrValidation)
		return
	}
	if req.SiteName == "" {
		req.SiteName = "External site"
	}
	tier := req.Type
	if tier == "" {
		tier = "standard"
	}

	subject := fmt.Sprintf("[%s] %s: verify your account", tier, req.SiteName)
	body := fmt.Sprintf("%s sent you a %s verification.\n\nCode: %s", req.SiteName, tier, req.VerificationCode)
	if req.VerificationURL != "" {
		body += fmt.Sprintf("\n\nVerify here: %s", req.VerificationURL)
	}

	s.deliverExternal(c, req.ToEmail, req.SiteName, subject, body, true)
}

func (s *Server) handleSendResetPassword(c *gin.Context) {
	var req struct {
		ToEmail    string `json:"to_email"`
		SiteName   string `json:"site_name"`
		ResetToken string `json:"reset_token"`
		ResetURL   string `json:"reset_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ToEmail == "" || req.ResetToken == "" {
		respondError(c, common.ErrValidation)
		return
	}
	if req.SiteName == "" {
		req.SiteName = "External site"
	}

	subject := fmt.Sprintf("%s: password reset", req.SiteName)
	body := fmt.Sprintf("A password reset was requested on %s.\n\nReset token: %s", req.SiteName, req.ResetToken)
	if req.ResetURL != "" {
		body += fmt.Sprintf("\n\nReset here: %s?token=%s", req.ResetURL, req.ResetToken)
	}

	s.deliverExternal(c, req.ToEmail, req.SiteName, subject, body, false)
}

func (s *Server) handleSendNotification(c *gin.Context) {
	var req struct {
		ToEmail  string `json:"to_email"`
		SiteName string `json:"site_name"`
		Subject  string `json:"subject"`
		Message  string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ToEmail == "" || req.Subject == "" {
		respondError(c, common.ErrValidation)
		return
	}
	if req.SiteName == "" {
		req.SiteName = "External site"
	}

	s.deliverExternal(c, req.ToEmail, req.SiteName, req.Subject, req.Message, false)
}
