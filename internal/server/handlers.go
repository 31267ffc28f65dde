package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/identity"
	"github.com/lettermill/lettermill/internal/relay"
)

type registerRequest struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	Password          string `json:"password"`
	SecurityQuestions []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"security_questions"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.ErrValidation)
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(c, common.ErrValidation)
		return
	}

	var questions []identity.SecurityQA
	for _, qa := range req.SecurityQuestions {
		questions = append(questions, identity.SecurityQA{Question: qa.Question, Answer: qa.Answer})
	}

	user, err := s.registry.Register(c.Request.Context(), req.Email, req.Name, req.Password, questions)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "user": user.Profile()})
}

type loginRequest struct {
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	SecurityAnswers []string `json:"security_answers"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.ErrValidation)
		return
	}

	result, err := s.sessions.Login(c.Request.Context(), req.Email, req.Password, req.SecurityAnswers)
	if err != nil {
		respondError(c, err)
		return
	}

	if result.Challenge {
		c.JSON(http.StatusOK, gin.H{
			"require_security":   true,
			"security_questions": result.Questions,
		})
		return
	}

	c.SetCookie(SessionCookie, result.Token, 0, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   result.Token,
		"user":    result.Profile,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	if token := sessionToken(c); token != "" {
		s.sessions.Logout(token)
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleUserInfo(c *gin.Context) {
	user := currentUser(c)

	counts, err := s.mailbox.Counts(c.Request.Context(), user.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":   user.Profile(),
		"counts": counts,
	})
}

func (s *Server) handleListEmails(c *gin.Context) {
	user := currentUser(c)

	msgs, err := s.mailbox.List(c.Request.Context(), user.Email, c.Param("folder"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"emails": msgs, "count": len(msgs)})
}

func (s *Server) handleGetEmail(c *gin.Context) {
	user := currentUser(c)

	msg, err := s.mailbox.Get(c.Request.Context(), c.Param("id"), user.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

type composeRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *Server) handleSendEmail(c *gin.Context) {
	user := currentUser(c)

	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.ErrValidation)
		return
	}
	if req.To == "" {
		respondError(c, common.ErrValidation)
		return
	}

	// Recipients outside the system go through the relay first; a relay
	// failure fails the whole send so we never record mail that was not
	// delivered.
	if _, err := s.store.GetUser(c.Request.Context(), req.To); errors.Is(err, common.ErrNotFound) {
		if err := s.sender.Send(c.Request.Context(), relay.Delivery{
			To:      req.To,
			Subject: req.Subject,
			Body:    req.Body,
		}); err != nil {
			log.Printf("Relay delivery to %s failed: %v", req.To, err)
			respondError(c, err)
			return
		}
	}

	msg, err := s.mailbox.Send(c.Request.Context(), user.Email, req.To, req.Subject, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "email": msg})
}

func (s *Server) handleSaveDraft(c *gin.Context) {
	user := currentUser(c)

	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.ErrValidation)
		return
	}

	msg, err := s.mailbox.SaveDraft(c.Request.Context(), user.Email, req.To, req.Subject, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "email": msg})
}

func (s *Server) handleDeleteEmail(c *gin.Context) {
	user := currentUser(c)

	if err := s.mailbox.Delete(c.Request.Context(), c.Param("id"), user.Email); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleStarEmail(c *gin.Context) {
	user := currentUser(c)

	starred, err := s.mailbox.ToggleStar(c.Request.Context(), c.Param("id"), user.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "starred": starred})
}

func (s *Server) handleSearch(c *gin.Context) {
	user := currentUser(c)

	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.ErrValidation)
		return
	}

	msgs, err := s.mailbox.Search(c.Request.Context(), user.Email, req.Query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": msgs, "count": len(msgs)})
}

func (s *Server) handleBroadcast(c *gin.Context) {
	user := currentUser(c)

	var req struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.ErrValidation)
		return
	}
	if req.Subject == "" {
		respondError(c, common.ErrValidation)
		return
	}

	n, err := s.mailbox.Broadcast(c.Request.Context(), user.Email, req.Subject, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	log.Printf("Broadcast by %s delivered to %d user(s)", user.Email, n)
	c.JSON(http.StatusOK, gin.H{"success": true, "recipients": n})
}
