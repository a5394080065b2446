package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/events"
	"aigateway-go/internal/middleware"
	"aigateway-go/internal/models"
	"aigateway-go/internal/riskcontrol"
	"aigateway-go/internal/storage"
	"aigateway-go/internal/usage"
)

// Admin serves the management console API.
type Admin struct {
	Store      storage.Backend
	Risk       *riskcontrol.System
	Tracker    *usage.Tracker
	Hub        *events.Hub
	SessionTTL time.Duration
}

// NewAdmin builds the console handler set.
func NewAdmin(store storage.Backend, risk *riskcontrol.System, tracker *usage.Tracker, hub *events.Hub, sessionTTL time.Duration) *Admin {
	if sessionTTL <= 0 {
		sessionTTL = models.SessionDuration
	}
	return &Admin{Store: store, Risk: risk, Tracker: tracker, Hub: hub, SessionTTL: sessionTTL}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a console user and issues a session cookie.
func (h *Admin) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := h.Store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil || !models.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.Enabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
		return
	}
	if !user.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}

	sess := &models.Session{
		UserID:    user.ID,
		Token:     models.NewSessionToken(),
		ExpiresAt: time.Now().Add(h.SessionTTL),
	}
	if err := h.Store.CreateSession(c.Request.Context(), sess); err != nil {
		log.WithError(err).Error("session create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := h.Store.UpdateUser(c.Request.Context(), user); err != nil {
		log.WithError(err).Warn("last login update failed")
	}

	c.SetCookie(middleware.SessionCookieName, sess.Token,
		int(h.SessionTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": sess.Token, "user": user})
}

// Logout deletes the current session.
func (h *Admin) Logout(c *gin.Context) {
	if token := c.GetString("session_token"); token != "" {
		if err := h.Store.DeleteSession(c.Request.Context(), token); err != nil {
			log.WithError(err).Warn("session delete failed")
		}
	}
	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the logged-in console user.
func (h *Admin) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": middleware.UserFromContext(c)})
}
