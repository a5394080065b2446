package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"aigateway-go/internal/middleware"
	"aigateway-go/internal/models"
)

// ListUsers returns every console user.
func (h *Admin) ListUsers(c *gin.Context) {
	users, err := h.Store.ListUsers(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type createUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Quota    int64  `json:"quota"`
}

// CreateUser registers a user with a hashed password.
func (h *Admin) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := models.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	quota := req.Quota
	if quota == 0 {
		quota = models.UnlimitedQuota
	}
	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         role,
		Quota:        quota,
		Enabled:      true,
	}
	if err := h.Store.CreateUser(c.Request.Context(), user); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// UpdateUser edits a user. Password changes come through the optional
// "password" field and are re-hashed.
func (h *Admin) UpdateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	existing, err := h.Store.GetUser(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}

	var req struct {
		models.User
		Password string `json:"password"`
	}
	req.User = *existing
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.User.ID = id
	if req.Password != "" {
		hash, err := models.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		req.User.PasswordHash = hash
	} else {
		req.User.PasswordHash = existing.PasswordHash
	}
	if err := h.Store.UpdateUser(c.Request.Context(), &req.User); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": req.User})
}

// DeleteUser removes a user and, through storage cascades, their tokens.
func (h *Admin) DeleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if self := middleware.UserFromContext(c); self != nil && self.ID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete the logged-in user"})
		return
	}
	if err := h.Store.DeleteUser(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListTokens returns tokens, optionally scoped to one user via ?user_id=.
func (h *Admin) ListTokens(c *gin.Context) {
	var userID int64
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		userID = id
	}
	tokens, err := h.Store.ListTokens(c.Request.Context(), userID)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// CreateToken mints a client key for a user.
func (h *Admin) CreateToken(c *gin.Context) {
	var t models.APIToken
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if t.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	t.Key = models.NewTokenKey()
	t.Status = models.TokenStatusEnabled
	t.CreatedTime = time.Now().Unix()
	if t.ExpiredTime == 0 {
		t.ExpiredTime = models.NeverExpires
	}
	if err := h.Store.CreateToken(c.Request.Context(), &t); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": t})
}

// UpdateToken edits a token's limits and status. The key itself never
// changes; rotation is delete-and-create.
func (h *Admin) UpdateToken(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	existing, err := h.Store.GetToken(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}

	t := *existing
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t.ID = id
	t.Key = existing.Key
	if err := h.Store.UpdateToken(c.Request.Context(), &t); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": t})
}

// DeleteToken revokes a client key.
func (h *Admin) DeleteToken(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err := h.Store.DeleteToken(c.Request.Context(), id, userID); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
