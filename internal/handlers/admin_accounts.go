package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/models"
	"aigateway-go/internal/storage"
)

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func storeError(c *gin.Context, err error) {
	if storage.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	log.WithError(err).Error("storage operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// ListAccounts returns every upstream credential, keys redacted.
func (h *Admin) ListAccounts(c *gin.Context) {
	accounts, err := h.Store.ListAccounts(c.Request.Context(), c.Query("provider_type"))
	if err != nil {
		storeError(c, err)
		return
	}
	out := make([]models.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Redacted())
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

// CreateAccount registers a new upstream credential.
func (h *Admin) CreateAccount(c *gin.Context) {
	var a models.Account
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if a.ProviderType == "" || a.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider_type and api_key are required"})
		return
	}
	if err := h.Store.CreateAccount(c.Request.Context(), &a); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": a.Redacted()})
}

// UpdateAccount edits an existing credential. An empty api_key keeps the
// stored one so the console can submit redacted records back.
func (h *Admin) UpdateAccount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	existing, err := h.Store.GetAccount(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}

	var a models.Account
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.ID = id
	if a.APIKey == "" || a.APIKey == existing.Redacted().APIKey {
		a.APIKey = existing.APIKey
	}
	if err := h.Store.UpdateAccount(c.Request.Context(), &a); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": a.Redacted()})
}

// DeleteAccount removes a credential from its pool.
func (h *Admin) DeleteAccount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteAccount(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListChannels returns every channel with its rolling stats.
func (h *Admin) ListChannels(c *gin.Context) {
	channels, err := h.Store.ListChannels(c.Request.Context(), false)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// CreateChannel registers a routing channel.
func (h *Admin) CreateChannel(c *gin.Context) {
	var ch models.Channel
	if err := c.ShouldBindJSON(&ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ch.Type == "" || len(ch.Models) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type and models are required"})
		return
	}
	if err := h.Store.CreateChannel(c.Request.Context(), &ch); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"channel": ch})
}

// UpdateChannel edits a channel.
func (h *Admin) UpdateChannel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var ch models.Channel
	if err := c.ShouldBindJSON(&ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch.ID = id
	if err := h.Store.UpdateChannel(c.Request.Context(), &ch); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": ch})
}

// DeleteChannel removes a channel from routing.
func (h *Admin) DeleteChannel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteChannel(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
