package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"aigateway-go/internal/events"
	"aigateway-go/internal/models"
	"aigateway-go/internal/storage"
)

// RiskControlStatus reports each risk-control component's live state.
func (h *Admin) RiskControlStatus(c *gin.Context) {
	status := map[string]interface{}{"enabled": false}
	if h.Risk != nil {
		status = h.Risk.Status()
		if h.Risk.Health != nil {
			status["health_summary"] = h.Risk.Health.Summary()
		}
	}
	c.JSON(http.StatusOK, status)
}

// GetRiskControlSettings returns the persisted switchboard row.
func (h *Admin) GetRiskControlSettings(c *gin.Context) {
	settings, err := h.Store.RiskControlSettings(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateRiskControlSettings persists the switchboard. The running system
// picks the change up on its next restart; the event lets the console know.
func (h *Admin) UpdateRiskControlSettings(c *gin.Context) {
	var settings models.RiskControlSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.UpdateRiskControlSettings(c.Request.Context(), settings); err != nil {
		storeError(c, err)
		return
	}
	if h.Hub != nil {
		h.Hub.Publish(c.Request.Context(), events.TopicConfigUpdated,
			gin.H{"section": "risk_control"}, nil)
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// GetCacheSettings returns the cache/compression row.
func (h *Admin) GetCacheSettings(c *gin.Context) {
	settings, err := h.Store.CacheSettings(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateCacheSettings persists the cache/compression row. The relay reads
// the row per request, so changes apply immediately.
func (h *Admin) UpdateCacheSettings(c *gin.Context) {
	var settings models.CacheSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if settings.CompressionEnabled && settings.CompressionTarget >= settings.CompressionThreshold {
		c.JSON(http.StatusBadRequest, gin.H{"error": "compression target must be below the threshold"})
		return
	}
	if err := h.Store.UpdateCacheSettings(c.Request.Context(), settings); err != nil {
		storeError(c, err)
		return
	}
	if h.Hub != nil {
		h.Hub.Publish(c.Request.Context(), events.TopicConfigUpdated,
			gin.H{"section": "cache"}, nil)
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// Stats aggregates the dashboard numbers: storage totals, the in-memory
// usage tracker, and persisted per-model and hourly series.
func (h *Admin) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("hours"); raw != "" {
		if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
			since = time.Now().Add(-time.Duration(hours) * time.Hour)
		}
	}

	out := gin.H{"live": h.trackerSnapshot()}

	if stats, err := h.Store.GetStorageStats(ctx); err == nil {
		out["storage"] = stats
	}
	if usageStats, err := h.Store.UsageStats(ctx, 0, since); err == nil {
		out["usage"] = usageStats
	}
	if modelStats, err := h.Store.ModelStats(ctx, 0, since); err == nil {
		out["models"] = modelStats
	}
	if hourly, err := h.Store.HourlyStats(ctx, 0, since); err == nil {
		out["hourly"] = hourly
	}
	c.JSON(http.StatusOK, out)
}

func (h *Admin) trackerSnapshot() interface{} {
	if h.Tracker == nil {
		return nil
	}
	return h.Tracker.Snapshot()
}

// ListRequestLogs pages through the relay's request log.
func (h *Admin) ListRequestLogs(c *gin.Context) {
	filter := storage.LogFilter{Limit: 100}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			filter.Limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if raw := c.Query("user_id"); raw != "" {
		filter.UserID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := c.Query("channel_id"); raw != "" {
		filter.ChannelID, _ = strconv.ParseInt(raw, 10, 64)
	}
	filter.Model = c.Query("model")
	filter.ErrorOnly = c.Query("errors") == "true"

	logs, err := h.Store.ListRequestLogs(c.Request.Context(), filter)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
