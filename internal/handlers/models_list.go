package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"aigateway-go/internal/errors"
	"aigateway-go/internal/middleware"
)

// availableModels collects the union of enabled channels' model lists,
// filtered down to what the calling token may use.
func (h *API) availableModels(c *gin.Context) ([]string, *errors.APIError) {
	channels, err := h.Store.ListChannels(c.Request.Context(), true)
	if err != nil {
		return nil, errors.New(http.StatusInternalServerError, "internal_error", "api_error",
			"Failed to list models")
	}

	seen := make(map[string]bool)
	for _, ch := range channels {
		for _, m := range ch.Models {
			seen[m] = true
		}
	}

	token := middleware.TokenFromContext(c)
	var out []string
	for m := range seen {
		if token == nil || token.HasModelAccess(m) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListModels serves GET /v1/models in the OpenAI shape.
func (h *API) ListModels(c *gin.Context) {
	names, apiErr := h.availableModels(c)
	if apiErr != nil {
		middleware.WriteAPIError(c, apiErr)
		return
	}

	data := make([]gin.H, 0, len(names))
	for _, m := range names {
		data = append(data, gin.H{
			"id":       m,
			"object":   "model",
			"owned_by": "aigateway",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// GetModel serves GET /v1/models/:model.
func (h *API) GetModel(c *gin.Context) {
	model := c.Param("model")
	names, apiErr := h.availableModels(c)
	if apiErr != nil {
		middleware.WriteAPIError(c, apiErr)
		return
	}
	for _, m := range names {
		if m == model {
			c.JSON(http.StatusOK, gin.H{"id": m, "object": "model", "owned_by": "aigateway"})
			return
		}
	}
	middleware.WriteAPIError(c, errors.ModelNotFound(model))
}

// ListModelsGemini serves GET /v1beta/models in the Gemini shape.
func (h *API) ListModelsGemini(c *gin.Context) {
	names, apiErr := h.availableModels(c)
	if apiErr != nil {
		middleware.WriteAPIError(c, apiErr)
		return
	}

	out := make([]gin.H, 0, len(names))
	for _, m := range names {
		out = append(out, gin.H{
			"name":                       "models/" + m,
			"displayName":                m,
			"supportedGenerationMethods": []string{"generateContent", "streamGenerateContent"},
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}
