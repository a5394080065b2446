package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/distributor"
	"aigateway-go/internal/errors"
	"aigateway-go/internal/logging"
	"aigateway-go/internal/middleware"
	"aigateway-go/internal/relay"
	"aigateway-go/internal/storage"
)

// maxBodyBytes caps inbound request bodies. Vision payloads carry inline
// base64 images, so the ceiling is generous.
const maxBodyBytes = 32 << 20

// API serves the relay-facing endpoints: the four chat dialects plus the
// model listings.
type API struct {
	Relay *relay.Relay
	Store storage.Backend
}

// NewAPI builds the API handler set.
func NewAPI(r *relay.Relay, store storage.Backend) *API {
	return &API{Relay: r, Store: store}
}

// Chat handles all four inbound dialects. The path and headers identify the
// dialect; the relay handles translation, routing, and accounting.
func (h *API) Chat(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteAPIError(c, errors.RequestTooLarge("Request body exceeds the size limit"))
		return
	}

	info, apiErr := distributor.Detect(c.Request.URL.Path, c.Request.Header, body)
	if apiErr != nil {
		middleware.WriteAPIError(c, apiErr)
		return
	}

	token := middleware.TokenFromContext(c)
	user := middleware.UserFromContext(c)
	if token == nil || user == nil {
		middleware.WriteAPIError(c, errors.InvalidAPIKey("Missing API key"))
		return
	}
	if !token.HasModelAccess(info.Model) {
		middleware.WriteAPIError(c, errors.New(http.StatusForbidden, "model_forbidden", "permission_error",
			"Token has no access to model "+info.Model))
		return
	}

	req := &relay.Request{Info: info, Body: body, Token: token, User: user}
	if apiErr := h.Relay.Handle(c.Request.Context(), c.Writer, req); apiErr != nil {
		logging.WithReq(c, log.Fields{
			"model":  info.Model,
			"status": apiErr.HTTPStatus,
			"code":   apiErr.Code,
		}).Warn("relay failed")
		middleware.WriteAPIError(c, apiErr)
	}
}
