package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/errors"
	"aigateway-go/internal/models"
	"aigateway-go/internal/netutil"
	"aigateway-go/internal/storage"
)

// Context keys set by TokenAuth for downstream handlers.
const (
	CtxAPIToken = "api_token"
	CtxUser     = "user"
)

// TokenAuth authenticates the client key carried in any of the dialects'
// header conventions and stashes the token plus its owning user on the
// context. Model access is per-request and stays with the handler.
func TokenAuth(store storage.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractKey(c)
		if key == "" {
			abortAuth(c, errors.InvalidAPIKey("Missing API key"))
			return
		}

		token, err := store.GetTokenByKey(c.Request.Context(), key)
		if err != nil {
			if storage.IsNotFound(err) {
				abortAuth(c, errors.InvalidAPIKey("Invalid API key"))
				return
			}
			log.WithError(err).Error("token lookup failed")
			abortAuth(c, errors.New(500, "internal_error", "api_error", "Internal server error"))
			return
		}

		if ok, reason := token.Valid(time.Now()); !ok {
			abortAuth(c, errors.InvalidAPIKey(reason))
			return
		}
		if ip := netutil.ClientIP(c.Request); !token.IPAllowed(ip) {
			abortAuth(c, errors.New(403, "ip_forbidden", "permission_error",
				"Request IP is not in the token's whitelist"))
			return
		}

		user, err := store.GetUser(c.Request.Context(), token.UserID)
		if err != nil {
			if storage.IsNotFound(err) {
				abortAuth(c, errors.InvalidAPIKey("Token owner no longer exists"))
				return
			}
			log.WithError(err).Error("user lookup failed")
			abortAuth(c, errors.New(500, "internal_error", "api_error", "Internal server error"))
			return
		}
		if !user.Enabled {
			abortAuth(c, errors.New(403, "user_disabled", "permission_error", "Account is disabled"))
			return
		}
		if !user.HasQuota() {
			abortAuth(c, errors.QuotaExceeded("User quota exhausted"))
			return
		}

		c.Set(CtxAPIToken, token)
		c.Set(CtxUser, user)
		c.Next()
	}
}

// TokenFromContext returns the authenticated token, nil outside TokenAuth.
func TokenFromContext(c *gin.Context) *models.APIToken {
	if v, ok := c.Get(CtxAPIToken); ok {
		if t, ok := v.(*models.APIToken); ok {
			return t
		}
	}
	return nil
}

// UserFromContext returns the authenticated user, nil outside TokenAuth.
func UserFromContext(c *gin.Context) *models.User {
	if v, ok := c.Get(CtxUser); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// extractKey pulls the client key from whichever convention the dialect
// uses: Bearer token, x-api-key, x-goog-api-key, or the ?key= query param.
func extractKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		return strings.TrimSpace(auth)
	}
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	if key := c.GetHeader("x-goog-api-key"); key != "" {
		return key
	}
	return c.Query("key")
}

func abortAuth(c *gin.Context, apiErr *errors.APIError) {
	WriteAPIError(c, apiErr)
	c.Abort()
}
