package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"aigateway-go/internal/errors"
	"aigateway-go/internal/storage"
)

// SessionCookieName carries the console session token; the login handler
// sets it, SessionAuth reads it.
const SessionCookieName = "aigw_session"

// SessionAuth guards the management console. It accepts the session token
// from the cookie or a Bearer header and requires an admin user.
func SessionAuth(store storage.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			abortAuth(c, errors.New(401, "unauthorized", "authentication_error", "Login required"))
			return
		}

		sess, err := store.GetSession(c.Request.Context(), token)
		if err != nil {
			abortAuth(c, errors.New(401, "unauthorized", "authentication_error", "Invalid session"))
			return
		}
		if time.Now().After(sess.ExpiresAt) {
			abortAuth(c, errors.New(401, "session_expired", "authentication_error", "Session expired"))
			return
		}

		user, err := store.GetUser(c.Request.Context(), sess.UserID)
		if err != nil || !user.Enabled {
			abortAuth(c, errors.New(401, "unauthorized", "authentication_error", "Invalid session"))
			return
		}
		if !user.IsAdmin() {
			abortAuth(c, errors.New(403, "forbidden", "permission_error", "Admin access required"))
			return
		}

		c.Set(CtxUser, user)
		c.Set("session_token", token)
		c.Next()
	}
}

func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
