package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/errors"
)

// Recovery converts panics into a 500 in the client's error dialect. If the
// response is already streaming, the connection is simply closed.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.WithFields(log.Fields{
				"panic": r,
				"path":  c.Request.URL.Path,
				"stack": string(debug.Stack()),
			}).Error("panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			apiErr := errors.New(http.StatusInternalServerError, "internal_error", "api_error",
				"Internal server error")
			WriteAPIError(c, apiErr)
			c.Abort()
		}()
		c.Next()
	}
}

// WriteAPIError renders an APIError in the envelope matching the endpoint
// the client called.
func WriteAPIError(c *gin.Context, apiErr *errors.APIError) {
	body, err := apiErr.ToJSON(errorFormatFor(c.Request))
	if err != nil {
		c.Data(apiErr.HTTPStatus, "application/json", []byte(`{"error":{"message":"internal error"}}`))
		return
	}
	c.Data(apiErr.HTTPStatus, "application/json", body)
}

func errorFormatFor(r *http.Request) errors.ErrorFormat {
	switch {
	case r == nil:
		return errors.FormatOpenAI
	case strings.Contains(r.URL.Path, "/v1/messages") || r.Header.Get("anthropic-version") != "":
		return errors.FormatClaude
	case strings.Contains(r.URL.Path, "/v1beta/") || r.Header.Get("x-goog-api-key") != "":
		return errors.FormatGemini
	default:
		return errors.FormatOpenAI
	}
}
