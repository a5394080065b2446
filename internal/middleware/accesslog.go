package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/logging"
)

// AccessLog writes one structured line per request. Streaming responses log
// after the stream closes, so latency covers the full relay.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logging.WithReq(c, log.Fields{
			"status": c.Writer.Status(),
			"bytes":  c.Writer.Size(),
		})
		entry = logging.WithLatency(entry, time.Since(start))

		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request")
		case c.Writer.Status() >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}
