package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"aigateway-go/internal/monitoring"
)

// Metrics feeds the Prometheus request collectors. Route labels use the gin
// route template so path parameters don't explode cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		monitoring.RequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		monitoring.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
