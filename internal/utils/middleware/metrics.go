package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/server/internal/utils/metrics"
)

// Metrics records request counts, latency and in-flight requests. Paths are
// labelled by route template to bound cardinality.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
