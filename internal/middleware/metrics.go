package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mooc-session-miner/internal/service"
)

// unmatchedRoute labels requests that hit no route, keeping the path label
// bounded however many distinct URLs scanners try.
const unmatchedRoute = "unmatched"

// Metrics records request latency and counts by route template. Scrapes of the
// metrics endpoint itself are not recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		if _, ok := skipped[route]; ok {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
