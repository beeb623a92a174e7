// Package requestid tags every request with an id, and run requests with the
// id of the course run they touch, so both end up in the request log.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	Header    = "X-Request-ID"
	RunHeader = "X-Run-ID"

	contextKey    = "request_id"
	runContextKey = "run_id"
)

// Middleware keeps a caller supplied X-Request-ID or assigns a fresh one.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(Header)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}

		c.Set(contextKey, reqID)
		c.Writer.Header().Set(Header, reqID)

		c.Next()
	}
}

// Value returns the request ID stored in the Gin context.
func Value(c *gin.Context) string {
	return stringValue(c, contextKey)
}

// SetRun records the course run a request acts on and echoes it in X-Run-ID.
func SetRun(c *gin.Context, runID string) {
	if runID == "" {
		return
	}
	c.Set(runContextKey, runID)
	c.Writer.Header().Set(RunHeader, runID)
}

// Run returns the run id recorded by SetRun.
func Run(c *gin.Context) string {
	return stringValue(c, runContextKey)
}

func stringValue(c *gin.Context, key string) string {
	if v, exists := c.Get(key); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
