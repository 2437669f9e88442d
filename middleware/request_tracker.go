package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/common/graceful"
)

// RequestTracker counts this request as in-flight for the duration of the
// handler chain, so graceful.Drain knows when it is safe to stop waiting
// during shutdown. Also rejects new requests outright once the process has
// started draining.
func RequestTracker() gin.HandlerFunc {
	return func(c *gin.Context) {
		if graceful.IsDraining() {
			c.AbortWithStatus(503)
			return
		}

		done := graceful.BeginRequest()
		defer done()
		c.Next()
	}
}
