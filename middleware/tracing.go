package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/common/config"
	"github.com/gateway/multiapi/common/tracing"
)

// TraceIDHeader is the response header carrying the w3c trace id, present
// only when tracing is enabled.
const TraceIDHeader = "x-trace-id"

// TracingMiddleware opens the root OpenTelemetry span for the request and
// closes it once the handler chain finishes, recording the final status.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := tracing.StartRequestSpan(c, c.Request.Method+" "+c.FullPath())
		if config.TracingEnabled {
			c.Header(TraceIDHeader, tracing.GetTraceID(c))
		}
		c.Next()
		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last().Err
		}
		tracing.EndRequestSpan(c, span, err)
	}
}
