package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gateway/multiapi/common/ctxkey"
)

// RequestIDHeader is the response header every client-facing reply carries,
// generated fresh per request unless the caller already supplied one.
const RequestIDHeader = "x-request-id"

// RequestId assigns a request id, reusing one the caller already sent in
// x-request-id so a client-generated id survives end to end.
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxkey.RequestId, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
