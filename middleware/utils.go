package middleware

import (
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/common/tracing"
)

// AbortWithError aborts the request with an error message, logged at WARN
// for client-facing auth failures and ERROR otherwise.
func AbortWithError(c *gin.Context, statusCode int, err error) {
	logger := gmw.GetLogger(c)
	if statusCode == 401 || statusCode == 403 {
		logger.Warn("request rejected", zap.Int("status_code", statusCode), zap.Error(err))
	} else {
		logger.Error("request aborted", zap.Int("status_code", statusCode), zap.Error(err))
	}

	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   withTraceID(c, err.Error()),
	})
	c.Abort()
}

func withTraceID(c *gin.Context, message string) string {
	traceID := tracing.GetTraceID(c)
	if traceID == "" {
		return message
	}
	return message + " (trace_id=" + traceID + ")"
}

// isModelInList reports whether modelName appears in a comma-separated list.
func isModelInList(modelName string, models string) bool {
	for _, m := range strings.Split(models, ",") {
		if strings.TrimSpace(m) == modelName {
			return true
		}
	}
	return false
}
