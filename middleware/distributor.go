package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/common/ctxkey"
	"github.com/gateway/multiapi/common/network"
	"github.com/gateway/multiapi/model"
)

// TenantAuth resolves the x-api-key (or "Authorization: Bearer ...") header
// into a model.TenantKey and stores it on the gin context. Provider
// selection itself happens later, inside internal/dispatch: this
// middleware only establishes who is calling and whether they are allowed
// to call at all.
func TenantAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := gmw.GetLogger(c)

		presented := extractAPIKey(c)
		if presented == "" {
			AbortWithError(c, http.StatusUnauthorized, errors.New("missing API key"))
			return
		}

		sum := sha256.Sum256([]byte(presented))
		hash := hex.EncodeToString(sum[:])

		tenantKey, err := model.GetTenantKeyByHash(hash)
		if err != nil {
			lg.Warn("tenant key lookup failed", zap.Error(err))
			AbortWithError(c, http.StatusUnauthorized, errors.New("invalid API key"))
			return
		}

		if tenantKey.Status != model.TenantKeyStatusEnabled {
			AbortWithError(c, http.StatusForbidden, errors.New("API key is disabled or expired"))
			return
		}
		if tenantKey.ExpiresAt != nil && tenantKey.ExpiresAt.Before(time.Now()) {
			AbortWithError(c, http.StatusForbidden, errors.New("API key has expired"))
			return
		}
		if tenantKey.AllowedSubnets != "" && !network.IsIpInSubnets(c.Request.Context(), c.ClientIP(), tenantKey.AllowedSubnets) {
			AbortWithError(c, http.StatusForbidden, errors.New("source IP not allowed for this API key"))
			return
		}

		c.Set(ctxkey.TenantKey, tenantKey)
		c.Next()
	}
}

// extractAPIKey reads x-api-key first (the documented header), then falls
// back to an "Authorization: Bearer <key>" header for OpenAI-SDK clients
// that always send credentials that way.
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

// GetTenantKey retrieves the tenant key TenantAuth attached to the context.
func GetTenantKey(c *gin.Context) *model.TenantKey {
	v, ok := c.Get(ctxkey.TenantKey)
	if !ok {
		return nil
	}
	k, _ := v.(*model.TenantKey)
	return k
}
