package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gateway/multiapi/common"
	"github.com/gateway/multiapi/common/ctxkey"
	"github.com/gateway/multiapi/common/logger"
	"github.com/gateway/multiapi/model"
)

func setupTenantAuthTestDB(t *testing.T) func() {
	t.Helper()
	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, testDB.AutoMigrate(&model.TenantKey{}))

	originalDB := model.DB
	originalUsingSQLite := common.UsingSQLite.Load()

	model.DB = testDB
	common.UsingSQLite.Store(true)

	return func() {
		model.DB = originalDB
		common.UsingSQLite.Store(originalUsingSQLite)
	}
}

func hashOf(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func TestTenantAuthAcceptsValidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupTenantAuthTestDB(t)
	defer cleanup()

	tk := &model.TenantKey{TenantID: "acme", KeyHash: hashOf("sk-live-123"), Status: model.TenantKeyStatusEnabled}
	require.NoError(t, model.DB.Create(tk).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat/completions", nil)
	req.Header.Set("x-api-key", "sk-live-123")
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	gmw.SetLogger(c, logger.Logger)

	TenantAuth()(c)

	assert.False(t, c.IsAborted())
	resolved := GetTenantKey(c)
	require.NotNil(t, resolved)
	assert.Equal(t, "acme", resolved.TenantID)
}

func TestTenantAuthRejectsMissingKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupTenantAuthTestDB(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat/completions", nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	gmw.SetLogger(c, logger.Logger)

	TenantAuth()(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantAuthRejectsDisabledKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupTenantAuthTestDB(t)
	defer cleanup()

	tk := &model.TenantKey{TenantID: "acme", KeyHash: hashOf("sk-disabled"), Status: model.TenantKeyStatusDisabled}
	require.NoError(t, model.DB.Create(tk).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat/completions", nil)
	req.Header.Set("x-api-key", "sk-disabled")
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	gmw.SetLogger(c, logger.Logger)

	TenantAuth()(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenantAuthRejectsExpiredKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupTenantAuthTestDB(t)
	defer cleanup()

	past := time.Now().Add(-time.Hour)
	tk := &model.TenantKey{TenantID: "acme", KeyHash: hashOf("sk-expired"), Status: model.TenantKeyStatusEnabled, ExpiresAt: &past}
	require.NoError(t, model.DB.Create(tk).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat/completions", nil)
	req.Header.Set("x-api-key", "sk-expired")
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	gmw.SetLogger(c, logger.Logger)

	TenantAuth()(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenantAuthRejectsDisallowedSubnet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupTenantAuthTestDB(t)
	defer cleanup()

	tk := &model.TenantKey{
		TenantID:       "acme",
		KeyHash:        hashOf("sk-subnet"),
		Status:         model.TenantKeyStatusEnabled,
		AllowedSubnets: "10.0.0.0/8",
	}
	require.NoError(t, model.DB.Create(tk).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat/completions", nil)
	req.Header.Set("x-api-key", "sk-subnet")
	req.RemoteAddr = "203.0.113.5:12345"
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	gmw.SetLogger(c, logger.Logger)

	TenantAuth()(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenantAuthAcceptsAllowedSubnet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupTenantAuthTestDB(t)
	defer cleanup()

	tk := &model.TenantKey{
		TenantID:       "acme",
		KeyHash:        hashOf("sk-subnet-ok"),
		Status:         model.TenantKeyStatusEnabled,
		AllowedSubnets: "10.0.0.0/8",
	}
	require.NoError(t, model.DB.Create(tk).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat/completions", nil)
	req.Header.Set("x-api-key", "sk-subnet-ok")
	req.RemoteAddr = "10.1.2.3:12345"
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	gmw.SetLogger(c, logger.Logger)

	TenantAuth()(c)

	assert.False(t, c.IsAborted())
}

func TestTenantAuthAcceptsBearerFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupTenantAuthTestDB(t)
	defer cleanup()

	tk := &model.TenantKey{TenantID: "acme", KeyHash: hashOf("sk-bearer"), Status: model.TenantKeyStatusEnabled}
	require.NoError(t, model.DB.Create(tk).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat/completions", nil)
	req.Header.Set("Authorization", "Bearer sk-bearer")
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	gmw.SetLogger(c, logger.Logger)

	TenantAuth()(c)

	assert.False(t, c.IsAborted())
}
