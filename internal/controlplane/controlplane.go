// Package controlplane is the operator-facing JSON HTTP surface:
// upstream-key and tenant-key lifecycle, routing strategy activation, price
// telemetry, streaming-hub operations, and usage analytics. It has no
// provider-management routes. Strategy changes are published through
// internal/configstore's atomic-swap snapshot; key, tenant-key and price
// writes go straight to the database through package model.
package controlplane

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/common/config"
	"github.com/gateway/multiapi/common/helper"
	"github.com/gateway/multiapi/common/network"
	"github.com/gateway/multiapi/common/random"
	gwutils "github.com/gateway/multiapi/common/utils"
	"github.com/gateway/multiapi/internal/breaker"
	"github.com/gateway/multiapi/internal/configstore"
	"github.com/gateway/multiapi/internal/keymanager"
	"github.com/gateway/multiapi/internal/pricing"
	"github.com/gateway/multiapi/internal/router"
	"github.com/gateway/multiapi/internal/secret"
	"github.com/gateway/multiapi/internal/streaminghub"
	"github.com/gateway/multiapi/internal/usage"
	"github.com/gateway/multiapi/model"
)

// envelope wraps every control-plane response in the documented
// {success, data?, error?} shape.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, envelope{Success: false, Error: err.Error()})
}

// Server bundles the collaborators the control-plane handlers call into.
type Server struct {
	Config  *configstore.Store
	Keys    *keymanager.Manager
	Breaker *breaker.Breaker
	Streams *streaminghub.Hub
	Usage   *usage.Engine
}

// adminAuth rejects requests that don't carry config.AdminAPIKey in x-admin-key.
func adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.AdminAPIKey == "" || c.GetHeader("x-admin-key") != config.AdminAPIKey {
			fail(c, http.StatusUnauthorized, errUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

var errUnauthorized = httpError("invalid or missing x-admin-key")

type httpError string

func (e httpError) Error() string { return string(e) }

// Register mounts every control-plane route onto engine.
func (s *Server) Register(engine *gin.Engine) {
	grp := engine.Group("/", adminAuth())

	grp.GET("/health", s.health)

	grp.GET("/api-keys", s.listUpstreamKeys)
	grp.POST("/api-keys", s.createUpstreamKey)
	grp.PUT("/api-keys/:provider/:id/rotate", s.rotateUpstreamKey)
	grp.PUT("/api-keys/:provider/:id/disable", s.disableUpstreamKey)
	grp.PUT("/api-keys/:provider/:id/enable", s.enableUpstreamKey)
	grp.GET("/api-keys/select/:provider", s.previewSelection)

	grp.GET("/tenant-keys", s.listTenantKeys)
	grp.POST("/tenant-keys", s.createTenantKey)
	grp.PUT("/tenant-keys/:id/disable", s.disableTenantKey)
	grp.PUT("/tenant-keys/:id/enable", s.enableTenantKey)
	grp.DELETE("/tenant-keys/:id", s.deleteTenantKey)

	grp.GET("/intelligent-routing/strategies", s.listStrategies)
	grp.POST("/intelligent-routing/strategy", s.activateStrategy)

	grp.GET("/api-keys/strategies", s.listKeyStrategies)
	grp.POST("/api-keys/strategy", s.activateKeyStrategy)

	grp.GET("/prices/current", s.pricesCurrent)
	grp.POST("/prices/current", s.setPriceOverride)

	grp.GET("/streaming/streams", s.listStreams)
	grp.DELETE("/streaming/streams/:id", s.closeStream)

	grp.GET("/analytics/stats", s.analyticsStats)
}

func (s *Server) health(c *gin.Context) {
	snap := s.Config.Load()
	ok(c, gin.H{
		"status":           "ok",
		"config_version":   snap.Version,
		"provider_count":   len(snap.Providers),
		"open_streams":     len(s.Streams.List("")),
		"uptime_unix_secs": helper.GetTimestamp(),
	})
}

type createKeyRequest struct {
	ProviderId int64  `json:"provider_id" binding:"required"`
	Key        string `json:"key" binding:"required"`
	Name       string `json:"name"`
	Weight     int32  `json:"weight"`
}

func (s *Server) listUpstreamKeys(c *gin.Context) {
	var keys []*model.UpstreamKey
	if err := model.DB.Find(&keys).Error; err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, keys)
}

func (s *Server) createUpstreamKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	sealed, err := s.Keys.Seal(secret.String(req.Key))
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}

	weight := req.Weight
	if weight <= 0 {
		weight = 1
	}
	k := &model.UpstreamKey{
		ProviderId:      req.ProviderId,
		EncryptedSecret: sealed,
		Name:            req.Name,
		Weight:          weight,
		Status:          model.UpstreamKeyStatusEnabled,
	}
	if err := model.DB.Create(k).Error; err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"id": k.Id})
}

func (s *Server) rotateUpstreamKey(c *gin.Context) {
	// Rotation is disable-old + create-new under one id boundary: the
	// caller is expected to POST /api-keys for the replacement and PUT
	// disable here, leaving the old key in a grace window for in-flight
	// requests that already captured it.
	s.disableUpstreamKey(c)
}

func (s *Server) disableUpstreamKey(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := model.UpdateKeyStatus(id, model.UpstreamKeyStatusDisabled); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"id": id, "status": "disabled"})
}

func (s *Server) enableUpstreamKey(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := model.UpdateKeyStatus(id, model.UpstreamKeyStatusEnabled); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	s.Breaker.ResetKey(id)
	ok(c, gin.H{"id": id, "status": "enabled"})
}

type createTenantKeyRequest struct {
	TenantID          string `json:"tenant_id" binding:"required"`
	Name              string `json:"name"`
	AllowedModels     string `json:"allowed_models"`
	AllowedSubnets    string `json:"allowed_subnets"`
	UnlimitedQuota    bool   `json:"unlimited_quota"`
	RemainQuota       int64  `json:"remain_quota"`
	RequestsPerMinute int32  `json:"requests_per_minute"`
	TokensPerMinute   int32  `json:"tokens_per_minute"`
}

func (s *Server) listTenantKeys(c *gin.Context) {
	keys, err := model.ListTenantKeys()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, keys)
}

// createTenantKey mints a fresh, random key and returns it exactly once: only
// its sha256 hash is ever persisted, so a lost plaintext key cannot be
// recovered and must be rotated by creating a replacement.
func (s *Server) createTenantKey(c *gin.Context) {
	var req createTenantKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.AllowedSubnets != "" {
		if err := network.IsValidSubnets(req.AllowedSubnets); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}

	plaintext := random.GenerateKey()
	sum := sha256.Sum256([]byte(plaintext))

	k := &model.TenantKey{
		TenantID:          req.TenantID,
		Name:              req.Name,
		KeyHash:           hex.EncodeToString(sum[:]),
		Status:            model.TenantKeyStatusEnabled,
		AllowedModels:     req.AllowedModels,
		AllowedSubnets:    req.AllowedSubnets,
		UnlimitedQuota:    req.UnlimitedQuota,
		RemainQuota:       req.RemainQuota,
		RequestsPerMinute: req.RequestsPerMinute,
		TokensPerMinute:   req.TokensPerMinute,
	}
	if err := model.DB.Create(k).Error; err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"id": k.Id, "key": plaintext})
}

func (s *Server) disableTenantKey(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := model.SetTenantKeyStatus(id, model.TenantKeyStatusDisabled); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"id": id, "status": "disabled"})
}

func (s *Server) enableTenantKey(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := model.SetTenantKeyStatus(id, model.TenantKeyStatusEnabled); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"id": id, "status": "enabled"})
}

func (s *Server) deleteTenantKey(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := model.DeleteTenantKey(id); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"id": id, "status": "deleted"})
}

func (s *Server) previewSelection(c *gin.Context) {
	providerId, err := pathID(c, "provider")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	strategy := keymanager.Strategy(c.Query("strategy"))
	if strategy == "" {
		strategy = keymanager.DefaultStrategy
	}

	selected, err := s.Keys.Select(providerId, keymanager.Permissions{}, strategy)
	if err != nil {
		fail(c, http.StatusNotFound, err)
		return
	}
	ok(c, gin.H{"key_id": selected.KeyId, "strategy": strategy})
}

func (s *Server) listKeyStrategies(c *gin.Context) {
	ok(c, []keymanager.Strategy{keymanager.LeastUsed, keymanager.RoundRobin, keymanager.Random})
}

type activateKeyStrategyRequest struct {
	Strategy string `json:"strategy" binding:"required"`
}

func (s *Server) activateKeyStrategy(c *gin.Context) {
	var req activateKeyStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	s.Config.SetKeyStrategy(keymanager.Strategy(req.Strategy))
	ok(c, gin.H{"strategy": req.Strategy})
}

func (s *Server) listStrategies(c *gin.Context) {
	ok(c, []router.Strategy{router.CostFirst, router.LatencyFirst, router.QualityFirst, router.Balanced})
}

type activateStrategyRequest struct {
	Strategy string  `json:"strategy" binding:"required"`
	Cost     float64 `json:"cost_weight"`
	Latency  float64 `json:"latency_weight"`
	Error    float64 `json:"error_weight"`
}

func (s *Server) activateStrategy(c *gin.Context) {
	var req activateStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	weights := router.DefaultWeights
	if req.Cost+req.Latency+req.Error > 0 {
		weights = router.Weights{Cost: req.Cost, Latency: req.Latency, Error: req.Error}
	}
	s.Config.SetStrategy(router.Strategy(req.Strategy), weights)
	ok(c, gin.H{"strategy": req.Strategy})
}

func (s *Server) pricesCurrent(c *gin.Context) {
	var rows []*model.PriceTable
	if err := model.DB.Find(&rows).Error; err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, rows)
}

type setPriceRequest struct {
	ModelName         string  `json:"model_name" binding:"required"`
	Ratio             float64 `json:"ratio"`
	CompletionRatio   float64 `json:"completion_ratio"`
	CachedInputRatio  float64 `json:"cached_input_ratio"`
	CacheWrite5mRatio float64 `json:"cache_write_5m_ratio"`
	CacheWrite1hRatio float64 `json:"cache_write_1h_ratio"`
}

func (s *Server) setPriceOverride(c *gin.Context) {
	var req setPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	err := pricing.UpsertOverride(req.ModelName, pricing.Table{
		ModelName:         req.ModelName,
		Ratio:             req.Ratio,
		CompletionRatio:   req.CompletionRatio,
		CachedInputRatio:  req.CachedInputRatio,
		CacheWrite5mRatio: req.CacheWrite5mRatio,
		CacheWrite1hRatio: req.CacheWrite1hRatio,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"model_name": req.ModelName})
}

func (s *Server) listStreams(c *gin.Context) {
	ok(c, s.Streams.List(c.Query("tenant")))
}

func (s *Server) closeStream(c *gin.Context) {
	id := c.Param("id")
	if !s.Streams.Close(id) {
		fail(c, http.StatusNotFound, httpError("no such stream"))
		return
	}
	ok(c, gin.H{"id": id, "status": "closed"})
}

func (s *Server) analyticsStats(c *gin.Context) {
	fromStr := c.Query("from_date")
	toStr := c.Query("to_date")

	var since, until time.Time
	if fromStr == "" && toStr == "" {
		until = time.Now()
		since = until.Add(-24 * time.Hour)
	} else {
		startUnix, endUnix, err := gwutils.NormalizeDateRange(fromStr, toStr, 90)
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		since = time.Unix(startUnix, 0).UTC()
		until = time.Unix(endUnix, 0).UTC()
	}

	rows, err := model.SummarizeUsageByTenant(since, until)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, rows)
}

func pathID(c *gin.Context, param string) (int64, error) {
	return parseInt64(c.Param(param))
}

func parseInt64(s string) (int64, error) {
	var v int64
	var neg bool
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if len(s) == 0 {
		return 0, httpError("empty id")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, httpError("invalid id: " + s)
		}
		v = v*10 + int64(r-'0')
	}
	if neg {
		v = -v
	}
	return v, nil
}
